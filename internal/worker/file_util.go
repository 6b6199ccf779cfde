package worker

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// 파일명 규칙:
//
//	<unix>_<instance>_<counter>.jsonl.gz
//
// 예:
//
//	1764721594_tracker1_000042.jsonl.gz
//
// 문자열 정렬 = 시간 정렬 이므로 DLQ 재업로드 시 가장 오래된 파일부터 처리할 수 있다.
var globalCounter uint64

// NextCounter 는 1e6 에서 0 으로 돌아간다.
// timestamp + instance 조합이 있으므로 wrap-around 되어도 충돌하지 않는다.
func NextCounter() uint64 {
	return atomic.AddUint64(&globalCounter, 1) % 1_000_000
}

// NewFilename 은 <unix>_<instance>_<counter>.jsonl.gz 를 만든다.
func NewFilename(instanceID string) string {
	return fmt.Sprintf("%d_%s_%06d.jsonl.gz", Unix(), instanceID, NextCounter())
}

// BuildS3Key 는 컬렉션별 파티션 key 를 만든다.
//
//	<prefix>/<collection>/dt=<YYYY-MM-DD>/hr=<HH>/<filename>
func BuildS3Key(prefix, collection, filename string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if collection == "" {
		collection = "unknown"
	}
	return fmt.Sprintf("%s/%s/dt=%s/hr=%s/%s", prefix, collection, DT(), HR(), filename)
}

// extractUnixFromFilename 은 파일명 prefix 의 Unix seconds 를 파싱한다.
func extractUnixFromFilename(name string) (int64, bool) {
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return 0, false
	}
	sec, err := strconv.ParseInt(name[:idx], 10, 64)
	if err != nil || sec <= 0 {
		return 0, false
	}
	return sec, true
}
