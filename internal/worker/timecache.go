package worker

import (
	"sync/atomic"
	"time"
)

// ------------------------------------------------------------
// 현재 UTC epoch seconds 와 S3 파티션 (dt=YYYY-MM-DD / hr=HH) 을
// 1초 단위로 캐싱한다. 레코드 timestamp 가 UTC 이므로 파티션도 UTC.
//
// 사용처:
//   - archive/DLQ 파일명 prefix (<unix>_...)
//   - DLQ TTL 판단
//   - S3 key 파티션
// ------------------------------------------------------------

var (
	unixSec atomic.Int64
	dtVal   atomic.Value // "YYYY-MM-DD"
	hrVal   atomic.Value // "HH"
)

func init() {
	update()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for range ticker.C {
			update()
		}
	}()
}

func update() {
	now := time.Now().UTC()
	unixSec.Store(now.Unix())
	dtVal.Store(now.Format("2006-01-02"))
	hrVal.Store(now.Format("15"))
}

// Unix returns current UTC epoch seconds (cached, 1-second precision).
func Unix() int64 {
	return unixSec.Load()
}

// DT returns "YYYY-MM-DD" (UTC).
func DT() string {
	return dtVal.Load().(string)
}

// HR returns "HH" (UTC).
func HR() string {
	return hrVal.Load().(string)
}
