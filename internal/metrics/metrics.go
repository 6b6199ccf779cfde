package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 서버 상태를 나타내는 카운터 모음이다.
// 모든 필드는 atomic 으로만 접근한다.
type Metrics struct {
	// ======================
	// Ingest 지표
	// ======================

	// VisitsRecordedTotal / EventsRecordedTotal
	// - visits / events 컬렉션에 실제로 저장된 레코드 수.
	// - batch 요청(/events)은 이벤트 개수만큼 증가한다.
	VisitsRecordedTotal int64
	EventsRecordedTotal int64

	// RateLimitedTotal
	// - sliding window 를 초과해 429 로 거절된 ingest 요청 수.
	RateLimitedTotal int64

	// ValidationFailedTotal
	// - 필수 필드 누락/형식 오류로 400 을 반환한 요청 수.
	ValidationFailedTotal int64

	// ======================
	// 저장소 지표
	// ======================

	// StorageWriteErrorsTotal
	// - 컬렉션 파일 쓰기 실패 횟수. 0 이 아니면 디스크/권한 문제.
	StorageWriteErrorsTotal int64

	// StoreCorruptReadsTotal
	// - 파일은 있지만 디코딩에 실패한 읽기 횟수.
	// - 호출자에게는 빈 컬렉션으로 보이므로 이 값으로만 손상을 알 수 있다.
	StoreCorruptReadsTotal int64

	// RecordsPrunedTotal
	// - retention 으로 제거된 레코드 수 (visits + events).
	RecordsPrunedTotal int64

	// AccessLogErrorsTotal
	// - access log 쓰기 실패 (best-effort 이므로 요청에는 영향 없음).
	AccessLogErrorsTotal int64

	// ======================
	// Archive 지표
	// ======================

	// ArchiveJobsDroppedTotal
	// - archive 큐가 가득 차서 버려진 job 수 (해당 레코드는 S3 에 남지 않는다).
	ArchiveJobsDroppedTotal int64

	// ArchiveRecordsStoredTotal
	// - S3 에 저장된 pruned 레코드 수.
	ArchiveRecordsStoredTotal int64

	// S3PutErrorsTotal
	// - PutObject 실패 "시도" 횟수. retry 마다 증가한다.
	S3PutErrorsTotal int64

	// ======================
	// DLQ 지표
	// ======================

	DLQRecordsEnqueuedTotal   int64
	DLQRecordsReuploadedTotal int64
	DLQRecordsDroppedTotal    int64
	DLQFilesExpiredTotal      int64
	DLQFilesCurrent           int64
	DLQSizeBytes              int64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)

	fmt.Fprintf(&sb, "visits_recorded_total=%d\n", atomic.LoadInt64(&m.VisitsRecordedTotal))
	fmt.Fprintf(&sb, "events_recorded_total=%d\n", atomic.LoadInt64(&m.EventsRecordedTotal))
	fmt.Fprintf(&sb, "rate_limited_total=%d\n", atomic.LoadInt64(&m.RateLimitedTotal))
	fmt.Fprintf(&sb, "validation_failed_total=%d\n", atomic.LoadInt64(&m.ValidationFailedTotal))

	fmt.Fprintf(&sb, "storage_write_errors_total=%d\n", atomic.LoadInt64(&m.StorageWriteErrorsTotal))
	fmt.Fprintf(&sb, "store_corrupt_reads_total=%d\n", atomic.LoadInt64(&m.StoreCorruptReadsTotal))
	fmt.Fprintf(&sb, "records_pruned_total=%d\n", atomic.LoadInt64(&m.RecordsPrunedTotal))
	fmt.Fprintf(&sb, "access_log_errors_total=%d\n", atomic.LoadInt64(&m.AccessLogErrorsTotal))

	fmt.Fprintf(&sb, "archive_jobs_dropped_total=%d\n", atomic.LoadInt64(&m.ArchiveJobsDroppedTotal))
	fmt.Fprintf(&sb, "archive_records_stored_total=%d\n", atomic.LoadInt64(&m.ArchiveRecordsStoredTotal))
	fmt.Fprintf(&sb, "s3_put_errors_total=%d\n", atomic.LoadInt64(&m.S3PutErrorsTotal))

	fmt.Fprintf(&sb, "dlq_records_enqueued_total=%d\n", atomic.LoadInt64(&m.DLQRecordsEnqueuedTotal))
	fmt.Fprintf(&sb, "dlq_records_reuploaded_total=%d\n", atomic.LoadInt64(&m.DLQRecordsReuploadedTotal))
	fmt.Fprintf(&sb, "dlq_records_dropped_total=%d\n", atomic.LoadInt64(&m.DLQRecordsDroppedTotal))
	fmt.Fprintf(&sb, "dlq_files_expired_total=%d\n", atomic.LoadInt64(&m.DLQFilesExpiredTotal))
	fmt.Fprintf(&sb, "dlq_files_current=%d\n", atomic.LoadInt64(&m.DLQFilesCurrent))
	fmt.Fprintf(&sb, "dlq_size_bytes=%d\n", atomic.LoadInt64(&m.DLQSizeBytes))

	return sb.String()
}
