// internal/model/event.go
package model

// EventRecord
// ------------------------------------------------------------
// 클라이언트가 보낸 커스텀 UI 이벤트 1건.
//
// EventID 는 events 컬렉션 잠금 안에서 증가하는 정수이다.
// 단조 증가만 보장하며 연속(dense)이라는 보장은 없다
// (retention 으로 앞쪽이 잘려도 번호는 재사용되지 않는다).
// VisitID 는 client 값을 그대로 저장하며 visits 존재 여부는 검사하지 않는다.
type EventRecord struct {
	EventID         int64          `json:"event_id"`
	VisitID         string         `json:"visit_id"`
	EventType       string         `json:"event_type"`
	EventData       map[string]any `json:"event_data"`
	ElementSelector string         `json:"element_selector"`
	Timestamp       string         `json:"timestamp"`
}

func (e EventRecord) RecordTimestamp() string { return e.Timestamp }

// ArchiveJob
// ------------------------------------------------------------
// retention 으로 잘려 나간 레코드 묶음.
// RetentionManager → worker.Manager → Encoder(gzip JSONL) → S3 로 전달된다.
type ArchiveJob struct {
	Collection string // "visits" | "events"
	Records    []any
}
