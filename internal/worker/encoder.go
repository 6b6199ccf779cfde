package worker

import (
	"visitor-tracker/internal/pool"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// Encoder 는 레코드 묶음을 JSONL → gzip 으로 직렬화한다.
// archive 업로드와 /export?format=gzip 이 같은 형식을 쓴다.
//
// 결과는 pool 버퍼를 복사한 새 []byte 이다.
// pool 버퍼를 그대로 넘기면 재사용 시 내용이 덮어써진다.
type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// EncodeJSONLGZ 는 records 를 한 줄에 하나씩 JSON 으로 쓴 뒤 gzip 압축한다.
func (e *Encoder) EncodeJSONLGZ(records []any) ([]byte, error) {
	buf := pool.GetBuffer()

	gz := pool.GzipPool.Get().(*gzip.Writer)
	gz.Reset(buf)

	enc := json.NewEncoder(gz)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = gz.Close()
			pool.GzipPool.Put(gz)
			pool.PutBuffer(buf)
			return nil, err
		}
	}

	// Close 시 gzip footer 가 기록된다.
	if err := gz.Close(); err != nil {
		pool.GzipPool.Put(gz)
		pool.PutBuffer(buf)
		return nil, err
	}
	pool.GzipPool.Put(gz)

	raw := buf.Bytes()
	data := make([]byte, len(raw))
	copy(data, raw)
	pool.PutBuffer(buf)

	return data, nil
}
