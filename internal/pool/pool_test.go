package pool

import (
	"bytes"
	"testing"
)

func TestPutBody_DropsOversizeBuffers(t *testing.T) {
	buf := GetBody()
	buf.WriteString("payload")
	PutBody(buf, 1<<20)

	if got := GetBody(); got.Len() != 0 {
		t.Fatalf("expected reset buffer from pool, got len=%d", got.Len())
	}

	// maxCap 보다 큰 버퍼는 풀에 들어가지 않아야 하지만 panic 없이 무시되어야 한다.
	big := bytes.NewBuffer(make([]byte, 0, 2<<20))
	PutBody(big, 1<<20)
	PutBuffer(bytes.NewBuffer(make([]byte, 0, MaxBufferCap+1)))
}
