package metrics

import (
	"strings"
	"sync/atomic"
	"testing"
)

func TestString_RendersCounters(t *testing.T) {
	m := New()
	atomic.AddInt64(&m.VisitsRecordedTotal, 3)
	atomic.AddInt64(&m.RateLimitedTotal, 1)
	atomic.AddInt64(&m.DLQSizeBytes, 2048)

	out := m.String()
	for _, want := range []string{
		"visits_recorded_total=3\n",
		"rate_limited_total=1\n",
		"events_recorded_total=0\n",
		"dlq_size_bytes=2048\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
