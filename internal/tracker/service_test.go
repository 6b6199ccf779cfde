package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"visitor-tracker/internal/metrics"
	"visitor-tracker/internal/model"
	"visitor-tracker/internal/ratelimit"
	"visitor-tracker/internal/store"
)

func newTestService(t *testing.T, limiter ratelimit.Limiter) (*Service, *metrics.Metrics) {
	t.Helper()
	dir := t.TempDir()
	m := metrics.New()
	svc := NewService(Options{
		Visits:         store.NewCollection[model.VisitRecord](dir, "visits", m),
		Events:         store.NewCollection[model.EventRecord](dir, "events", m),
		AccessLog:      store.NewAccessLogger(dir+"/access.log", 100, m),
		Limiter:        limiter,
		Metrics:        m,
		AnonymizeIP:    true,
		RetentionDays:  90,
		MaxBatchEvents: 3,
	})
	return svc, m
}

func TestService_TrackVisitValidation(t *testing.T) {
	svc, m := newTestService(t, nil)

	cases := []struct {
		payload map[string]any
		reason  string
	}{
		{nil, "No data provided"},
		{map[string]any{}, "No data provided"},
		{map[string]any{"referrer": "x"}, "Missing required field: pageUrl"},
		{map[string]any{"pageUrl": ""}, "Missing required field: pageUrl"},
		{map[string]any{"pageUrl": 42.0}, "Invalid page URL format"},
		{map[string]any{"pageUrl": string(make([]byte, MaxPageURLLength+1))}, "Invalid page URL format"},
	}
	for _, tc := range cases {
		_, err := svc.TrackVisit("1.2.3.4", "ua", tc.payload)
		reason, ok := IsValidation(err)
		if !ok || reason != tc.reason {
			t.Fatalf("payload %v: expected %q, got %v", tc.payload, tc.reason, err)
		}
	}
	if m.ValidationFailedTotal != int64(len(cases)) {
		t.Fatalf("expected %d validation failures, got %d", len(cases), m.ValidationFailedTotal)
	}
	if len(svc.visits.Load()) != 0 {
		t.Fatalf("rejected visits must not be stored")
	}

	rec, err := svc.TrackVisit("1.2.3.4", "ua", map[string]any{"pageUrl": "/ok", "language": "ko-KR"})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if rec.IPAddress != "1.2.xxx.xxx" || rec.Language != "ko-KR" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestService_AdmitSharesWindowPerClient(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewSlidingWindow(1, time.Minute, ratelimit.WithClock(func() time.Time { return now }))
	svc, m := newTestService(t, limiter)
	ctx := context.Background()

	if err := svc.Admit(ctx, "9.9.9.9"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := svc.Admit(ctx, "9.9.9.9"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if m.RateLimitedTotal != 1 {
		t.Fatalf("expected 1 rate limited, got %d", m.RateLimitedTotal)
	}
	if err := svc.Admit(ctx, "8.8.8.8"); err != nil {
		t.Fatalf("other client must be unaffected: %v", err)
	}

	unlimited, _ := newTestService(t, nil)
	if err := unlimited.Admit(ctx, "9.9.9.9"); err != nil {
		t.Fatalf("nil limiter must admit: %v", err)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return true, errors.New("redis down")
}

func TestService_LimiterErrorFailsOpen(t *testing.T) {
	svc, _ := newTestService(t, failingLimiter{})
	if err := svc.Admit(context.Background(), "1.1.1.1"); err != nil {
		t.Fatalf("expected request to be admitted, got %v", err)
	}
}

func TestService_TrackEvents(t *testing.T) {
	svc, m := newTestService(t, nil)

	if _, err := svc.TrackEvent(map[string]any{"eventData": map[string]any{"x": 1.0}}); err == nil {
		t.Fatalf("expected missing eventType to be rejected")
	}

	if _, err := svc.TrackEvents(map[string]any{"events": []any{}}); err == nil {
		t.Fatalf("expected empty batch to be rejected")
	}
	tooMany := []any{map[string]any{}, map[string]any{}, map[string]any{}, map[string]any{}}
	if _, err := svc.TrackEvents(map[string]any{"events": tooMany}); err == nil {
		t.Fatalf("expected oversize batch to be rejected")
	}

	ids, err := svc.TrackEvents(map[string]any{"events": []any{
		map[string]any{"eventType": "click", "visitId": "v1"},
		map[string]any{"eventData": map[string]any{"depth": 50.0}},
		map[string]any{"eventType": ""},
	}})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("unexpected ids %v", ids)
	}

	stored := svc.events.Load()
	if stored[1].EventType != "unknown" {
		t.Fatalf("expected default event type, got %q", stored[1].EventType)
	}
	if stored[2].EventType != "" {
		t.Fatalf("explicit empty eventType must be kept, got %q", stored[2].EventType)
	}
	if m.EventsRecordedTotal != 3 {
		t.Fatalf("expected 3 recorded events, got %d", m.EventsRecordedTotal)
	}

	summary := svc.Stats(Query{Metric: MetricEvents}).(EventsSummary)
	if summary.TotalEvents != 3 {
		t.Fatalf("expected events summary to see 3, got %d", summary.TotalEvents)
	}
}

func TestService_RecentLogsAndCleanup(t *testing.T) {
	svc, _ := newTestService(t, nil)

	svc.LogAccess(model.AccessLogEntry{Method: "GET", Path: "/api/tracker/health", StatusCode: 200})
	if got := svc.RecentLogs(10); len(got) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(got))
	}

	if _, err := svc.TrackVisit("1.1.1.1", "ua", map[string]any{"pageUrl": "/", "timestamp": "2000-01-01T00:00:00"}); err != nil {
		t.Fatalf("track: %v", err)
	}
	res, err := svc.Cleanup(nil)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if res.VisitsRemoved != 1 {
		t.Fatalf("expected old visit to be removed, got %+v", res)
	}
	if len(svc.RecentVisits(20)) != 0 {
		t.Fatalf("expected no visits after cleanup")
	}
}
