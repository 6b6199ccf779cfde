package tracker

import (
	"testing"
	"time"

	"visitor-tracker/internal/device"
	"visitor-tracker/internal/metrics"
	"visitor-tracker/internal/model"
	"visitor-tracker/internal/store"
)

func fixedNow() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestVisitorID_IsStable(t *testing.T) {
	a := VisitorID("203.0.113.42", "Mozilla/5.0")
	b := VisitorID("203.0.113.42", "Mozilla/5.0")
	if a != b {
		t.Fatalf("expected identical ids, got %s / %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", a)
	}
	if a == VisitorID("203.0.113.43", "Mozilla/5.0") {
		t.Fatalf("expected different ip to change the id")
	}
}

func TestAnonymizeIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.42": "203.0.xxx.xxx",
		"10.1.2.3":     "10.1.xxx.xxx",
		"2001:db8::1":  "2001:db8::1",
		"":             "",
		"localhost":    "localhost",
	}
	for in, want := range cases {
		if got := AnonymizeIP(in); got != want {
			t.Fatalf("AnonymizeIP(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestVisitRecorder_Record(t *testing.T) {
	visits := store.NewCollection[model.VisitRecord](t.TempDir(), "visits", nil)
	resolver := device.ResolverFunc(func(ua string) model.DeviceInfo {
		return model.DeviceInfo{Browser: "Firefox", OS: "Linux", Device: "Desktop"}
	})
	m := metrics.New()
	r := NewVisitRecorder(visits, resolver, true, m)
	r.now = fixedNow

	rec, err := r.Record(VisitInput{IP: "203.0.113.42", UserAgent: "ua", PageURL: "/home"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.IPAddress != "203.0.xxx.xxx" {
		t.Fatalf("expected anonymized ip, got %q", rec.IPAddress)
	}
	if rec.VisitID != VisitorID("203.0.113.42", "ua") {
		t.Fatalf("visit id must be derived from the raw ip")
	}
	if rec.SessionID != rec.VisitID {
		t.Fatalf("session id must equal visit id, got %q / %q", rec.SessionID, rec.VisitID)
	}
	if stored := visits.Load(); len(stored) != 1 || stored[0].SessionID != rec.VisitID {
		t.Fatalf("stored session id must equal visit id, got %+v", stored)
	}
	if rec.Timestamp != "2024-03-01T12:00:00.000000" {
		t.Fatalf("expected server timestamp, got %q", rec.Timestamp)
	}
	if rec.Device.Browser != "Firefox" {
		t.Fatalf("expected resolved device, got %+v", rec.Device)
	}

	second, err := r.Record(VisitInput{IP: "203.0.113.42", UserAgent: "ua", PageURL: "/other", Timestamp: "2024-01-01T00:00:00"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if second.VisitID != rec.VisitID {
		t.Fatalf("same ip/ua must give the same visit id")
	}
	if second.Timestamp != "2024-01-01T00:00:00" {
		t.Fatalf("client timestamp must be kept, got %q", second.Timestamp)
	}

	if got := len(visits.Load()); got != 2 {
		t.Fatalf("expected 2 stored visits, got %d", got)
	}
	if m.VisitsRecordedTotal != 2 {
		t.Fatalf("expected counter 2, got %d", m.VisitsRecordedTotal)
	}
}

func TestEventRecorder_IDsAreMonotonic(t *testing.T) {
	events := store.NewCollection[model.EventRecord](t.TempDir(), "events", nil)
	r := NewEventRecorder(events, nil)
	r.now = fixedNow

	id1, err := r.Record(EventInput{EventType: "click"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	ids, err := r.RecordMany([]EventInput{{EventType: "scroll"}, {EventType: "submit"}})
	if err != nil {
		t.Fatalf("record many: %v", err)
	}
	if id1 != 1 || ids[0] != 2 || ids[1] != 3 {
		t.Fatalf("unexpected ids %d %v", id1, ids)
	}

	// 앞쪽이 잘려도 번호는 재사용되지 않는다.
	if err := events.Replace(events.Load()[2:]); err != nil {
		t.Fatalf("replace: %v", err)
	}
	id4, err := r.Record(EventInput{EventType: "click"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id4 != 4 {
		t.Fatalf("expected id 4 after pruning, got %d", id4)
	}

	all := events.Load()
	if all[len(all)-1].EventData == nil {
		t.Fatalf("event_data must default to an empty object")
	}
}
