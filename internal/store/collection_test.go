package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"visitor-tracker/internal/metrics"
	"visitor-tracker/internal/model"
)

func TestCollection_LoadMissingFileIsEmpty(t *testing.T) {
	m := metrics.New()
	c := NewCollection[model.VisitRecord](t.TempDir(), "visits", m)

	got := c.Load()
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	if m.StoreCorruptReadsTotal != 0 {
		t.Fatalf("absence must not count as corruption")
	}
}

func TestCollection_LoadCorruptFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "visits.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := metrics.New()
	c := NewCollection[model.VisitRecord](dir, "visits", m)

	if got := c.Load(); len(got) != 0 {
		t.Fatalf("expected empty collection for corrupt file, got %d", len(got))
	}
	if m.StoreCorruptReadsTotal != 1 {
		t.Fatalf("expected corrupt read to be counted, got %d", m.StoreCorruptReadsTotal)
	}
}

func TestCollection_AppendPreservesOrder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	c := NewCollection[model.VisitRecord](dir, "visits", nil)

	const n = 25
	for i := 0; i < n; i++ {
		rec := model.VisitRecord{VisitID: string(rune('a' + i)), PageURL: "/p"}
		if err := c.Append(rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got := c.Load()
	if len(got) != n {
		t.Fatalf("expected %d records, got %d", n, len(got))
	}
	for i, rec := range got {
		if rec.VisitID != string(rune('a'+i)) {
			t.Fatalf("record %d out of order: %q", i, rec.VisitID)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, "visits.json")); err != nil {
		t.Fatalf("expected backing file to be created: %v", err)
	}
}

func TestCollection_ConcurrentAppendsAreNotLost(t *testing.T) {
	c := NewCollection[model.EventRecord](t.TempDir(), "events", nil)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Append(model.EventRecord{EventType: "click"}); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(c.Load()); got != 40 {
		t.Fatalf("expected 40 events after concurrent appends, got %d", got)
	}
}

func TestCollection_ReplaceAndUpdate(t *testing.T) {
	c := NewCollection[model.EventRecord](t.TempDir(), "events", nil)

	if err := c.AppendMany([]model.EventRecord{{EventID: 1}, {EventID: 2}, {EventID: 3}}); err != nil {
		t.Fatalf("append many: %v", err)
	}
	if err := c.Replace([]model.EventRecord{{EventID: 3}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if got := c.Load(); len(got) != 1 || got[0].EventID != 3 {
		t.Fatalf("unexpected contents after replace: %#v", got)
	}

	boom := errors.New("boom")
	err := c.Update(func(all []model.EventRecord) ([]model.EventRecord, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected update error to propagate, got %v", err)
	}
	if got := c.Load(); len(got) != 1 {
		t.Fatalf("failed update must not write, got %d records", len(got))
	}

	if err := c.Replace(nil); err != nil {
		t.Fatalf("replace nil: %v", err)
	}
	data, err := os.ReadFile(c.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Fatalf("expected empty array document, got %q", data)
	}
}

func TestCollection_WriteFailureIsReported(t *testing.T) {
	dir := t.TempDir()
	// 디렉토리 자리에 파일을 만들어 MkdirAll 이 실패하도록 한다.
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	m := metrics.New()
	c := NewCollection[model.VisitRecord](filepath.Join(blocker, "data"), "visits", m)

	if err := c.Append(model.VisitRecord{PageURL: "/"}); err == nil {
		t.Fatalf("expected write error")
	}
	if m.StorageWriteErrorsTotal != 1 {
		t.Fatalf("expected write error to be counted, got %d", m.StorageWriteErrorsTotal)
	}
}
