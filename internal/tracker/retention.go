package tracker

import (
	"context"
	"sync/atomic"
	"time"

	"visitor-tracker/internal/metrics"
	"visitor-tracker/internal/model"
	"visitor-tracker/internal/store"

	"github.com/rs/zerolog/log"
)

// Archiver 는 retention 으로 잘려 나간 레코드를 받아 보관한다.
// Enqueue 는 블록하지 않아야 하며, 큐가 가득 차면 false 를 돌려준다.
type Archiver interface {
	Enqueue(job model.ArchiveJob) bool
}

type timestamped interface {
	RecordTimestamp() string
}

// CleanupResult 는 cleanup 1회의 결과.
type CleanupResult struct {
	Days          int    `json:"days"`
	Cutoff        string `json:"cutoff"`
	VisitsRemoved int    `json:"visits_removed"`
	EventsRemoved int    `json:"events_removed"`
}

// RetentionManager 는 visits/events 에서 cutoff 보다 오래된 레코드를 지운다.
//
// timestamp 를 파싱할 수 없는 레코드 (빈 값 포함) 는 항상 남긴다.
// 모호한 데이터는 지우지 않는다.
type RetentionManager struct {
	visits      *store.Collection[model.VisitRecord]
	events      *store.Collection[model.EventRecord]
	defaultDays int
	archiver    Archiver
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewRetentionManager(
	visits *store.Collection[model.VisitRecord],
	events *store.Collection[model.EventRecord],
	defaultDays int,
	archiver Archiver,
	m *metrics.Metrics,
) *RetentionManager {
	if m == nil {
		m = metrics.New()
	}
	return &RetentionManager{
		visits:      visits,
		events:      events,
		defaultDays: defaultDays,
		archiver:    archiver,
		metrics:     m,
		now:         time.Now,
	}
}

// Cleanup 은 days 일보다 오래된 레코드를 제거한다. days 가 nil 이면 기본값.
// 두 컬렉션은 각각 독립적으로 쓰이며, 첫 번째 실패에서 멈춘다.
func (r *RetentionManager) Cleanup(days *int) (CleanupResult, error) {
	d := r.defaultDays
	if days != nil {
		d = *days
	}
	cutoff := r.now().UTC().Add(-time.Duration(d) * 24 * time.Hour)
	res := CleanupResult{Days: d, Cutoff: model.FormatTimestamp(cutoff)}

	var removedVisits []model.VisitRecord
	err := r.visits.Update(func(all []model.VisitRecord) ([]model.VisitRecord, error) {
		kept, removed := prune(all, cutoff)
		removedVisits = removed
		return kept, nil
	})
	if err != nil {
		return res, storageErr(err)
	}
	res.VisitsRemoved = len(removedVisits)
	r.archive(r.visits.Name(), removedVisits)

	var removedEvents []model.EventRecord
	err = r.events.Update(func(all []model.EventRecord) ([]model.EventRecord, error) {
		kept, removed := prune(all, cutoff)
		removedEvents = removed
		return kept, nil
	})
	if err != nil {
		return res, storageErr(err)
	}
	res.EventsRemoved = len(removedEvents)
	r.archive(r.events.Name(), removedEvents)

	atomic.AddInt64(&r.metrics.RecordsPrunedTotal, int64(res.VisitsRemoved+res.EventsRemoved))
	log.Info().
		Int("days", d).
		Str("cutoff", res.Cutoff).
		Int("visits_removed", res.VisitsRemoved).
		Int("events_removed", res.EventsRemoved).
		Msg("retention cleanup done")
	return res, nil
}

// Run 은 interval 마다 기본 보존 기간으로 Cleanup 을 실행한다. ctx 취소 시 종료.
func (r *RetentionManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.Cleanup(nil); err != nil {
				log.Error().Err(err).Msg("scheduled retention cleanup failed")
			}
		}
	}
}

func (r *RetentionManager) archive(collection string, recs any) {
	if r.archiver == nil {
		return
	}

	var records []any
	switch t := recs.(type) {
	case []model.VisitRecord:
		for _, v := range t {
			records = append(records, v)
		}
	case []model.EventRecord:
		for _, e := range t {
			records = append(records, e)
		}
	}
	if len(records) == 0 {
		return
	}

	if !r.archiver.Enqueue(model.ArchiveJob{Collection: collection, Records: records}) {
		atomic.AddInt64(&r.metrics.ArchiveJobsDroppedTotal, 1)
		log.Warn().Str("collection", collection).Int("records", len(records)).
			Msg("archive queue full, pruned records dropped")
	}
}

// prune 은 recs 를 (남길 것, 지울 것) 으로 나눈다. 순서는 유지된다.
func prune[T timestamped](recs []T, cutoff time.Time) (kept, removed []T) {
	kept = make([]T, 0, len(recs))
	for _, rec := range recs {
		ts, ok := model.ParseTimestamp(rec.RecordTimestamp())
		if !ok || !ts.Before(cutoff) {
			kept = append(kept, rec)
			continue
		}
		removed = append(removed, rec)
	}
	return kept, removed
}
