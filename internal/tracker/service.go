// Package tracker 는 방문/이벤트 수집, 통계 집계, 보존 정책을 담당한다.
//
// HTTP 계층은 Service 만 사용한다. 요청 1건의 처리 순서는
// Admit (rate limit) → body 읽기 → Track* (payload 검증 → 보강/저장) 이다.
// Admit 은 body 를 읽기 전에 호출해야 한다.
package tracker

import (
	"context"
	"sync/atomic"

	"visitor-tracker/internal/device"
	"visitor-tracker/internal/metrics"
	"visitor-tracker/internal/model"
	"visitor-tracker/internal/ratelimit"
	"visitor-tracker/internal/store"

	"github.com/rs/zerolog/log"
)

// Options 는 Service 구성 요소. Limiter/Resolver/AccessLog/Archiver 는 생략 가능.
type Options struct {
	Visits    *store.Collection[model.VisitRecord]
	Events    *store.Collection[model.EventRecord]
	AccessLog *store.AccessLogger
	Limiter   ratelimit.Limiter
	Resolver  device.Resolver
	Archiver  Archiver
	Metrics   *metrics.Metrics

	AnonymizeIP    bool
	RetentionDays  int
	MaxBatchEvents int
}

type Service struct {
	visits    *store.Collection[model.VisitRecord]
	events    *store.Collection[model.EventRecord]
	accessLog *store.AccessLogger
	limiter   ratelimit.Limiter
	metrics   *metrics.Metrics

	visitRec  *VisitRecorder
	eventRec  *EventRecorder
	retention *RetentionManager

	maxBatch int
}

func NewService(o Options) *Service {
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	return &Service{
		visits:    o.Visits,
		events:    o.Events,
		accessLog: o.AccessLog,
		limiter:   o.Limiter,
		metrics:   o.Metrics,
		visitRec:  NewVisitRecorder(o.Visits, o.Resolver, o.AnonymizeIP, o.Metrics),
		eventRec:  NewEventRecorder(o.Events, o.Metrics),
		retention: NewRetentionManager(o.Visits, o.Events, o.RetentionDays, o.Archiver, o.Metrics),
		maxBatch:  o.MaxBatchEvents,
	}
}

// Retention 은 스케줄 실행용 RetentionManager 를 돌려준다.
func (s *Service) Retention() *RetentionManager { return s.retention }

// TrackVisit 은 방문 1건을 기록한다.
func (s *Service) TrackVisit(clientIP, userAgent string, payload map[string]any) (model.VisitRecord, error) {
	in, err := parseVisitPayload(payload)
	if err != nil {
		return model.VisitRecord{}, s.rejected(err)
	}
	in.IP, in.UserAgent = clientIP, userAgent
	return s.visitRec.Record(in)
}

// TrackEvent 는 이벤트 1건을 기록하고 event_id 를 돌려준다.
func (s *Service) TrackEvent(payload map[string]any) (int64, error) {
	in, err := parseEventPayload(payload)
	if err != nil {
		return 0, s.rejected(err)
	}
	return s.eventRec.Record(in)
}

// TrackEvents 는 batch 이벤트를 한 번의 쓰기로 기록한다.
func (s *Service) TrackEvents(payload map[string]any) ([]int64, error) {
	ins, err := parseBatchPayload(payload, s.maxBatch)
	if err != nil {
		return nil, s.rejected(err)
	}
	return s.eventRec.RecordMany(ins)
}

// Stats 는 metric 하나를 계산한다.
func (s *Service) Stats(q Query) any {
	return Compute(q, s.visits.Load(), s.events.Load())
}

// RecentVisits 는 최근 방문 limit 건 (최신순).
func (s *Service) RecentVisits(limit int) []model.VisitRecord {
	return RecentVisits(s.visits.Load(), limit)
}

// RecentLogs 는 access log 의 마지막 limit 줄 (오래된 순).
func (s *Service) RecentLogs(limit int) []string {
	if s.accessLog == nil {
		return []string{}
	}
	return s.accessLog.Recent(limit)
}

// LogAccess 는 access log 에 1줄을 남긴다. 실패는 무시된다.
func (s *Service) LogAccess(e model.AccessLogEntry) {
	if s.accessLog != nil {
		s.accessLog.Log(e)
	}
}

// Cleanup 은 days (nil 이면 기본값) 보다 오래된 레코드를 제거한다.
func (s *Service) Cleanup(days *int) (CleanupResult, error) {
	return s.retention.Cleanup(days)
}

// Admit 은 수집 요청 1건을 rate limiter 에 센다. batch 도 1건이다.
// 거절이면 ErrRateLimited. limiter 오류는 허용으로 처리한다 (fail-open).
func (s *Service) Admit(ctx context.Context, clientIP string) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, clientIP)
	if err != nil {
		log.Warn().Err(err).Str("ip", clientIP).Msg("rate limiter unavailable, allowing request")
	}
	if !ok {
		atomic.AddInt64(&s.metrics.RateLimitedTotal, 1)
		return ErrRateLimited
	}
	return nil
}

func (s *Service) rejected(err error) error {
	atomic.AddInt64(&s.metrics.ValidationFailedTotal, 1)
	return err
}
