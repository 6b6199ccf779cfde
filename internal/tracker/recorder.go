package tracker

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"visitor-tracker/internal/device"
	"visitor-tracker/internal/metrics"
	"visitor-tracker/internal/model"
	"visitor-tracker/internal/store"

	"github.com/cespare/xxhash/v2"
)

// VisitorID 는 (ip, user agent) 로부터 16자리 hex 방문자 식별자를 만든다.
// 같은 입력이면 프로세스/재시작과 무관하게 항상 같은 값이다.
// 익명화 이전의 원본 IP 로 계산해야 방문자 구분이 유지된다.
func VisitorID(ip, userAgent string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(ip+"-"+userAgent))
}

// AnonymizeIP 는 점으로 구분된 4부분 주소의 뒤 두 옥텟을 "xxx" 로 가린다.
// "203.0.113.42" → "203.0.xxx.xxx". 그 외 형태 (IPv6, 빈 값) 는 그대로 둔다.
func AnonymizeIP(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ip
	}
	return parts[0] + "." + parts[1] + ".xxx.xxx"
}

// VisitRecorder 는 방문 1건을 보강(visitor id, device, 익명화)해 저장한다.
type VisitRecorder struct {
	visits    *store.Collection[model.VisitRecord]
	resolver  device.Resolver
	anonymize bool
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewVisitRecorder(visits *store.Collection[model.VisitRecord], resolver device.Resolver, anonymize bool, m *metrics.Metrics) *VisitRecorder {
	if m == nil {
		m = metrics.New()
	}
	if resolver == nil {
		resolver = device.ResolverFunc(func(string) model.DeviceInfo {
			return model.DeviceInfo{Browser: "Unknown", OS: "Unknown", Device: "Desktop"}
		})
	}
	return &VisitRecorder{
		visits:    visits,
		resolver:  resolver,
		anonymize: anonymize,
		metrics:   m,
		now:       time.Now,
	}
}

// Record 는 in 을 VisitRecord 로 만들어 visits 끝에 추가한다.
// timestamp 가 비어 있으면 서버 시각(UTC)을 쓴다.
func (r *VisitRecorder) Record(in VisitInput) (model.VisitRecord, error) {
	ip := in.IP
	if r.anonymize {
		ip = AnonymizeIP(ip)
	}

	ts := in.Timestamp
	if ts == "" {
		ts = model.FormatTimestamp(r.now())
	}

	id := VisitorID(in.IP, in.UserAgent)
	rec := model.VisitRecord{
		VisitID:          id,
		SessionID:        id,
		IPAddress:        ip,
		UserAgent:        in.UserAgent,
		PageURL:          in.PageURL,
		Referrer:         in.Referrer,
		ScreenResolution: in.ScreenResolution,
		Language:         in.Language,
		Timestamp:        ts,
		Device:           r.resolver.Resolve(in.UserAgent),
	}

	if err := r.visits.Append(rec); err != nil {
		return model.VisitRecord{}, storageErr(err)
	}
	atomic.AddInt64(&r.metrics.VisitsRecordedTotal, 1)
	return rec, nil
}

// EventRecorder 는 커스텀 이벤트에 event_id 를 붙여 저장한다.
type EventRecorder struct {
	events  *store.Collection[model.EventRecord]
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewEventRecorder(events *store.Collection[model.EventRecord], m *metrics.Metrics) *EventRecorder {
	if m == nil {
		m = metrics.New()
	}
	return &EventRecorder{events: events, metrics: m, now: time.Now}
}

// Record 는 이벤트 1건을 저장하고 발급된 event_id 를 돌려준다.
func (r *EventRecorder) Record(in EventInput) (int64, error) {
	ids, err := r.RecordMany([]EventInput{in})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// RecordMany 는 여러 이벤트를 한 번의 read-modify-write 로 저장한다.
// 실패하면 아무것도 저장되지 않는다.
func (r *EventRecorder) RecordMany(ins []EventInput) ([]int64, error) {
	if len(ins) == 0 {
		return nil, nil
	}

	now := model.FormatTimestamp(r.now())
	ids := make([]int64, 0, len(ins))

	err := r.events.Update(func(all []model.EventRecord) ([]model.EventRecord, error) {
		next := nextEventID(all)
		for _, in := range ins {
			ts := in.Timestamp
			if ts == "" {
				ts = now
			}
			data := in.EventData
			if data == nil {
				data = map[string]any{}
			}
			all = append(all, model.EventRecord{
				EventID:         next,
				VisitID:         in.VisitID,
				EventType:       in.EventType,
				EventData:       data,
				ElementSelector: in.ElementSelector,
				Timestamp:       ts,
			})
			ids = append(ids, next)
			next++
		}
		return all, nil
	})
	if err != nil {
		return nil, storageErr(err)
	}

	atomic.AddInt64(&r.metrics.EventsRecordedTotal, int64(len(ids)))
	return ids, nil
}

// nextEventID 는 max(현재 개수, 최대 event_id) + 1.
// retention 으로 앞쪽이 잘려도 기존 번호와 겹치지 않는다.
func nextEventID(all []model.EventRecord) int64 {
	next := int64(len(all))
	for _, e := range all {
		if e.EventID > next {
			next = e.EventID
		}
	}
	return next + 1
}
