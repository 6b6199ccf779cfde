package tracker

import (
	"math"
	"net/url"
	"sort"
	"time"

	"visitor-tracker/internal/model"
)

// 지원하는 metric 이름. 그 외 이름은 overview 로 처리한다.
const (
	MetricOverview  = "overview"
	MetricPageviews = "pageviews"
	MetricVisitors  = "visitors"
	MetricSources   = "sources"
	MetricDevices   = "devices"
	MetricBrowsers  = "browsers"
	MetricTimeline  = "timeline"
	MetricEvents    = "events"
)

// MetricNames 는 지원하는 metric 이름 목록 (응답/문서용).
var MetricNames = []string{
	MetricOverview, MetricPageviews, MetricVisitors, MetricSources,
	MetricDevices, MetricBrowsers, MetricTimeline, MetricEvents,
}

const (
	topPagesLimit      = 10
	byPageLimit        = 50
	visitorDetailLimit = 20
	bySourceLimit      = 20
	topSourcesLimit    = 10
	directSource       = "Direct"
	unknownFamily      = "Unknown"
)

type PageCount struct {
	URL   string `json:"url"`
	Views int    `json:"views"`
}

type DateRange struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type Overview struct {
	TotalPageviews int         `json:"total_pageviews"`
	UniqueVisitors int         `json:"unique_visitors"`
	TotalEvents    int         `json:"total_events"`
	AvgDailyVisits float64     `json:"avg_daily_visits"`
	DateRange      DateRange   `json:"date_range"`
	TopPages       []PageCount `json:"top_pages"`
}

type Pageviews struct {
	Total    int         `json:"total"`
	ByPage   Counts      `json:"by_page"`
	TopPages []PageCount `json:"top_pages"`
}

type VisitorDetail struct {
	VisitID    string `json:"visit_id"`
	VisitCount int    `json:"visit_count"`
	FirstSeen  string `json:"first_seen"`
	LastSeen   string `json:"last_seen"`
}

type Visitors struct {
	UniqueVisitors    int             `json:"unique_visitors"`
	ReturningVisitors int             `json:"returning_visitors"`
	VisitorDetails    []VisitorDetail `json:"visitor_details"`
}

type SourceCount struct {
	Source string `json:"source"`
	Visits int    `json:"visits"`
}

type Sources struct {
	BySource   Counts        `json:"by_source"`
	TopSources []SourceCount `json:"top_sources"`
}

type Devices struct {
	Devices          Counts `json:"devices"`
	OperatingSystems Counts `json:"operating_systems"`
}

type TimelinePoint struct {
	Date      string `json:"date"`
	Pageviews int    `json:"pageviews"`
	Visitors  int    `json:"visitors"`
}

type EventsSummary struct {
	TotalEvents int    `json:"total_events"`
	ByType      Counts `json:"by_type"`
}

// Query 는 stats 조회 조건. StartDate/EndDate 는 ISO-8601 문자열이며
// 파싱할 수 없는 값은 무시한다 (필터 없음).
type Query struct {
	Metric    string
	StartDate string
	EndDate   string
}

// Compute 는 metric 하나를 계산한다. 날짜 필터는 visits 에만 적용된다.
// 반환값은 metric 별 구조체 (browsers 는 Counts, timeline 은 []TimelinePoint).
func Compute(q Query, visits []model.VisitRecord, events []model.EventRecord) any {
	visits = FilterVisits(visits, q.StartDate, q.EndDate)

	switch q.Metric {
	case MetricPageviews:
		return ComputePageviews(visits)
	case MetricVisitors:
		return ComputeVisitors(visits)
	case MetricSources:
		return ComputeSources(visits)
	case MetricDevices:
		return ComputeDevices(visits)
	case MetricBrowsers:
		return ComputeBrowsers(visits)
	case MetricTimeline:
		return ComputeTimeline(visits)
	case MetricEvents:
		return ComputeEvents(events)
	default:
		return ComputeOverview(visits, events)
	}
}

// FilterVisits 는 [start, end] 범위의 방문만 남긴다.
//
// end 가 날짜만 있는 값이면 그 날 전체를 포함한다.
// 필터가 적용되면 timestamp 를 파싱할 수 없는 방문은 제외된다.
func FilterVisits(visits []model.VisitRecord, start, end string) []model.VisitRecord {
	startT, hasStart := model.ParseTimestamp(start)
	endT, hasEnd := model.ParseTimestamp(end)
	if hasEnd && model.IsDateOnly(end) {
		endT = endT.Add(24*time.Hour - time.Nanosecond)
	}
	if !hasStart && !hasEnd {
		return visits
	}

	out := make([]model.VisitRecord, 0, len(visits))
	for _, v := range visits {
		ts, ok := model.ParseTimestamp(v.Timestamp)
		if !ok {
			continue
		}
		if hasStart && ts.Before(startT) {
			continue
		}
		if hasEnd && ts.After(endT) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func ComputeOverview(visits []model.VisitRecord, events []model.EventRecord) Overview {
	ids := make(map[string]struct{}, len(visits))
	days := make(map[string]struct{})
	var minDay, maxDay string

	for _, v := range visits {
		ids[v.VisitID] = struct{}{}
		d := model.DatePart(v.Timestamp)
		days[d] = struct{}{}
		if minDay == "" || d < minDay {
			minDay = d
		}
		if maxDay == "" || d > maxDay {
			maxDay = d
		}
	}

	out := Overview{
		TotalPageviews: len(visits),
		UniqueVisitors: len(ids),
		TotalEvents:    len(events),
		TopPages:       topPages(pageCounter(visits).sorted(), topPagesLimit),
	}
	if len(days) > 0 {
		out.AvgDailyVisits = round2(float64(len(visits)) / float64(len(days)))
	}
	if len(visits) > 0 {
		out.DateRange = DateRange{Start: &minDay, End: &maxDay}
	}
	return out
}

func ComputePageviews(visits []model.VisitRecord) Pageviews {
	sorted := pageCounter(visits).sorted()
	return Pageviews{
		Total:    len(visits),
		ByPage:   sorted.Top(byPageLimit),
		TopPages: topPages(sorted, topPagesLimit),
	}
}

// ComputeVisitors 는 visit_id 별 방문 수를 센다.
// visitor_details 는 처음 본 순서로 최대 20명.
func ComputeVisitors(visits []model.VisitRecord) Visitors {
	byID := make(map[string]*VisitorDetail)
	order := make([]string, 0)

	for _, v := range visits {
		d, ok := byID[v.VisitID]
		if !ok {
			d = &VisitorDetail{VisitID: v.VisitID, FirstSeen: v.Timestamp, LastSeen: v.Timestamp}
			byID[v.VisitID] = d
			order = append(order, v.VisitID)
		}
		d.VisitCount++
		if v.Timestamp < d.FirstSeen {
			d.FirstSeen = v.Timestamp
		}
		if v.Timestamp > d.LastSeen {
			d.LastSeen = v.Timestamp
		}
	}

	out := Visitors{UniqueVisitors: len(order), VisitorDetails: []VisitorDetail{}}
	for i, id := range order {
		d := byID[id]
		if d.VisitCount > 1 {
			out.ReturningVisitors++
		}
		if i < visitorDetailLimit {
			out.VisitorDetails = append(out.VisitorDetails, *d)
		}
	}
	return out
}

func ComputeSources(visits []model.VisitRecord) Sources {
	c := newCounter()
	for _, v := range visits {
		c.add(SourceOf(v.Referrer))
	}
	sorted := c.sorted()

	top := make([]SourceCount, 0, topSourcesLimit)
	for _, e := range sorted.Top(topSourcesLimit) {
		top = append(top, SourceCount{Source: e.Key, Visits: e.Count})
	}
	return Sources{BySource: sorted.Top(bySourceLimit), TopSources: top}
}

// SourceOf 는 referrer URL 의 host 부분을 돌려준다.
// 비어 있거나 host 를 얻을 수 없으면 "Direct".
func SourceOf(referrer string) string {
	if referrer == "" {
		return directSource
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Host == "" {
		return directSource
	}
	return u.Host
}

func ComputeDevices(visits []model.VisitRecord) Devices {
	dev, osc := newCounter(), newCounter()
	for _, v := range visits {
		dev.add(orUnknown(v.Device.Device))
		osc.add(orUnknown(v.Device.OS))
	}
	return Devices{Devices: dev.sorted(), OperatingSystems: osc.sorted()}
}

func ComputeBrowsers(visits []model.VisitRecord) Counts {
	c := newCounter()
	for _, v := range visits {
		c.add(orUnknown(v.Device.Browser))
	}
	return c.sorted()
}

// ComputeTimeline 은 timestamp 앞 10자리(날짜) 기준 일별 집계. 날짜 오름차순.
func ComputeTimeline(visits []model.VisitRecord) []TimelinePoint {
	type day struct {
		pageviews int
		visitors  map[string]struct{}
	}
	days := make(map[string]*day)
	for _, v := range visits {
		key := model.DatePart(v.Timestamp)
		d, ok := days[key]
		if !ok {
			d = &day{visitors: make(map[string]struct{})}
			days[key] = d
		}
		d.pageviews++
		d.visitors[v.VisitID] = struct{}{}
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]TimelinePoint, 0, len(keys))
	for _, k := range keys {
		out = append(out, TimelinePoint{Date: k, Pageviews: days[k].pageviews, Visitors: len(days[k].visitors)})
	}
	return out
}

// ComputeEvents 는 event_type 별 개수. 처음 본 순서를 유지한다.
func ComputeEvents(events []model.EventRecord) EventsSummary {
	c := newCounter()
	for _, e := range events {
		c.add(e.EventType)
	}
	return EventsSummary{TotalEvents: len(events), ByType: c.inserted()}
}

func pageCounter(visits []model.VisitRecord) *counter {
	c := newCounter()
	for _, v := range visits {
		c.add(v.PageURL)
	}
	return c
}

func topPages(sorted Counts, n int) []PageCount {
	out := make([]PageCount, 0, n)
	for _, e := range sorted.Top(n) {
		out = append(out, PageCount{URL: e.Key, Views: e.Count})
	}
	return out
}

func orUnknown(s string) string {
	if s == "" {
		return unknownFamily
	}
	return s
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// RecentVisits 는 timestamp 내림차순으로 최대 limit 건을 돌려준다.
// timestamp 는 문자열 비교이며, 같은 값이면 저장 순서를 유지한다.
func RecentVisits(visits []model.VisitRecord, limit int) []model.VisitRecord {
	if limit <= 0 || len(visits) == 0 {
		return []model.VisitRecord{}
	}
	out := make([]model.VisitRecord, len(visits))
	copy(out, visits)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
