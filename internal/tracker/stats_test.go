package tracker

import (
	"strings"
	"testing"

	"visitor-tracker/internal/model"

	json "github.com/goccy/go-json"
)

func visit(id, url, ts string) model.VisitRecord {
	return model.VisitRecord{VisitID: id, PageURL: url, Timestamp: ts}
}

func scenarioVisits() []model.VisitRecord {
	return []model.VisitRecord{
		visit("v1", "/a", "2024-01-01T00:00:00"),
		visit("v2", "/a", "2024-01-02T00:00:00"),
		visit("v3", "/b", "2024-01-02T00:00:00"),
	}
}

func TestComputePageviews(t *testing.T) {
	pv := ComputePageviews(scenarioVisits())

	if pv.Total != 3 {
		t.Fatalf("expected total 3, got %d", pv.Total)
	}
	if pv.ByPage.Get("/a") != 2 || pv.ByPage.Get("/b") != 1 {
		t.Fatalf("unexpected by_page %+v", pv.ByPage)
	}
	if len(pv.TopPages) == 0 || pv.TopPages[0] != (PageCount{URL: "/a", Views: 2}) {
		t.Fatalf("unexpected top_pages %+v", pv.TopPages)
	}

	data, err := json.Marshal(pv)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"by_page":{"/a":2,"/b":1}`) {
		t.Fatalf("by_page must serialize as an ordered object, got %s", data)
	}
}

func TestComputeTimeline(t *testing.T) {
	tl := ComputeTimeline(scenarioVisits())
	want := []TimelinePoint{
		{Date: "2024-01-01", Pageviews: 1, Visitors: 1},
		{Date: "2024-01-02", Pageviews: 2, Visitors: 2},
	}
	if len(tl) != len(want) {
		t.Fatalf("expected %d points, got %+v", len(want), tl)
	}
	for i := range want {
		if tl[i] != want[i] {
			t.Fatalf("point %d: expected %+v, got %+v", i, want[i], tl[i])
		}
	}
}

func TestComputeSources(t *testing.T) {
	visits := []model.VisitRecord{
		{Referrer: "https://search.example.com/q?x=1"},
		{Referrer: ""},
		{},
		{Referrer: "not a url"},
		{Referrer: "https://search.example.com/other"},
	}
	src := ComputeSources(visits)
	if src.BySource.Get("search.example.com") != 2 {
		t.Fatalf("expected search.example.com=2, got %+v", src.BySource)
	}
	if src.BySource.Get("Direct") != 3 {
		t.Fatalf("expected Direct=3, got %+v", src.BySource)
	}
	if src.TopSources[0].Source != "Direct" {
		t.Fatalf("expected Direct to lead, got %+v", src.TopSources)
	}
}

func TestCounts_TiesKeepInsertionOrder(t *testing.T) {
	visits := []model.VisitRecord{
		{Device: model.DeviceInfo{Browser: "Safari"}},
		{Device: model.DeviceInfo{Browser: "Chrome"}},
		{Device: model.DeviceInfo{Browser: "Firefox"}},
		{Device: model.DeviceInfo{Browser: "Chrome"}},
		{Device: model.DeviceInfo{}},
	}
	got := ComputeBrowsers(visits)
	keys := make([]string, 0, len(got))
	for _, e := range got {
		keys = append(keys, e.Key)
	}
	if strings.Join(keys, ",") != "Chrome,Safari,Firefox,Unknown" {
		t.Fatalf("unexpected order %v", keys)
	}
}

func TestComputeOverview(t *testing.T) {
	events := []model.EventRecord{{EventType: "click"}}
	ov := ComputeOverview(scenarioVisits(), events)

	if ov.TotalPageviews != 3 || ov.UniqueVisitors != 3 || ov.TotalEvents != 1 {
		t.Fatalf("unexpected totals %+v", ov)
	}
	if ov.AvgDailyVisits != 1.5 {
		t.Fatalf("expected avg 1.5, got %v", ov.AvgDailyVisits)
	}
	if *ov.DateRange.Start != "2024-01-01" || *ov.DateRange.End != "2024-01-02" {
		t.Fatalf("unexpected date range %s..%s", *ov.DateRange.Start, *ov.DateRange.End)
	}

	empty := ComputeOverview(nil, nil)
	data, _ := json.Marshal(empty)
	if !strings.Contains(string(data), `"date_range":{"start":null,"end":null}`) {
		t.Fatalf("expected null date range for no data, got %s", data)
	}
	if !strings.Contains(string(data), `"top_pages":[]`) {
		t.Fatalf("expected empty top_pages array, got %s", data)
	}
}

func TestComputeVisitors(t *testing.T) {
	visits := []model.VisitRecord{
		visit("a", "/", "2024-01-02T00:00:00"),
		visit("b", "/", "2024-01-02T00:00:00"),
		visit("a", "/", "2024-01-01T00:00:00"),
	}
	got := ComputeVisitors(visits)
	if got.UniqueVisitors != 2 || got.ReturningVisitors != 1 {
		t.Fatalf("unexpected counts %+v", got)
	}
	first := got.VisitorDetails[0]
	if first.VisitID != "a" || first.VisitCount != 2 {
		t.Fatalf("unexpected first detail %+v", first)
	}
	if first.FirstSeen != "2024-01-01T00:00:00" || first.LastSeen != "2024-01-02T00:00:00" {
		t.Fatalf("unexpected first/last seen %+v", first)
	}
}

func TestComputeEvents_ByTypeKeepsFirstSeenOrder(t *testing.T) {
	events := []model.EventRecord{{EventType: "scroll"}, {EventType: "click"}, {EventType: "click"}}
	got := ComputeEvents(events)
	if got.TotalEvents != 3 {
		t.Fatalf("expected 3 events, got %d", got.TotalEvents)
	}
	if got.ByType[0].Key != "scroll" || got.ByType.Get("click") != 2 {
		t.Fatalf("unexpected by_type %+v", got.ByType)
	}
}

func TestFilterVisits(t *testing.T) {
	visits := append(scenarioVisits(),
		visit("v4", "/c", "2024-01-03T10:00:00"),
		visit("v5", "/c", "garbage"),
	)

	got := FilterVisits(visits, "2024-01-02", "2024-01-02")
	if len(got) != 2 {
		t.Fatalf("expected whole end day to be included, got %d", len(got))
	}

	if got := FilterVisits(visits, "", ""); len(got) != len(visits) {
		t.Fatalf("no filter must return everything")
	}
	if got := FilterVisits(visits, "not-a-date", ""); len(got) != len(visits) {
		t.Fatalf("malformed filter must be ignored")
	}
	if got := FilterVisits(visits, "2024-01-03", ""); len(got) != 1 || got[0].VisitID != "v4" {
		t.Fatalf("expected only v4 from start filter, got %+v", got)
	}
}

func TestCompute_UnknownMetricFallsBackToOverview(t *testing.T) {
	got := Compute(Query{Metric: "nope"}, scenarioVisits(), nil)
	if _, ok := got.(Overview); !ok {
		t.Fatalf("expected overview, got %T", got)
	}
	if _, ok := Compute(Query{Metric: MetricTimeline}, nil, nil).([]TimelinePoint); !ok {
		t.Fatalf("expected timeline slice")
	}
}

func TestRecentVisits(t *testing.T) {
	visits := []model.VisitRecord{
		visit("a", "/", "2024-01-01T00:00:00"),
		visit("b", "/", "2024-01-03T00:00:00"),
		visit("c", "/", "2024-01-02T00:00:00"),
	}
	got := RecentVisits(visits, 2)
	if len(got) != 2 || got[0].VisitID != "b" || got[1].VisitID != "c" {
		t.Fatalf("unexpected recent visits %+v", got)
	}
	if len(RecentVisits(visits, 0)) != 0 {
		t.Fatalf("expected empty result for limit 0")
	}
}
