package server

import (
	"bytes"
	"errors"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"visitor-tracker/internal/config"
	"visitor-tracker/internal/metrics"
	"visitor-tracker/internal/pool"
	"visitor-tracker/internal/tracker"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

const apiPrefix = "/api/tracker"

// Version 은 /health 와 / 에 노출된다. 빌드 시 -ldflags 로 덮어쓸 수 있다.
var Version = "1.0.0"

const (
	defaultLogsLimit   = 100
	defaultRecentLimit = 20
)

type Handler struct {
	cfg     config.Config
	svc     *tracker.Service
	metrics *metrics.Metrics
}

func NewHandler(cfg config.Config, svc *tracker.Service, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.New()
	}
	return &Handler{cfg: cfg, svc: svc, metrics: m}
}

// Routes 는 전체 라우팅과 middleware 체인을 구성한다.
//
//	request id → recovery → CORS → access log → mux
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(apiPrefix+"/visit", only(http.MethodPost, h.HandleVisit))
	mux.HandleFunc(apiPrefix+"/event", only(http.MethodPost, h.HandleEvent))
	mux.HandleFunc(apiPrefix+"/events", only(http.MethodPost, h.HandleEvents))
	mux.HandleFunc(apiPrefix+"/stats", only(http.MethodGet, h.HandleStats))
	mux.HandleFunc(apiPrefix+"/stats/overview", only(http.MethodGet, h.fixedStats(tracker.MetricOverview)))
	mux.HandleFunc(apiPrefix+"/stats/pageviews", only(http.MethodGet, h.fixedStats(tracker.MetricPageviews)))
	mux.HandleFunc(apiPrefix+"/stats/visitors", only(http.MethodGet, h.fixedStats(tracker.MetricVisitors)))
	mux.HandleFunc(apiPrefix+"/logs", only(http.MethodGet, h.HandleLogs))
	mux.HandleFunc(apiPrefix+"/logs/recent", only(http.MethodGet, h.HandleRecentVisits))
	mux.HandleFunc(apiPrefix+"/health", only(http.MethodGet, h.HandleHealth))
	mux.HandleFunc(apiPrefix+"/cleanup", only(http.MethodPost, h.HandleCleanup))
	mux.HandleFunc(apiPrefix+"/export", only(http.MethodGet, h.HandleExport))

	mux.HandleFunc("/tracker.js", only(http.MethodGet, h.HandleTrackerJS))
	mux.HandleFunc("/favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/metrics", only(http.MethodGet, h.HandleMetrics))
	mux.HandleFunc("/", h.HandleIndex)

	var next http.Handler = mux
	next = h.withAccessLog(next)
	next = newCORS(h.cfg.CORSOrigins).Handler(next)
	next = withRecovery(next)
	next = withRequestID(next)
	return next
}

// only 는 method 가 다르면 JSON 405 를 돌려준다.
func only(method string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			methodNotAllowed(w, r, method)
			return
		}
		fn(w, r)
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	w.Header().Set("Allow", allow)
	writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed",
		"Method "+r.Method+" not allowed for this endpoint")
}

// ====================================================================
// Ingest
// ====================================================================

func (h *Handler) HandleVisit(w http.ResponseWriter, r *http.Request) {
	ip, payload, ok := h.admitAndRead(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.TrackVisit(ip, r.UserAgent(), payload)
	if err != nil {
		h.writeTrackError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, map[string]any{
		"status":   "success",
		"visit_id": rec.VisitID,
		"message":  "Visit recorded",
	})
}

func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	_, payload, ok := h.admitAndRead(w, r)
	if !ok {
		return
	}

	id, err := h.svc.TrackEvent(payload)
	if err != nil {
		h.writeTrackError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, map[string]any{
		"status":   "success",
		"event_id": id,
		"message":  "Event recorded",
	})
}

func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	_, payload, ok := h.admitAndRead(w, r)
	if !ok {
		return
	}

	ids, err := h.svc.TrackEvents(payload)
	if err != nil {
		h.writeTrackError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, map[string]any{
		"status":   "success",
		"recorded": len(ids),
		"message":  "Recorded " + strconv.Itoa(len(ids)) + " events",
	})
}

// admitAndRead 는 rate limit 을 먼저 확인하고, 통과한 요청만 body 를 읽는다.
func (h *Handler) admitAndRead(w http.ResponseWriter, r *http.Request) (string, map[string]any, bool) {
	ip := clientIP(r, h.cfg.TrustProxy)
	if err := h.svc.Admit(r.Context(), ip); err != nil {
		h.writeTrackError(w, r, err)
		return "", nil, false
	}
	payload, ok := h.readPayload(w, r)
	return ip, payload, ok
}

// readPayload 는 body 를 MaxBodySize 까지 읽어 JSON object 로 해석한다.
// body 가 비었거나 object 가 아니면 nil payload 를 돌려주고, 검증은 tracker 가 한다.
// 크기 초과는 여기서 413 으로 끝낸다.
func (h *Handler) readPayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	defer r.Body.Close()

	buf := pool.GetBody()
	defer pool.PutBody(buf, h.cfg.MaxBodySize*2)

	if _, err := io.Copy(buf, r.Body); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "Payload too large",
				"Request body exceeds "+strconv.FormatInt(h.cfg.MaxBodySize, 10)+" bytes")
			return nil, false
		}
		writeError(w, r, http.StatusBadRequest, "Invalid request body", "")
		return nil, false
	}

	body := bytes.TrimSpace(buf.Bytes())
	if len(body) == 0 {
		return nil, true
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("payload is not a json object")
		return nil, true
	}
	return payload, true
}

// writeTrackError 는 tracker 오류를 HTTP 상태로 바꾼다.
func (h *Handler) writeTrackError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, tracker.ErrRateLimited) {
		secs := int(math.Ceil(h.cfg.RateLimitWindow.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeError(w, r, http.StatusTooManyRequests, "Rate limit exceeded", "Too many requests, please retry later")
		return
	}
	if reason, ok := tracker.IsValidation(err); ok {
		writeError(w, r, http.StatusBadRequest, reason, "")
		return
	}

	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("track failed")
	writeInternal(w, r)
}

// ====================================================================
// Query
// ====================================================================

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric := q.Get("metric")
	if metric == "" {
		metric = tracker.MetricOverview
	}

	data := h.svc.Stats(tracker.Query{
		Metric:    metric,
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
	})

	writeJSON(w, r, http.StatusOK, map[string]any{
		"status": "success",
		"metric": metric,
		"data":   data,
	})
}

func (h *Handler) fixedStats(metric string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"status": "success",
			"data":   h.svc.Stats(tracker.Query{Metric: metric}),
		})
	}
}

func (h *Handler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	logs := h.svc.RecentLogs(queryInt(r, "limit", defaultLogsLimit))
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status": "success",
		"count":  len(logs),
		"logs":   logs,
	})
}

func (h *Handler) HandleRecentVisits(w http.ResponseWriter, r *http.Request) {
	visits := h.svc.RecentVisits(queryInt(r, "limit", defaultRecentLimit))
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status": "success",
		"count":  len(visits),
		"visits": visits,
	})
}

// HandleExport 는 metric 결과를 첨부 파일로 내려준다.
// format=json 은 들여쓰기 JSON, format=gzip 은 그 JSON 의 gzip.
// 그 외 format 은 일반 {status, data} 응답.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric := q.Get("metric")
	if metric == "" {
		metric = tracker.MetricOverview
	}
	format := q.Get("format")
	if format == "" {
		format = "json"
	}

	if !knownMetric(metric) {
		metric = tracker.MetricOverview
	}

	data := h.svc.Stats(tracker.Query{Metric: metric})
	filename := "stats_" + metric + ".json"

	switch format {
	case "json":
		body, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("export encode failed")
			writeInternal(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename="+filename)
		_, _ = w.Write(body)

	case "gzip":
		body, err := gzipJSON(data)
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("export gzip failed")
			writeInternal(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/gzip")
		w.Header().Set("Content-Disposition", "attachment; filename="+filename+".gz")
		_, _ = w.Write(body)

	default:
		writeJSON(w, r, http.StatusOK, map[string]any{"status": "success", "data": data})
	}
}

func gzipJSON(v any) ([]byte, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	gz := pool.GzipPool.Get().(*gzip.Writer)
	defer pool.GzipPool.Put(gz)
	gz.Reset(buf)

	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// ====================================================================
// Maintenance
// ====================================================================

func (h *Handler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	var days *int
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "Invalid days parameter", "days must be a non-negative integer")
			return
		}
		days = &n
	}

	res, err := h.svc.Cleanup(days)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("cleanup failed")
		writeInternal(w, r)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":         "success",
		"message":        "Data cleanup complete",
		"days":           res.Days,
		"visits_removed": res.VisitsRemoved,
		"events_removed": res.EventsRemoved,
	})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": h.cfg.ServiceName,
		"version": Version,
	})
}

// HandleMetrics 는 내부 카운터를 key=value 줄로 출력한다.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}

// ====================================================================
// Root
// ====================================================================

// HandleIndex 는 "/" 에 서비스 안내를, 그 외 경로에는 JSON 404 를 돌려준다.
func (h *Handler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, r, http.StatusNotFound, "Not found", "Endpoint "+r.URL.Path+" not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{
		"service": "Visitor Tracker API",
		"version": Version,
		"status":  "running",
		"endpoints": map[string]string{
			"tracker_js":   "/tracker.js",
			"track_visit":  "POST " + apiPrefix + "/visit",
			"track_event":  "POST " + apiPrefix + "/event",
			"track_events": "POST " + apiPrefix + "/events",
			"stats":        "GET " + apiPrefix + "/stats",
			"logs":         "GET " + apiPrefix + "/logs",
			"health":       "GET " + apiPrefix + "/health",
		},
	})
}

func (h *Handler) HandleTrackerJS(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.cfg.StaticDir, "tracker.js")
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		writeError(w, r, http.StatusNotFound, "tracker.js not found", "")
		return
	}

	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, path)
}

func knownMetric(m string) bool {
	for _, name := range tracker.MetricNames {
		if name == m {
			return true
		}
	}
	return false
}

// queryInt 는 정수 query 값을 읽는다. 없거나 잘못된 값이면 def.
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
