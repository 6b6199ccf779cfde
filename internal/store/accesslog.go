package store

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"visitor-tracker/internal/metrics"
	"visitor-tracker/internal/model"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// AccessLogger 는 요청 1건당 JSON 1줄을 rolling 파일에 남긴다.
//
// 쓰기 후 라인 수가 maxLines 를 넘으면 오래된 줄부터 잘라낸다 (FIFO).
// 로깅은 best-effort 이므로 어떤 I/O 에러도 호출자에게 전달하지 않는다.
type AccessLogger struct {
	path     string
	maxLines int
	metrics  *metrics.Metrics
	now      func() time.Time

	mu sync.Mutex
}

func NewAccessLogger(path string, maxLines int, m *metrics.Metrics) *AccessLogger {
	if m == nil {
		m = metrics.New()
	}
	if maxLines <= 0 {
		maxLines = 10000
	}
	return &AccessLogger{
		path:     path,
		maxLines: maxLines,
		metrics:  m,
		now:      time.Now,
	}
}

func (l *AccessLogger) Path() string { return l.path }

// Log 는 entry 를 한 줄로 추가한다. Timestamp 가 비어 있으면 현재 UTC 시각을 쓴다.
func (l *AccessLogger) Log(entry model.AccessLogEntry) {
	if entry.Timestamp == "" {
		entry.Timestamp = model.FormatTimestamp(l.now())
	}

	line, err := json.Marshal(entry)
	if err != nil {
		l.fail(err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lines, err := l.readLines()
	if err != nil {
		l.fail(err)
		return
	}

	lines = append(lines, string(line))
	if len(lines) > l.maxLines {
		lines = lines[len(lines)-l.maxLines:]
	}

	var buf bytes.Buffer
	for _, ln := range lines {
		buf.WriteString(ln)
		buf.WriteByte('\n')
	}
	if err := writeFileAtomic(l.path, buf.Bytes()); err != nil {
		l.fail(err)
	}
}

// Recent 는 최근 limit 줄을 오래된 순서로 돌려준다.
// 파일이 없거나 읽을 수 없으면 빈 slice.
func (l *AccessLogger) Recent(limit int) []string {
	if limit <= 0 {
		return []string{}
	}

	l.mu.Lock()
	lines, err := l.readLines()
	l.mu.Unlock()
	if err != nil {
		return []string{}
	}

	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines
}

// readLines 는 공백 줄을 제외한 모든 줄을 읽는다. 파일이 없으면 빈 slice.
func (l *AccessLogger) readLines() ([]string, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	raw := strings.Split(string(data), "\n")
	lines := make([]string, 0, len(raw))
	for _, ln := range raw {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	return lines, nil
}

func (l *AccessLogger) fail(err error) {
	atomic.AddInt64(&l.metrics.AccessLogErrorsTotal, 1)
	log.Warn().Err(err).Str("path", l.path).Msg("access log write failed")
}
