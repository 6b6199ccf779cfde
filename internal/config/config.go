// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config
//
// 서비스 실행 시 필요한 모든 환경 변수 값을 보관하는 구조체.
// 모든 값은 프로세스 시작 시점에 Load() 에 의해 초기화되며,
// 이후에는 변경되지 않는 불변(read-only) 설정들이다.
//
// core 컴포넌트(ratelimit/store/tracker)는 Config 자체를 받지 않고
// 필요한 값만 생성자 인자로 전달받는다.
type Config struct {

	// ---------------------------
	// 서버 식별자 / 네트워크
	// ---------------------------

	ServiceName string // 로그 공통 필드 및 /health 응답에 사용
	InstanceID  string // 프로세스 고유 ID (호스트명 기반, 실패 시 랜덤 hex)
	HTTPAddr    string // HTTP 서버 bind 주소 (예: ":5000")
	TrustProxy  bool   // true 면 X-Forwarded-For / CloudFront 헤더로 client IP 판단

	CORSOrigins []string // 허용 Origin 목록 ("*" 포함 시 전체 허용)

	// ---------------------------
	// 요청 처리 파라미터
	// ---------------------------

	MaxBodySize    int64 // 단일 HTTP 요청 body 최대 크기 (바이트)
	MaxBatchEvents int   // POST /events 한 번에 받을 수 있는 최대 이벤트 수

	// ---------------------------
	// 저장소
	// ---------------------------

	DataDir   string // visits.json / events.json 이 위치하는 디렉토리
	StaticDir string // tracker.js 를 서빙하는 디렉토리

	AnonymizeIP       bool          // IPv4 3,4번째 옥텟 마스킹 여부
	RetentionDays     int           // 기본 보존 기간 (일)
	RetentionInterval time.Duration // 0 이면 주기적 cleanup 비활성화

	// ---------------------------
	// Access log (rolling file)
	// ---------------------------

	HTTPLogging bool   // /api/tracker 요청 access log 기록 여부
	LogFile     string // access log 파일 경로
	MaxLogLines int    // access log 최대 라인 수 (초과 시 오래된 라인부터 제거)

	// ---------------------------
	// Rate limit
	// ---------------------------

	RateLimitMax    int           // window 당 허용 요청 수
	RateLimitWindow time.Duration // sliding window 길이
	RedisAddr       string        // 비어 있으면 in-memory limiter 사용

	// ---------------------------
	// 로깅 (zerolog)
	// ---------------------------

	LogLevel   string
	LogPretty  bool
	LogSampleN uint32

	// ---------------------------
	// Retention archive (S3)
	// ---------------------------
	// ArchiveBucket 이 비어 있으면 archive 파이프라인은 동작하지 않는다.
	// SDK Retry 는 코드에서 0 으로 고정하고 재시도 횟수는 S3AppRetries 만 사용한다.

	AWSRegion        string
	ArchiveBucket    string
	ArchivePrefix    string
	ArchiveDLQPrefix string
	ArchiveQueue     int

	S3Timeout    time.Duration
	S3AppRetries int

	// ---------------------------
	// 로컬 DLQ (Dead Letter Queue)
	// ---------------------------

	DLQDir          string
	DLQMaxAge       time.Duration
	DLQMaxSizeBytes int64
	DLQReplayPerSec float64
}

// ArchiveEnabled 는 S3 archive 파이프라인 사용 여부.
func (c Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != ""
}

// Load
//
// 환경 변수 기반으로 Config 값을 초기화한다.
// 값이 없으면 기본값을 사용하고, 형식이 잘못된 값은 즉시 종료(fail-fast).
func Load() Config {
	dataDir := envOr("DATA_DIR", "data")

	return Config{
		ServiceName: envOr("SERVICE_NAME", "visitor-tracker"),
		InstanceID:  fallbackInstanceID(),
		HTTPAddr:    envOr("HTTP_ADDR", ":5000"),
		TrustProxy:  envBool("TRUST_PROXY", false),
		CORSOrigins: envList("CORS_ORIGINS", []string{"*"}),

		MaxBodySize:    envInt64("MAX_BODY_SIZE", 64*1024),
		MaxBatchEvents: envInt("MAX_BATCH_EVENTS", 500),

		DataDir:   dataDir,
		StaticDir: envOr("STATIC_DIR", "static"),

		AnonymizeIP:       envBool("ANONYMIZE_IP", true),
		RetentionDays:     envInt("DATA_RETENTION_DAYS", 90),
		RetentionInterval: envDur("RETENTION_INTERVAL", 0),

		HTTPLogging: envBool("ENABLE_HTTP_LOGGING", true),
		LogFile:     envOr("LOG_FILE", dataDir+"/http_access.log"),
		MaxLogLines: envInt("MAX_LOG_LINES", 10000),

		RateLimitMax:    envInt("RATE_LIMIT_MAX_REQUESTS", 100),
		RateLimitWindow: envDur("RATE_LIMIT_WINDOW", 60*time.Second),
		RedisAddr:       os.Getenv("REDIS_ADDR"),

		LogLevel:   envOr("LOG_LEVEL", "info"),
		LogPretty:  envBool("LOG_PRETTY", false),
		LogSampleN: uint32(envInt("LOG_SAMPLE_N", 0)),

		AWSRegion:        envOr("AWS_REGION", "ap-northeast-2"),
		ArchiveBucket:    os.Getenv("ARCHIVE_BUCKET"),
		ArchivePrefix:    envOr("ARCHIVE_PREFIX", "archive"),
		ArchiveDLQPrefix: envOr("ARCHIVE_DLQ_PREFIX", "archive_dlq"),
		ArchiveQueue:     envInt("ARCHIVE_QUEUE", 16),

		S3Timeout:    envDur("S3_TIMEOUT", 5*time.Second),
		S3AppRetries: envInt("S3_APP_RETRIES", 3),

		DLQDir:          envOr("DLQ_DIR", dataDir+"/dlq"),
		DLQMaxAge:       envDur("DLQ_MAX_AGE", 7*24*time.Hour),
		DLQMaxSizeBytes: envInt64("DLQ_MAX_SIZE_BYTES", 256*1024*1024),
		DLQReplayPerSec: envFloat("DLQ_REPLAY_PER_SEC", 5),
	}
}

// envOr / envInt / envInt64 / envFloat / envDur / envBool / envList
//
// 공통 패턴.
// 환경변수가 비어 있으면 기본값, 형식이 잘못되면 즉시 로그 출력 후 종료(fail-fast).
// 런타임 중 설정 오류를 겪지 않도록 하기 위한 보호 전략.
func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int env %s=%q: %v", key, v, err)
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid int64 env %s=%q: %v", key, v, err)
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("invalid float env %s=%q: %v", key, v, err)
	}
	return f
}

func envDur(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration env %s=%q: %v", key, v, err)
	}
	return d
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid bool env %s=%q: %v", key, v, err)
	}
	return b
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// fallbackInstanceID
//
// 이 서버 인스턴스를 식별하는 고유 값.
//   - 기본: hostname
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
