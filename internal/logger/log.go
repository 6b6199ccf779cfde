// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"visitor-tracker/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 애플리케이션 시작 시 한 번만 호출한다.
//
//   - LOG_PRETTY=true  : 사람이 읽는 콘솔 포맷 (로컬 개발)
//   - LOG_PRETTY=false : JSON 한 줄 포맷 (운영, 수집기 분석용)
//
// 모든 로그에는 "service", "instance" 필드가 붙는다.
// LOG_SAMPLE_N > 1 이면 Debug/Info 는 N 개 중 1 개만 남기고,
// Warn/Error 는 샘플링하지 않는다.
func Init(cfg config.Config) {
	var w io.Writer = os.Stdout
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	zlog.Logger = New(w, cfg)

	// 표준 log 패키지 출력도 zerolog 로 보낸다 (config.Load 의 fail-fast 메시지 등).
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

// New 는 Init 과 같은 규칙으로 logger 를 만들되 전역 상태는 건드리지 않는다.
// 테스트에서 출력 버퍼를 주입할 때 사용한다.
func New(w io.Writer, cfg config.Config) zerolog.Logger {
	level := ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	l := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	if cfg.LogSampleN > 1 {
		l = l.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}
	return l
}

// ParseLevel 은 잘못된 값이면 info 로 fallback 한다.
func ParseLevel(s string) zerolog.Level {
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s))); err == nil && l != zerolog.NoLevel {
		return l
	}
	return zerolog.InfoLevel
}
