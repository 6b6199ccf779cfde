package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"visitor-tracker/internal/config"
	"visitor-tracker/internal/device"
	"visitor-tracker/internal/logger"
	"visitor-tracker/internal/metrics"
	"visitor-tracker/internal/model"
	"visitor-tracker/internal/ratelimit"
	"visitor-tracker/internal/server"
	"visitor-tracker/internal/store"
	"visitor-tracker/internal/tracker"
	"visitor-tracker/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {

	// ====================================================================
	// GOMAXPROCS
	// ====================================================================
	// 컨테이너 vCPU 제한이 있으면 환경변수로 맞춘다. 지정이 없으면 런타임 기본값.
	if v := os.Getenv("GOMAXPROCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			runtime.GOMAXPROCS(n)
		}
	}

	// ====================================================================
	// Config / Logger / Metrics
	// ====================================================================
	cfg := config.Load()
	logger.Init(cfg)
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// ====================================================================
	// 저장소
	// ====================================================================
	//  - visits / events : <DataDir>/<name>.json
	//  - access log      : LogFile (MaxLogLines 까지 rolling)
	visits := store.NewCollection[model.VisitRecord](cfg.DataDir, "visits", m)
	events := store.NewCollection[model.EventRecord](cfg.DataDir, "events", m)
	accessLog := store.NewAccessLogger(cfg.LogFile, cfg.MaxLogLines, m)
	log.Info().
		Str("visits", visits.Path()).
		Str("events", events.Path()).
		Str("access_log", accessLog.Path()).
		Msg("storage ready")

	// ====================================================================
	// Rate limiter
	// ====================================================================
	// REDIS_ADDR 가 있으면 인스턴스 간 공유 window, 없으면 프로세스 내 window.
	limiter, closeLimiter := newLimiter(ctx, cfg)

	// ====================================================================
	// Retention archive (선택)
	// ====================================================================
	// ARCHIVE_BUCKET 이 있으면 retention 으로 잘린 레코드를 S3 에 보관한다.
	var (
		archiver tracker.Archiver
		mgr      *worker.Manager
	)
	if cfg.ArchiveEnabled() {
		client, err := worker.NewS3Client(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("s3 client init failed")
		}
		mgr = worker.NewManager(cfg, m, client)
		mgr.Start()
		archiver = mgr
		log.Info().Str("bucket", cfg.ArchiveBucket).Str("prefix", cfg.ArchivePrefix).Msg("retention archive enabled")
	}

	svc := tracker.NewService(tracker.Options{
		Visits:         visits,
		Events:         events,
		AccessLog:      accessLog,
		Limiter:        limiter,
		Resolver:       device.NewUAParser(),
		Archiver:       archiver,
		Metrics:        m,
		AnonymizeIP:    cfg.AnonymizeIP,
		RetentionDays:  cfg.RetentionDays,
		MaxBatchEvents: cfg.MaxBatchEvents,
	})

	// RETENTION_INTERVAL > 0 이면 주기적으로 기본 보존 기간 cleanup.
	retentionDone := make(chan struct{})
	go func() {
		defer close(retentionDone)
		svc.Retention().Run(ctx, cfg.RetentionInterval)
	}()

	// ====================================================================
	// HTTP 서버
	// ====================================================================
	h := server.NewHandler(cfg, svc, m)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("data_dir", cfg.DataDir).Msg("visitor tracker listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server terminated")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// ====================================================================
	// Graceful shutdown
	// ====================================================================
	//  1) HTTP 서버: 새 요청 중단, 진행 중 요청 완료 대기
	//  2) limiter 정리 (Redis client close)
	//  3) retention loop 종료 대기 (진행 중 cleanup 이 있으면 끝까지)
	//  4) archive manager: 큐에 남은 job 업로드
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	closeLimiter()
	<-retentionDone

	if mgr != nil {
		log.Info().Msg("stopping archive manager")
		mgr.Shutdown(shutdownCtx)
	}

	log.Info().Msg("shutdown complete")
}

// newLimiter 는 Redis 가 설정되어 있고 응답하면 RedisWindow, 아니면 SlidingWindow.
// 프로세스 내 limiter 는 janitor 로 유휴 key 를 정리한다.
// 반환된 close 는 HTTP 서버 종료 후에 호출한다.
func newLimiter(ctx context.Context, cfg config.Config) (ratelimit.Limiter, func()) {
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()

		if err == nil {
			log.Info().Str("addr", cfg.RedisAddr).Msg("rate limiter: redis sliding window")
			closeFn := func() {
				if err := rdb.Close(); err != nil {
					log.Warn().Err(err).Msg("redis close")
				}
			}
			return ratelimit.NewRedisWindow(rdb, cfg.RateLimitMax, cfg.RateLimitWindow), closeFn
		}

		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, falling back to in-memory rate limiter")
		_ = rdb.Close()
	}

	sw := ratelimit.NewSlidingWindow(cfg.RateLimitMax, cfg.RateLimitWindow)
	sw.StartJanitor(ctx, cfg.RateLimitWindow)
	return sw, func() {}
}
