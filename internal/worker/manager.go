// Package worker 는 retention 으로 잘려 나간 레코드를 S3 에 보관하는
// archive 파이프라인이다.
//
//	RetentionManager ─Enqueue→ jobs ─uploadLoop→ Encoder(gzip JSONL) → S3
//	                                              └ 실패 시 로컬 DLQ
//	                                   replayLoop → DLQ 재업로드 (초당 DLQReplayPerSec)
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"visitor-tracker/internal/config"
	"visitor-tracker/internal/metrics"
	"visitor-tracker/internal/model"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// idleReplayWait 는 DLQ 가 비어 있을 때 다음 확인까지 기다리는 시간.
const idleReplayWait = time.Second

// Manager 는 archive job 을 받아 업로드하고, 실패분은 DLQ 로 넘긴다.
// Shutdown 시 큐에 남은 job 을 모두 처리한 뒤 종료한다.
type Manager struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	uploader *S3Uploader
	dlq      *DLQManager
	encoder  *Encoder
	replay   *rate.Limiter

	jobs chan model.ArchiveJob

	mu     sync.RWMutex
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	uploadWG  sync.WaitGroup
	replayWG  sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewManager(cfg config.Config, m *metrics.Metrics, client PutObjectAPI) *Manager {
	if m == nil {
		m = metrics.New()
	}
	uploader := NewS3Uploader(cfg, m, client)

	queue := cfg.ArchiveQueue
	if queue <= 0 {
		queue = 16
	}
	perSec := cfg.DLQReplayPerSec
	if perSec <= 0 {
		perSec = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:      cfg,
		metrics:  m,
		uploader: uploader,
		dlq:      NewDLQManager(cfg, m, uploader),
		encoder:  NewEncoder(),
		replay:   rate.NewLimiter(rate.Limit(perSec), 1),
		jobs:     make(chan model.ArchiveJob, queue),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Enqueue 는 job 을 큐에 넣는다. 블록하지 않으며 큐가 가득 찼거나
// 종료 중이면 false.
func (m *Manager) Enqueue(job model.ArchiveJob) bool {
	if len(job.Records) == 0 {
		return true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false
	}

	select {
	case m.jobs <- job:
		return true
	default:
		return false
	}
}

// Start 는 uploadLoop 와 replayLoop 를 실행한다.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.uploadWG.Add(1)
		go m.uploadLoop()

		m.replayWG.Add(1)
		go m.replayLoop()
	})
}

// Shutdown 은 새 job 을 막고, 남은 job 업로드가 끝나면 replay 를 멈춘다.
// ctx 가 먼저 끝나면 진행 중인 업로드를 취소한다.
func (m *Manager) Shutdown(ctx context.Context) {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.jobs)
		m.mu.Unlock()

		done := make(chan struct{})
		go func() {
			m.uploadWG.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			log.Warn().Msg("archive shutdown deadline reached, cancelling uploads")
		}

		m.cancel()
		m.uploadWG.Wait()
		m.replayWG.Wait()
	})
}

func (m *Manager) uploadLoop() {
	defer m.uploadWG.Done()

	for job := range m.jobs {
		m.process(m.ctx, job)
	}
	log.Info().Msg("archive uploader exiting")
}

// replayLoop 는 DLQ 파일을 초당 DLQReplayPerSec 개 이하로 재업로드한다.
func (m *Manager) replayLoop() {
	defer m.replayWG.Done()

	for {
		if err := m.replay.Wait(m.ctx); err != nil {
			return
		}
		if m.dlq.ProcessOneCtx(m.ctx) {
			continue
		}

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(idleReplayWait):
		}
	}
}

// process 는 job 1개를 인코딩해 업로드한다. 업로드 실패 시 DLQ 에 저장한다.
func (m *Manager) process(ctx context.Context, job model.ArchiveJob) {
	n := len(job.Records)
	if n == 0 {
		return
	}

	data, err := m.encoder.EncodeJSONLGZ(job.Records)
	if err != nil {
		atomic.AddInt64(&m.metrics.DLQRecordsDroppedTotal, int64(n))
		log.Error().Err(err).Str("collection", job.Collection).Int("records", n).Msg("archive encode failed")
		return
	}

	key := BuildS3Key(m.cfg.ArchivePrefix, job.Collection, NewFilename(m.cfg.InstanceID))
	if err := m.uploader.UploadBytesWithRetryCtx(ctx, key, data); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("archive upload failed, saving to dlq")
		if err := m.dlq.Save(job.Collection, data, n); err != nil {
			log.Error().Err(err).Str("collection", job.Collection).Msg("dlq save failed")
		}
		return
	}

	atomic.AddInt64(&m.metrics.ArchiveRecordsStoredTotal, int64(n))
	log.Debug().Str("key", key).Int("records", n).Msg("archive uploaded")
}
