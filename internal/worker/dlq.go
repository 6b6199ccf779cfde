package worker

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"visitor-tracker/internal/config"
	"visitor-tracker/internal/metrics"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

const metaSuffix = ".meta.json"

// dlqMeta 는 data 파일 옆에 저장되는 메타 정보.
type dlqMeta struct {
	Collection string `json:"collection"`
	NumRecords int64  `json:"num_records"`
}

// DLQManager 는 S3 업로드에 실패한 archive 배치를 로컬 디스크에 보관하고
// 나중에 다시 업로드한다.
//
// TTL 판단은 파일명 prefix 의 Unix timestamp 기준이다.
// 용량(DLQMaxSizeBytes) 을 넘으면 가장 오래된 파일부터 지운다.
type DLQManager struct {
	dir          string
	instanceID   string
	maxAge       time.Duration
	maxSizeBytes int64
	prefix       string // 정상 파일 재업로드 prefix
	badPrefix    string // 손상 파일 prefix

	metrics  *metrics.Metrics
	uploader *S3Uploader

	// 현재 DLQ 디렉토리 data 파일 총 바이트 수
	dlqSizeBytes int64
}

// NewDLQManager 는 DLQ 디렉토리를 만들고 기존 파일을 스캔해
// DLQSizeBytes / DLQFilesCurrent 를 복원한다. data 없는 meta 는 지운다.
func NewDLQManager(cfg config.Config, m *metrics.Metrics, uploader *S3Uploader) *DLQManager {
	if m == nil {
		m = metrics.New()
	}
	if err := os.MkdirAll(cfg.DLQDir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", cfg.DLQDir).Msg("dlq dir create failed")
	}

	d := &DLQManager{
		dir:          cfg.DLQDir,
		instanceID:   cfg.InstanceID,
		maxAge:       cfg.DLQMaxAge,
		maxSizeBytes: cfg.DLQMaxSizeBytes,
		prefix:       cfg.ArchivePrefix,
		badPrefix:    cfg.ArchiveDLQPrefix,
		metrics:      m,
		uploader:     uploader,
	}

	var total, count int64
	entries, err := os.ReadDir(d.dir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()

			if strings.HasSuffix(name, metaSuffix) {
				dataName := strings.TrimSuffix(name, metaSuffix)
				if _, err := os.Stat(filepath.Join(d.dir, dataName)); os.IsNotExist(err) {
					_ = os.Remove(filepath.Join(d.dir, name))
				}
				continue
			}
			if name[0] == '.' {
				continue
			}

			if info, err := e.Info(); err == nil {
				total += info.Size()
				count++
			}
		}
	}

	atomic.StoreInt64(&d.dlqSizeBytes, total)
	atomic.AddInt64(&m.DLQSizeBytes, total)
	atomic.AddInt64(&m.DLQFilesCurrent, count)

	if count > 0 {
		log.Info().Int64("files", count).Int64("bytes", total).Msg("dlq restored")
	}
	return d
}

// Save 는 업로드 실패한 gzip+JSONL 배치를 DLQ 에 저장한다.
// 용량이 부족하면 오래된 파일을 지우고, 그래도 부족하면 배치를 버린다.
func (d *DLQManager) Save(collection string, data []byte, numRecords int) error {
	if len(data) == 0 || numRecords <= 0 {
		return nil
	}

	size := int64(len(data))
	if !d.ensureCapacity(size) {
		log.Error().Int64("bytes", size).Int("records", numRecords).Msg("dlq full, batch dropped")
		atomic.AddInt64(&d.metrics.DLQRecordsDroppedTotal, int64(numRecords))
		return nil
	}

	dataPath := filepath.Join(d.dir, NewFilename(d.instanceID))
	if err := os.WriteFile(dataPath, data, 0o600); err != nil {
		atomic.AddInt64(&d.metrics.DLQRecordsDroppedTotal, int64(numRecords))
		return err
	}

	meta, _ := json.Marshal(dlqMeta{Collection: collection, NumRecords: int64(numRecords)})
	_ = os.WriteFile(dataPath+metaSuffix, meta, 0o600)

	atomic.AddInt64(&d.dlqSizeBytes, size)
	atomic.AddInt64(&d.metrics.DLQSizeBytes, size)
	atomic.AddInt64(&d.metrics.DLQFilesCurrent, 1)
	atomic.AddInt64(&d.metrics.DLQRecordsEnqueuedTotal, int64(numRecords))
	return nil
}

// ensureCapacity 는 incoming 을 더해도 maxSizeBytes 이하가 되도록
// 가장 오래된 파일부터 지운다. 더 지울 파일이 없으면 false.
func (d *DLQManager) ensureCapacity(incoming int64) bool {
	if d.maxSizeBytes <= 0 {
		return true
	}

	for {
		if atomic.LoadInt64(&d.dlqSizeBytes)+incoming <= d.maxSizeBytes {
			return true
		}

		oldest := d.pickOldest()
		if oldest == "" {
			return false
		}

		d.remove(oldest)
		atomic.AddInt64(&d.metrics.DLQFilesExpiredTotal, 1)
		log.Warn().Str("file", oldest).Msg("dlq capacity exceeded, oldest file removed")
	}
}

// ProcessOneCtx 는 가장 오래된 파일 1개를 처리한다 (TTL 삭제 또는 재업로드).
// 처리할 파일이 없으면 false.
func (d *DLQManager) ProcessOneCtx(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	name := d.pickOldest()
	if name == "" {
		return false
	}
	dataPath := filepath.Join(d.dir, name)

	info, err := os.Stat(dataPath)
	if err != nil {
		d.remove(name)
		return true
	}
	size := info.Size()

	if d.maxAge > 0 {
		if sec, ok := extractUnixFromFilename(name); ok {
			age := time.Duration(Unix()-sec) * time.Second
			if age > d.maxAge {
				d.remove(name)
				atomic.AddInt64(&d.metrics.DLQFilesExpiredTotal, 1)
				log.Info().Str("file", name).Dur("age", age).Msg("dlq ttl expired, deleted")
				return true
			}
		}
	}

	f, err := os.Open(dataPath)
	if err != nil {
		log.Warn().Err(err).Str("file", name).Msg("dlq open failed")
		return false
	}
	defer f.Close()

	meta := d.readMeta(dataPath)
	valid := validateFile(f, size)

	prefix := d.prefix
	if !valid {
		prefix = d.badPrefix
	}
	key := BuildS3Key(prefix, meta.Collection, name)

	if err := d.uploader.UploadFileWithRetryCtx(ctx, key, f, size); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dlq reupload failed")
		return false
	}
	_ = f.Close()

	d.remove(name)
	atomic.AddInt64(&d.metrics.DLQRecordsReuploadedTotal, meta.NumRecords)
	if valid {
		atomic.AddInt64(&d.metrics.ArchiveRecordsStoredTotal, meta.NumRecords)
	}

	log.Info().Str("key", key).Int64("records", meta.NumRecords).Bool("valid", valid).Msg("dlq reupload ok")
	return true
}

// readMeta 는 meta 파일을 읽는다. 없거나 깨져 있으면 records=1, collection="unknown".
func (d *DLQManager) readMeta(dataPath string) dlqMeta {
	meta := dlqMeta{Collection: "unknown", NumRecords: 1}
	raw, err := os.ReadFile(dataPath + metaSuffix)
	if err != nil {
		return meta
	}
	var v dlqMeta
	if json.Unmarshal(raw, &v) == nil {
		if v.Collection != "" {
			meta.Collection = v.Collection
		}
		if v.NumRecords > 0 {
			meta.NumRecords = v.NumRecords
		}
	}
	return meta
}

// remove 는 data/meta 파일을 지우고 크기 지표를 갱신한다.
func (d *DLQManager) remove(name string) {
	dataPath := filepath.Join(d.dir, name)
	if info, err := os.Stat(dataPath); err == nil {
		atomic.AddInt64(&d.dlqSizeBytes, -info.Size())
		atomic.AddInt64(&d.metrics.DLQSizeBytes, -info.Size())
	}
	_ = os.Remove(dataPath)
	_ = os.Remove(dataPath + metaSuffix)
	atomic.AddInt64(&d.metrics.DLQFilesCurrent, -1)
}

// validateFile 은 gzip 을 풀어 첫 JSONL 라인이 JSON object 인지 본다.
func validateFile(f io.ReadSeeker, size int64) bool {
	if size <= 0 {
		return false
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		return false
	}
	defer gz.Close()

	line, err := bufio.NewReader(gz).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return false
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}

	var tmp map[string]any
	return json.Unmarshal(line, &tmp) == nil
}

// pickOldest 는 파일명 (= timestamp) 기준 가장 오래된 data 파일을 돌려준다.
// ReadDir 결과 순서는 보장되지 않으므로 정렬한다.
func (d *DLQManager) pickOldest() string {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return ""
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == "" || name[0] == '.' || strings.HasSuffix(name, metaSuffix) {
			continue
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return ""
	}

	sort.Strings(files)
	return files[0]
}
