// Package store 는 파일 기반 저장소를 담당한다.
//
//   - Collection[T]: 이름 있는 레코드 컬렉션 (<dir>/<name>.json, JSON 배열 문서 1개)
//   - AccessLogger : 최대 라인 수가 제한된 rolling access log (JSON line)
//
// 두 저장소 모두 "파일 전체 읽기 → 계산 → 파일 전체 쓰기" 방식이므로
// 파일 단위 mutex 로 직렬화해 lost-update 를 막는다.
// 단일 프로세스 전제이며, 여러 프로세스가 같은 디렉토리에 쓰는 것은 지원하지 않는다.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"visitor-tracker/internal/metrics"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// Collection 은 T 레코드의 순서 있는 컬렉션 하나를 소유한다.
// 이 컬렉션의 파일은 Collection 외에는 아무도 쓰지 않는다.
type Collection[T any] struct {
	name    string
	path    string
	metrics *metrics.Metrics

	mu sync.Mutex
}

func NewCollection[T any](dir, name string, m *metrics.Metrics) *Collection[T] {
	if m == nil {
		m = metrics.New()
	}
	return &Collection[T]{
		name:    name,
		path:    filepath.Join(dir, name+".json"),
		metrics: m,
	}
}

func (c *Collection[T]) Name() string { return c.name }
func (c *Collection[T]) Path() string { return c.path }

// Load 는 컬렉션 전체를 저장 순서대로 돌려준다.
//
// 파일이 없거나 손상된 경우 빈 slice 를 돌려준다 ("아직 데이터 없음").
// 손상은 WARN 로그와 store_corrupt_reads_total 로만 드러난다.
func (c *Collection[T]) Load() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

// Append 는 레코드 1건을 끝에 추가한다.
func (c *Collection[T]) Append(rec T) error {
	return c.Update(func(all []T) ([]T, error) {
		return append(all, rec), nil
	})
}

// AppendMany 는 여러 레코드를 한 번의 쓰기로 추가한다.
func (c *Collection[T]) AppendMany(recs []T) error {
	if len(recs) == 0 {
		return nil
	}
	return c.Update(func(all []T) ([]T, error) {
		return append(all, recs...), nil
	})
}

// Replace 는 저장된 컬렉션을 recs 로 통째로 교체한다.
func (c *Collection[T]) Replace(recs []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(recs)
}

// Update 는 잠금을 잡은 상태에서 read → fn → write 를 수행한다.
// fn 이 error 를 반환하면 아무것도 쓰지 않는다.
// event_id 발급처럼 현재 내용에 의존하는 쓰기는 반드시 Update 안에서 해야 한다.
func (c *Collection[T]) Update(fn func([]T) ([]T, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fn(c.read())
	if err != nil {
		return err
	}
	return c.write(next)
}

func (c *Collection[T]) read() []T {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("collection", c.name).Str("path", c.path).
				Msg("collection read failed, treating as empty")
		}
		return []T{}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return []T{}
	}

	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		atomic.AddInt64(&c.metrics.StoreCorruptReadsTotal, 1)
		log.Warn().Err(err).Str("collection", c.name).Str("path", c.path).
			Msg("collection file corrupt, treating as empty")
		return []T{}
	}
	if out == nil {
		out = []T{}
	}
	return out
}

// write 는 같은 디렉토리의 임시 파일에 쓴 뒤 rename 한다.
// 중간에 실패해도 기존 파일은 온전히 남는다.
func (c *Collection[T]) write(recs []T) error {
	if recs == nil {
		recs = []T{}
	}

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		atomic.AddInt64(&c.metrics.StorageWriteErrorsTotal, 1)
		return fmt.Errorf("encode collection %s: %w", c.name, err)
	}

	if err := writeFileAtomic(c.path, data); err != nil {
		atomic.AddInt64(&c.metrics.StorageWriteErrorsTotal, 1)
		return fmt.Errorf("write collection %s: %w", c.name, err)
	}
	return nil
}

// writeFileAtomic 은 상위 디렉토리를 만들고 tmp → rename 으로 교체한다.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
