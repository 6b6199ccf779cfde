// Package ratelimit 는 ingest 요청에 대한 client 별 sliding-window 승인 제어를 제공한다.
//
// 기본 정책은 key(client 주소) 당 60초에 100회.
// SlidingWindow 는 프로세스 메모리에만 존재하므로 재시작 시 초기화되고
// 여러 인스턴스 간에 공유되지 않는다. 다중 인스턴스 배포에서는 RedisWindow 를 사용한다.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter 는 key 에 대한 요청을 지금 승인할지 결정한다.
// error 는 공유 저장소 장애처럼 판단 자체가 불가능한 경우에만 반환된다.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SlidingWindow 는 key 별로 승인된 요청 시각을 순서대로 보관한다.
//
// 거절된 요청은 기록하지 않는다. window 가 밀려나면
// 정상적인 burst 가 다시 들어올 수 있도록 하기 위함이다.
type SlidingWindow struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	max     int
	window  time.Duration
	now     func() time.Time
}

type Option func(*SlidingWindow)

// WithClock 은 테스트용 시계를 주입한다.
func WithClock(now func() time.Time) Option {
	return func(s *SlidingWindow) { s.now = now }
}

func NewSlidingWindow(maxRequests int, window time.Duration, opts ...Option) *SlidingWindow {
	s := &SlidingWindow{
		windows: make(map[string][]time.Time),
		max:     maxRequests,
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow 구현.
//  1. now - window 이하인 시각을 앞에서부터 제거
//  2. 남은 개수 < max 이면 now 를 추가하고 승인
//  3. 아니면 아무것도 기록하지 않고 거절
func (s *SlidingWindow) Allow(_ context.Context, key string) (bool, error) {
	now := s.now()
	cutoff := now.Add(-s.window)

	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := trimBefore(s.windows[key], cutoff)
	if len(stamps) >= s.max {
		s.windows[key] = stamps
		return false, nil
	}
	s.windows[key] = append(stamps, now)
	return true, nil
}

// trimBefore 는 정렬된 slice 앞쪽에서 cutoff 이하인 값을 잘라낸다.
func trimBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return stamps
	}
	// 앞부분을 잘라낸 slice 가 계속 커지지 않도록 복사한다.
	return append(stamps[:0:0], stamps[i:]...)
}

// Keys 는 현재 추적 중인 key 수.
func (s *SlidingWindow) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Sweep 은 window 안에 남은 요청이 없는 key 를 제거한다.
func (s *SlidingWindow) Sweep() int {
	cutoff := s.now().Add(-s.window)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, stamps := range s.windows {
		stamps = trimBefore(stamps, cutoff)
		if len(stamps) == 0 {
			delete(s.windows, k)
			removed++
			continue
		}
		s.windows[k] = stamps
	}
	return removed
}

// StartJanitor 는 every 주기로 Sweep 을 실행하는 goroutine 을 띄운다.
// ctx 가 취소되면 종료된다.
func (s *SlidingWindow) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}
