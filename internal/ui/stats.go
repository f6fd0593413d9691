package ui

import (
	"sync"
	"time"
)

// FrameStats tracks delivered frames per second and capture-to-sink latency.
type FrameStats struct {
	mu sync.Mutex

	fps       uint
	latency   time.Duration
	count     uint
	lastReset time.Time
}

func (s *FrameStats) Observe(captured, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastReset.IsZero() {
		s.lastReset = now
	}

	if !captured.IsZero() {
		s.latency = now.Sub(captured)
	}

	s.count++
	if now.Sub(s.lastReset) >= time.Second {
		s.fps = s.count
		s.count = 0
		s.lastReset = now
	}
}

func (s *FrameStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fps = 0
	s.latency = 0
	s.count = 0
	s.lastReset = time.Time{}
}

func (s *FrameStats) Snapshot() (fps uint, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps, s.latency
}
