package audio

import (
	"context"
	"fmt"
	"sync"
)

// PlayPolicy 决定是否允许开始播放，返回非 nil 即拒绝
type PlayPolicy func(src string) error

// MemorySession 不输出声音的内存会话，用于无音频设备的环境和测试
type MemorySession struct {
	mu      sync.Mutex
	state   State
	handler EventHandler
	policy  PlayPolicy
	closed  bool
}

// NewMemorySession 创建内存会话
func NewMemorySession() *MemorySession {
	return &MemorySession{
		state: State{Paused: true, Volume: 1},
	}
}

// SetPolicy 设置播放策略
func (s *MemorySession) SetPolicy(p PlayPolicy) {
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
}

func (s *MemorySession) Load(src string) {
	s.mu.Lock()
	s.state.Source = src
	s.state.Paused = true
	s.mu.Unlock()
}

func (s *MemorySession) SetVolume(v float64) {
	s.mu.Lock()
	s.state.Volume = ClampVolume(v)
	s.mu.Unlock()
}

func (s *MemorySession) SetLoop(enabled bool) {
	s.mu.Lock()
	s.state.Loop = enabled
	s.mu.Unlock()
}

func (s *MemorySession) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state.Source == "" {
		s.mu.Unlock()
		return ErrNoSource
	}
	if s.policy != nil {
		if err := s.policy(s.state.Source); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrPlaybackRejected, err)
		}
	}
	if !s.state.Paused {
		s.mu.Unlock()
		return nil
	}
	s.state.Paused = false
	snap, h := s.state, s.handler
	s.mu.Unlock()

	emit(h, EventPlay, snap)
	return nil
}

func (s *MemorySession) Pause() {
	s.mu.Lock()
	if s.closed || s.state.Paused {
		s.mu.Unlock()
		return
	}
	s.state.Paused = true
	snap, h := s.state, s.handler
	s.mu.Unlock()

	emit(h, EventPause, snap)
}

// Finish 模拟曲目自然播放结束
func (s *MemorySession) Finish() {
	s.mu.Lock()
	if s.closed || s.state.Paused || s.state.Source == "" {
		s.mu.Unlock()
		return
	}
	if s.state.Loop {
		// 循环播放从头开始，不触发 ended
		s.mu.Unlock()
		return
	}
	s.state.Paused = true
	snap, h := s.state, s.handler
	s.mu.Unlock()

	emit(h, EventPause, snap)
	emit(h, EventEnded, snap)
}

func (s *MemorySession) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *MemorySession) OnEvent(h EventHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *MemorySession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.handler = nil
	s.mu.Unlock()
	return nil
}

func emit(h EventHandler, ev Event, snap State) {
	if h != nil {
		h(ev, snap)
	}
}
