package flags

import (
	"context"
	"sync"
)

// MemoryStore 进程内存储，不持久化
type MemoryStore struct {
	mu       sync.Mutex
	flags    Flags
	watchers map[chan struct{}]struct{}
}

func NewMemoryStore(initial Flags) *MemoryStore {
	return &MemoryStore{
		flags:    initial,
		watchers: make(map[chan struct{}]struct{}),
	}
}

func (s *MemoryStore) Load(ctx context.Context) (Flags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags, nil
}

func (s *MemoryStore) Save(ctx context.Context, f Flags) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flags = f
	for ch := range s.watchers {
		notify(ch)
	}
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}
