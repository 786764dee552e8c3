package background

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"FocusFM/core/host"
)

// fakeHost 记录查询与创建次数；创建成功后通过 onCreate 模拟文档宣告就绪
type fakeHost struct {
	mu        sync.Mutex
	exists    bool
	createErr error
	gate      chan struct{}
	onCreate  func()

	lookups atomic.Int32
	creates atomic.Int32
}

func (h *fakeHost) GetContexts(ctx context.Context, url string) ([]host.ContextInfo, error) {
	h.lookups.Add(1)
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.exists {
		return nil, nil
	}
	return []host.ContextInfo{{ContextType: "OFFSCREEN_DOCUMENT", DocumentURL: url}}, nil
}

func (h *fakeHost) CreateDocument(ctx context.Context, p host.CreateParams) error {
	h.creates.Add(1)
	if h.gate != nil {
		<-h.gate
	}
	h.mu.Lock()
	err := h.createErr
	if err == nil {
		h.exists = true
	}
	h.mu.Unlock()
	if err == nil && h.onCreate != nil {
		go h.onCreate()
	}
	return err
}

func testParams() host.CreateParams {
	return host.CreateParams{
		URL:           "html/offscreen.html",
		Reasons:       []host.Reason{host.ReasonAudioPlayback, host.ReasonBlobs},
		Justification: "Playing focus music and managing audio state",
	}
}

func newTestLifecycle(h *fakeHost) *Lifecycle {
	l := NewLifecycle(h, testParams())
	if h.onCreate == nil {
		h.onCreate = l.NotifyReady
	}
	return l
}

func TestEnsureReadyConcurrentCallsCreateOnce(t *testing.T) {
	h := &fakeHost{gate: make(chan struct{})}
	l := newTestLifecycle(h)

	const n = 16
	var started, done sync.WaitGroup
	errs := make(chan error, n)
	started.Add(n)
	done.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer done.Done()
			started.Done()
			errs <- l.EnsureReady(context.Background())
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(h.gate)
	done.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("EnsureReady() error = %v", err)
		}
	}
	if got := h.creates.Load(); got != 1 {
		t.Errorf("creation attempts = %d, want 1", got)
	}
	if !l.Present() {
		t.Error("Present() = false after creation")
	}
}

func TestEnsureReadyFastPath(t *testing.T) {
	h := &fakeHost{}
	l := newTestLifecycle(h)
	ctx := context.Background()

	if err := l.EnsureReady(ctx); err != nil {
		t.Fatalf("EnsureReady() error = %v", err)
	}
	lookups := h.lookups.Load()
	for i := 0; i < 3; i++ {
		if err := l.EnsureReady(ctx); err != nil {
			t.Fatalf("EnsureReady() error = %v", err)
		}
	}
	if h.lookups.Load() != lookups {
		t.Errorf("fast path queried the host %d extra times", h.lookups.Load()-lookups)
	}
}

func TestEnsureReadyAdoptsExistingDocument(t *testing.T) {
	h := &fakeHost{exists: true}
	l := newTestLifecycle(h)

	if err := l.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady() error = %v", err)
	}
	if h.creates.Load() != 0 {
		t.Errorf("creation attempts = %d, want 0 for surviving document", h.creates.Load())
	}
	if !l.Present() {
		t.Error("Present() = false, want true")
	}
}

func TestEnsureReadyCreateFailureNotRetried(t *testing.T) {
	h := &fakeHost{createErr: errors.New("quota")}
	l := newTestLifecycle(h)

	err := l.EnsureReady(context.Background())
	if !errors.Is(err, ErrCreateFailed) {
		t.Fatalf("EnsureReady() error = %v, want ErrCreateFailed", err)
	}
	if l.Present() {
		t.Error("Present() = true after failed creation")
	}
	if h.creates.Load() != 1 {
		t.Errorf("creation attempts = %d, want exactly 1", h.creates.Load())
	}

	// 下一次调用才会再次尝试
	h.mu.Lock()
	h.createErr = nil
	h.mu.Unlock()
	if err := l.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady() after recovery error = %v", err)
	}
	if h.creates.Load() != 2 {
		t.Errorf("creation attempts = %d, want 2", h.creates.Load())
	}
}

func TestEnsureReadyWaitsForReadiness(t *testing.T) {
	h := &fakeHost{onCreate: func() {}}
	l := newTestLifecycle(h)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := l.EnsureReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("EnsureReady() error = %v, want deadline exceeded without readiness", err)
	}

	result := make(chan error, 1)
	go func() { result <- l.EnsureReady(context.Background()) }()

	select {
	case err := <-result:
		t.Fatalf("EnsureReady() returned %v before readiness", err)
	case <-time.After(20 * time.Millisecond):
	}

	l.NotifyReady()
	select {
	case err := <-result:
		if err != nil {
			t.Errorf("EnsureReady() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("EnsureReady() still blocked after NotifyReady()")
	}
	if h.creates.Load() != 1 {
		t.Errorf("creation attempts = %d, want 1", h.creates.Load())
	}
}

func TestInvalidateReleasesWaiters(t *testing.T) {
	h := &fakeHost{onCreate: func() {}}
	l := newTestLifecycle(h)

	result := make(chan error, 1)
	go func() { result <- l.EnsureReady(context.Background()) }()
	for h.creates.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	l.Invalidate()
	select {
	case err := <-result:
		if err != nil {
			t.Errorf("EnsureReady() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Invalidate() did not release the waiter")
	}
	if l.Present() {
		t.Error("Present() = true after Invalidate()")
	}
}

func TestExistsDoesNotCreate(t *testing.T) {
	h := &fakeHost{}
	l := newTestLifecycle(h)

	ok, err := l.Exists(context.Background())
	if err != nil || ok {
		t.Fatalf("Exists() = %v, %v; want false, nil", ok, err)
	}
	if h.creates.Load() != 0 {
		t.Errorf("Exists() triggered %d creations", h.creates.Load())
	}

	h.mu.Lock()
	h.exists = true
	h.mu.Unlock()
	ok, err = l.Exists(context.Background())
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v; want true, nil", ok, err)
	}
	if !l.Present() {
		t.Error("Exists() should refresh the cached handle")
	}
}
