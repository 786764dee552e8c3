package background

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"FocusFM/core/audio"
	"FocusFM/core/bus"
	"FocusFM/core/host"
	"FocusFM/core/offscreen"
	"FocusFM/core/protocol"
)

// harness 把真实的总线、宿主、离屏控制器和后台路由器连在一起，弹窗端只记录收到的事件
type harness struct {
	t      *testing.T
	bus    *bus.Bus
	host   *host.Host
	router *Router
	popup  chan *protocol.Message

	mu       sync.Mutex
	sessions []*audio.MemorySession
	failNext error
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		bus:   bus.New(),
		popup: make(chan *protocol.Message, 32),
	}
	h.host = host.New(h.factory, h.bus)
	h.router = NewRouter(h.bus, NewLifecycle(h.host, testParams()), 0.9)
	h.router.Start()
	h.bus.Register(protocol.RolePopup, func(ctx context.Context, msg *protocol.Message) *protocol.Ack {
		h.popup <- msg
		return nil
	})

	t.Cleanup(func() {
		h.router.Stop()
		h.host.Shutdown()
	})
	return h
}

func (h *harness) factory(url string) (host.Document, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.failNext != nil {
		err := h.failNext
		h.failNext = nil
		return nil, err
	}
	s := audio.NewMemorySession()
	h.sessions = append(h.sessions, s)
	return offscreen.NewController(h.bus, s, url), nil
}

func (h *harness) lastSession() *audio.MemorySession {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sessions) == 0 {
		return nil
	}
	return h.sessions[len(h.sessions)-1]
}

func (h *harness) send(msg *protocol.Message) *protocol.Ack {
	h.t.Helper()

	msg.Target = protocol.RoleBackground
	msg.Source = protocol.RolePopup
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ack, err := h.bus.Send(ctx, msg)
	if err != nil {
		h.t.Fatalf("Send(%s) error = %v", msg, err)
	}
	if ack == nil {
		h.t.Fatalf("Send(%s) got no ack", msg)
	}
	return ack
}

func (h *harness) expectEvent(typ protocol.MessageType) *protocol.Message {
	h.t.Helper()

	select {
	case msg := <-h.popup:
		if msg.Type != typ {
			h.t.Fatalf("popup event = %s, want %s", msg, typ)
		}
		if msg.Source != protocol.RoleBackground || msg.Target != protocol.RolePopup {
			h.t.Errorf("popup event addressed %s->%s, want background->popup", msg.Source, msg.Target)
		}
		return msg
	case <-time.After(2 * time.Second):
		h.t.Fatalf("timed out waiting for %s", typ)
	}
	return nil
}

func (h *harness) expectQuiet() {
	h.t.Helper()

	select {
	case msg := <-h.popup:
		h.t.Fatalf("unexpected popup event %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPlayCreatesDocumentAndRelaysState(t *testing.T) {
	h := newHarness(t)

	ack := h.send(&protocol.Message{Type: protocol.TypePlay, URL: "a.mp3"})
	if !ack.Success {
		t.Fatalf("play ack = %+v, want success", ack)
	}
	if got := h.host.CreateAttempts(); got != 1 {
		t.Errorf("CreateAttempts() = %d, want 1", got)
	}

	ev := h.expectEvent(protocol.TypeAudioPlaying)
	if ev.URL != "a.mp3" {
		t.Errorf("AUDIO_PLAYING url = %q, want a.mp3", ev.URL)
	}

	snap := h.lastSession().Snapshot()
	if snap.Volume != 0.9 {
		t.Errorf("volume = %v, want default 0.9", snap.Volume)
	}
	if !snap.Loop {
		t.Error("loop = false, want forced loop on play")
	}
}

func TestPlayUsesPopupVolume(t *testing.T) {
	h := newHarness(t)

	h.send(&protocol.Message{Type: protocol.TypePlay, URL: "a.mp3", Volume: protocol.Float(0.4)})
	h.expectEvent(protocol.TypeAudioPlaying)

	if got := h.lastSession().Snapshot().Volume; got != 0.4 {
		t.Errorf("volume = %v, want 0.4", got)
	}
}

func TestSwitchTrackThenPause(t *testing.T) {
	h := newHarness(t)

	h.send(&protocol.Message{Type: protocol.TypePlay, URL: "a.mp3"})
	h.expectEvent(protocol.TypeAudioPlaying)

	h.send(&protocol.Message{Type: protocol.TypePlay, URL: "b.mp3"})
	if ev := h.expectEvent(protocol.TypeAudioPlaying); ev.URL != "b.mp3" {
		t.Errorf("AUDIO_PLAYING url = %q, want b.mp3", ev.URL)
	}

	h.send(&protocol.Message{Type: protocol.TypePause})
	if ev := h.expectEvent(protocol.TypeAudioPaused); ev.URL != "b.mp3" {
		t.Errorf("AUDIO_PAUSED url = %q, want b.mp3", ev.URL)
	}

	if got := h.host.CreateAttempts(); got != 1 {
		t.Errorf("CreateAttempts() = %d, want 1", got)
	}
}

func TestQueryWithoutDocumentSynthesizesIdle(t *testing.T) {
	h := newHarness(t)

	ack := h.send(&protocol.Message{Type: protocol.TypeGetAudioState})
	if !ack.Success {
		t.Fatalf("query ack = %+v, want success", ack)
	}

	ev := h.expectEvent(protocol.TypeAudioPaused)
	if ev.URL != "" {
		t.Errorf("idle url = %q, want empty", ev.URL)
	}
	if h.host.CreateAttempts() != 0 || h.host.Documents() != 0 {
		t.Errorf("query created a document (attempts=%d, docs=%d)", h.host.CreateAttempts(), h.host.Documents())
	}
}

func TestQueryForwardsToDocument(t *testing.T) {
	h := newHarness(t)

	h.send(&protocol.Message{Type: protocol.TypePlay, URL: "a.mp3"})
	h.expectEvent(protocol.TypeAudioPlaying)

	h.send(&protocol.Message{Type: protocol.TypeGetAudioState})
	ev := h.expectEvent(protocol.TypeAudioPlaying)
	if ev.URL != "a.mp3" || !ev.Offscreen {
		t.Errorf("state answer = %s, want a.mp3 from offscreen", ev)
	}
	if ev.Loop == nil || !*ev.Loop {
		t.Errorf("state answer loop = %v, want true", ev.Loop)
	}
}

func TestLoopCommandBeforePlay(t *testing.T) {
	h := newHarness(t)

	ack := h.send(&protocol.Message{Type: protocol.TypeLoop, Enabled: protocol.Bool(true)})
	if !ack.Success {
		t.Fatalf("loop ack = %+v, want success", ack)
	}
	if got := h.host.CreateAttempts(); got != 1 {
		t.Errorf("CreateAttempts() = %d, want 1", got)
	}

	h.send(&protocol.Message{Type: protocol.TypeGetAudioState})
	ev := h.expectEvent(protocol.TypeAudioPaused)
	if ev.URL != "" || !ev.Offscreen {
		t.Errorf("state answer = %s, want idle from offscreen", ev)
	}
}

func TestDocumentClosedWhilePlayingIsRecreated(t *testing.T) {
	h := newHarness(t)

	h.send(&protocol.Message{Type: protocol.TypePlay, URL: "a.mp3"})
	h.expectEvent(protocol.TypeAudioPlaying)
	first := h.lastSession()

	if err := h.host.CloseDocument(context.Background(), testParams().URL); err != nil {
		t.Fatalf("CloseDocument() error = %v", err)
	}

	waitFor(t, "document recreation", func() bool {
		return h.host.CreateAttempts() == 2 && h.host.Documents() == 1 && h.router.Lifecycle().Present()
	})
	if h.lastSession() == first {
		t.Fatal("no new audio session after recreation")
	}

	// 播放不会自动恢复，新文档从空闲状态开始
	ack := h.send(&protocol.Message{Type: protocol.TypePause})
	if !ack.Success {
		t.Fatalf("pause ack = %+v, want success", ack)
	}
	snap := h.lastSession().Snapshot()
	if snap.Source != "" || !snap.Paused {
		t.Errorf("recreated session = %+v, want idle", snap)
	}
	h.expectQuiet()
}

func TestDocumentClosedWhilePausedStaysAbsent(t *testing.T) {
	h := newHarness(t)

	h.send(&protocol.Message{Type: protocol.TypeLoop, Enabled: protocol.Bool(false)})
	if err := h.host.CloseDocument(context.Background(), testParams().URL); err != nil {
		t.Fatalf("CloseDocument() error = %v", err)
	}

	waitFor(t, "handle invalidation", func() bool { return !h.router.Lifecycle().Present() })
	time.Sleep(20 * time.Millisecond)
	if got := h.host.CreateAttempts(); got != 1 {
		t.Errorf("CreateAttempts() = %d, want 1", got)
	}
	if h.host.Documents() != 0 {
		t.Errorf("Documents() = %d, want 0", h.host.Documents())
	}
}

func TestStaleHandleRetriedOnce(t *testing.T) {
	h := newHarness(t)

	h.send(&protocol.Message{Type: protocol.TypePlay, URL: "a.mp3"})
	h.expectEvent(protocol.TypeAudioPlaying)

	// 文档消失但没有任何通知，缓存仍认为存在
	h.host.Shutdown()
	if !h.router.Lifecycle().Present() {
		t.Fatal("handle should still be cached as present")
	}

	ack := h.send(&protocol.Message{Type: protocol.TypePause})
	if !ack.Success {
		t.Fatalf("pause ack = %+v, want success after re-verification", ack)
	}
	if got := h.host.CreateAttempts(); got != 2 {
		t.Errorf("CreateAttempts() = %d, want 2", got)
	}
	if h.host.Documents() != 1 {
		t.Errorf("Documents() = %d, want 1", h.host.Documents())
	}
}

func TestStaleHandleQueryFallsBackToIdle(t *testing.T) {
	h := newHarness(t)

	h.send(&protocol.Message{Type: protocol.TypePlay, URL: "a.mp3"})
	h.expectEvent(protocol.TypeAudioPlaying)
	h.host.Shutdown()

	h.send(&protocol.Message{Type: protocol.TypeGetAudioState})
	if ev := h.expectEvent(protocol.TypeAudioPaused); ev.URL != "" {
		t.Errorf("idle url = %q, want empty", ev.URL)
	}
	if h.router.Lifecycle().Present() {
		t.Error("stale handle should be invalidated")
	}
	if got := h.host.CreateAttempts(); got != 1 {
		t.Errorf("CreateAttempts() = %d, want 1", got)
	}
}

func TestCreateFailureReported(t *testing.T) {
	h := newHarness(t)
	h.failNext = errors.New("boom")

	ack := h.send(&protocol.Message{Type: protocol.TypePlay, URL: "a.mp3"})
	if ack.Success {
		t.Fatal("play ack = success, want failure")
	}
	if !strings.Contains(ack.Error, ErrCreateFailed.Error()) {
		t.Errorf("ack error = %q, want creation failure", ack.Error)
	}
	if h.router.Lifecycle().Present() {
		t.Error("handle present after failed creation")
	}
	if got := h.host.CreateAttempts(); got != 1 {
		t.Errorf("CreateAttempts() = %d, want 1 (no retry)", got)
	}

	// 下一条命令重新尝试
	ack = h.send(&protocol.Message{Type: protocol.TypePlay, URL: "a.mp3"})
	if !ack.Success {
		t.Fatalf("second play ack = %+v, want success", ack)
	}
	h.expectEvent(protocol.TypeAudioPlaying)
}

func TestPlaybackRejectionStillAcked(t *testing.T) {
	h := newHarness(t)

	h.send(&protocol.Message{Type: protocol.TypeLoop, Enabled: protocol.Bool(true)})
	h.lastSession().SetPolicy(func(string) error { return errors.New("autoplay blocked") })

	ack := h.send(&protocol.Message{Type: protocol.TypePlay, URL: "a.mp3"})
	if !ack.Success {
		t.Errorf("play ack = %+v, want delivery success", ack)
	}
	h.expectQuiet()
}

func TestInvalidPopupCommands(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		msg  *protocol.Message
	}{
		{"unknown type", &protocol.Message{Type: "rewind"}},
		{"play without url", &protocol.Message{Type: protocol.TypePlay}},
		{"loop without flag", &protocol.Message{Type: protocol.TypeLoop}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := h.send(tt.msg)
			if ack.Success {
				t.Errorf("ack = success, want failure")
			}
		})
	}
	if got := h.host.CreateAttempts(); got != 0 {
		t.Errorf("CreateAttempts() = %d, want 0 for rejected commands", got)
	}
}

func TestRouterIgnoresOtherTargets(t *testing.T) {
	h := newHarness(t)

	ack := h.router.Handle(context.Background(), &protocol.Message{
		Target: protocol.RoleOffscreen,
		Source: protocol.RolePopup,
		Type:   protocol.TypePlay,
		URL:    "a.mp3",
	})
	if ack != nil {
		t.Errorf("Handle() = %+v, want nil for foreign target", ack)
	}
	if h.host.CreateAttempts() != 0 {
		t.Error("foreign message triggered document creation")
	}
}

func TestConcurrentPopupCommandsShareOneDocument(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, _ = h.bus.Send(ctx, &protocol.Message{
				Target:  protocol.RoleBackground,
				Source:  protocol.RolePopup,
				Type:    protocol.TypeLoop,
				Enabled: protocol.Bool(true),
			})
		}()
	}
	wg.Wait()

	if got := h.host.CreateAttempts(); got != 1 {
		t.Errorf("CreateAttempts() = %d, want 1", got)
	}
}
