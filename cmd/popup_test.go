package cmd

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"FocusFM/core/catalog"
	"FocusFM/core/popup"
	"FocusFM/core/protocol"
	"FocusFM/model"
)

type captureSender struct {
	mu   sync.Mutex
	sent []*protocol.Message
}

func (s *captureSender) Send(ctx context.Context, msg *protocol.Message) (*protocol.Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return protocol.OK(), nil
}

func (s *captureSender) last() *protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return nil
	}
	return s.sent[len(s.sent)-1]
}

func newTestShell(t *testing.T) (*shell, *captureSender, *bytes.Buffer) {
	t.Helper()
	p, err := catalog.NewPlaylist([]model.Song{
		{Title: "Rain", Artist: "Nature", URL: "a.mp3"},
		{Title: "Forest", Artist: "Nature", URL: "b.mp3"},
	})
	if err != nil {
		t.Fatal(err)
	}
	sender := &captureSender{}
	out := &bytes.Buffer{}
	client := popup.NewClient(sender, popup.WithPlaylist(p), popup.WithVolume(0.5))
	return &shell{client: client, playlist: p, out: out}, sender, out
}

func TestShellPlayByIndex(t *testing.T) {
	sh, sender, _ := newTestShell(t)

	if _, err := sh.exec(context.Background(), "play 2"); err != nil {
		t.Fatalf("play 2: %v", err)
	}
	msg := sender.last()
	if msg == nil || msg.Type != protocol.TypePlay || msg.URL != "b.mp3" {
		t.Fatalf("sent = %v, want play b.mp3", msg)
	}
	if msg.Volume == nil || *msg.Volume != 0.5 {
		t.Errorf("volume = %v, want 0.5", msg.Volume)
	}
	if v := sh.client.View(); !v.Playing || v.Title != "Forest" {
		t.Errorf("view = %+v, want playing Forest", v)
	}
}

func TestShellPlayDefaultsToSelected(t *testing.T) {
	sh, sender, _ := newTestShell(t)

	if _, err := sh.exec(context.Background(), "play"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if msg := sender.last(); msg.URL != "a.mp3" {
		t.Errorf("url = %q, want a.mp3", msg.URL)
	}
	if _, err := sh.exec(context.Background(), "play 9"); err == nil {
		t.Error("play 9 succeeded, want out of range error")
	}
}

func TestShellLoopAndAutoplay(t *testing.T) {
	sh, sender, _ := newTestShell(t)
	ctx := context.Background()

	if _, err := sh.exec(ctx, "loop on"); err != nil {
		t.Fatalf("loop on: %v", err)
	}
	msg := sender.last()
	if msg.Type != protocol.TypeLoop || msg.Enabled == nil || !*msg.Enabled {
		t.Errorf("sent = %v, want loop enabled", msg)
	}
	if _, err := sh.exec(ctx, "loop maybe"); err == nil {
		t.Error("loop maybe succeeded, want error")
	}

	if _, err := sh.exec(ctx, "autoplay off"); err != nil {
		t.Fatalf("autoplay off: %v", err)
	}
	if sh.client.View().Autoplay {
		t.Error("autoplay still on")
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent %d messages, want 1 (autoplay is local)", len(sender.sent))
	}
}

func TestShellSongsAndQuit(t *testing.T) {
	sh, _, out := newTestShell(t)

	if _, err := sh.exec(context.Background(), "songs"); err != nil {
		t.Fatalf("songs: %v", err)
	}
	if !strings.Contains(out.String(), "* ") || !strings.Contains(out.String(), "Forest") {
		t.Errorf("songs output = %q", out.String())
	}

	quit, err := sh.exec(context.Background(), "quit")
	if err != nil || !quit {
		t.Errorf("quit = %v, %v; want true, nil", quit, err)
	}
	if _, err := sh.exec(context.Background(), "dance"); err == nil {
		t.Error("unknown command accepted")
	}
	if quit, err := sh.exec(context.Background(), "   "); quit || err != nil {
		t.Errorf("blank line = %v, %v; want false, nil", quit, err)
	}
}

func TestShellPrompt(t *testing.T) {
	sh, _, _ := newTestShell(t)

	got := sh.prompt(popup.View{Title: "Rain", Playing: true, Loop: true, Confirmed: true})
	if got != "▶ Rain loop> " {
		t.Errorf("prompt = %q", got)
	}
	got = sh.prompt(popup.View{})
	if got != "⏸ - …> " {
		t.Errorf("prompt = %q", got)
	}
}

func TestShellStatePrintsAnswer(t *testing.T) {
	sh, sender, out := newTestShell(t)
	sh.client.OnChange(sh.viewChanged)
	ctx := context.Background()

	if _, err := sh.exec(ctx, "state"); err != nil {
		t.Fatalf("state: %v", err)
	}
	if msg := sender.last(); msg == nil || msg.Type != protocol.TypeGetAudioState {
		t.Fatalf("sent = %v, want GET_AUDIO_STATE", msg)
	}
	if out.Len() != 0 {
		t.Errorf("state printed before the answer arrived: %q", out.String())
	}

	sh.client.Handle(ctx, &protocol.Message{
		Target: protocol.RolePopup,
		Source: protocol.RoleBackground,
		Type:   protocol.TypeAudioPlaying,
		URL:    "b.mp3",
	})
	if !strings.Contains(out.String(), "url=b.mp3 playing=true") {
		t.Errorf("output = %q, want the answered state", out.String())
	}

	// 只打印一次
	out.Reset()
	sh.client.Handle(ctx, &protocol.Message{
		Target: protocol.RolePopup,
		Source: protocol.RoleBackground,
		Type:   protocol.TypeAudioPaused,
		URL:    "b.mp3",
	})
	if out.Len() != 0 {
		t.Errorf("unrequested state printed: %q", out.String())
	}
}
