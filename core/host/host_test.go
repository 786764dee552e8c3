package host

import (
	"context"
	"errors"
	"testing"

	"FocusFM/core/protocol"
)

type stubDoc struct {
	started  bool
	closed   bool
	playing  bool
	startErr error
}

func (d *stubDoc) Start(ctx context.Context) error {
	d.started = true
	return d.startErr
}

func (d *stubDoc) Close() bool {
	d.closed = true
	return d.playing
}

type capturePoster struct {
	msgs []*protocol.Message
}

func (p *capturePoster) Post(ctx context.Context, msg *protocol.Message) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func params() CreateParams {
	return CreateParams{
		URL:           "html/offscreen.html",
		Reasons:       []Reason{ReasonAudioPlayback, ReasonBlobs},
		Justification: "Playing focus music and managing audio state",
	}
}

func TestCreateAndLookup(t *testing.T) {
	doc := &stubDoc{}
	h := New(func(string) (Document, error) { return doc, nil }, &capturePoster{})
	ctx := context.Background()

	if got, _ := h.GetContexts(ctx, "html/offscreen.html"); len(got) != 0 {
		t.Fatalf("GetContexts() before create = %v, want none", got)
	}
	if err := h.CreateDocument(ctx, params()); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if !doc.started {
		t.Error("document was not started")
	}
	got, err := h.GetContexts(ctx, "html/offscreen.html")
	if err != nil || len(got) != 1 {
		t.Fatalf("GetContexts() = %v, %v; want one context", got, err)
	}
	if got[0].DocumentURL != "html/offscreen.html" {
		t.Errorf("DocumentURL = %q", got[0].DocumentURL)
	}
}

func TestCreateRejectsSecondDocument(t *testing.T) {
	h := New(func(string) (Document, error) { return &stubDoc{}, nil }, &capturePoster{})
	ctx := context.Background()

	if err := h.CreateDocument(ctx, params()); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if err := h.CreateDocument(ctx, params()); !errors.Is(err, ErrDocumentExists) {
		t.Errorf("second CreateDocument() error = %v, want ErrDocumentExists", err)
	}
	if h.CreateAttempts() != 2 {
		t.Errorf("CreateAttempts() = %d, want 2", h.CreateAttempts())
	}
}

func TestCreateValidatesParams(t *testing.T) {
	h := New(func(string) (Document, error) { return &stubDoc{}, nil }, &capturePoster{})
	p := params()
	p.Justification = ""
	if err := h.CreateDocument(context.Background(), p); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("CreateDocument() error = %v, want ErrInvalidParams", err)
	}
	if h.Documents() != 0 {
		t.Errorf("Documents() = %d, want 0", h.Documents())
	}
}

func TestCreateStartFailureLeavesNoDocument(t *testing.T) {
	doc := &stubDoc{startErr: errors.New("boom")}
	h := New(func(string) (Document, error) { return doc, nil }, &capturePoster{})

	if err := h.CreateDocument(context.Background(), params()); err == nil {
		t.Fatal("CreateDocument() should fail when start fails")
	}
	if h.Documents() != 0 || !doc.closed {
		t.Errorf("Documents() = %d, closed = %v; want 0, true", h.Documents(), doc.closed)
	}
}

func TestCloseDocumentNotifies(t *testing.T) {
	doc := &stubDoc{playing: true}
	poster := &capturePoster{}
	h := New(func(string) (Document, error) { return doc, nil }, poster)
	ctx := context.Background()
	_ = h.CreateDocument(ctx, params())

	if err := h.CloseDocument(ctx, "html/offscreen.html"); err != nil {
		t.Fatalf("CloseDocument() error = %v", err)
	}
	if !doc.closed {
		t.Error("document was not closed")
	}
	if len(poster.msgs) != 1 {
		t.Fatalf("notifications = %d, want 1", len(poster.msgs))
	}
	msg := poster.msgs[0]
	if msg.Type != protocol.TypeDocumentClosed || !msg.IsPlaying || msg.Target != protocol.RoleBackground {
		t.Errorf("notification = %+v", msg)
	}
	if err := h.CloseDocument(ctx, "html/offscreen.html"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("second CloseDocument() error = %v, want ErrDocumentNotFound", err)
	}
}
