package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"FocusFM/core/protocol"
	"FocusFM/logger"
)

var (
	// ErrDocumentExists 同一时间只允许存在一个离屏文档
	ErrDocumentExists = errors.New("only a single offscreen document may be created")
	// ErrDocumentNotFound 要关闭的离屏文档不存在
	ErrDocumentNotFound = errors.New("offscreen document not found")
	// ErrInvalidParams 创建参数不合法
	ErrInvalidParams = errors.New("invalid offscreen document parameters")
)

// Reason 创建离屏文档时声明的能力
type Reason string

const (
	ReasonAudioPlayback Reason = "AUDIO_PLAYBACK"
	ReasonBlobs         Reason = "BLOBS"
)

// CreateParams 创建离屏文档参数
type CreateParams struct {
	URL           string
	Reasons       []Reason
	Justification string
}

// ContextInfo 宿主中存在的一个执行上下文
type ContextInfo struct {
	ContextType string
	DocumentURL string
}

// Document 宿主管理的离屏文档
type Document interface {
	Start(ctx context.Context) error
	// Close 销毁文档，返回销毁前是否正在播放
	Close() bool
}

// Factory 为给定 URL 构造离屏文档
type Factory func(url string) (Document, error)

// Poster 宿主向后台发送生命周期通知
type Poster interface {
	Post(ctx context.Context, msg *protocol.Message) error
}

// Host 离屏文档注册表，宿主是文档是否存在的最终权威
type Host struct {
	mu       sync.Mutex
	docs     map[string]Document
	factory  Factory
	notifier Poster

	creates atomic.Int64
}

// New 创建宿主
func New(factory Factory, notifier Poster) *Host {
	return &Host{
		docs:     make(map[string]Document),
		factory:  factory,
		notifier: notifier,
	}
}

// GetContexts 查询与 URL 匹配的离屏文档
func (h *Host) GetContexts(ctx context.Context, url string) ([]ContextInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.docs[url]; !ok {
		return nil, nil
	}
	return []ContextInfo{{ContextType: "OFFSCREEN_DOCUMENT", DocumentURL: url}}, nil
}

// CreateDocument 创建并启动离屏文档
func (h *Host) CreateDocument(ctx context.Context, p CreateParams) error {
	h.creates.Add(1)

	if p.URL == "" || len(p.Reasons) == 0 || p.Justification == "" {
		return fmt.Errorf("%w: url, reasons and justification are required", ErrInvalidParams)
	}

	h.mu.Lock()
	if len(h.docs) > 0 {
		h.mu.Unlock()
		return ErrDocumentExists
	}
	doc, err := h.factory(p.URL)
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("build offscreen document: %w", err)
	}
	h.docs[p.URL] = doc
	h.mu.Unlock()

	if err := doc.Start(ctx); err != nil {
		h.mu.Lock()
		delete(h.docs, p.URL)
		h.mu.Unlock()
		doc.Close()
		return fmt.Errorf("start offscreen document: %w", err)
	}

	logger.Info("offscreen document created",
		logger.String("url", p.URL),
		logger.Any("reasons", p.Reasons),
		logger.String("justification", p.Justification))
	return nil
}

// CloseDocument 宿主主动销毁离屏文档，并通知后台 DOCUMENT_CLOSED
func (h *Host) CloseDocument(ctx context.Context, url string) error {
	h.mu.Lock()
	doc, ok := h.docs[url]
	delete(h.docs, url)
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, url)
	}

	wasPlaying := doc.Close()
	logger.Info("offscreen document destroyed by host",
		logger.String("url", url),
		logger.Bool("isPlaying", wasPlaying))

	msg := &protocol.Message{
		Target:    protocol.RoleBackground,
		Source:    protocol.RoleOffscreen,
		Type:      protocol.TypeDocumentClosed,
		IsPlaying: wasPlaying,
	}
	if err := h.notifier.Post(ctx, msg); err != nil {
		return fmt.Errorf("notify document closed: %w", err)
	}
	return nil
}

// Documents 当前存在的离屏文档数量
func (h *Host) Documents() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.docs)
}

// CreateAttempts 累计的创建请求次数
func (h *Host) CreateAttempts() int64 {
	return h.creates.Load()
}

// Shutdown 销毁所有离屏文档，不发送通知
func (h *Host) Shutdown() {
	h.mu.Lock()
	docs := h.docs
	h.docs = make(map[string]Document)
	h.mu.Unlock()

	for _, doc := range docs {
		doc.Close()
	}
}
