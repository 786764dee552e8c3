package popup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"FocusFM/core/bus"
	"FocusFM/core/protocol"
	"FocusFM/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrConnClosed 连接已关闭，未完成的命令不会再收到应答
var ErrConnClosed = errors.New("popup connection closed")

const writeWait = 10 * time.Second

// Conn 远程弹窗到后台的 WebSocket 连接
//
// 命令帧带 requestId，后台用同一 requestId 应答；状态事件不带 requestId，交给 handler。
type Conn struct {
	ws      *websocket.Conn
	handler bus.Handler
	log     *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan *protocol.Ack
	err     error

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial 连接后台的 /ws/popup，事件交给 handler 处理（通常是 Client.Handle）
func Dial(ctx context.Context, url string, handler bus.Handler) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:      ws,
		handler: handler,
		log:     logger.Named("popup").With(zap.String("server", url)),
		pending: make(map[string]chan *protocol.Ack),
		ctx:     connCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// DialClient 连接后台并返回绑定到该连接的弹窗客户端
func DialClient(ctx context.Context, url string, opts ...Option) (*Client, *Conn, error) {
	c := NewClient(nil, opts...)
	conn, err := Dial(ctx, url, c.Handle)
	if err != nil {
		return nil, nil, err
	}
	c.mu.Lock()
	c.sender = conn
	c.mu.Unlock()
	return c, conn, nil
}

// Send 发送命令帧并等待对应的应答帧，没有超时，只受 ctx 约束
func (c *Conn) Send(ctx context.Context, msg *protocol.Message) (*protocol.Ack, error) {
	id := uuid.NewString()
	ch := make(chan *protocol.Ack, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(&protocol.Frame{RequestID: id, Message: msg}); err != nil {
		return nil, fmt.Errorf("write %s: %w", msg, err)
	}

	select {
	case ack := <-ch:
		return ack, nil
	case <-c.done:
		return nil, c.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Conn) write(f *protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(f)
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer c.cancel()

	for {
		var f protocol.Frame
		if err := c.ws.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			c.fail(fmt.Errorf("%w: %v", ErrConnClosed, err))
			return
		}

		switch {
		case f.Ack != nil:
			c.mu.Lock()
			ch, ok := c.pending[f.RequestID]
			c.mu.Unlock()
			if ok {
				ch <- f.Ack
			} else {
				c.log.Debug("ack for unknown request", zap.String("requestId", f.RequestID))
			}
		case f.Message != nil:
			// 按到达顺序处理事件
			c.handler(c.ctx, f.Message)
		}
	}
}

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

// Err 连接关闭原因
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return ErrConnClosed
	}
	return c.err
}

// Done 连接关闭时关闭
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close 发送关闭帧并断开连接
func (c *Conn) Close() error {
	c.writeMu.Lock()
	err := c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()

	select {
	case <-c.done:
	case <-time.After(time.Second):
	}
	if cerr := c.ws.Close(); err == nil {
		err = cerr
	}
	return err
}
