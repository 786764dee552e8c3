package popup

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"FocusFM/core/bus"
	"FocusFM/core/protocol"
	"FocusFM/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 30 * time.Second
	maxFrameSize = 4096
	sendBuffer   = 64
)

// RemoteClient 一个通过 WebSocket 连接的远程弹窗
type RemoteClient struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	Send chan []byte

	closed     bool          // 由 Hub.mu 保护
	registered chan struct{} // Hub 完成注册后关闭
}

// Hub 远程弹窗管理中心
//
// 至少有一个远程弹窗在线时，Hub 以 popup 角色注册在总线上，把后台转发的状态事件广播给所有连接；
// 全部断开后注销，后台就会像弹窗关闭时一样丢弃事件。
type Hub struct {
	bus BusMessenger

	clients map[*RemoteClient]bool
	ep      *bus.Endpoint

	register   chan *RemoteClient
	unregister chan *RemoteClient
	broadcast  chan []byte

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewHub 创建 Hub
func NewHub(b BusMessenger) *Hub {
	return &Hub{
		bus:        b,
		clients:    make(map[*RemoteClient]bool),
		register:   make(chan *RemoteClient),
		unregister: make(chan *RemoteClient),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastAll(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Clients 在线远程弹窗数量
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *RemoteClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if h.ep == nil {
		h.ep = h.bus.Register(protocol.RolePopup, h.deliver)
	}
	close(client.registered)
	logger.Info("popup connected",
		logger.String("client", client.ID),
		logger.Int("online", len(h.clients)))
}

func (h *Hub) unregisterClient(client *RemoteClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeClient(client)
}

// removeClient 需要持有锁
func (h *Hub) removeClient(client *RemoteClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.closed = true
	close(client.Send)

	if len(h.clients) == 0 && h.ep != nil {
		h.bus.Unregister(h.ep)
		h.ep = nil
	}
	logger.Info("popup disconnected",
		logger.String("client", client.ID),
		logger.Int("online", len(h.clients)))
}

func (h *Hub) broadcastAll(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// 发送缓冲区满，移除客户端
			logger.Warn("popup send buffer full, dropping client", logger.String("client", client.ID))
			h.removeClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.closed = true
		close(client.Send)
	}
	h.clients = make(map[*RemoteClient]bool)
	if h.ep != nil {
		h.bus.Unregister(h.ep)
		h.ep = nil
	}
}

// deliver 总线上的 popup 处理函数：状态事件不带 requestId
func (h *Hub) deliver(ctx context.Context, msg *protocol.Message) *protocol.Ack {
	data, err := json.Marshal(&protocol.Frame{Message: msg})
	if err != nil {
		logger.Error("encode popup event failed", logger.ErrorField(err))
		return nil
	}
	select {
	case h.broadcast <- data:
	case <-h.done:
	}
	return nil
}

// ServeConn 接管一个已升级的连接，阻塞直到连接关闭
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn) {
	client := &RemoteClient{
		ID:   uuid.NewString(),
		Hub:  h,
		Conn: conn,
		Send: make(chan []byte, sendBuffer),

		registered: make(chan struct{}),
	}

	// 注册完成后才读取命令，保证第一条查询的应答事件有人接收
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	select {
	case <-client.registered:
	case <-h.done:
		conn.Close()
		return
	}

	go client.WritePump()
	client.ReadPump(ctx)
}

// ReadPump 读取命令帧，经总线交给后台，并按 requestId 回写应答
func (c *RemoteClient) ReadPump(ctx context.Context) {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("popup websocket read error",
					logger.ErrorField(err),
					logger.String("client", c.ID))
			}
			return
		}

		var f protocol.Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Message == nil {
			logger.Warn("invalid popup frame", logger.String("client", c.ID))
			c.reply(f.RequestID, protocol.Fail(protocol.ErrInvalidMessage))
			continue
		}

		// 连接本身就是弹窗，路由字段以连接为准
		msg := f.Message
		msg.Source = protocol.RolePopup
		msg.Target = protocol.RoleBackground

		ack, err := c.Hub.bus.Send(ctx, msg)
		switch {
		case err != nil:
			ack = protocol.Fail(err)
		case ack == nil:
			ack = protocol.OK()
		}
		c.reply(f.RequestID, ack)
	}
}

func (c *RemoteClient) reply(requestID string, ack *protocol.Ack) {
	data, err := json.Marshal(&protocol.Frame{RequestID: requestID, Ack: ack})
	if err != nil {
		return
	}
	// Hub 只在持有写锁时关闭 Send
	c.Hub.mu.RLock()
	defer c.Hub.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		logger.Warn("popup send buffer full, ack dropped", logger.String("client", c.ID))
	}
}

// WritePump 写入消息循环
func (c *RemoteClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 每帧一条消息，客户端按帧解码
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
