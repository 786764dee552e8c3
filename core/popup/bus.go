package popup

import (
	"context"

	"FocusFM/core/bus"
	"FocusFM/core/protocol"
)

// BusMessenger 进程内传输使用的总线能力
type BusMessenger interface {
	Register(role protocol.Role, handler bus.Handler) *bus.Endpoint
	Unregister(ep *bus.Endpoint)
	Send(ctx context.Context, msg *protocol.Message) (*protocol.Ack, error)
}

// Attach 以 popup 角色把客户端挂到进程内总线上，返回关闭弹窗的函数
func Attach(b BusMessenger, c *Client) (detach func()) {
	ep := b.Register(protocol.RolePopup, c.Handle)
	return func() { b.Unregister(ep) }
}
