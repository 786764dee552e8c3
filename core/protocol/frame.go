package protocol

// Frame 远程弹窗的 WebSocket 帧
//
// RequestID 只在单条连接内关联命令和应答，不进入核心协议；状态事件不带 RequestID。
type Frame struct {
	RequestID string   `json:"requestId,omitempty"`
	Message   *Message `json:"message,omitempty"`
	Ack       *Ack     `json:"ack,omitempty"`
}
