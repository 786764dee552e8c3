package protocol

import (
	"encoding/json"
	"fmt"
)

// Role 消息参与方
type Role string

const (
	RoleBackground Role = "background" // 常驻后台控制器
	RoleOffscreen  Role = "offscreen"  // 持有音频元素的离屏文档
	RolePopup      Role = "popup"      // 临时弹窗
)

// Valid 判断角色是否合法
func (r Role) Valid() bool {
	switch r {
	case RoleBackground, RoleOffscreen, RolePopup:
		return true
	}
	return false
}

// MessageType 消息类型
type MessageType string

const (
	// 命令（background -> offscreen）
	TypePlay     MessageType = "play"      // 加载并播放，强制开启循环
	TypePause    MessageType = "pause"     // 暂停
	TypeLoop     MessageType = "loop"      // 设置循环标志
	TypeGetState MessageType = "GET_STATE" // 查询当前状态，以事件形式返回

	// 弹窗查询（popup -> background）
	TypeGetAudioState MessageType = "GET_AUDIO_STATE"

	// 状态事件（offscreen -> background -> popup）
	TypeAudioPlaying MessageType = "AUDIO_PLAYING"
	TypeAudioPaused  MessageType = "AUDIO_PAUSED"
	TypeAudioEnded   MessageType = "AUDIO_ENDED"

	// 生命周期通知（offscreen/host -> background）
	TypeDocumentClosed MessageType = "DOCUMENT_CLOSED"
	TypeOffscreenReady MessageType = "OFFSCREEN_READY"
)

// DefaultVolume play 命令没有可用音量时使用
const DefaultVolume = 0.9

// Message 跨上下文消息信封
//
// 所有字段平铺在同一层，与扩展原生消息格式保持一致。
type Message struct {
	Target    Role        `json:"target"`
	Source    Role        `json:"source,omitempty"`
	Type      MessageType `json:"type"`
	URL       string      `json:"url,omitempty"`
	Volume    *float64    `json:"volume,omitempty"`
	Enabled   *bool       `json:"enabled,omitempty"`
	IsPlaying bool        `json:"isPlaying,omitempty"`
	Offscreen bool        `json:"offscreen,omitempty"`
	Loop      *bool       `json:"loop,omitempty"`
}

// Ack 命令投递结果
type Ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OK 成功应答
func OK() *Ack {
	return &Ack{Success: true}
}

// Fail 失败应答
func Fail(err error) *Ack {
	if err == nil {
		return &Ack{Success: false}
	}
	return &Ack{Success: false, Error: err.Error()}
}

// Readdress 返回改写了路由字段的副本，负载保持不变
func (m *Message) Readdress(source, target Role) *Message {
	out := *m
	out.Source = source
	out.Target = target
	return &out
}

// IsStateEvent 是否为播放状态事件
func (m *Message) IsStateEvent() bool {
	switch m.Type {
	case TypeAudioPlaying, TypeAudioPaused, TypeAudioEnded:
		return true
	}
	return false
}

// IsCommand 是否为发往离屏文档的命令
func (m *Message) IsCommand() bool {
	switch m.Type {
	case TypePlay, TypePause, TypeLoop, TypeGetState:
		return true
	}
	return false
}

// VolumeOrDefault 返回命令中的音量，未设置或为 0 时返回默认值
func (m *Message) VolumeOrDefault() float64 {
	if m.Volume == nil || *m.Volume == 0 {
		return DefaultVolume
	}
	return *m.Volume
}

func (m *Message) String() string {
	return fmt.Sprintf("%s->%s %s", m.Source, m.Target, m.Type)
}

// Decode 解析 JSON 消息
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}

// Float 返回指向 v 的指针
func Float(v float64) *float64 { return &v }

// Bool 返回指向 v 的指针
func Bool(v bool) *bool { return &v }
