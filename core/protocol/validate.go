package protocol

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidMessage 消息格式不合法
	ErrInvalidMessage = errors.New("invalid message")
	// ErrUnknownType 未知的消息类型
	ErrUnknownType = errors.New("unknown message type")
)

// Validate 校验信封以及消息类型要求的负载。
// 不认识的类型交给接收方处理，由接收方以 ErrUnknownType 应答。
func Validate(m *Message) error {
	if m == nil {
		return fmt.Errorf("%w: empty message", ErrInvalidMessage)
	}
	if !m.Target.Valid() {
		return fmt.Errorf("%w: unknown target %q", ErrInvalidMessage, m.Target)
	}
	if m.Source != "" && !m.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidMessage, m.Source)
	}
	if m.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}

	switch m.Type {
	case TypePlay:
		if m.URL == "" {
			return fmt.Errorf("%w: play requires url", ErrInvalidMessage)
		}
		if m.Volume != nil && (math.IsNaN(*m.Volume) || *m.Volume < 0 || *m.Volume > 1) {
			return fmt.Errorf("%w: volume %.2f out of range [0,1]", ErrInvalidMessage, *m.Volume)
		}
	case TypeLoop:
		if m.Enabled == nil {
			return fmt.Errorf("%w: loop requires enabled", ErrInvalidMessage)
		}
	case TypeAudioPlaying, TypeAudioEnded:
		if m.URL == "" {
			return fmt.Errorf("%w: %s requires url", ErrInvalidMessage, m.Type)
		}
	}
	return nil
}

// UnknownType 构造未知类型错误
func UnknownType(t MessageType) error {
	return fmt.Errorf("%w: %s", ErrUnknownType, t)
}
