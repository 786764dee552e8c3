package audio

import (
	"context"
	"errors"
)

var (
	// ErrNoSource 未加载音源时尝试播放
	ErrNoSource = errors.New("no audio source loaded")
	// ErrPlaybackRejected 播放被策略拒绝（例如自动播放策略）
	ErrPlaybackRejected = errors.New("playback rejected")
	// ErrClosed 会话已释放
	ErrClosed = errors.New("audio session closed")
)

// Event 音频资源的原生事件
type Event string

const (
	EventPlay  Event = "play"
	EventPause Event = "pause"
	EventEnded Event = "ended"
)

// State 音频资源的可观察状态
type State struct {
	Source string
	Paused bool
	Loop   bool
	Volume float64
}

// EventHandler 接收原生事件及事件发生时的状态快照
type EventHandler func(ev Event, snap State)

// Session 唯一的音频输出资源
//
// 语义与媒体元素一致：Load 静默回到暂停；只有暂停->播放的边沿触发 play；
// 非循环曲目播放结束时先触发 pause 再触发 ended。
type Session interface {
	Load(src string)
	SetVolume(v float64)
	SetLoop(enabled bool)
	Play(ctx context.Context) error
	Pause()
	Snapshot() State
	OnEvent(h EventHandler)
	Close() error
}

// ClampVolume 把音量限制在 [0,1]
func ClampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
