package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"FocusFM/core/audio"
	"FocusFM/logger"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// 扬声器输出采样率，音源采样率不同时重采样
const outputRate = beep.SampleRate(44100)

var (
	speakerOnce sync.Once
	speakerErr  error
)

func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(outputRate, outputRate.N(100*time.Millisecond))
	})
	return speakerErr
}

// Session 基于 beep 的真实音频输出
type Session struct {
	mu      sync.Mutex
	state   audio.State
	handler audio.EventHandler
	client  *http.Client

	stream beep.StreamSeekCloser
	ctrl   *beep.Ctrl
	volume *effects.Volume
	loaded string
	loop   atomic.Bool
	gen    int
	closed bool
}

// New 创建扬声器会话；speaker 在第一次播放时初始化
func New() *Session {
	return &Session{
		state:  audio.State{Paused: true, Volume: 1},
		client: http.DefaultClient,
	}
}

func (s *Session) Load(src string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.state.Source = src
	s.state.Paused = true
}

func (s *Session) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Volume = audio.ClampVolume(v)
	if s.volume != nil {
		speaker.Lock()
		applyVolume(s.volume, s.state.Volume)
		speaker.Unlock()
	}
}

func (s *Session) SetLoop(enabled bool) {
	s.mu.Lock()
	s.state.Loop = enabled
	s.mu.Unlock()
	s.loop.Store(enabled)
}

func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return audio.ErrClosed
	}
	if s.state.Source == "" {
		s.mu.Unlock()
		return audio.ErrNoSource
	}
	if !s.state.Paused {
		s.mu.Unlock()
		return nil
	}

	if s.loaded != s.state.Source || s.ctrl == nil {
		if err := s.startLocked(ctx); err != nil {
			s.mu.Unlock()
			return err
		}
	} else {
		speaker.Lock()
		s.ctrl.Paused = false
		speaker.Unlock()
	}

	s.state.Paused = false
	snap, h := s.state, s.handler
	s.mu.Unlock()

	if h != nil {
		h(audio.EventPlay, snap)
	}
	return nil
}

func (s *Session) Pause() {
	s.mu.Lock()
	if s.closed || s.state.Paused {
		s.mu.Unlock()
		return
	}
	if s.ctrl != nil {
		speaker.Lock()
		s.ctrl.Paused = true
		speaker.Unlock()
	}
	s.state.Paused = true
	snap, h := s.state, s.handler
	s.mu.Unlock()

	if h != nil {
		h(audio.EventPause, snap)
	}
}

func (s *Session) Snapshot() audio.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) OnEvent(h audio.EventHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.handler = nil
	s.stopLocked()
	return nil
}

// startLocked 解码当前音源并交给扬声器
func (s *Session) startLocked(ctx context.Context) error {
	if err := initSpeaker(); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	s.stopLocked()

	data, err := s.fetch(ctx, s.state.Source)
	if err != nil {
		return fmt.Errorf("%w: %v", audio.ErrPlaybackRejected, err)
	}
	stream, format, err := decode(s.state.Source, data)
	if err != nil {
		return fmt.Errorf("%w: %v", audio.ErrPlaybackRejected, err)
	}

	s.loop.Store(s.state.Loop)
	var streamer beep.Streamer = &looper{s: stream, loop: &s.loop}
	if format.SampleRate != outputRate {
		streamer = beep.Resample(4, format.SampleRate, outputRate, streamer)
	}
	s.volume = &effects.Volume{Streamer: streamer, Base: 2}
	applyVolume(s.volume, s.state.Volume)
	s.ctrl = &beep.Ctrl{Streamer: s.volume}
	s.stream = stream
	s.loaded = s.state.Source

	s.gen++
	gen := s.gen
	speaker.Play(beep.Seq(s.ctrl, beep.Callback(func() {
		// 回调运行在扬声器线程中，不能在这里获取 speaker 锁
		go s.finished(gen)
	})))

	logger.Debug("speaker playback started", logger.String("src", s.loaded))
	return nil
}

// stopLocked 释放当前解码流
func (s *Session) stopLocked() {
	s.gen++
	if s.ctrl != nil {
		speaker.Clear()
	}
	if s.stream != nil {
		if err := s.stream.Close(); err != nil {
			logger.Warn("close audio stream failed", logger.ErrorField(err))
		}
	}
	s.stream = nil
	s.ctrl = nil
	s.volume = nil
	s.loaded = ""
}

// finished 非循环曲目自然结束：pause 然后 ended
func (s *Session) finished(gen int) {
	s.mu.Lock()
	if gen != s.gen || s.closed || s.state.Paused {
		s.mu.Unlock()
		return
	}
	s.state.Paused = true
	s.stream, s.ctrl, s.volume, s.loaded = nil, nil, nil, ""
	snap, h := s.state, s.handler
	s.mu.Unlock()

	if h != nil {
		h(audio.EventPause, snap)
		h(audio.EventEnded, snap)
	}
}

// fetch 读取整个音源到内存，http(s) 地址通过网络获取，其余按本地文件处理
func (s *Session) fetch(ctx context.Context, src string) ([]byte, error) {
	u, err := url.Parse(src)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %d", src, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(strings.TrimPrefix(src, "file://"))
}

func decode(src string, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	p := src
	if u, err := url.Parse(src); err == nil {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".wav":
		return wav.Decode(bytes.NewReader(data))
	default:
		return mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	}
}

func applyVolume(v *effects.Volume, level float64) {
	if level <= 0 {
		v.Silent = true
		return
	}
	v.Silent = false
	v.Volume = math.Log2(level)
}

// looper 在流结束时按需回到开头，循环标志可以在播放中切换
type looper struct {
	s    beep.StreamSeeker
	loop *atomic.Bool
}

func (l *looper) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	rewound := false
	for filled < len(samples) {
		n, ok := l.s.Stream(samples[filled:])
		filled += n
		if ok && n > 0 {
			rewound = false
			continue
		}
		if !l.loop.Load() || rewound {
			break
		}
		if err := l.s.Seek(0); err != nil {
			break
		}
		rewound = true
	}
	return filled, filled > 0
}

func (l *looper) Err() error { return l.s.Err() }
