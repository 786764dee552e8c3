package server

import (
	"fmt"

	"FocusFM/core/audio"
	"FocusFM/core/audio/device"
	"FocusFM/core/host"
	"FocusFM/core/offscreen"
)

// DocumentFactory 根据音频后端构造离屏文档：memory 不出声，speaker 走本机声卡
func DocumentFactory(backend string, b offscreen.Messenger) (host.Factory, error) {
	var newSession func() audio.Session
	switch backend {
	case "", "memory":
		newSession = func() audio.Session { return audio.NewMemorySession() }
	case "speaker":
		newSession = func() audio.Session { return device.New() }
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}

	return func(url string) (host.Document, error) {
		return offscreen.NewController(b, newSession(), url), nil
	}, nil
}
