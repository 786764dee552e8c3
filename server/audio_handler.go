package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"FocusFM/core/background"
	"FocusFM/core/bus"
	"FocusFM/core/host"
	"FocusFM/core/protocol"
	"FocusFM/logger"
)

// AudioHandler 无 WebSocket 的弹窗（脚本、快捷键）通过 HTTP 发送命令
type AudioHandler struct {
	bus  *bus.Bus
	host *host.Host
	life *background.Lifecycle
	url  string
}

// NewAudioHandler 创建 AudioHandler
func NewAudioHandler(b *bus.Bus, h *host.Host, life *background.Lifecycle, documentURL string) *AudioHandler {
	return &AudioHandler{bus: b, host: h, life: life, url: documentURL}
}

// OffscreenStatus 离屏文档状态
type OffscreenStatus struct {
	URL            string `json:"url"`
	Present        bool   `json:"present"`
	Documents      int    `json:"documents"`
	CreateAttempts int64  `json:"createAttempts"`
}

// CommandHandler 以 popup 身份把命令交给后台，返回投递结果
func (h *AudioHandler) CommandHandler(w http.ResponseWriter, r *http.Request) {
	var msg protocol.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid command body", http.StatusBadRequest)
		return
	}
	msg.Source = protocol.RolePopup
	msg.Target = protocol.RoleBackground

	ack, err := h.bus.Send(r.Context(), &msg)
	switch {
	case err != nil:
		logger.Warn("audio command not delivered", logger.String("type", string(msg.Type)), logger.ErrorField(err))
		ack = protocol.Fail(err)
	case ack == nil:
		ack = protocol.OK()
	}

	w.Header().Set("Content-Type", "application/json")
	if !ack.Success {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	json.NewEncoder(w).Encode(ack)
}

// StatusHandler 查看离屏文档是否存在
func (h *AudioHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&OffscreenStatus{
		URL:            h.url,
		Present:        h.life.Present(),
		Documents:      h.host.Documents(),
		CreateAttempts: h.host.CreateAttempts(),
	})
}

// CloseHandler 模拟宿主回收离屏文档
func (h *AudioHandler) CloseHandler(w http.ResponseWriter, r *http.Request) {
	err := h.host.CloseDocument(context.WithoutCancel(r.Context()), h.url)
	if errors.Is(err, host.ErrDocumentNotFound) {
		http.Error(w, "offscreen document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("close offscreen document failed", logger.ErrorField(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"closed": true,
	})
}
