package server

import (
	"encoding/json"
	"net/http"
	"time"

	"FocusFM/core/flags"
	"FocusFM/logger"
)

// FlagsHandler 功能开关
type FlagsHandler struct {
	watcher *flags.Watcher
	now     func() time.Time
}

// NewFlagsHandler 创建 FlagsHandler
func NewFlagsHandler(w *flags.Watcher) *FlagsHandler {
	return &FlagsHandler{watcher: w, now: time.Now}
}

// FlagsResponse 开关及其在当前时刻的效果
type FlagsResponse struct {
	Flags    flags.Flags `json:"flags"`
	Disabled bool        `json:"disabled"`
}

func (h *FlagsHandler) respond(w http.ResponseWriter, f *flags.Flags) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&FlagsResponse{
		Flags:    *f,
		Disabled: f.Effective(h.now()),
	})
}

// GetHandler 当前开关
func (h *FlagsHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if h.watcher == nil {
		http.Error(w, "flags not configured", http.StatusServiceUnavailable)
		return
	}
	h.respond(w, h.watcher.Current())
}

// PutHandler 整体替换开关
func (h *FlagsHandler) PutHandler(w http.ResponseWriter, r *http.Request) {
	if h.watcher == nil {
		http.Error(w, "flags not configured", http.StatusServiceUnavailable)
		return
	}

	var f flags.Flags
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		http.Error(w, "invalid flags body", http.StatusBadRequest)
		return
	}
	if err := h.watcher.Update(r.Context(), f); err != nil {
		logger.Error("save flags failed", logger.ErrorField(err))
		http.Error(w, "failed to save flags", http.StatusInternalServerError)
		return
	}
	h.respond(w, h.watcher.Current())
}
