package server

import (
	"net/http"

	"FocusFM/core/popup"
	"FocusFM/logger"

	"github.com/gorilla/websocket"
)

// PopupHandler 远程弹窗的 WebSocket 入口
type PopupHandler struct {
	hub      *popup.Hub
	upgrader websocket.Upgrader
}

// NewPopupHandler 创建 PopupHandler
func NewPopupHandler(hub *popup.Hub) *PopupHandler {
	return &PopupHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *PopupHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	h.hub.ServeConn(r.Context(), conn)
}
