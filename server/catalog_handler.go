package server

import (
	"encoding/json"
	"net/http"

	"FocusFM/core/catalog"
	"FocusFM/logger"
)

// CatalogHandler 歌曲目录
type CatalogHandler struct {
	catalog catalog.Catalog
}

// NewCatalogHandler 创建 CatalogHandler
func NewCatalogHandler(c catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: c}
}

// ListHandler 返回全部歌曲
func (h *CatalogHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil {
		http.Error(w, "catalog not configured", http.StatusServiceUnavailable)
		return
	}

	songs, err := h.catalog.Songs(r.Context())
	if err != nil {
		logger.Error("load catalog failed", logger.ErrorField(err))
		http.Error(w, "failed to load catalog", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(songs)
}
