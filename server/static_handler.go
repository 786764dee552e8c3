package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"FocusFM/storage"

	"github.com/minio/minio-go/v7"
)

// StaticHandler 从 MinIO 转发音频对象，供无法直接访问存储的离屏文档使用
type StaticHandler struct {
	client *minio.Client
	bucket string
}

// NewStaticHandler 创建 StaticHandler 实例
func NewStaticHandler(client *minio.Client, bucket string) *StaticHandler {
	return &StaticHandler{client: client, bucket: bucket}
}

// ServeHTTP 实现 http.Handler 接口
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	objectPath := strings.TrimPrefix(r.URL.Path, "/media/")
	if objectPath == "" || strings.Contains(objectPath, "..") {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	object, err := h.client.GetObject(ctx, h.bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	defer object.Close()

	info, err := object.Stat()
	if err != nil {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", detectContentType(objectPath))
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	http.ServeContent(w, r, objectPath, info.LastModified, object)
}

// detectContentType 根据扩展名检测内容类型
func detectContentType(path string) string {
	if storage.InferContentType(path) != "audio" {
		return "application/octet-stream"
	}
	path = strings.ToLower(path)
	switch {
	case strings.HasSuffix(path, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(path, ".ogg"):
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}
