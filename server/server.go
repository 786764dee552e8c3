package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FocusFM/config"
	"FocusFM/core/background"
	"FocusFM/core/bus"
	"FocusFM/core/catalog"
	"FocusFM/core/flags"
	"FocusFM/core/host"
	"FocusFM/core/popup"
	"FocusFM/logger"

	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"
)

// Server 把后台、离屏文档宿主和远程弹窗接入同一条总线，并暴露 HTTP/WS 接口
type Server struct {
	cfg     *config.Config
	bus     *bus.Bus
	host    *host.Host
	router  *background.Router
	hub     *popup.Hub
	flags   *flags.Watcher
	catalog catalog.Catalog
	media   *StaticHandler
}

// Option 服务器可选依赖
type Option func(*Server)

// WithFlags 功能开关
func WithFlags(w *flags.Watcher) Option {
	return func(s *Server) { s.flags = w }
}

// WithCatalog 歌曲目录
func WithCatalog(c catalog.Catalog) Option {
	return func(s *Server) { s.catalog = c }
}

// WithMedia 通过服务器转发 MinIO 中的音频
func WithMedia(client *minio.Client) Option {
	return func(s *Server) {
		if client != nil {
			s.media = NewStaticHandler(client, s.cfg.MinioBucket)
		}
	}
}

// New 组装总线、宿主、生命周期管理器和后台路由器
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	b := bus.New()

	factory, err := DocumentFactory(cfg.AudioBackend, b)
	if err != nil {
		return nil, err
	}
	h := host.New(factory, b)

	reasons := make([]host.Reason, 0, len(cfg.OffscreenReasons))
	for _, r := range cfg.OffscreenReasons {
		reasons = append(reasons, host.Reason(r))
	}
	life := background.NewLifecycle(h, host.CreateParams{
		URL:           cfg.OffscreenURL,
		Reasons:       reasons,
		Justification: cfg.OffscreenJustification,
	})

	s := &Server{
		cfg:    cfg,
		bus:    b,
		host:   h,
		router: background.NewRouter(b, life, cfg.DefaultVolume),
		hub:    popup.NewHub(b),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start 注册后台路由器并启动弹窗 Hub
func (s *Server) Start() {
	s.router.Start()
	go s.hub.Run()
}

// Stop 释放离屏文档和所有连接
func (s *Server) Stop() {
	s.hub.Stop()
	s.router.Stop()
	s.host.Shutdown()
}

// Bus 进程内总线，供本地弹窗挂载
func (s *Server) Bus() *bus.Bus {
	return s.bus
}

// Handler 构建路由
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	audioHandler := NewAudioHandler(s.bus, s.host, s.router.Lifecycle(), s.cfg.OffscreenURL)
	router.HandleFunc("/ws/popup", NewPopupHandler(s.hub).ServeHTTP).Methods(http.MethodGet)
	router.HandleFunc("/api/audio/command", audioHandler.CommandHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/offscreen", audioHandler.StatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/offscreen/close", audioHandler.CloseHandler).Methods(http.MethodPost)

	catalogHandler := NewCatalogHandler(s.catalog)
	router.HandleFunc("/api/catalog", catalogHandler.ListHandler).Methods(http.MethodGet)

	flagsHandler := NewFlagsHandler(s.flags)
	router.HandleFunc("/api/flags", flagsHandler.GetHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/flags", flagsHandler.PutHandler).Methods(http.MethodPut)

	if s.media != nil {
		router.PathPrefix("/media/").Handler(s.media)
	}
	return router
}

// Run 启动 HTTP 服务，收到 SIGINT/SIGTERM 后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	s.Start()
	defer s.Stop()

	// 设置服务器超时；WebSocket 连接在升级后不受 WriteTimeout 影响
	srv := &http.Server{
		Addr:         s.cfg.ServerAddr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if s.flags != nil {
		s.flags.OnChange(func(f *flags.Flags) {
			logger.Info("effective flags",
				logger.Bool("disabled", f.Effective(time.Now())))
		})
		go func() {
			if err := s.flags.Run(ctx); err != nil {
				logger.Warn("flags watcher stopped", logger.ErrorField(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", logger.String("addr", s.cfg.ServerAddr))
		logger.Info("popups connect via websocket", logger.String("path", "/ws/popup"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// 创建一个5秒超时的上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
