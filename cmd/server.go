package cmd

import (
	"FocusFM/core/flags"
	"FocusFM/logger"
	"FocusFM/server"

	"github.com/spf13/cobra"
)

var serverAddr string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动后台服务",
	Long:  `启动后台路由器和离屏文档宿主，提供弹窗 WebSocket 入口以及命令、目录、开关等 HTTP 接口`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd)
	},
}

func runServer(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if serverAddr != "" {
		cfg.ServerAddr = serverAddr
	}

	store, closeStore, err := openFlagsStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	watcher, err := flags.NewWatcher(ctx, store)
	if err != nil {
		return err
	}

	opts := []server.Option{server.WithFlags(watcher)}
	cat, minioClient, err := openCatalog(ctx)
	if err != nil {
		// 目录不可用不影响播放协议本身
		logger.Warn("catalog unavailable", logger.ErrorField(err))
	} else {
		opts = append(opts, server.WithCatalog(cat), server.WithMedia(minioClient))
	}

	srv, err := server.New(cfg, opts...)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func init() {
	serverCmd.Flags().StringVar(&serverAddr, "addr", "", "listen address (overrides SERVER_ADDR)")
	rootCmd.AddCommand(serverCmd)
}
