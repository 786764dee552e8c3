package cmd

import (
	"fmt"
	"os"

	"FocusFM/config"
	"FocusFM/logger"

	"github.com/spf13/cobra"
)

// cfg 由 PersistentPreRun 加载，所有子命令共用
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "focusfm",
	Short: "FocusFM coordinates focus-music playback between background, offscreen and popup contexts.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.InitLogger(logger.Config{
			Level:      logger.ParseLevel(cfg.LogLevel),
			OutputPath: cfg.LogFile,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAge,
			Compress:   true,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd)
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
