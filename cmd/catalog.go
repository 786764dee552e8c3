package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"FocusFM/storage"

	"github.com/spf13/cobra"
)

var catalogScan bool

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "列出歌曲目录",
	Long:  `从配置的目录来源（本地 songs.json 或 MinIO 索引）读取歌曲；--scan 直接统计存储桶中的音频文件。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if catalogScan {
			if err := storage.InitMinio(cfg); err != nil {
				return fmt.Errorf("无法连接到MinIO: %w", err)
			}
			objects, stats, err := storage.ListAudioObjects(ctx, storage.GetMinioClient(), cfg.MinioBucket, "")
			if err != nil {
				return err
			}
			fmt.Printf("存储桶: %s, 音频文件: %d, 总大小: %s\n",
				cfg.MinioBucket, stats.TotalObjects, storage.FormatSize(stats.TotalSize))
			for _, o := range objects {
				fmt.Printf("  ├─ %s (%s)\n", o.Key, storage.FormatSize(o.Size))
			}
			return nil
		}

		cat, _, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		songs, err := cat.Songs(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tTITLE\tARTIST\tURL")
		for i, s := range songs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, s.Title, s.Artist, s.URL)
		}
		return w.Flush()
	},
}

func init() {
	catalogCmd.Flags().BoolVar(&catalogScan, "scan", false, "list audio objects in the MinIO bucket")
	rootCmd.AddCommand(catalogCmd)
}
