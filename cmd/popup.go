package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"FocusFM/core/catalog"
	"FocusFM/core/popup"
	"FocusFM/logger"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

var (
	popupServerURL string
	popupVolume    float64
)

var popupCmd = &cobra.Command{
	Use:   "popup",
	Short: "以弹窗身份连接后台的交互式控制台",
	Long: `连接后台的 /ws/popup，打开时先查询当前播放状态，然后通过命令控制播放。
输入 help 查看可用命令。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if popupServerURL == "" {
			popupServerURL = cfg.PopupServerURL
		}

		opts := []popup.Option{popup.WithVolume(popupVolume)}
		playlist, err := loadPlaylist(ctx)
		if err != nil {
			logger.Warn("playlist unavailable", logger.ErrorField(err))
		} else {
			opts = append(opts, popup.WithPlaylist(playlist))
		}

		client, conn, err := popup.DialClient(ctx, popupServerURL, opts...)
		if err != nil {
			return fmt.Errorf("connect %s: %w", popupServerURL, err)
		}
		defer conn.Close()

		sh := &shell{client: client, playlist: playlist, out: os.Stdout}
		rl, err := readline.NewEx(&readline.Config{
			Prompt:       sh.prompt(client.View()),
			AutoComplete: completer,
		})
		if err != nil {
			return err
		}
		defer rl.Close()
		sh.out = rl.Stdout()

		sh.setPrompt = func(p string) {
			rl.SetPrompt(p)
			rl.Refresh()
		}
		client.OnChange(sh.viewChanged)
		if err := client.Activate(ctx); err != nil {
			return err
		}

		go func() {
			<-conn.Done()
			fmt.Fprintln(sh.out, "connection closed:", conn.Err())
			rl.Close()
		}()

		for {
			line, err := rl.Readline()
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			quit, err := sh.exec(ctx, line)
			if err != nil {
				fmt.Fprintln(sh.out, "error:", err)
			}
			if quit {
				return nil
			}
		}
	},
}

func loadPlaylist(ctx context.Context) (*catalog.Playlist, error) {
	cat, _, err := openCatalog(ctx)
	if err != nil {
		return nil, err
	}
	songs, err := cat.Songs(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.NewPlaylist(songs)
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("play"),
	readline.PcItem("pause"),
	readline.PcItem("toggle"),
	readline.PcItem("next"),
	readline.PcItem("prev"),
	readline.PcItem("loop", readline.PcItem("on"), readline.PcItem("off")),
	readline.PcItem("autoplay", readline.PcItem("on"), readline.PcItem("off")),
	readline.PcItem("state"),
	readline.PcItem("songs"),
	readline.PcItem("help"),
	readline.PcItem("quit"),
)

const shellHelp = `commands:
  play [url|index]   play a song (defaults to the selected one)
  pause              pause playback
  toggle             play or pause
  next | prev        move through the playlist
  loop on|off        repeat the current song
  autoplay on|off    advance when a song ends
  state              re-query the background and print the answer
  songs              list the playlist
  quit`

// shell 解释控制台输入的一行命令
type shell struct {
	client     *popup.Client
	playlist   *catalog.Playlist
	out        io.Writer
	setPrompt  func(string)
	awaitState atomic.Bool
}

// viewChanged 刷新提示符；state 命令之后的第一次变化打印完整状态
func (s *shell) viewChanged(v popup.View) {
	if s.setPrompt != nil {
		s.setPrompt(s.prompt(v))
	}
	if s.awaitState.CompareAndSwap(true, false) {
		fmt.Fprintf(s.out, "url=%s playing=%t loop=%t autoplay=%t\n", v.URL, v.Playing, v.Loop, v.Autoplay)
	}
}

func (s *shell) prompt(v popup.View) string {
	state := "⏸"
	if v.Playing {
		state = "▶"
	}
	name := v.Title
	if name == "" {
		name = v.URL
	}
	if name == "" {
		name = "-"
	}
	flags := ""
	if v.Loop {
		flags += " loop"
	}
	if !v.Confirmed {
		flags += " …"
	}
	return fmt.Sprintf("%s %s%s> ", state, name, flags)
}

func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "play":
		url, err := s.resolve(arg)
		if err != nil {
			return false, err
		}
		return false, s.client.Play(ctx, url)
	case "pause":
		return false, s.client.Pause(ctx)
	case "toggle":
		return false, s.client.TogglePlay(ctx)
	case "next":
		return false, s.client.Next(ctx)
	case "prev":
		return false, s.client.Prev(ctx)
	case "loop":
		on, err := parseSwitch(arg)
		if err != nil {
			return false, err
		}
		return false, s.client.SetLoop(ctx, on)
	case "autoplay":
		on, err := parseSwitch(arg)
		if err != nil {
			return false, err
		}
		s.client.SetAutoplay(on)
		return false, nil
	case "state":
		// 应答以状态事件异步到达，由 viewChanged 打印
		s.awaitState.Store(true)
		if err := s.client.Activate(ctx); err != nil {
			s.awaitState.Store(false)
			return false, err
		}
		return false, nil
	case "songs":
		if s.playlist == nil {
			return false, popup.ErrNoSong
		}
		cur := s.client.View().URL
		for i, song := range s.playlist.Songs() {
			mark := " "
			if song.URL == cur {
				mark = "*"
			}
			fmt.Fprintf(s.out, "%s %2d  %s  %s\n", mark, i+1, song.Title, song.Artist)
		}
		return false, nil
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q, try help", fields[0])
	}
}

// resolve 把 play 的参数解析为 URL：空表示当前歌曲，数字表示播放列表序号
func (s *shell) resolve(arg string) (string, error) {
	if arg == "" {
		if url := s.client.View().URL; url != "" {
			return url, nil
		}
		return "", popup.ErrNoSong
	}
	if n, err := strconv.Atoi(arg); err == nil && s.playlist != nil {
		songs := s.playlist.Songs()
		if n < 1 || n > len(songs) {
			return "", fmt.Errorf("no song #%d, playlist has %d", n, len(songs))
		}
		return songs[n-1].URL, nil
	}
	return arg, nil
}

func parseSwitch(arg string) (bool, error) {
	switch arg {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", arg)
}

func init() {
	popupCmd.Flags().StringVar(&popupServerURL, "server", "", "background websocket url (overrides POPUP_SERVER_URL)")
	popupCmd.Flags().Float64Var(&popupVolume, "volume", 0.9, "volume sent with play commands")
	rootCmd.AddCommand(popupCmd)
}
