// Package cli is the avsync command line.
package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/njyeung/avsync/config"
	"github.com/njyeung/avsync/ffmpeg"
	"github.com/njyeung/avsync/mp4"
	"github.com/njyeung/avsync/player"
)

// Execute runs the root command
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree around one viper instance
func NewRootCommand() *cobra.Command {
	v := config.New()
	var configFile string

	root := &cobra.Command{
		Use:   "avsync",
		Short: "Play MP4 files in the terminal with synchronized audio",
		Long: `avsync demuxes an MP4 file, decodes its H.264 video and AAC audio on
separate workers and paces video against the audio clock. Video is drawn with
the kitty graphics protocol, audio goes to the default output device.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default avsync.yaml in ., $HOME/.avsync or /etc/avsync)")
	flags.Bool("debug", false, "log per-packet traces")
	flags.String("demuxer", config.DemuxerFFmpeg, "demuxer backend (ffmpeg or mp4)")
	v.BindPFlag(config.KeyDebug, flags.Lookup("debug"))
	v.BindPFlag(config.KeyDemuxer, flags.Lookup("demuxer"))

	root.RegisterFlagCompletionFunc("demuxer", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{config.DemuxerFFmpeg, config.DemuxerMP4}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(newPlayCommand(v))
	root.AddCommand(newProbeCommand(v))
	return root
}

// loadConfig resolves the configuration and the logger it asks for
func loadConfig(v *viper.Viper, logOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(logOut, cfg.Debug), nil
}

func newLogger(out io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// openerFor returns the demux primitive for a backend name
func openerFor(name string) player.OpenFunc {
	if name == config.DemuxerMP4 {
		return mp4.Open
	}
	return ffmpeg.Open
}
