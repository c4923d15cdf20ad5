package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/njyeung/avsync/config"
	"github.com/njyeung/avsync/ffmpeg"
	"github.com/njyeung/avsync/player"
	"github.com/njyeung/avsync/sink"
)

func newPlayCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Play a file until it ends or a signal stops it",
		Long: `Play a file until it ends or a signal stops it.

SIGINT and SIGTERM stop playback, SIGUSR1 toggles pause.`,
		Example: `  avsync play clip.mp4
  avsync play --loop --video-sink none clip.mp4
  AVSYNC_DEMUXER=mp4 avsync play clip.mp4`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(v, args[0])
		},
	}

	flags := cmd.Flags()
	flags.Bool("loop", false, "restart from the beginning at end of file")
	flags.String("video-sink", config.SinkKitty, "video output (kitty or none)")
	flags.String("audio-sink", config.SinkSpeaker, "audio output (speaker or none)")
	flags.Bool("kitty-shm", false, "transfer frames through /dev/shm when the terminal supports it")
	flags.Int("video-queue", player.DefaultVideoQueueSize, "video packet queue size")
	flags.Int("audio-queue", player.DefaultAudioQueueSize, "audio packet queue size")

	v.BindPFlag(config.KeyLoop, flags.Lookup("loop"))
	v.BindPFlag(config.KeyVideoSink, flags.Lookup("video-sink"))
	v.BindPFlag(config.KeyAudioSink, flags.Lookup("audio-sink"))
	v.BindPFlag(config.KeyKittyShm, flags.Lookup("kitty-shm"))
	v.BindPFlag(config.KeyVideoQueue, flags.Lookup("video-queue"))
	v.BindPFlag(config.KeyAudioQueue, flags.Lookup("audio-queue"))
	return cmd
}

func runPlay(v *viper.Viper, path string) error {
	cfg, log, err := loadConfig(v, os.Stderr)
	if err != nil {
		return err
	}

	opts := player.Options{
		Open:           openerFor(cfg.Demuxer),
		VideoQueueSize: cfg.VideoQueueSize,
		AudioQueueSize: cfg.AudioQueueSize,
		PollInterval:   cfg.PollInterval,
		RetryInterval:  cfg.RetryInterval,
		Logger:         log,
	}
	decoderOpts := ffmpeg.Options{
		AudioSampleRate: cfg.AudioRate,
		RetryInterval:   cfg.RetryInterval,
	}

	var kitty *sink.KittySink
	if cfg.VideoSink == config.SinkKitty {
		shm := cfg.KittyShm && sink.ShmSupported()
		kitty = sink.NewKittySink(os.Stdout, shm)
		if size, err := sink.QueryTerminalSize(); err == nil {
			kitty.SetTerminalSize(size)
			decoderOpts.MaxWidth, decoderOpts.MaxHeight = size.WidthPx, size.HeightPx
		} else {
			log.Warn("terminal size unavailable, video keeps its source size", "error", err)
		}
		log.Debug("kitty sink ready", "shm", shm)
		opts.VideoSink = kitty
		defer kitty.Clear()
	}

	if cfg.AudioSink == config.SinkSpeaker {
		speaker, err := sink.NewSpeakerSink(cfg.AudioRate)
		if err != nil {
			log.Warn("audio output unavailable, playing without sound", "error", err)
		} else {
			opts.AudioSink = speaker
			defer speaker.Close()
		}
	}

	opts.NewDecoder = ffmpeg.NewDecoderFactory(decoderOpts)
	p := player.New(opts)

	if err := p.Start(path, cfg.Loop); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGWINCH)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-p.Done():
			if err := p.Err(); err != nil {
				return fmt.Errorf("playback of %s failed: %w", path, err)
			}
			return nil

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				if err := p.TogglePause(); err != nil {
					log.Warn("toggle pause failed", "error", err)
				}
			case syscall.SIGWINCH:
				if kitty == nil {
					continue
				}
				if size, err := sink.QueryTerminalSize(); err == nil {
					kitty.SetTerminalSize(size)
				}
			default:
				log.Info("stopping", "signal", sig.String())
				p.Stop()
				return nil
			}
		}
	}
}
