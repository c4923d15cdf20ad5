// Package config loads player settings from defaults, an optional avsync.yaml,
// AVSYNC_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/njyeung/avsync/player"
)

// Keys
const (
	KeyVideoQueue   = "queue.video"
	KeyAudioQueue   = "queue.audio"
	KeyPollInterval = "poll.interval"
	KeyDecoderRetry = "decoder.retry"
	KeyDemuxer      = "demuxer"
	KeyVideoSink    = "video.sink"
	KeyAudioSink    = "audio.sink"
	KeyKittyShm     = "kitty.shm"
	KeyAudioRate    = "audio.rate"
	KeyLoop         = "loop"
	KeyDebug        = "debug"
)

const (
	DemuxerFFmpeg = "ffmpeg"
	DemuxerMP4    = "mp4"

	SinkKitty   = "kitty"
	SinkSpeaker = "speaker"
	SinkNone    = "none"

	DefaultAudioRate = 44100
)

// ErrInvalid marks a configuration value outside its allowed range
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved configuration of one run
type Config struct {
	VideoQueueSize int
	AudioQueueSize int
	PollInterval   time.Duration
	RetryInterval  time.Duration

	Demuxer   string
	VideoSink string
	AudioSink string
	KittyShm  bool
	AudioRate int

	Loop  bool
	Debug bool
}

// New returns a viper instance with defaults, environment binding and the
// config search path set up
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyVideoQueue, player.DefaultVideoQueueSize)
	v.SetDefault(KeyAudioQueue, player.DefaultAudioQueueSize)
	v.SetDefault(KeyPollInterval, player.DefaultPollInterval)
	v.SetDefault(KeyDecoderRetry, player.DefaultRetryInterval)
	v.SetDefault(KeyDemuxer, DemuxerFFmpeg)
	v.SetDefault(KeyVideoSink, SinkKitty)
	v.SetDefault(KeyAudioSink, SinkSpeaker)
	v.SetDefault(KeyKittyShm, false)
	v.SetDefault(KeyAudioRate, DefaultAudioRate)
	v.SetDefault(KeyLoop, false)
	v.SetDefault(KeyDebug, false)

	// AVSYNC_QUEUE_VIDEO, AVSYNC_POLL_INTERVAL, ...
	v.SetEnvPrefix("AVSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("avsync")
	v.SetConfigType("yaml")
	for _, path := range []string{".", "$HOME/.avsync", "/etc/avsync"} {
		v.AddConfigPath(os.ExpandEnv(path))
	}
	return v
}

// Load reads the config file, if any, and resolves every key. A missing
// config file is fine; an unreadable or malformed one is an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	c := &Config{
		VideoQueueSize: v.GetInt(KeyVideoQueue),
		AudioQueueSize: v.GetInt(KeyAudioQueue),
		PollInterval:   v.GetDuration(KeyPollInterval),
		RetryInterval:  v.GetDuration(KeyDecoderRetry),
		Demuxer:        strings.ToLower(v.GetString(KeyDemuxer)),
		VideoSink:      strings.ToLower(v.GetString(KeyVideoSink)),
		AudioSink:      strings.ToLower(v.GetString(KeyAudioSink)),
		KittyShm:       v.GetBool(KeyKittyShm),
		AudioRate:      v.GetInt(KeyAudioRate),
		Loop:           v.GetBool(KeyLoop),
		Debug:          v.GetBool(KeyDebug),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	switch {
	case c.VideoQueueSize < 1:
		return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalid, KeyVideoQueue, c.VideoQueueSize)
	case c.AudioQueueSize < 1:
		return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalid, KeyAudioQueue, c.AudioQueueSize)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalid, KeyPollInterval, c.PollInterval)
	case c.RetryInterval <= 0:
		return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalid, KeyDecoderRetry, c.RetryInterval)
	case c.AudioRate < 8000:
		return fmt.Errorf("%w: %s must be at least 8000, got %d", ErrInvalid, KeyAudioRate, c.AudioRate)
	}

	if c.Demuxer != DemuxerFFmpeg && c.Demuxer != DemuxerMP4 {
		return fmt.Errorf("%w: %s must be %s or %s, got %q", ErrInvalid, KeyDemuxer, DemuxerFFmpeg, DemuxerMP4, c.Demuxer)
	}
	if c.VideoSink != SinkKitty && c.VideoSink != SinkNone {
		return fmt.Errorf("%w: %s must be %s or %s, got %q", ErrInvalid, KeyVideoSink, SinkKitty, SinkNone, c.VideoSink)
	}
	if c.AudioSink != SinkSpeaker && c.AudioSink != SinkNone {
		return fmt.Errorf("%w: %s must be %s or %s, got %q", ErrInvalid, KeyAudioSink, SinkSpeaker, SinkNone, c.AudioSink)
	}
	return nil
}
