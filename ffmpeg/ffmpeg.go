// Package ffmpeg provides the demux and decode primitives backed by FFmpeg.
package ffmpeg

import (
	"github.com/asticode/go-astiav"

	"github.com/njyeung/avsync/player"
)

func init() {
	// Suppress FFmpeg log messages
	astiav.SetLogLevel(astiav.LogLevelQuiet)
}

// microseconds is the time base of every timestamp crossing this package
var microseconds = astiav.NewRational(1, 1_000_000)

func codecOf(id astiav.CodecID) player.Codec {
	switch id {
	case astiav.CodecIDH264:
		return player.CodecH264
	case astiav.CodecIDAac:
		return player.CodecAAC
	default:
		return player.CodecUnknown
	}
}

func codecIDOf(c player.Codec) (astiav.CodecID, bool) {
	switch c {
	case player.CodecH264:
		return astiav.CodecIDH264, true
	case player.CodecAAC:
		return astiav.CodecIDAac, true
	default:
		return 0, false
	}
}

// toMicros converts ts from the stream time base to microseconds
func toMicros(ts int64, tb astiav.Rational) int64 {
	return astiav.RescaleQ(ts, tb, microseconds)
}
