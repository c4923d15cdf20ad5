package player

import (
	"context"
	"math"
	"time"
)

// TrackKind identifies the elementary stream a packet belongs to
type TrackKind uint8

const (
	Video TrackKind = iota
	Audio

	numKinds = 2
)

func (k TrackKind) String() string {
	switch k {
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return "unknown"
	}
}

// Codec is the compression format of a track
type Codec uint8

const (
	CodecUnknown Codec = iota
	CodecH264
	CodecAAC
)

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecAAC:
		return "aac"
	default:
		return "unknown"
	}
}

// UnsetTimestamp marks an end-of-stream packet and an uninitialized clock.
// No real presentation timestamp can take this value.
const UnsetTimestamp int64 = math.MinInt64

// TrackDescriptor describes one track found by a Demuxer
type TrackDescriptor struct {
	Index      int       // Track id as reported in Sample.Track
	Kind       TrackKind // Video or Audio
	Codec      Codec
	Width      int // Video only
	Height     int // Video only
	SampleRate int // Audio only
	Channels   int // Audio only

	// Params holds backend specific codec parameters, may be nil
	Params any
}

// Sample is one access unit read from the container
type Sample struct {
	Track    int
	Data     []byte
	PTS      int64 // Presentation timestamp in microseconds
	KeyFrame bool
}

// Packet is a Sample routed into a stream's PacketQueue
type Packet struct {
	Kind     TrackKind
	Payload  []byte
	PTS      int64 // Presentation timestamp in microseconds
	KeyFrame bool
}

// EndOfStream returns the sentinel packet for kind
func EndOfStream(kind TrackKind) Packet {
	return Packet{Kind: kind, PTS: UnsetTimestamp}
}

// IsEndOfStream reports whether p is the end-of-stream sentinel
func (p Packet) IsEndOfStream() bool {
	return p.PTS == UnsetTimestamp && len(p.Payload) == 0
}

// DecodedUnit is one decoded video frame or audio buffer
type DecodedUnit struct {
	PTS  int64 // Presentation timestamp in microseconds
	Data []byte

	// Video geometry (RGB24)
	Width  int
	Height int

	// Audio layout (interleaved PCM)
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// SampleCount returns the number of audio frames in u
func (u *DecodedUnit) SampleCount() int {
	if u.BitsPerSample <= 0 || u.Channels <= 0 {
		return 0
	}
	return len(u.Data) / (u.BitsPerSample / 8) / u.Channels
}

// Frame is a video frame handed to a VideoSink
type Frame struct {
	Data      []byte // RGB24 pixel data
	Width     int
	Height    int
	PTS       int64     // Presentation timestamp in microseconds
	Timestamp time.Time // Scheduled presentation time on the playback timeline
}

// AudioSamples is a PCM buffer handed to an AudioSink
type AudioSamples struct {
	Data          []byte // Interleaved PCM
	SampleRate    int
	Channels      int
	BitsPerSample int
	SampleCount   int
	PTS           int64
	Timestamp     time.Time
}

// Demuxer is the container parsing primitive
type Demuxer interface {
	// Tracks lists every track found in the container
	Tracks() []TrackDescriptor

	// ReadSample returns the next sample in presentation order, io.EOF at end of input
	ReadSample() (Sample, error)

	// SeekToStart rewinds to the nearest key point at or before the start
	SeekToStart() error

	// Close releases the container handle
	Close() error
}

// OpenFunc opens a Demuxer for path
type OpenFunc func(path string) (Demuxer, error)

// Decoder is the per-track codec primitive. WaitInput and Submit are called by
// the decoder-input worker, Receive and Release by the decoder-output worker.
type Decoder interface {
	// WaitInput blocks until the decoder can accept one more access unit
	WaitInput(ctx context.Context) error

	// Submit commits one access unit. An end-of-stream submission has no payload.
	Submit(payload []byte, pts int64, keyFrame, eos bool) error

	// Receive returns the next decoded unit, ErrNotReady when none is available
	// yet, and ErrEndOfStream once all submitted input has been drained.
	Receive() (*DecodedUnit, error)

	// Release returns a unit to the decoder. rendered reports whether a sink got it.
	Release(u *DecodedUnit, rendered bool)

	// Close frees codec resources
	Close() error
}

// DecoderFactory creates a decoder for one track
type DecoderFactory func(track TrackDescriptor) (Decoder, error)

// VideoSink presents decoded frames
type VideoSink interface {
	Present(f Frame) error
}

// AudioSink plays decoded PCM
type AudioSink interface {
	Write(s AudioSamples) error
}

// Pauser is implemented by sinks that must be told about pause state
type Pauser interface {
	SetPaused(paused bool)
}

const (
	// DefaultVideoQueueSize bounds buffered video packets
	DefaultVideoQueueSize = 20

	// DefaultAudioQueueSize bounds buffered audio packets
	DefaultAudioQueueSize = 30

	// DefaultPollInterval caps every wait so stop and pause stay responsive
	DefaultPollInterval = 10 * time.Millisecond

	// DefaultRetryInterval is the backoff when a decoder has no output ready
	DefaultRetryInterval = 5 * time.Millisecond
)
