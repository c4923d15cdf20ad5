package sink

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"

	"github.com/njyeung/avsync/player"
)

const (
	// speakerBuffer is the device buffer handed to speaker.Init
	speakerBuffer = 50 * time.Millisecond

	// maxQueued bounds queued audio; older samples are dropped beyond it
	maxQueued = 2 * time.Second

	frameBytes = 4 // s16le stereo
)

var (
	speakerOnce sync.Once
	speakerRate int
	speakerErr  error
)

// initSpeaker opens the audio device once per process
func initSpeaker(rate int) error {
	speakerOnce.Do(func() {
		sr := beep.SampleRate(rate)
		speakerRate = rate
		speakerErr = speaker.Init(sr, sr.N(speakerBuffer))
	})
	if speakerErr != nil {
		return fmt.Errorf("failed to init speaker: %w", speakerErr)
	}
	if speakerRate != rate {
		return fmt.Errorf("speaker already running at %dHz", speakerRate)
	}
	return nil
}

// pcmStreamer is a beep.Streamer over queued interleaved S16 stereo
type pcmStreamer struct {
	rate int

	mu  sync.Mutex
	buf []byte

	paused  atomic.Bool
	played  atomic.Int64
	dropped atomic.Int64
}

func newPCMStreamer(rate int) *pcmStreamer {
	return &pcmStreamer{
		rate: rate,
		buf:  make([]byte, 0, rate*frameBytes), // ~1 second
	}
}

func (s *pcmStreamer) write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf = append(s.buf, data...)
	if limit := int(maxQueued.Seconds()*float64(s.rate)) * frameBytes; len(s.buf) > limit {
		over := len(s.buf) - limit
		over -= over % frameBytes
		s.buf = s.buf[over:]
		s.dropped.Add(int64(over / frameBytes))
	}
}

// Stream implements beep.Streamer. It never ends: underruns and pauses
// play silence so the device keeps running.
func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused.Load() {
		clear(samples)
		return len(samples), true
	}

	// buf holds little-endian L/R int16 pairs, 4 bytes per stereo sample
	const maxInt16 = float64(32767)
	played := 0
	for i := range samples {
		if len(s.buf) < frameBytes {
			clear(samples[i:])
			break
		}
		left := int16(s.buf[0]) | int16(s.buf[1])<<8
		right := int16(s.buf[2]) | int16(s.buf[3])<<8
		samples[i][0] = float64(left) / maxInt16
		samples[i][1] = float64(right) / maxInt16

		s.buf = s.buf[frameBytes:]
		played++
	}
	s.played.Add(int64(played))
	return len(samples), true
}

func (s *pcmStreamer) Err() error {
	return nil
}

func (s *pcmStreamer) queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf) / frameBytes
}

func (s *pcmStreamer) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = s.buf[:0]
}

// SpeakerSink plays S16 stereo audio on the default output device
type SpeakerSink struct {
	stream *pcmStreamer
	ctrl   *beep.Ctrl
}

// NewSpeakerSink opens the output device at rate and starts streaming
func NewSpeakerSink(rate int) (*SpeakerSink, error) {
	if err := initSpeaker(rate); err != nil {
		return nil, err
	}
	s := newPCMStreamer(rate)
	sink := &SpeakerSink{stream: s, ctrl: &beep.Ctrl{Streamer: s}}
	speaker.Play(sink.ctrl)
	return sink, nil
}

// Write implements player.AudioSink
func (k *SpeakerSink) Write(a player.AudioSamples) error {
	if err := checkFormat(a, k.stream.rate); err != nil {
		return err
	}
	k.stream.write(a.Data[:a.SampleCount*frameBytes])
	return nil
}

// SetPaused implements player.Pauser: paused output plays silence
func (k *SpeakerSink) SetPaused(paused bool) {
	k.stream.paused.Store(paused)
}

// Played returns the number of stereo samples sent to the device
func (k *SpeakerSink) Played() int64 {
	return k.stream.played.Load()
}

// Close stops playback and drops queued audio
func (k *SpeakerSink) Close() error {
	speaker.Lock()
	k.ctrl.Streamer = nil
	speaker.Unlock()
	speaker.Clear()
	k.stream.reset()
	return nil
}

func checkFormat(a player.AudioSamples, rate int) error {
	if a.BitsPerSample != 16 || a.Channels != 2 || a.SampleRate != rate {
		return fmt.Errorf("unsupported audio format %dHz/%dch/s%d, want %dHz/2ch/s16",
			a.SampleRate, a.Channels, a.BitsPerSample, rate)
	}
	if len(a.Data) < a.SampleCount*frameBytes {
		return fmt.Errorf("short audio buffer: %d bytes for %d samples", len(a.Data), a.SampleCount)
	}
	return nil
}
