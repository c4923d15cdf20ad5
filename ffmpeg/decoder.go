package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astiav"

	"github.com/njyeung/avsync/player"
)

// DefaultAudioSampleRate is the resampler output rate
const DefaultAudioSampleRate = 44100

// Options configures decoders created by NewDecoderFactory
type Options struct {
	// MaxWidth and MaxHeight bound the scaled video output, keeping the
	// source aspect ratio. Zero keeps the source size.
	MaxWidth  int
	MaxHeight int

	AudioSampleRate int

	// RetryInterval is how often WaitInput rechecks a codec refusing input
	RetryInterval time.Duration
}

// converter turns a decoded frame into a unit the pipeline can deliver
type converter interface {
	convert(f *astiav.Frame) (*player.DecodedUnit, error)
	// flush returns output still buffered at end of stream, or nil
	flush() (*player.DecodedUnit, error)
	release(u *player.DecodedUnit)
	close()
}

// Decoder drives an FFmpeg codec context through the send/receive API.
// At most one packet refused by the codec is held until it accepts input again.
type Decoder struct {
	track    player.TrackDescriptor
	codecCtx *astiav.CodecContext
	pkt      *astiav.Packet
	frame    *astiav.Frame
	conv     converter
	retry    time.Duration

	mu         sync.Mutex
	pending    bool
	eosPending bool
	eosSent    bool
	lastPTS    int64
	lastEnd    int64
	flushed    bool
	closed     bool
}

// NewDecoderFactory returns a player.DecoderFactory creating FFmpeg decoders
func NewDecoderFactory(opts Options) player.DecoderFactory {
	return func(t player.TrackDescriptor) (player.Decoder, error) {
		return NewDecoder(t, opts)
	}
}

// NewDecoder opens a codec for t. Tracks from this package's Demuxer carry
// codec parameters; tracks from elsewhere must have in-band configuration
// (Annex-B H.264, ADTS AAC).
func NewDecoder(t player.TrackDescriptor, opts Options) (*Decoder, error) {
	id, ok := codecIDOf(t.Codec)
	if !ok {
		return nil, fmt.Errorf("unsupported codec: %s", t.Codec)
	}
	if opts.AudioSampleRate <= 0 {
		opts.AudioSampleRate = DefaultAudioSampleRate
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = player.DefaultRetryInterval
	}

	d := &Decoder{track: t, retry: opts.RetryInterval, lastPTS: player.UnsetTimestamp}

	codec := astiav.FindDecoder(id)
	if codec == nil {
		return nil, fmt.Errorf("%s codec not found: %s", t.Kind, id)
	}

	d.codecCtx = astiav.AllocCodecContext(codec)
	if d.codecCtx == nil {
		return nil, fmt.Errorf("failed to allocate %s codec context", t.Kind)
	}

	if params, ok := t.Params.(*astiav.CodecParameters); ok && params != nil {
		if err := params.ToCodecContext(d.codecCtx); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to copy %s codec params: %w", t.Kind, err)
		}
	}

	if err := d.codecCtx.Open(codec, nil); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to open %s codec: %w", t.Kind, err)
	}

	d.pkt = astiav.AllocPacket()
	d.frame = astiav.AllocFrame()

	switch t.Kind {
	case player.Video:
		d.conv = newVideoConverter(opts.MaxWidth, opts.MaxHeight)
	case player.Audio:
		conv, err := newAudioConverter(opts.AudioSampleRate)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.conv = conv
	}
	return d, nil
}

// WaitInput blocks while the codec holds a refused packet
func (d *Decoder) WaitInput(ctx context.Context) error {
	t := time.NewTicker(d.retry)
	defer t.Stop()

	for {
		d.mu.Lock()
		closed, busy := d.closed, d.pending
		d.mu.Unlock()

		if closed {
			return fmt.Errorf("%s decoder closed", d.track.Kind)
		}
		if !busy {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Submit queues one compressed payload, or end of stream when eos is set
func (d *Decoder) Submit(payload []byte, pts int64, keyFrame, eos bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("%s decoder closed", d.track.Kind)
	}
	if eos {
		d.eosPending = true
		return d.sendLocked()
	}
	if d.pending {
		return fmt.Errorf("%s decoder input slot busy", d.track.Kind)
	}

	if err := d.pkt.FromData(payload); err != nil {
		return fmt.Errorf("failed to fill %s packet: %w", d.track.Kind, err)
	}
	d.pkt.SetPts(pts)
	d.pkt.SetDts(astiav.NoPtsValue)
	if keyFrame {
		d.pkt.SetFlags(d.pkt.Flags().Add(astiav.PacketFlagKey))
	}
	d.pending = true
	return d.sendLocked()
}

// sendLocked hands the held packet, then a pending end of stream, to the codec
func (d *Decoder) sendLocked() error {
	if d.pending {
		err := d.codecCtx.SendPacket(d.pkt)
		if errors.Is(err, astiav.ErrEagain) {
			return nil
		}
		d.pending = false
		d.pkt.Unref()
		if err != nil {
			return fmt.Errorf("failed to send %s packet: %w", d.track.Kind, err)
		}
	}

	if d.eosPending && !d.eosSent {
		if err := d.codecCtx.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
			if errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			return fmt.Errorf("failed to flush %s codec: %w", d.track.Kind, err)
		}
		d.eosSent = true
	}
	return nil
}

// Receive returns the next decoded unit, player.ErrNotReady when the codec
// needs more input, or player.ErrEndOfStream once it is drained
func (d *Decoder) Receive() (*player.DecodedUnit, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("%s decoder closed", d.track.Kind)
	}
	if err := d.sendLocked(); err != nil {
		return nil, err
	}

	err := d.codecCtx.ReceiveFrame(d.frame)
	switch {
	case errors.Is(err, astiav.ErrEagain):
		return nil, player.ErrNotReady
	case errors.Is(err, astiav.ErrEof):
		return d.flushLocked()
	case err != nil:
		return nil, fmt.Errorf("failed to receive %s frame: %w", d.track.Kind, err)
	}
	defer d.frame.Unref()

	u, err := d.conv.convert(d.frame)
	if err != nil {
		return nil, err
	}
	u.PTS = d.frame.Pts()
	if u.PTS == astiav.NoPtsValue {
		u.PTS = d.lastPTS
	}
	d.lastPTS = u.PTS
	if u.PTS != player.UnsetTimestamp {
		d.lastEnd = u.PTS + durationOf(u)
	}

	// The codec has room again for a packet it refused earlier
	if err := d.sendLocked(); err != nil {
		d.conv.release(u)
		return nil, err
	}
	return u, nil
}

// flushLocked hands out what the converter still holds once the codec is
// drained, then reports end of stream
func (d *Decoder) flushLocked() (*player.DecodedUnit, error) {
	if d.flushed {
		return nil, player.ErrEndOfStream
	}
	d.flushed = true

	u, err := d.conv.flush()
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, player.ErrEndOfStream
	}
	u.PTS = d.lastEnd
	return u, nil
}

// durationOf returns the play time of an audio unit in µs, zero for video
func durationOf(u *player.DecodedUnit) int64 {
	if u.SampleRate <= 0 {
		return 0
	}
	return int64(u.SampleCount()) * 1_000_000 / int64(u.SampleRate)
}

// Release returns the unit's buffer for reuse. rendered is informational:
// FFmpeg output buffers are copies, so nothing waits on presentation.
func (d *Decoder) Release(u *player.DecodedUnit, rendered bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || u == nil {
		return
	}
	d.conv.release(u)
}

// Close releases all resources
func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.conv != nil {
		d.conv.close()
		d.conv = nil
	}
	if d.frame != nil {
		d.frame.Free()
		d.frame = nil
	}
	if d.pkt != nil {
		d.pkt.Free()
		d.pkt = nil
	}
	if d.codecCtx != nil {
		d.codecCtx.Free()
		d.codecCtx = nil
	}
	return nil
}
