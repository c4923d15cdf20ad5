package ffmpeg

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/njyeung/avsync/player"
)

// Demuxer reads elementary-stream samples from a container with libavformat
type Demuxer struct {
	formatCtx *astiav.FormatContext
	pkt       *astiav.Packet
	tracks    []player.TrackDescriptor
	timeBases map[int]astiav.Rational

	mu     sync.Mutex
	closed bool
}

// Open implements player.OpenFunc
func Open(path string) (player.Demuxer, error) {
	d, err := NewDemuxer(path)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// NewDemuxer opens path and probes its streams
func NewDemuxer(path string) (*Demuxer, error) {
	d := &Demuxer{timeBases: make(map[int]astiav.Rational)}

	d.formatCtx = astiav.AllocFormatContext()
	if d.formatCtx == nil {
		return nil, fmt.Errorf("failed to allocate format context")
	}

	if err := d.formatCtx.OpenInput(path, nil, nil); err != nil {
		d.formatCtx.Free()
		return nil, fmt.Errorf("failed to open input: %w", err)
	}

	if err := d.formatCtx.FindStreamInfo(nil); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to find stream info: %w", err)
	}

	for _, stream := range d.formatCtx.Streams() {
		params := stream.CodecParameters()
		t := player.TrackDescriptor{
			Index:  stream.Index(),
			Codec:  codecOf(params.CodecID()),
			Params: params,
		}
		switch params.MediaType() {
		case astiav.MediaTypeVideo:
			t.Kind = player.Video
			t.Width, t.Height = params.Width(), params.Height()
		case astiav.MediaTypeAudio:
			t.Kind = player.Audio
			t.SampleRate = params.SampleRate()
			t.Channels = params.ChannelLayout().Channels()
		default:
			continue
		}
		d.tracks = append(d.tracks, t)
		d.timeBases[t.Index] = stream.TimeBase()
	}

	d.pkt = astiav.AllocPacket()
	if d.pkt == nil {
		d.Close()
		return nil, fmt.Errorf("failed to allocate packet")
	}
	return d, nil
}

// Tracks returns the audio and video streams of the container. Params holds
// the stream's *astiav.CodecParameters, valid until Close.
func (d *Demuxer) Tracks() []player.TrackDescriptor {
	return d.tracks
}

// ReadSample returns the next packet of the container with its pts in
// microseconds. Returns io.EOF at end of input.
func (d *Demuxer) ReadSample() (player.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return player.Sample{}, fmt.Errorf("demuxer closed")
	}

	for {
		if err := d.formatCtx.ReadFrame(d.pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, io.EOF) {
				return player.Sample{}, io.EOF
			}
			return player.Sample{}, fmt.Errorf("failed to read frame: %w", err)
		}

		idx := d.pkt.StreamIndex()
		tb, ok := d.timeBases[idx]
		if !ok {
			d.pkt.Unref()
			continue
		}

		ts := d.pkt.Pts()
		if ts == astiav.NoPtsValue {
			ts = d.pkt.Dts()
		}
		if ts == astiav.NoPtsValue {
			ts = 0
		}

		// Copy the data since the packet is reused
		data := append([]byte(nil), d.pkt.Data()...)
		s := player.Sample{
			Track:    idx,
			Data:     data,
			PTS:      toMicros(ts, tb),
			KeyFrame: d.pkt.Flags().Has(astiav.PacketFlagKey),
		}
		d.pkt.Unref()
		return s, nil
	}
}

// SeekToStart rewinds to the first key frame
func (d *Demuxer) SeekToStart() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("demuxer closed")
	}
	if err := d.formatCtx.SeekFrame(-1, 0, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	return nil
}

// Close releases all resources
func (d *Demuxer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	if d.pkt != nil {
		d.pkt.Free()
		d.pkt = nil
	}
	if d.formatCtx != nil {
		d.formatCtx.CloseInput()
		d.formatCtx.Free()
		d.formatCtx = nil
	}
	return nil
}
