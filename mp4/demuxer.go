// Package mp4 is a pure-Go demux primitive for MP4 files built on joy4.
//
// Samples come out ready for decoders without extradata: H.264 access units
// are rewritten to Annex-B with SPS/PPS ahead of every key frame and AAC frames
// carry an ADTS header.
package mp4

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/aacparser"
	"github.com/nareix/joy4/codec/h264parser"
	joymp4 "github.com/nareix/joy4/format/mp4"

	"github.com/njyeung/avsync/player"
)

// Demuxer reads samples from an MP4 file. Track ids are the positions of the
// streams joy4 recognised (H.264 and AAC); other tracks are not listed.
type Demuxer struct {
	r       io.ReadSeeker
	closer  io.Closer
	dmx     *joymp4.Demuxer
	streams []av.CodecData
	tracks  []player.TrackDescriptor

	mu     sync.Mutex
	closed bool
}

// Open implements player.OpenFunc
func Open(path string) (player.Demuxer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	d, err := NewDemuxer(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	d.closer = f
	return d, nil
}

// NewDemuxer probes the movie box of r
func NewDemuxer(r io.ReadSeeker) (*Demuxer, error) {
	d := &Demuxer{r: r, dmx: joymp4.NewDemuxer(r)}

	streams, err := d.dmx.Streams()
	if err != nil {
		return nil, fmt.Errorf("failed to probe streams: %w", err)
	}
	d.streams = streams

	for i, cd := range streams {
		t := player.TrackDescriptor{Index: i, Params: cd}
		switch codec := cd.(type) {
		case h264parser.CodecData:
			t.Kind, t.Codec = player.Video, player.CodecH264
			t.Width, t.Height = codec.Width(), codec.Height()
		case aacparser.CodecData:
			t.Kind, t.Codec = player.Audio, player.CodecAAC
			t.SampleRate = codec.SampleRate()
			t.Channels = codec.ChannelLayout().Count()
		default:
			t.Codec = player.CodecUnknown
			if cd.Type().IsAudio() {
				t.Kind = player.Audio
			}
		}
		d.tracks = append(d.tracks, t)
	}
	return d, nil
}

// Tracks returns the recognised streams
func (d *Demuxer) Tracks() []player.TrackDescriptor {
	return d.tracks
}

// ReadSample returns the next sample in decode order with its presentation
// time in microseconds. Returns io.EOF at end of input.
func (d *Demuxer) ReadSample() (player.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return player.Sample{}, fmt.Errorf("demuxer closed")
	}

	pkt, err := d.dmx.ReadPacket()
	if err != nil {
		if err == io.EOF {
			return player.Sample{}, io.EOF
		}
		return player.Sample{}, fmt.Errorf("failed to read packet: %w", err)
	}

	idx := int(pkt.Idx)
	s := player.Sample{
		Track:    idx,
		PTS:      (pkt.Time + pkt.CompositionTime).Microseconds(),
		KeyFrame: pkt.IsKeyFrame,
		Data:     pkt.Data,
	}
	if idx < 0 || idx >= len(d.streams) {
		return s, nil
	}

	switch codec := d.streams[idx].(type) {
	case h264parser.CodecData:
		s.Data = annexB(codec, pkt.Data, pkt.IsKeyFrame)
	case aacparser.CodecData:
		s.Data = adts(codec.Config, pkt.Data)
		s.KeyFrame = true
	}
	return s, nil
}

// SeekToStart rewinds every stream to time zero
func (d *Demuxer) SeekToStart() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("demuxer closed")
	}
	if err := d.dmx.SeekToTime(0); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	return nil
}

// Close releases the underlying file when the demuxer opened it
func (d *Demuxer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}
