package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	videoTrackID = 0
	audioTrackID = 1

	videoFrameMicros = 33_333
	audioFrameMicros = 23_219 // 1024 samples at 44.1kHz
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var h264Track = TrackDescriptor{Index: videoTrackID, Kind: Video, Codec: CodecH264, Width: 64, Height: 36}
var aacTrack = TrackDescriptor{Index: audioTrackID, Kind: Audio, Codec: CodecAAC, SampleRate: 44100, Channels: 2}

// avSamples interleaves video and audio samples in presentation order
func avSamples(videoFrames, audioFrames int) []Sample {
	var out []Sample
	v, a := 0, 0
	for v < videoFrames || a < audioFrames {
		vpts := int64(v) * videoFrameMicros
		apts := int64(a) * audioFrameMicros
		if a >= audioFrames || (v < videoFrames && vpts <= apts) {
			out = append(out, Sample{Track: videoTrackID, Data: []byte{0x65, byte(v)}, PTS: vpts, KeyFrame: v%10 == 0})
			v++
			continue
		}
		out = append(out, Sample{Track: audioTrackID, Data: []byte{0x21, byte(a)}, PTS: apts, KeyFrame: true})
		a++
	}
	return out
}

// fakeDemuxer replays an in-memory sample list
type fakeDemuxer struct {
	mu      sync.Mutex
	tracks  []TrackDescriptor
	samples []Sample
	pos     int
	failAt  int // read index that fails, -1 for never
	failErr error

	reads      atomic.Int64
	seeks      atomic.Int64
	closed     atomic.Bool
	afterClose atomic.Int64
}

func newFakeDemuxer(tracks []TrackDescriptor, samples []Sample) *fakeDemuxer {
	return &fakeDemuxer{tracks: tracks, samples: samples, failAt: -1}
}

func (d *fakeDemuxer) Tracks() []TrackDescriptor {
	return d.tracks
}

func (d *fakeDemuxer) ReadSample() (Sample, error) {
	if d.closed.Load() {
		d.afterClose.Add(1)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reads.Add(1)
	if d.failAt >= 0 && d.pos == d.failAt {
		return Sample{}, d.failErr
	}
	if d.pos >= len(d.samples) {
		return Sample{}, io.EOF
	}
	s := d.samples[d.pos]
	d.pos++
	return s, nil
}

func (d *fakeDemuxer) SeekToStart() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pos = 0
	d.seeks.Add(1)
	return nil
}

func (d *fakeDemuxer) Close() error {
	d.closed.Store(true)
	return nil
}

func (d *fakeDemuxer) open(string) (Demuxer, error) {
	return d, nil
}

// fakeDecoder passes payloads straight through as decoded units
type fakeDecoder struct {
	track    TrackDescriptor
	capacity int
	failAt   int // submit index that fails, -1 for never

	mu        sync.Mutex
	pending   []*DecodedUnit
	eos       bool
	submitted int

	eosCount   atomic.Int64
	received   atomic.Int64
	released   atomic.Int64
	unrendered atomic.Int64
	closed     atomic.Bool
	afterClose atomic.Int64
}

func (f *fakeDecoder) checkOpen() {
	if f.closed.Load() {
		f.afterClose.Add(1)
	}
}

func (f *fakeDecoder) WaitInput(ctx context.Context) error {
	f.checkOpen()
	for {
		f.mu.Lock()
		n := len(f.pending)
		f.mu.Unlock()
		if n < f.capacity {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (f *fakeDecoder) Submit(payload []byte, pts int64, keyFrame, eos bool) error {
	f.checkOpen()
	f.mu.Lock()
	defer f.mu.Unlock()

	if eos {
		f.eos = true
		f.eosCount.Add(1)
		return nil
	}
	if f.failAt >= 0 && f.submitted == f.failAt {
		return errors.New("codec rejected input")
	}
	f.submitted++

	u := &DecodedUnit{PTS: pts, Data: append([]byte(nil), payload...)}
	if f.track.Kind == Video {
		u.Width, u.Height = f.track.Width, f.track.Height
	} else {
		u.SampleRate, u.Channels, u.BitsPerSample = f.track.SampleRate, f.track.Channels, 16
	}
	f.pending = append(f.pending, u)
	return nil
}

func (f *fakeDecoder) Receive() (*DecodedUnit, error) {
	f.checkOpen()
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.pending) > 0 {
		u := f.pending[0]
		f.pending = f.pending[1:]
		f.received.Add(1)
		return u, nil
	}
	if f.eos {
		return nil, ErrEndOfStream
	}
	return nil, ErrNotReady
}

func (f *fakeDecoder) Release(u *DecodedUnit, rendered bool) {
	f.checkOpen()
	f.released.Add(1)
	if !rendered {
		f.unrendered.Add(1)
	}
}

func (f *fakeDecoder) Close() error {
	f.closed.Store(true)
	return nil
}

// fakeCodecs creates fake decoders and remembers them
type fakeCodecs struct {
	capacity int
	failAt   map[TrackKind]int
	refuse   map[TrackKind]bool

	mu       sync.Mutex
	decoders []*fakeDecoder
}

func (c *fakeCodecs) newDecoder(t TrackDescriptor) (Decoder, error) {
	if c.refuse[t.Kind] {
		return nil, errors.New("codec not available")
	}
	capacity := c.capacity
	if capacity == 0 {
		capacity = 4
	}
	failAt := -1
	if n, ok := c.failAt[t.Kind]; ok {
		failAt = n
	}
	d := &fakeDecoder{track: t, capacity: capacity, failAt: failAt}

	c.mu.Lock()
	c.decoders = append(c.decoders, d)
	c.mu.Unlock()
	return d, nil
}

func (c *fakeCodecs) all() []*fakeDecoder {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeDecoder(nil), c.decoders...)
}

func (c *fakeCodecs) of(kind TrackKind) []*fakeDecoder {
	var out []*fakeDecoder
	for _, d := range c.all() {
		if d.track.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

type arrival struct {
	pts       int64
	timestamp time.Time
	at        time.Time
}

// recordingSink records what reaches the video and audio sinks
type recordingSink struct {
	mu      sync.Mutex
	entries []arrival
	paused  []bool
}

func (r *recordingSink) record(pts int64, ts time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, arrival{pts: pts, timestamp: ts, at: time.Now()})
}

func (r *recordingSink) Present(f Frame) error {
	r.record(f.PTS, f.Timestamp)
	return nil
}

func (r *recordingSink) Write(s AudioSamples) error {
	r.record(s.PTS, s.Timestamp)
	return nil
}

func (r *recordingSink) SetPaused(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = append(r.paused, paused)
}

func (r *recordingSink) snapshot() []arrival {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]arrival(nil), r.entries...)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// waitFor polls cond until it holds or the timeout passes
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
