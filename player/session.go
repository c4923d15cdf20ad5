package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// playSession is one Start..Stop lifetime. Nothing in it is reused across sessions.
type playSession struct {
	id   string
	log  *slog.Logger
	path string
	loop bool
	cfg  sessionConfig

	demuxer Demuxer
	tracks  map[int]TrackDescriptor // selected tracks by track id
	video   *TrackDescriptor
	audio   *TrackDescriptor

	// clocks is created by the first pass and kept for the whole session
	clocks *Clocks

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	passes atomic.Int64
}

type sessionConfig struct {
	videoQueueSize int
	audioQueueSize int
	pollInterval   time.Duration
	retryInterval  time.Duration

	newDecoder DecoderFactory
	videoSink  func() VideoSink
	audioSink  AudioSink
	paused     *atomic.Bool
}

func newPlaySession(path string, loop bool, demuxer Demuxer, cfg sessionConfig, log *slog.Logger) (*playSession, error) {
	video, audio, err := SelectTracks(demuxer.Tracks())
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s := &playSession{
		id:      id,
		log:     log.With("session", id),
		path:    path,
		loop:    loop,
		cfg:     cfg,
		demuxer: demuxer,
		tracks:  make(map[int]TrackDescriptor),
		video:   video,
		audio:   audio,
		done:    make(chan struct{}),
	}
	if video != nil {
		s.tracks[video.Index] = *video
	}
	if audio != nil {
		s.tracks[audio.Index] = *audio
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// SelectTracks picks the first H.264 video track and the first AAC audio track
func SelectTracks(tracks []TrackDescriptor) (video, audio *TrackDescriptor, err error) {
	for i := range tracks {
		t := tracks[i]
		switch {
		case t.Kind == Video && t.Codec == CodecH264 && video == nil:
			video = &t
		case t.Kind == Audio && t.Codec == CodecAAC && audio == nil:
			audio = &t
		}
	}
	if video == nil && audio == nil {
		return nil, nil, ErrNoSupportedTrack
	}
	return video, audio, nil
}

// run drives the demuxer worker and tears the session down when it returns
func (s *playSession) run(onExit func(*playSession)) {
	defer close(s.done)

	err := s.demuxLoop()
	if err != nil && !errors.Is(err, ErrStopped) {
		s.log.Error("playback failed", "error", err)
		s.err = err
	}

	if cerr := s.demuxer.Close(); cerr != nil {
		s.log.Warn("failed to close demuxer", "error", cerr)
	}
	if s.clocks != nil {
		s.clocks.ResetAll()
	}
	s.log.Info("session finished", "passes", s.passes.Load())

	onExit(s)
}

func (s *playSession) stop() {
	s.cancel()
}

func (s *playSession) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// pass is one read of the container from start to end of input
type pass struct {
	n       int
	queues  [numKinds]*PacketQueue
	streams []*stream
	group   errgroup.Group
}

// demuxLoop is the demuxer worker. Each iteration is one pass; looping
// playback rewinds the container and starts fresh decoder workers.
func (s *playSession) demuxLoop() error {
	log := s.log.With("component", "demuxer")

	for n := 1; ; n++ {
		p, err := s.startPass(n)
		if err != nil {
			return err
		}
		s.passes.Store(int64(n))
		log.Info("pass started", "pass", n, "streams", len(p.streams), "primary", s.clocks.Primary())

		readErr := s.feed(p, log)
		s.finishPass(p, log)

		if readErr != nil {
			return readErr
		}
		if !s.loop || s.ctx.Err() != nil {
			return nil
		}

		if err := s.demuxer.SeekToStart(); err != nil {
			return &DemuxError{Err: fmt.Errorf("seek to start: %w", err)}
		}
		log.Info("looping to start", "pass", n)
	}
}

// startPass creates queues and decoders and spawns the per-stream workers
func (s *playSession) startPass(n int) (*pass, error) {
	p := &pass{n: n}

	var configured [numKinds]bool
	for _, t := range []*TrackDescriptor{s.video, s.audio} {
		if t == nil {
			continue
		}
		dec, err := s.cfg.newDecoder(*t)
		if err != nil {
			s.log.Error("decoder unavailable, dropping track", "track", t.Kind,
				"error", &DecodeError{Track: t.Kind, Op: "configure", Err: err})
			continue
		}
		configured[t.Kind] = true

		size := s.cfg.videoQueueSize
		if t.Kind == Audio {
			size = s.cfg.audioQueueSize
		}
		q := NewPacketQueue(t.Kind, size)
		p.queues[t.Kind] = q
		p.streams = append(p.streams, &stream{
			session: s,
			pass:    p,
			track:   *t,
			queue:   q,
			decoder: dec,
		})
	}

	if len(p.streams) == 0 {
		return nil, &DecodeError{Track: s.firstKind(), Op: "configure", Err: errors.New("no decodable track")}
	}

	if s.clocks == nil {
		s.clocks = NewClocks(ChoosePrimary(configured[Video], configured[Audio]))
	}

	for _, st := range p.streams {
		st.clock = s.clocks.Clock(st.track.Kind)
		st.log = s.log.With("track", st.track.Kind, "pass", n)
		p.group.Go(func() error {
			st.run(s.ctx)
			return nil
		})
	}
	return p, nil
}

func (s *playSession) firstKind() TrackKind {
	if s.video != nil {
		return Video
	}
	return Audio
}

// feed reads the container and routes samples until end of input, a read
// error, or the stop signal
func (s *playSession) feed(p *pass, log *slog.Logger) error {
	var abandoned [numKinds]bool

	for {
		if s.ctx.Err() != nil {
			return ErrStopped
		}

		sample, err := s.demuxer.ReadSample()
		if errors.Is(err, io.EOF) {
			log.Info("end of input", "pass", p.n)
			return nil
		}
		if err != nil {
			return &DemuxError{Err: err}
		}

		t, ok := s.tracks[sample.Track]
		if !ok {
			log.Info("discarding sample from unselected track", "track_id", sample.Track, "pts", sample.PTS)
			continue
		}
		if len(sample.Data) == 0 {
			log.Debug("skipping empty sample", "track", t.Kind, "pts", sample.PTS)
			continue
		}

		q := p.queues[t.Kind]
		if q == nil || abandoned[t.Kind] {
			continue
		}

		log.Debug("sample", "track", t.Kind, "size", len(sample.Data), "pts", sample.PTS, "key", sample.KeyFrame)
		err = q.Push(s.ctx, Packet{
			Kind:     t.Kind,
			Payload:  sample.Data,
			PTS:      sample.PTS,
			KeyFrame: sample.KeyFrame,
		})
		switch {
		case errors.Is(err, ErrQueueAbandoned):
			abandoned[t.Kind] = true
			log.Warn("stream gone, discarding its samples", "track", t.Kind, "pass", p.n)
		case err != nil:
			return err
		}
	}
}

// finishPass pushes end-of-stream into every queue and joins the pass workers
func (s *playSession) finishPass(p *pass, log *slog.Logger) {
	for _, q := range p.queues {
		if q == nil {
			continue
		}
		if err := q.Push(s.ctx, EndOfStream(q.Kind())); err != nil && !errors.Is(err, ErrQueueAbandoned) {
			log.Debug("end of stream not queued", "track", q.Kind(), "error", err)
		}
	}

	p.group.Wait()

	for i, q := range p.queues {
		if q == nil {
			continue
		}
		if n := q.drain(); n > 0 {
			log.Debug("dropped queued packets", "track", q.Kind(), "count", n)
		}
		p.queues[i] = nil
	}
	s.clocks.ResetAll()
	log.Info("pass finished", "pass", p.n)
}
