package player

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures a Player
type Options struct {
	// Open opens the container for a path
	Open OpenFunc

	// NewDecoder creates a decoder per track and per pass
	NewDecoder DecoderFactory

	VideoSink VideoSink
	AudioSink AudioSink

	VideoQueueSize int
	AudioQueueSize int

	// PollInterval caps every sleep so stop and pause are observed promptly
	PollInterval time.Duration

	// RetryInterval is the backoff when a decoder has no output ready
	RetryInterval time.Duration

	Logger *slog.Logger
}

// videoSinkRef lets a nil sink live in an atomic pointer
type videoSinkRef struct {
	sink VideoSink
}

// Player is the playback controller. It owns the lifecycle state
// (stopped, running, paused) and every worker of the current session.
type Player struct {
	opts Options
	log  *slog.Logger

	videoSink atomic.Pointer[videoSinkRef]
	paused    atomic.Bool

	// lifecycleMu serializes Start and Stop
	lifecycleMu sync.Mutex

	sessionMu sync.Mutex
	session   *playSession
	lastErr   error
}

// New creates a stopped Player
func New(opts Options) *Player {
	if opts.VideoQueueSize <= 0 {
		opts.VideoQueueSize = DefaultVideoQueueSize
	}
	if opts.AudioQueueSize <= 0 {
		opts.AudioQueueSize = DefaultAudioQueueSize
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Player{
		opts: opts,
		log:  opts.Logger.With("component", "player"),
	}
	p.videoSink.Store(&videoSinkRef{sink: opts.VideoSink})
	return p
}

func (p *Player) currentSession() *playSession {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()
	return p.session
}

func (p *Player) setSession(s *playSession) {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()

	p.session = s
	p.lastErr = nil
}

func (p *Player) clearSession(s *playSession) {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()

	if p.session == s {
		p.session = nil
		p.lastErr = s.err
	}
}

func (p *Player) currentVideoSink() VideoSink {
	return p.videoSink.Load().sink
}

// Start opens path and begins playback. loop rewinds to the start at end of input.
// A container without a supported track fails here, before any worker runs.
func (p *Player) Start(path string, loop bool) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if s := p.currentSession(); s != nil && !s.finished() {
		return ErrAlreadyRunning
	}

	demuxer, err := p.opts.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}

	cfg := sessionConfig{
		videoQueueSize: p.opts.VideoQueueSize,
		audioQueueSize: p.opts.AudioQueueSize,
		pollInterval:   p.opts.PollInterval,
		retryInterval:  p.opts.RetryInterval,
		newDecoder:     p.opts.NewDecoder,
		videoSink:      p.currentVideoSink,
		audioSink:      p.opts.AudioSink,
		paused:         &p.paused,
	}

	session, err := newPlaySession(path, loop, demuxer, cfg, p.opts.Logger)
	if err != nil {
		demuxer.Close()
		return fmt.Errorf("failed to start %s: %w", path, err)
	}

	p.setPaused(false)
	p.setSession(session)
	session.log.Info("playback started", "path", path, "loop", loop)

	go session.run(p.clearSession)
	return nil
}

// Stop signals every worker, waits for all of them to exit and only then
// returns. Calling Stop while stopped does nothing.
func (p *Player) Stop() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	s := p.currentSession()
	if s == nil {
		return
	}

	s.stop()
	<-s.done
	p.clearSession(s)
	p.setPaused(false)
	s.log.Info("playback stopped")
}

// Pause holds decoded output. Packets keep flowing into the decoders.
func (p *Player) Pause() error {
	if p.IsStopped() {
		return ErrNotRunning
	}
	p.setPaused(true)
	p.log.Info("paused")
	return nil
}

// Resume continues after Pause
func (p *Player) Resume() error {
	if p.IsStopped() {
		return ErrNotRunning
	}
	p.setPaused(false)
	p.log.Info("resumed")
	return nil
}

// TogglePause pauses a running player or resumes a paused one
func (p *Player) TogglePause() error {
	if p.IsPaused() {
		return p.Resume()
	}
	return p.Pause()
}

func (p *Player) setPaused(paused bool) {
	p.paused.Store(paused)
	if pz, ok := p.opts.AudioSink.(Pauser); ok {
		pz.SetPaused(paused)
	}
	if pz, ok := p.currentVideoSink().(Pauser); ok {
		pz.SetPaused(paused)
	}
}

// IsPaused returns current pause state
func (p *Player) IsPaused() bool {
	return p.paused.Load() && !p.IsStopped()
}

// IsStopped reports whether no session is running
func (p *Player) IsStopped() bool {
	s := p.currentSession()
	return s == nil || s.finished()
}

// RebindVideoSink swaps the video sink used for the next frame. nil detaches it.
func (p *Player) RebindVideoSink(sink VideoSink) {
	p.videoSink.Store(&videoSinkRef{sink: sink})
}

// Done returns a channel closed once the current session has released all
// of its resources, either after Stop or at the natural end of playback
func (p *Player) Done() <-chan struct{} {
	if s := p.currentSession(); s != nil {
		return s.done
	}
	closed := make(chan struct{})
	close(closed)
	return closed
}

// Err returns the fatal error of the last finished session, if any
func (p *Player) Err() error {
	p.sessionMu.Lock()
	defer p.sessionMu.Unlock()
	if p.session != nil {
		return nil
	}
	return p.lastErr
}
