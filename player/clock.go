package player

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// SyncClock correlates a stream's presentation time with wall-clock time.
// Both fields are set together; an uninitialized clock has neither.
type SyncClock struct {
	mu   sync.Mutex
	pts  int64
	wall time.Time
}

// NewSyncClock returns an uninitialized clock
func NewSyncClock() *SyncClock {
	return &SyncClock{pts: UnsetTimestamp}
}

// Initialized reports whether the clock has been set
func (c *SyncClock) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pts != UnsetTimestamp
}

// Get returns the (pts, wall) pair and whether it is set
func (c *SyncClock) Get() (int64, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pts, c.wall, c.pts != UnsetTimestamp
}

// Set stores a new (pts, wall) pair
func (c *SyncClock) Set(pts int64, wall time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pts = pts
	c.wall = wall
}

// Touch moves the wall time of an initialized clock to now, keeping its pts.
// Used while paused so the pause does not count as lateness.
func (c *SyncClock) Touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pts != UnsetTimestamp {
		c.wall = now
	}
}

// Reset returns the clock to the uninitialized state
func (c *SyncClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pts = UnsetTimestamp
	c.wall = time.Time{}
}

// PrimaryClock names which stream's clock is the master timeline
type PrimaryClock uint8

const (
	PrimaryNone PrimaryClock = iota
	PrimaryAudio
	PrimaryVideo
)

func (p PrimaryClock) String() string {
	switch p {
	case PrimaryAudio:
		return "audio"
	case PrimaryVideo:
		return "video"
	default:
		return "none"
	}
}

// kind returns the track owning the primary clock
func (p PrimaryClock) kind() (TrackKind, bool) {
	switch p {
	case PrimaryAudio:
		return Audio, true
	case PrimaryVideo:
		return Video, true
	default:
		return 0, false
	}
}

// ChoosePrimary picks audio when present, otherwise video
func ChoosePrimary(hasVideo, hasAudio bool) PrimaryClock {
	switch {
	case hasAudio:
		return PrimaryAudio
	case hasVideo:
		return PrimaryVideo
	default:
		return PrimaryNone
	}
}

// Clocks holds one SyncClock per stream and the primary designation.
// The designation never changes for the lifetime of a session.
type Clocks struct {
	primary PrimaryClock
	clocks  [numKinds]*SyncClock

	// primaryEnded is set once the primary stream of the current pass is gone
	primaryEnded atomic.Bool
}

// NewClocks creates clocks for a session with the given primary
func NewClocks(primary PrimaryClock) *Clocks {
	c := &Clocks{primary: primary}
	for i := range c.clocks {
		c.clocks[i] = NewSyncClock()
	}
	return c
}

// Primary returns the primary designation
func (c *Clocks) Primary() PrimaryClock {
	return c.primary
}

// Clock returns the clock of a stream
func (c *Clocks) Clock(kind TrackKind) *SyncClock {
	return c.clocks[kind]
}

// IsPrimary reports whether kind owns the primary clock
func (c *Clocks) IsPrimary(kind TrackKind) bool {
	k, ok := c.primary.kind()
	return ok && k == kind
}

// PrimaryClock returns the master clock, nil when there is none
func (c *Clocks) PrimaryClock() *SyncClock {
	k, ok := c.primary.kind()
	if !ok {
		return nil
	}
	return c.clocks[k]
}

// EndPrimary records that the primary stream finished or failed. A primary
// clock it never initialized is then taken over by the first unit paced.
func (c *Clocks) EndPrimary() {
	c.primaryEnded.Store(true)
}

// PrimaryEnded reports whether EndPrimary was called since the last ResetAll
func (c *Clocks) PrimaryEnded() bool {
	return c.primaryEnded.Load()
}

// ResetAll returns every clock to the uninitialized state
func (c *Clocks) ResetAll() {
	for _, clk := range c.clocks {
		clk.Reset()
	}
	c.primaryEnded.Store(false)
}

// Pace decides what to do with a unit of stream kind at presentation time pts
// (µs) that is ready at now. It returns how long to wait before rendering and
// whether to drop the unit. The stream clock is updated as a side effect.
//
// The first unit of the primary stream initializes the primary clock. A
// non-primary unit arriving before that is dropped, unless the primary stream
// already ended, in which case it initializes the primary clock itself.
// Afterwards nothing is dropped: the stream clock is remapped onto the
// primary timeline.
func (c *Clocks) Pace(kind TrackKind, pts int64, now time.Time) (wait time.Duration, drop bool) {
	primary := c.PrimaryClock()
	if primary == nil {
		return 0, false
	}
	own := c.clocks[kind]

	ppts, pwall, ok := primary.Get()
	if !ok {
		if !c.IsPrimary(kind) && !c.primaryEnded.Load() {
			return 0, true
		}
		primary.Set(pts, now)
		own.Set(pts, now)
		return 0, false
	}

	offset := time.Duration(pts-ppts) * time.Microsecond
	wait = offset - now.Sub(pwall)
	if wait < 0 {
		wait = 0
	}
	own.Set(pts, pwall.Add(offset))
	return wait, false
}

// sleepCtx sleeps for d in steps of at most step, returning false if ctx ends first
func sleepCtx(ctx context.Context, d, step time.Duration) bool {
	if step <= 0 {
		step = DefaultPollInterval
	}
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ctx.Err() == nil
		}
		if remaining > step {
			remaining = step
		}
		t := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
	}
}
