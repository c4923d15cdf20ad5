package player

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSupportedTrack means the container has neither an H.264 nor an AAC track
	ErrNoSupportedTrack = errors.New("no supported track")

	// ErrAlreadyRunning is returned by Start while a session is active
	ErrAlreadyRunning = errors.New("player already running")

	// ErrNotRunning is returned by Pause and Resume while stopped
	ErrNotRunning = errors.New("player not running")

	// ErrStopped means a blocking wait was aborted by the stop signal
	ErrStopped = errors.New("playback stopped")

	// ErrQueueAbandoned means the consumer of a queue has gone away
	ErrQueueAbandoned = errors.New("packet queue abandoned")

	// ErrNotReady means a decoder has no output yet
	ErrNotReady = errors.New("decoder output not ready")

	// ErrEndOfStream means a decoder has drained all of its input
	ErrEndOfStream = errors.New("end of stream")
)

// DemuxError wraps a container read failure
type DemuxError struct {
	Err error
}

func (e *DemuxError) Error() string {
	return fmt.Sprintf("demux: %v", e.Err)
}

func (e *DemuxError) Unwrap() error {
	return e.Err
}

// DecodeError wraps a decoder failure on one track
type DecodeError struct {
	Track TrackKind
	Op    string // "configure", "submit" or "retrieve"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s decoder %s: %v", e.Track, e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
