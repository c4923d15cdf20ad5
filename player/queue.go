package player

import (
	"context"
	"sync"
)

// PacketQueue is a bounded FIFO of packets between the demuxer worker and one
// decoder-input worker. Push blocks while the queue is full and Pop while it is
// empty; both give up when ctx is done.
type PacketQueue struct {
	kind TrackKind
	ch   chan Packet

	abandoned   chan struct{}
	abandonOnce sync.Once
}

// NewPacketQueue creates a queue holding at most maxCount packets
func NewPacketQueue(kind TrackKind, maxCount int) *PacketQueue {
	if maxCount < 1 {
		maxCount = 1
	}
	return &PacketQueue{
		kind:      kind,
		ch:        make(chan Packet, maxCount),
		abandoned: make(chan struct{}),
	}
}

// Kind returns the track kind this queue carries
func (q *PacketQueue) Kind() TrackKind {
	return q.kind
}

// Len returns the number of queued packets
func (q *PacketQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue bound
func (q *PacketQueue) Cap() int {
	return cap(q.ch)
}

// Push appends pkt, blocking while the queue is full.
// Returns ErrStopped if ctx ends first and ErrQueueAbandoned if the consumer left.
func (q *PacketQueue) Push(ctx context.Context, pkt Packet) error {
	select {
	case <-q.abandoned:
		return ErrQueueAbandoned
	default:
	}

	select {
	case q.ch <- pkt:
		return nil
	case <-q.abandoned:
		return ErrQueueAbandoned
	case <-ctx.Done():
		return ErrStopped
	}
}

// Pop removes the oldest packet, blocking while the queue is empty
func (q *PacketQueue) Pop(ctx context.Context) (Packet, error) {
	select {
	case pkt := <-q.ch:
		return pkt, nil
	case <-ctx.Done():
		return Packet{}, ErrStopped
	}
}

// TryPop removes the oldest packet if one is queued
func (q *PacketQueue) TryPop() (Packet, bool) {
	select {
	case pkt := <-q.ch:
		return pkt, true
	default:
		return Packet{}, false
	}
}

// Abandon marks the consumer as gone. Pending and future pushes return
// ErrQueueAbandoned so the producer never blocks on a dead stream.
func (q *PacketQueue) Abandon() {
	q.abandonOnce.Do(func() {
		close(q.abandoned)
	})
}

// Abandoned reports whether Abandon was called
func (q *PacketQueue) Abandoned() bool {
	select {
	case <-q.abandoned:
		return true
	default:
		return false
	}
}

// drain discards everything still queued
func (q *PacketQueue) drain() int {
	n := 0
	for {
		if _, ok := q.TryPop(); !ok {
			return n
		}
		n++
	}
}
