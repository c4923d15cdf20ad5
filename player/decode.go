package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// stream is one track of one pass: a queue, a decoder, and the two workers around it
type stream struct {
	session *playSession
	pass    *pass
	track   TrackDescriptor
	queue   *PacketQueue
	decoder Decoder
	clock   *SyncClock
	log     *slog.Logger
}

// run starts the decoder-input and decoder-output workers and waits for both.
// A failure in either stops its sibling and only this stream.
func (st *stream) run(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return st.inputLoop(gctx)
	})
	g.Go(func() error {
		return st.outputLoop(gctx)
	})

	err := g.Wait()
	switch {
	case err == nil:
		st.log.Info("stream finished")
	case errors.Is(err, ErrStopped) && ctx.Err() != nil:
		st.log.Debug("stream stopped")
	default:
		st.log.Error("stream failed", "error", err)
	}

	// Both workers are gone, so nothing touches the decoder or queue past here
	st.queue.Abandon()
	if cerr := st.decoder.Close(); cerr != nil {
		st.log.Warn("failed to close decoder", "error", cerr)
	}

	// The primary clock is not reset here but at pass teardown: the other
	// stream keeps pacing against the last primary mapping until then, or
	// adopts the primary clock if it was never set.
	if st.session.clocks.IsPrimary(st.track.Kind) {
		st.session.clocks.EndPrimary()
	} else {
		st.clock.Reset()
	}
}

// inputLoop is the decoder-input worker
func (st *stream) inputLoop(ctx context.Context) error {
	log := st.log.With("component", "decoder-input")
	poll := st.session.cfg.pollInterval

	for {
		if ctx.Err() != nil {
			return ErrStopped
		}
		if st.queue.Len() == 0 {
			if !sleepCtx(ctx, poll, poll) {
				return ErrStopped
			}
			continue
		}

		if err := st.decoder.WaitInput(ctx); err != nil {
			if ctx.Err() != nil {
				return ErrStopped
			}
			return &DecodeError{Track: st.track.Kind, Op: "submit", Err: err}
		}

		pkt, err := st.queue.Pop(ctx)
		if err != nil {
			return err
		}

		if pkt.IsEndOfStream() {
			if err := st.decoder.Submit(nil, 0, false, true); err != nil {
				return &DecodeError{Track: st.track.Kind, Op: "submit", Err: err}
			}
			log.Debug("end of stream submitted")
			return nil
		}

		if err := st.decoder.Submit(pkt.Payload, pkt.PTS, pkt.KeyFrame, false); err != nil {
			return &DecodeError{Track: st.track.Kind, Op: "submit", Err: err}
		}
		log.Debug("input", "size", len(pkt.Payload), "pts", pkt.PTS, "key", pkt.KeyFrame)
	}
}

// outputLoop is the decoder-output worker: it paces decoded units against the
// primary clock and hands them to the sink
func (st *stream) outputLoop(ctx context.Context) error {
	log := st.log.With("component", "decoder-output")
	cfg := st.session.cfg
	clocks := st.session.clocks
	primary := clocks.IsPrimary(st.track.Kind)

	var last string
	for {
		if ctx.Err() != nil {
			return ErrStopped
		}

		if cfg.paused.Load() {
			now := time.Now()
			st.clock.Touch(now)
			if !primary && clocks.PrimaryEnded() {
				clocks.PrimaryClock().Touch(now)
			}
			if !sleepCtx(ctx, cfg.pollInterval, cfg.pollInterval) {
				return ErrStopped
			}
			continue
		}

		u, err := st.decoder.Receive()
		switch {
		case errors.Is(err, ErrNotReady):
			if !sleepCtx(ctx, cfg.retryInterval, cfg.pollInterval) {
				return ErrStopped
			}
			continue
		case errors.Is(err, ErrEndOfStream):
			log.Debug("end of stream reached")
			return nil
		case err != nil:
			return &DecodeError{Track: st.track.Kind, Op: "retrieve", Err: err}
		}

		if f := formatOf(st.track.Kind, u); f != last {
			log.Debug("output format changed", "format", f)
			last = f
		}

		wait, drop := clocks.Pace(st.track.Kind, u.PTS, time.Now())
		if drop {
			log.Debug("dropping unit ahead of primary clock", "pts", u.PTS)
			st.decoder.Release(u, false)
			continue
		}
		if wait > 0 && !sleepCtx(ctx, wait, cfg.pollInterval) {
			st.decoder.Release(u, false)
			return ErrStopped
		}

		rendered := st.deliver(u, log)
		st.decoder.Release(u, rendered)
	}
}

// deliver hands u to the stream's sink, reporting whether a sink took it
func (st *stream) deliver(u *DecodedUnit, log *slog.Logger) bool {
	_, ts, _ := st.clock.Get()

	switch st.track.Kind {
	case Video:
		sink := st.session.cfg.videoSink()
		if sink == nil {
			return false
		}
		err := sink.Present(Frame{
			Data:      u.Data,
			Width:     u.Width,
			Height:    u.Height,
			PTS:       u.PTS,
			Timestamp: ts,
		})
		if err != nil {
			log.Warn("video sink failed", "pts", u.PTS, "error", err)
		}
		return true

	case Audio:
		sink := st.session.cfg.audioSink
		if sink == nil {
			return false
		}
		err := sink.Write(AudioSamples{
			Data:          u.Data,
			SampleRate:    u.SampleRate,
			Channels:      u.Channels,
			BitsPerSample: u.BitsPerSample,
			SampleCount:   u.SampleCount(),
			PTS:           u.PTS,
			Timestamp:     ts,
		})
		if err != nil {
			log.Warn("audio sink failed", "pts", u.PTS, "error", err)
		}
		return true
	}
	return false
}

// formatOf describes the part of a decoded unit that triggers a format change log
func formatOf(kind TrackKind, u *DecodedUnit) string {
	if kind == Video {
		return fmt.Sprintf("%dx%d", u.Width, u.Height)
	}
	return fmt.Sprintf("%dHz/%dch/s%d", u.SampleRate, u.Channels, u.BitsPerSample)
}
