package ffmpeg

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"github.com/njyeung/avsync/player"
)

const (
	outputChannels = 2
	bytesPerSample = 2 // S16

	// flushSamples bounds the resampler tail drained at end of stream
	flushSamples = 4096
)

// audioConverter resamples decoded audio to interleaved S16 stereo
type audioConverter struct {
	rate     int
	swrCtx   *astiav.SoftwareResampleContext
	outFrame *astiav.Frame

	// started is set once the resampler has been configured by a frame
	started bool
}

func newAudioConverter(rate int) (*audioConverter, error) {
	a := &audioConverter{rate: rate}

	// The resampler configures itself from the first frame
	a.swrCtx = astiav.AllocSoftwareResampleContext()
	if a.swrCtx == nil {
		return nil, fmt.Errorf("failed to allocate swr context")
	}
	a.outFrame = astiav.AllocFrame()
	return a, nil
}

func (a *audioConverter) convert(f *astiav.Frame) (*player.DecodedUnit, error) {
	// Room for every input sample after rate conversion plus resampler delay
	capacity := f.NbSamples()
	if in := f.SampleRate(); in > 0 && in != a.rate {
		capacity = f.NbSamples()*a.rate/in + 256
	}
	u, err := a.resample(f, capacity)
	if err != nil {
		return nil, err
	}
	a.started = true
	return u, nil
}

// flush drains the samples the resampler still buffers. It returns nil when
// there are none.
func (a *audioConverter) flush() (*player.DecodedUnit, error) {
	if !a.started {
		return nil, nil
	}
	u, err := a.resample(nil, flushSamples)
	if err != nil || len(u.Data) == 0 {
		return nil, err
	}
	return u, nil
}

// resample converts src, or flushes when src is nil, into at most capacity samples
func (a *audioConverter) resample(src *astiav.Frame, capacity int) (*player.DecodedUnit, error) {
	defer a.outFrame.Unref()

	a.outFrame.SetSampleFormat(astiav.SampleFormatS16)
	a.outFrame.SetSampleRate(a.rate)
	a.outFrame.SetChannelLayout(astiav.ChannelLayoutStereo)
	a.outFrame.SetNbSamples(capacity)
	if err := a.outFrame.AllocBuffer(0); err != nil {
		return nil, fmt.Errorf("failed to allocate audio frame buffer: %w", err)
	}

	if err := a.swrCtx.ConvertFrame(src, a.outFrame); err != nil {
		return nil, fmt.Errorf("failed to resample audio frame: %w", err)
	}

	// Plane 0 holds interleaved S16
	byteSize := a.outFrame.NbSamples() * outputChannels * bytesPerSample
	plane, err := a.outFrame.Data().Bytes(0)
	if err != nil {
		return nil, fmt.Errorf("failed to read resampled audio: %w", err)
	}
	if len(plane) < byteSize {
		byteSize = len(plane)
	}

	return &player.DecodedUnit{
		Data:          append([]byte(nil), plane[:byteSize]...),
		SampleRate:    a.rate,
		Channels:      outputChannels,
		BitsPerSample: bytesPerSample * 8,
	}, nil
}

func (a *audioConverter) release(u *player.DecodedUnit) {
	u.Data = nil
}

func (a *audioConverter) close() {
	if a.outFrame != nil {
		a.outFrame.Free()
		a.outFrame = nil
	}
	if a.swrCtx != nil {
		a.swrCtx.Free()
		a.swrCtx = nil
	}
}
