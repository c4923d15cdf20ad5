package ffmpeg

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/njyeung/avsync/player"
)

// videoConverter scales decoded pictures to packed RGB24
type videoConverter struct {
	maxWidth  int
	maxHeight int

	swsCtx   *astiav.SoftwareScaleContext
	rgbFrame *astiav.Frame

	srcWidth  int
	srcHeight int
	srcFormat astiav.PixelFormat
	dstWidth  int
	dstHeight int

	pool sync.Pool
}

func newVideoConverter(maxWidth, maxHeight int) *videoConverter {
	return &videoConverter{maxWidth: maxWidth, maxHeight: maxHeight}
}

// ensure (re)creates the scaling context when the source geometry changes
func (v *videoConverter) ensure(f *astiav.Frame) error {
	w, h, pf := f.Width(), f.Height(), f.PixelFormat()
	if v.swsCtx != nil && w == v.srcWidth && h == v.srcHeight && pf == v.srcFormat {
		return nil
	}
	v.close()

	dw, dh := FitSize(w, h, v.maxWidth, v.maxHeight)
	if dw <= 0 || dh <= 0 {
		return fmt.Errorf("invalid video size %dx%d", w, h)
	}

	// Create scaling context: source format -> RGB24 at target size
	swsCtx, err := astiav.CreateSoftwareScaleContext(
		w, h, pf,
		dw, dh, astiav.PixelFormatRgb24,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		return fmt.Errorf("failed to create sws context: %w", err)
	}

	rgbFrame := astiav.AllocFrame()
	rgbFrame.SetWidth(dw)
	rgbFrame.SetHeight(dh)
	rgbFrame.SetPixelFormat(astiav.PixelFormatRgb24)
	if err := rgbFrame.AllocBuffer(1); err != nil {
		rgbFrame.Free()
		swsCtx.Free()
		return fmt.Errorf("failed to allocate RGB frame buffer: %w", err)
	}

	v.swsCtx, v.rgbFrame = swsCtx, rgbFrame
	v.srcWidth, v.srcHeight, v.srcFormat = w, h, pf
	v.dstWidth, v.dstHeight = dw, dh
	return nil
}

func (v *videoConverter) convert(f *astiav.Frame) (*player.DecodedUnit, error) {
	if err := v.ensure(f); err != nil {
		return nil, err
	}
	if err := v.swsCtx.ScaleFrame(f, v.rgbFrame); err != nil {
		return nil, fmt.Errorf("failed to scale frame: %w", err)
	}

	n, err := v.rgbFrame.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("failed to size RGB frame: %w", err)
	}
	buf, _ := v.pool.Get().([]byte)
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := v.rgbFrame.ImageCopyToBuffer(buf, 1); err != nil {
		return nil, fmt.Errorf("failed to copy RGB frame: %w", err)
	}

	return &player.DecodedUnit{
		Data:   buf,
		Width:  v.dstWidth,
		Height: v.dstHeight,
	}, nil
}

// flush has nothing to return: scaling keeps no state between frames
func (v *videoConverter) flush() (*player.DecodedUnit, error) {
	return nil, nil
}

func (v *videoConverter) release(u *player.DecodedUnit) {
	if u.Data != nil {
		v.pool.Put(u.Data[:0])
		u.Data = nil
	}
}

func (v *videoConverter) close() {
	if v.rgbFrame != nil {
		v.rgbFrame.Free()
		v.rgbFrame = nil
	}
	if v.swsCtx != nil {
		v.swsCtx.Free()
		v.swsCtx = nil
	}
}

// FitSize computes aspect-correct dimensions to fit in the target area.
// A zero bound keeps the source size.
func FitSize(srcW, srcH, maxW, maxH int) (int, int) {
	if maxW == 0 || maxH == 0 || srcW == 0 || srcH == 0 {
		return srcW, srcH
	}

	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(maxW) / float64(maxH)

	if srcAspect > dstAspect {
		return maxW, max(int(float64(maxW)/srcAspect), 1)
	}
	return max(int(float64(maxH)*srcAspect), 1), maxH
}
