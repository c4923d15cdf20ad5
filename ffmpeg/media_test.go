//go:build media

package ffmpeg

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njyeung/avsync/player"
)

// testClip returns AVSYNC_TEST_CLIP, or a one second H.264/AAC clip made with
// the ffmpeg command
func testClip(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("AVSYNC_TEST_CLIP"); p != "" {
		return p
	}
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("set AVSYNC_TEST_CLIP or install ffmpeg")
	}
	out := filepath.Join(t.TempDir(), "clip.mp4")
	cmd := exec.Command(bin, "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=160x90:rate=30:duration=1",
		"-f", "lavfi", "-i", "sine=frequency=440:sample_rate=48000:duration=1",
		"-c:v", "libx264", "-pix_fmt", "yuv420p", "-c:a", "aac", "-shortest", out)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("cannot generate clip: %v: %s", err, b)
	}
	return out
}

func TestDecodeClip(t *testing.T) {
	dmx, err := Open(testClip(t))
	require.NoError(t, err)
	defer dmx.Close()

	video, audio, err := player.SelectTracks(dmx.Tracks())
	require.NoError(t, err)
	require.NotNil(t, video)
	require.NotNil(t, audio)

	decoders := map[int]*Decoder{}
	for _, tr := range []*player.TrackDescriptor{video, audio} {
		d, err := NewDecoder(*tr, Options{MaxWidth: 80, MaxHeight: 45})
		require.NoError(t, err)
		defer d.Close()
		decoders[tr.Index] = d
	}

	units := map[int]int{}
	drain := func(idx int, d *Decoder) error {
		for {
			u, err := d.Receive()
			if err != nil {
				return err
			}
			units[idx]++
			if idx == video.Index {
				assert.Equal(t, 80*45*3, len(u.Data))
			}
			d.Release(u, true)
		}
	}

	ctx := context.Background()
	for {
		s, err := dmx.ReadSample()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		d, ok := decoders[s.Track]
		if !ok {
			continue
		}
		// a held packet is retried by Receive, so drain until input opens up
		for d.pending {
			require.ErrorIs(t, drain(s.Track, d), player.ErrNotReady)
		}
		require.NoError(t, d.WaitInput(ctx))
		require.NoError(t, d.Submit(s.Data, s.PTS, s.KeyFrame, false))
		require.ErrorIs(t, drain(s.Track, d), player.ErrNotReady)
	}

	for idx, d := range decoders {
		require.NoError(t, d.Submit(nil, 0, false, true))
		assert.ErrorIs(t, drain(idx, d), player.ErrEndOfStream)
	}
	assert.InDelta(t, 30, units[video.Index], 2)
	assert.Positive(t, units[audio.Index])
}
