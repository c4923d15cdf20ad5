package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChoosePrimary(t *testing.T) {
	t.Parallel()
	assert.Equal(t, PrimaryAudio, ChoosePrimary(true, true))
	assert.Equal(t, PrimaryAudio, ChoosePrimary(false, true))
	assert.Equal(t, PrimaryVideo, ChoosePrimary(true, false))
	assert.Equal(t, PrimaryNone, ChoosePrimary(false, false))
}

func TestSyncClockLifecycle(t *testing.T) {
	t.Parallel()
	c := NewSyncClock()
	assert.False(t, c.Initialized())

	now := time.Now()
	c.Touch(now)
	assert.False(t, c.Initialized(), "touch must not initialize")

	c.Set(42, now)
	pts, wall, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, int64(42), pts)
	assert.Equal(t, now, wall)

	later := now.Add(time.Second)
	c.Touch(later)
	pts, wall, _ = c.Get()
	assert.Equal(t, int64(42), pts)
	assert.Equal(t, later, wall)

	c.Reset()
	_, _, ok = c.Get()
	assert.False(t, ok)
}

func TestPaceInitializesPrimary(t *testing.T) {
	t.Parallel()
	c := NewClocks(PrimaryAudio)
	now := time.Now()

	wait, drop := c.Pace(Audio, 1000, now)
	assert.False(t, drop)
	assert.Zero(t, wait)

	pts, wall, ok := c.Clock(Audio).Get()
	require.True(t, ok)
	assert.Equal(t, int64(1000), pts)
	assert.Equal(t, now, wall)
}

func TestPaceDropsBeforePrimary(t *testing.T) {
	t.Parallel()
	c := NewClocks(PrimaryAudio)

	_, drop := c.Pace(Video, 0, time.Now())
	assert.True(t, drop)
	assert.False(t, c.Clock(Video).Initialized())
	assert.False(t, c.Clock(Audio).Initialized())
}

func TestPaceWaitsForOffset(t *testing.T) {
	t.Parallel()
	c := NewClocks(PrimaryAudio)
	t0 := time.Now()
	c.Clock(Audio).Set(100_000, t0)

	// 150ms ahead of the primary, 20ms already elapsed: wait 130ms
	now := t0.Add(20 * time.Millisecond)
	wait, drop := c.Pace(Video, 250_000, now)
	require.False(t, drop)
	assert.Equal(t, 130*time.Millisecond, wait)

	pts, wall, ok := c.Clock(Video).Get()
	require.True(t, ok)
	assert.Equal(t, int64(250_000), pts)
	assert.Equal(t, t0.Add(150*time.Millisecond), wall)
}

func TestPaceLateUnitIsNotDropped(t *testing.T) {
	t.Parallel()
	c := NewClocks(PrimaryAudio)
	t0 := time.Now()
	c.Clock(Audio).Set(0, t0)

	wait, drop := c.Pace(Video, 10_000, t0.Add(time.Second))
	assert.False(t, drop)
	assert.Zero(t, wait)
	assert.True(t, c.Clock(Video).Initialized())
}

func TestPacePrimaryAdvancesOwnTimeline(t *testing.T) {
	t.Parallel()
	c := NewClocks(PrimaryVideo)
	t0 := time.Now()

	_, drop := c.Pace(Video, 0, t0)
	require.False(t, drop)

	wait, drop := c.Pace(Video, videoFrameMicros, t0.Add(5*time.Millisecond))
	require.False(t, drop)
	assert.Equal(t, videoFrameMicros*time.Microsecond-5*time.Millisecond, wait)

	pts, wall, _ := c.Clock(Video).Get()
	assert.Equal(t, int64(videoFrameMicros), pts)
	assert.Equal(t, t0.Add(videoFrameMicros*time.Microsecond), wall)
}

func TestPaceWithoutPrimary(t *testing.T) {
	t.Parallel()
	c := NewClocks(PrimaryNone)
	assert.Nil(t, c.PrimaryClock())

	wait, drop := c.Pace(Video, 1, time.Now())
	assert.False(t, drop)
	assert.Zero(t, wait)
}

func TestPaceAfterPauseHasNoBacklog(t *testing.T) {
	t.Parallel()
	c := NewClocks(PrimaryAudio)
	t0 := time.Now()
	c.Clock(Audio).Set(0, t0)

	// a 2s pause keeps the primary fresh through Touch
	resumed := t0.Add(2 * time.Second)
	c.Clock(Audio).Touch(resumed)

	wait, _ := c.Pace(Audio, 50_000, resumed)
	assert.Equal(t, 50*time.Millisecond, wait)
}

func TestResetAll(t *testing.T) {
	t.Parallel()
	c := NewClocks(PrimaryAudio)
	now := time.Now()
	c.Clock(Audio).Set(1, now)
	c.Clock(Video).Set(2, now)

	c.ResetAll()
	assert.False(t, c.Clock(Audio).Initialized())
	assert.False(t, c.Clock(Video).Initialized())

	_, drop := c.Pace(Video, 3, now)
	assert.True(t, drop)
}

func TestPaceAdoptsPrimaryAfterPrimaryEnded(t *testing.T) {
	t.Parallel()
	c := NewClocks(PrimaryAudio)
	t0 := time.Now()

	_, drop := c.Pace(Video, 0, t0)
	assert.True(t, drop)

	c.EndPrimary()
	wait, drop := c.Pace(Video, videoFrameMicros, t0)
	require.False(t, drop)
	assert.Zero(t, wait)

	pts, wall, ok := c.Clock(Audio).Get()
	require.True(t, ok)
	assert.Equal(t, int64(videoFrameMicros), pts)
	assert.Equal(t, t0, wall)

	wait, drop = c.Pace(Video, 2*videoFrameMicros, t0.Add(3*time.Millisecond))
	require.False(t, drop)
	assert.Equal(t, videoFrameMicros*time.Microsecond-3*time.Millisecond, wait)

	c.ResetAll()
	assert.False(t, c.PrimaryEnded())
	_, drop = c.Pace(Video, 0, t0)
	assert.True(t, drop)
}

func TestSleepCtx(t *testing.T) {
	t.Parallel()
	start := time.Now()
	assert.True(t, sleepCtx(context.Background(), 25*time.Millisecond, 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(15 * time.Millisecond)
		cancel()
	}()
	start = time.Now()
	assert.False(t, sleepCtx(ctx, time.Hour, 10*time.Millisecond))
	assert.Less(t, time.Since(start), time.Second)
}
