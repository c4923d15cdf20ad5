package cli

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njyeung/avsync/config"
	"github.com/njyeung/avsync/ffmpeg"
	"github.com/njyeung/avsync/mp4"
	"github.com/njyeung/avsync/player"
)

type stubDemuxer struct {
	tracks []player.TrackDescriptor
	closed bool
}

func (s *stubDemuxer) Tracks() []player.TrackDescriptor    { return s.tracks }
func (s *stubDemuxer) ReadSample() (player.Sample, error) { return player.Sample{}, io.EOF }
func (s *stubDemuxer) SeekToStart() error                 { return nil }
func (s *stubDemuxer) Close() error                       { s.closed = true; return nil }

func init() {
	color.NoColor = true
}

func TestProbeListsSelection(t *testing.T) {
	d := &stubDemuxer{tracks: []player.TrackDescriptor{
		{Index: 0, Kind: player.Video, Codec: player.CodecH264, Width: 1280, Height: 720},
		{Index: 1, Kind: player.Audio, Codec: player.CodecUnknown, SampleRate: 48000, Channels: 2},
		{Index: 2, Kind: player.Audio, Codec: player.CodecAAC, SampleRate: 44100, Channels: 2},
	}}
	var out bytes.Buffer

	err := probe(&out, func(string) (player.Demuxer, error) { return d, nil }, "clip.mp4")
	require.NoError(t, err)
	assert.True(t, d.closed)

	s := out.String()
	assert.Contains(t, s, "clip.mp4: 3 tracks")
	assert.Contains(t, s, "#0 video h264    1280x720  [play]")
	assert.Contains(t, s, "#1 audio unknown 48000Hz 2ch\n")
	assert.Contains(t, s, "#2 audio aac     44100Hz 2ch  [play]")
	assert.Contains(t, s, "sync clock: audio")
}

func TestProbeWithoutPlayableTrack(t *testing.T) {
	d := &stubDemuxer{tracks: []player.TrackDescriptor{
		{Index: 0, Kind: player.Audio, Codec: player.CodecUnknown},
	}}
	var out bytes.Buffer

	err := probe(&out, func(string) (player.Demuxer, error) { return d, nil }, "x.mp4")
	assert.ErrorIs(t, err, player.ErrNoSupportedTrack)
	assert.Contains(t, out.String(), "no playable track")
}

func TestProbeOpenError(t *testing.T) {
	openErr := errors.New("permission denied")
	err := probe(io.Discard, func(string) (player.Demuxer, error) { return nil, openErr }, "x.mp4")
	assert.ErrorIs(t, err, openErr)
}

func TestOpenerFor(t *testing.T) {
	assert.Equal(t, reflect.ValueOf(mp4.Open).Pointer(), reflect.ValueOf(openerFor(config.DemuxerMP4)).Pointer())
	assert.Equal(t, reflect.ValueOf(ffmpeg.Open).Pointer(), reflect.ValueOf(openerFor(config.DemuxerFFmpeg)).Pointer())
}

func TestNewLoggerLevel(t *testing.T) {
	var out bytes.Buffer
	newLogger(&out, false).Debug("hidden")
	assert.Zero(t, out.Len())

	newLogger(&out, true).Debug("shown", "k", 1)
	assert.Contains(t, out.String(), "msg=shown k=1")
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "play")
	assert.Contains(t, names, "probe")
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestPlayRejectsInvalidFlag(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"play", "--video-sink", "sixel", "clip.mp4"})

	err := root.Execute()
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestPlayRequiresFile(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"play"})

	assert.Error(t, root.Execute())
}
