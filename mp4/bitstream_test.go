package mp4

import (
	"bytes"
	"os"
	"testing"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/aacparser"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCodec = h264parser.CodecData{
	RecordInfo: h264parser.AVCDecoderConfRecord{
		SPS: [][]byte{{0x67, 0x42, 0x00, 0x1e}},
		PPS: [][]byte{{0x68, 0xce, 0x3c, 0x80}},
	},
}

func avcc(nalus ...[]byte) []byte {
	var b []byte
	for _, n := range nalus {
		l := len(n)
		b = append(b, byte(l>>24), byte(l>>16), byte(l>>8), byte(l))
		b = append(b, n...)
	}
	return b
}

func TestAnnexBKeyFrame(t *testing.T) {
	t.Parallel()
	idr := []byte{0x65, 0x88, 0x84, 0x00, 0x33}
	out := annexB(testCodec, avcc(idr), true)

	want := bytes.Join([][]byte{
		nil,
		testCodec.SPS(),
		testCodec.PPS(),
		idr,
	}, startCode)
	assert.Equal(t, want, out)

	nalus, typ := h264parser.SplitNALUs(out)
	assert.Equal(t, h264parser.NALU_ANNEXB, typ)
	assert.Len(t, nalus, 3)
}

func TestAnnexBDeltaFrame(t *testing.T) {
	t.Parallel()
	sei := []byte{0x06, 0x05, 0x01, 0x00}
	slice := []byte{0x41, 0x9a, 0x02, 0x10, 0x20}
	out := annexB(testCodec, avcc(sei, slice), false)

	want := bytes.Join([][]byte{nil, sei, slice}, startCode)
	assert.Equal(t, want, out)
}

func TestADTS(t *testing.T) {
	t.Parallel()
	config := aacparser.MPEG4AudioConfig{
		ObjectType:      aacparser.AOT_AAC_LC,
		SampleRateIndex: 4, // 44100
		ChannelConfig:   2,
	}
	frame := bytes.Repeat([]byte{0xab}, 371)
	out := adts(config, frame)
	require.Len(t, out, aacparser.ADTSHeaderLength+len(frame))

	parsed, hdrlen, framelen, samples, err := aacparser.ParseADTSHeader(out)
	require.NoError(t, err)
	assert.Equal(t, aacparser.ADTSHeaderLength, hdrlen)
	assert.Equal(t, len(out), framelen)
	assert.Equal(t, 1024, samples)
	assert.Equal(t, 44100, parsed.SampleRate)
	assert.Equal(t, av.CH_STEREO, parsed.ChannelLayout)
	assert.Equal(t, frame, out[hdrlen:])
}

func TestNewDemuxerRejectsNonMP4(t *testing.T) {
	t.Parallel()
	_, err := NewDemuxer(bytes.NewReader([]byte("definitely not an mp4 file")))
	assert.Error(t, err)
}

func TestOpenMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Open(os.DevNull + "/missing.mp4")
	assert.Error(t, err)
}
