package mp4

import (
	"github.com/nareix/joy4/codec/aacparser"
	"github.com/nareix/joy4/codec/h264parser"
)

var startCode = []byte{0, 0, 0, 1}

// annexB rewrites a length-prefixed access unit with start codes. Key frames
// get the stream's SPS and PPS in front.
func annexB(codec h264parser.CodecData, data []byte, keyFrame bool) []byte {
	nalus, _ := h264parser.SplitNALUs(data)

	var params [][]byte
	if keyFrame && len(codec.RecordInfo.SPS) > 0 && len(codec.RecordInfo.PPS) > 0 {
		params = [][]byte{codec.SPS(), codec.PPS()}
	}

	size := 0
	for _, nalu := range params {
		size += len(startCode) + len(nalu)
	}
	for _, nalu := range nalus {
		size += len(startCode) + len(nalu)
	}

	out := make([]byte, 0, size)
	for _, nalu := range params {
		out = append(out, startCode...)
		out = append(out, nalu...)
	}
	for _, nalu := range nalus {
		out = append(out, startCode...)
		out = append(out, nalu...)
	}
	return out
}

// adts prefixes a raw AAC frame with an ADTS header
func adts(config aacparser.MPEG4AudioConfig, frame []byte) []byte {
	out := make([]byte, aacparser.ADTSHeaderLength+len(frame))
	aacparser.FillADTSHeader(out, config, 1024, len(frame))
	copy(out[aacparser.ADTSHeaderLength:], frame)
	return out
}
