// Package sink holds the concrete video and audio outputs of the player.
package sink

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/njyeung/avsync/player"
)

// chunkSize is the largest base64 payload per kitty graphics escape
const chunkSize = 4096

// KittySink presents RGB24 frames with the kitty graphics protocol
type KittySink struct {
	mu sync.Mutex

	out     io.Writer
	imageID int
	lastW   int
	lastH   int

	// shm transfers pixels through /dev/shm instead of inline base64
	shm    bool
	shmSeq int

	// Cell position for placement (1-indexed row/col)
	cellRow int
	cellCol int

	term     TerminalSize
	recenter bool
}

// NewKittySink creates a sink writing escapes to out. With shm set, frames
// are handed to the terminal through shared memory.
func NewKittySink(out io.Writer, shm bool) *KittySink {
	return &KittySink{
		out:     out,
		imageID: 1,
		shm:     shm,
	}
}

// SetTerminalSize sets the terminal dimensions. The next frame is recentered.
func (k *KittySink) SetTerminalSize(size TerminalSize) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.term = size
	k.recenter = true
}

// center computes the cell position that centers a frame. Caller holds mu.
func (k *KittySink) center(width, height int) {
	t := k.term
	if t.Cols <= 0 || t.Rows <= 0 || t.WidthPx <= 0 || t.HeightPx <= 0 {
		return
	}
	cellW := max(t.WidthPx/t.Cols, 1)
	cellH := max(t.HeightPx/t.Rows, 1)

	cols := (width + cellW - 1) / cellW
	rows := (height + cellH - 1) / cellH

	k.cellCol = max((t.Cols-cols)/2+1, 1)
	k.cellRow = max((t.Rows-rows)/2+1, 1)
}

// Present implements player.VideoSink
func (k *KittySink) Present(f player.Frame) error {
	if want := f.Width * f.Height * 3; len(f.Data) < want {
		return fmt.Errorf("short RGB frame: %d bytes for %dx%d", len(f.Data), f.Width, f.Height)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.recenter || f.Width != k.lastW || f.Height != k.lastH {
		k.center(f.Width, f.Height)
		k.recenter = false
	}

	// Buffer the entire frame to write atomically
	var buf bytes.Buffer

	// Begin synchronized update, save cursor
	buf.WriteString("\x1b[?2026h\x1b7")

	// Delete previous image first
	if k.lastW > 0 {
		fmt.Fprintf(&buf, "\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", k.imageID)
	}

	if k.cellRow > 0 && k.cellCol > 0 {
		fmt.Fprintf(&buf, "\x1b[%d;%dH", k.cellRow, k.cellCol)
	} else {
		buf.WriteString("\x1b[H")
	}

	if k.shm {
		if err := k.writeShm(&buf, f); err != nil {
			return err
		}
	} else {
		k.writeInline(&buf, f)
	}

	k.lastW = f.Width
	k.lastH = f.Height

	// Restore cursor, end synchronized update
	buf.WriteString("\x1b8\x1b[?2026l")

	_, err := k.out.Write(buf.Bytes())
	return err
}

// writeInline transmits the frame as chunked base64:
//
//	a=T transmit and display, f=24 RGB, s/v size, i image id, q=2 quiet,
//	m=1 while more chunks follow
func (k *KittySink) writeInline(buf *bytes.Buffer, f player.Frame) {
	encoded := base64.StdEncoding.EncodeToString(f.Data[:f.Width*f.Height*3])

	first := true
	for len(encoded) > 0 {
		chunk := encoded
		more := 0
		if len(chunk) > chunkSize {
			chunk = encoded[:chunkSize]
			more = 1
		}
		encoded = encoded[len(chunk):]

		if first {
			fmt.Fprintf(buf, "\x1b_Ga=T,f=24,s=%d,v=%d,i=%d,q=2,m=%d;%s\x1b\\",
				f.Width, f.Height, k.imageID, more, chunk)
			first = false
		} else {
			fmt.Fprintf(buf, "\x1b_Gm=%d;%s\x1b\\", more, chunk)
		}
	}
}

// writeShm stores the frame in a shared memory object the terminal reads
// and unlinks (t=s)
func (k *KittySink) writeShm(buf *bytes.Buffer, f player.Frame) error {
	k.shmSeq++
	name := fmt.Sprintf("/avsync-%d-%d", k.imageID, k.shmSeq)
	if err := writeShmObject(name, f.Data[:f.Width*f.Height*3]); err != nil {
		return fmt.Errorf("failed to write shm frame: %w", err)
	}
	fmt.Fprintf(buf, "\x1b_Ga=T,f=24,s=%d,v=%d,i=%d,t=s,q=2;%s\x1b\\",
		f.Width, f.Height, k.imageID, base64.StdEncoding.EncodeToString([]byte(name)))
	return nil
}

// Clear deletes the video image
func (k *KittySink) Clear() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.lastW, k.lastH = 0, 0
	_, err := fmt.Fprintf(k.out, "\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", k.imageID)
	return err
}
