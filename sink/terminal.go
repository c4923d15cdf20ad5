package sink

import (
	"os"

	"golang.org/x/sys/unix"
)

// Cell size assumed when the terminal reports no pixel geometry
const (
	fallbackCellWidth  = 8
	fallbackCellHeight = 16
)

// TerminalSize is the window size in cells and pixels
type TerminalSize struct {
	Cols, Rows        int
	WidthPx, HeightPx int
}

// QueryTerminalSize asks the terminal on stdout for its window size
func QueryTerminalSize() (TerminalSize, error) {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return TerminalSize{}, err
	}
	return sizeFromWinsize(ws), nil
}

func sizeFromWinsize(ws *unix.Winsize) TerminalSize {
	s := TerminalSize{
		Cols:     int(ws.Col),
		Rows:     int(ws.Row),
		WidthPx:  int(ws.Xpixel),
		HeightPx: int(ws.Ypixel),
	}
	// Some terminals leave the pixel fields zero
	if s.WidthPx == 0 || s.HeightPx == 0 {
		s.WidthPx = s.Cols * fallbackCellWidth
		s.HeightPx = s.Rows * fallbackCellHeight
	}
	return s
}
