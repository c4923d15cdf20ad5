//go:build linux

package sink

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const (
	shmDir       = "/dev/shm"
	shmProbeName = "/avsync-probe"
	shmProbeID   = 999
)

// ShmSupported reports whether /dev/shm exists and the terminal accepts kitty
// shared memory transfers (t=s). It talks to the terminal on stdin/stdout, so
// call it before playback starts.
func ShmSupported() bool {
	if info, err := os.Stat(shmDir); err != nil || !info.IsDir() {
		return false
	}

	restore, err := rawInput(int(os.Stdin.Fd()))
	if err != nil {
		return false
	}
	defer restore()

	if err := writeShmObject(shmProbeName, []byte{0, 0, 0}); err != nil {
		return false
	}
	defer os.Remove(shmDir + shmProbeName)

	// Without q= the terminal answers \x1b_Gi=999;OK\x1b\\ when it can read the object
	fmt.Fprintf(os.Stdout, "\x1b_Ga=T,f=24,s=1,v=1,i=%d,t=s;%s\x1b\\",
		shmProbeID, base64.StdEncoding.EncodeToString([]byte(shmProbeName)))
	reply := make([]byte, 256)
	n, _ := os.Stdin.Read(reply)
	fmt.Fprintf(os.Stdout, "\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", shmProbeID)

	return n > 0 && strings.Contains(string(reply[:n]), "OK")
}

// rawInput puts fd into non-canonical mode with a 200ms read timeout and
// discards pending input. The returned func restores the old settings.
func rawInput(fd int) (func(), error) {
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}
	raw := *old
	raw.Lflag &^= unix.ECHO | unix.ICANON | unix.ISIG
	raw.Iflag &^= unix.IXON | unix.ICRNL
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = 2
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return nil, err
	}

	pending := make([]byte, 256)
	os.Stdin.Read(pending)

	return func() { unix.IoctlSetTermios(fd, unix.TCSETS, old) }, nil
}

// writeShmObject creates the shared memory object name holding data
func writeShmObject(name string, data []byte) error {
	return os.WriteFile(shmDir+name, data, 0600)
}
