//go:build !linux

package sink

import "errors"

// ShmSupported reports false: shared memory transfer needs /dev/shm
func ShmSupported() bool {
	return false
}

func writeShmObject(name string, data []byte) error {
	return errors.New("shared memory transfer not supported on this platform")
}
