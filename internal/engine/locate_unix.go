//go:build unix

package engine

import (
	"golang.org/x/sys/unix"
)

// readable reports whether path can be opened for reading by this process.
func readable(path string) error {
	return unix.Access(path, unix.R_OK)
}
