//go:build !unix

package engine

import "os"

// readable reports whether path can be opened for reading by this process.
func readable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}
