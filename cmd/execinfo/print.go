package main

import (
	"fmt"
	"io"

	"github.com/kolkov/execinfo/execinfo"
)

// printSymbols writes one entry per line; zero addresses print as <nil>.
func printSymbols(w io.Writer, syms *execinfo.Symbols, t *trimmer) error {
	for i := 0; i < syms.Len(); i++ {
		s, ok := syms.At(i)
		if !ok {
			s = "<nil>"
		}
		if _, err := fmt.Fprintln(w, t.trim(s)); err != nil {
			return err
		}
	}
	return nil
}

// loadTrimmer returns the trimmer for the working directory when enabled.
func loadTrimmer(enabled bool) (*trimmer, error) {
	if !enabled {
		return nil, nil
	}
	return newTrimmer(".")
}
