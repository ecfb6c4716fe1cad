// Package engine maps instruction addresses back to source file and line.
//
// An Engine is the debug-information service the symbols package queries for
// every captured address. Two implementations are provided:
//
//   - DWARF: reads the DWARF line tables of an executable (ELF, Mach-O or PE)
//     through Go's debug/* packages. This is the default.
//   - Runtime: asks the Go runtime's own pcln tables. Always available,
//     but only for code of the running process.
//
// The process-wide engine is loaded lazily, exactly once, by Default.
// Loading distinguishes two failure classes:
//
//   - ErrNotFound: no usable debug information could be located (missing
//     file, unknown container, stripped binary). Callers degrade to printing
//     raw addresses.
//   - ErrEngineInit: debug information was located but could not be parsed.
//     This indicates a broken deployment and is not meant to be recovered.
package engine

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when no debug information can be located.
	ErrNotFound = errors.New("debug information not found")

	// ErrEngineInit is returned when located debug information cannot be loaded.
	ErrEngineInit = errors.New("debug information engine failed to initialize")
)

// Line is the source position of one instruction address.
type Line struct {
	// Addr is the address that was looked up.
	Addr uintptr

	// File is the source file name, empty when the engine knows the
	// address but not its file.
	File string

	// Line is the 1-based line number, 0 when unknown.
	Line uint32
}

// Engine resolves instruction addresses to source positions.
//
// Implementations must be safe for concurrent use.
type Engine interface {
	// LineForAddr returns the source position covering addr.
	// ok is false when addr is not covered by any debug information.
	LineForAddr(addr uintptr) (line Line, ok bool)
}

// Kind selects the engine implementation loaded for the process.
type Kind int

const (
	// KindDWARF reads DWARF line tables from the executable.
	KindDWARF Kind = iota
	// KindRuntime uses the Go runtime's pcln tables.
	KindRuntime
	// KindNone loads no engine; every address falls back to its hex form.
	KindNone
)

// String returns the configuration name of the kind.
func (k Kind) String() string {
	switch k {
	case KindDWARF:
		return "dwarf"
	case KindRuntime:
		return "runtime"
	case KindNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseKind parses a configuration name as produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dwarf", "":
		return KindDWARF, nil
	case "runtime":
		return KindRuntime, nil
	case "none":
		return KindNone, nil
	default:
		return KindDWARF, errors.Errorf("unknown engine %q (want dwarf, runtime or none)", s)
	}
}

// Option configures Open.
type Option func(*options)

type options struct {
	process bool
}

// WithProcess marks the opened binary as the image of the running process.
//
// Addresses passed to the engine are then runtime addresses, and the load
// bias of position-independent executables is subtracted before lookup.
func WithProcess() Option {
	return func(o *options) {
		o.process = true
	}
}
