// Package execinfo provides glibc-style backtrace functions for Go programs.
//
// See doc.go for detailed documentation and examples.
package execinfo

import (
	"github.com/kolkov/execinfo/internal/capture"
	"github.com/kolkov/execinfo/internal/engine"
	"github.com/kolkov/execinfo/internal/symbols"
)

// Symbols is the single-arena result of BacktraceSymbols.
type Symbols = symbols.Buffer

// Engine resolves instruction addresses to source positions.
type Engine = engine.Engine

// Line is the source position of one address.
type Line = engine.Line

// DWARFEngine reads the DWARF line tables of one executable.
type DWARFEngine = engine.DWARF

// Option configures BacktraceSymbolsWith.
type Option = symbols.Option

// Errors returned by BacktraceSymbols.
//
// ErrEmptyRequest, ErrAllocation and ErrFirstFrameUnresolved all match
// ErrNoResult with errors.Is. ErrEngineInit does not: it reports debug
// information that exists but cannot be loaded, which callers are not
// expected to recover from.
var (
	ErrNoResult             = symbols.ErrNoResult
	ErrEmptyRequest         = symbols.ErrEmptyRequest
	ErrAllocation           = symbols.ErrAllocation
	ErrFirstFrameUnresolved = symbols.ErrFirstFrameUnresolved
	ErrEngineInit           = engine.ErrEngineInit
)

// DefaultDepth is the capture depth used by Trace.
const DefaultDepth = capture.Depth

// Init loads the process-wide debug-information engine now instead of on the
// first BacktraceSymbols call.
//
// Init is safe to call multiple times and from multiple goroutines; the
// engine is loaded once. The returned error wraps ErrEngineInit when the
// debug information is present but unusable.
func Init() error {
	_, err := engine.Default()
	return err
}

// Backtrace stores the return addresses of the calling goroutine's stack in
// buf and returns how many were written.
//
// The first address belongs to the caller of Backtrace; Backtrace itself is
// never recorded. At most len(buf) addresses are written. A short result
// only means the stack was shallower.
//
// Example:
//
//	var pcs [32]uintptr
//	n := execinfo.Backtrace(pcs[:])
//
//go:noinline
func Backtrace(buf []uintptr) int {
	return capture.Callers(1, buf)
}

// BacktraceSymbols translates addresses into "file:line" strings using the
// process-wide engine, loading it on first use.
//
// Each non-zero address yields one entry:
//   - "<file>:<line>" when the engine knows the address
//   - "unknown:0" when a later address is not covered
//   - "<hex address>:0" for a later address when no debug information
//     could be located
//
// Zero addresses yield empty entries. When the first address is not covered
// (always the case without debug information), or addrs is empty, or the arena would exceed EXECINFO_MAX_BUFFER, no
// Symbols is returned and the error matches ErrNoResult.
//
// The caller owns the returned Symbols and releases it once with Release.
func BacktraceSymbols(addrs []uintptr) (*Symbols, error) {
	if len(addrs) == 0 {
		return nil, ErrEmptyRequest
	}
	eng, err := engine.Default()
	if err != nil {
		return nil, err
	}
	return symbols.Resolve(eng, addrs, symbols.WithMaxSize(engine.Settings().MaxBuffer))
}

// BacktraceSymbolsWith is BacktraceSymbols with an explicit engine.
// A nil engine resolves nothing: a non-zero first address fails with
// ErrFirstFrameUnresolved and later addresses are rendered in hex.
func BacktraceSymbolsWith(eng Engine, addrs []uintptr, opts ...Option) (*Symbols, error) {
	return symbols.Resolve(eng, addrs, opts...)
}

// WithMaxSize caps the arena of BacktraceSymbolsWith at n bytes.
func WithMaxSize(n int) Option {
	return symbols.WithMaxSize(n)
}

// Trace captures up to depth frames starting at its caller and symbolizes
// them. depth <= 0 selects DefaultDepth.
//
//go:noinline
func Trace(depth int) (*Symbols, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	pcs := make([]uintptr, depth)
	n := capture.Callers(1, pcs)
	return BacktraceSymbols(pcs[:n])
}

// OpenEngine loads the debug information of another binary. Addresses
// passed to it are link-time addresses of that binary.
func OpenEngine(path string) (*DWARFEngine, error) {
	return engine.Open(path)
}
