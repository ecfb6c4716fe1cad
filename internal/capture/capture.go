// Package capture records the return addresses of the calling goroutine's stack.
//
// It is the Go counterpart of glibc's backtrace(): the caller supplies the
// destination slice, its length caps the capture depth, and the number of
// addresses actually written is returned. The capturing function's own frame
// is never part of the result.
//
// Usage:
//
//	var pcs [capture.Depth]uintptr
//	n := capture.Backtrace(pcs[:])
//	addrs := pcs[:n]
//
// The addresses are raw return addresses as reported by runtime.Callers.
// They can be symbolized with the symbols package or, for Go-level function
// names, with runtime.CallersFrames.
package capture

import "runtime"

// Depth is the capture depth used by callers that do not bring their own
// buffer size.
const Depth = 64

// Backtrace fills buf with the return addresses of the active call stack,
// starting at the caller of Backtrace.
//
// Parameters:
//   - buf: Destination slice; len(buf) is the maximum number of frames
//
// Returns:
//   - int: Number of addresses written, 0 <= n <= len(buf)
//
// A result shorter than len(buf) means the stack was shallower; it is not an
// error. Backtrace does not allocate.
//
// Thread Safety: Safe for concurrent calls (reads only goroutine-local state).
//
//go:noinline
func Backtrace(buf []uintptr) int {
	// Skip 2 frames:
	//   - runtime.Callers itself
	//   - Backtrace
	return runtime.Callers(2, buf)
}

// Callers is Backtrace with skip additional frames removed above the caller.
//
// Callers(0, buf) records the same frames as Backtrace(buf) called from the
// same place. Wrappers pass skip=1 so their own frame is not recorded.
//
//go:noinline
func Callers(skip int, buf []uintptr) int {
	if skip < 0 {
		skip = 0
	}
	return runtime.Callers(2+skip, buf)
}
