package engine

import "runtime"

// Runtime answers lookups from the Go runtime's pcln tables.
//
// It needs no file access and survives stripped binaries (-ldflags=-w keeps
// pcln tables), but only knows addresses of the running process.
type Runtime struct{}

// NewRuntime returns the runtime-backed engine.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// LineForAddr implements Engine.
func (*Runtime) LineForAddr(addr uintptr) (Line, bool) {
	if addr == 0 {
		return Line{}, false
	}
	fn := runtime.FuncForPC(addr)
	if fn == nil {
		return Line{}, false
	}
	file, line := fn.FileLine(addr)
	if file == "" || file == "?" || line <= 0 {
		return Line{}, false
	}
	return Line{Addr: addr, File: file, Line: uint32(line)}, true
}
