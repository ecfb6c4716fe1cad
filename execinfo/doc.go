// Package execinfo provides backtrace() and backtrace_symbols() for Go programs.
//
// The API mirrors glibc's <execinfo.h>: one call captures the raw return
// addresses of the current goroutine, a second call turns them into
// "file:line" strings. The strings live in one arena that is released as a
// unit, laid out like the single allocation glibc returns.
//
// # Quick Start
//
//	var pcs [32]uintptr
//	n := execinfo.Backtrace(pcs[:])
//
//	syms, err := execinfo.BacktraceSymbols(pcs[:n])
//	if err != nil {
//		// errors.Is(err, execinfo.ErrNoResult): nothing to print
//		return
//	}
//	defer syms.Release()
//
//	for _, s := range syms.Strings() {
//		fmt.Println(s) // /src/app/main.go:42
//	}
//
// # How Addresses Are Resolved
//
// The first BacktraceSymbols call loads a debug-information engine for the
// whole process, exactly once, even under concurrent first use:
//
//   - dwarf (default): DWARF line tables of the running executable, read with
//     Go's debug/elf, debug/macho and debug/pe packages. The load bias of
//     position-independent executables is detected automatically.
//   - runtime: the Go runtime's own pcln tables.
//   - none: no engine.
//
// When no debug information can be located (for example a binary linked
// with -ldflags=-w), no address resolves: the first address fails the
// request as described below, and later ones are printed as lowercase hex
// followed by ":0". When debug information is present but cannot be parsed, the engine
// load fails with ErrEngineInit and every later call returns the same error.
//
// # Failure Policy
//
// If the engine cannot resolve the first address of a request, the whole
// request fails with ErrFirstFrameUnresolved: the caller's own frame being
// unknown means the result would be misleading. This includes running
// without an engine. Later unresolved addresses are printed as "unknown:0",
// or in hex when there is no engine.
//
// # Configuration
//
// Environment variables, read once when the engine loads:
//
//	EXECINFO_ENGINE      dwarf | runtime | none
//	EXECINFO_BINARY      file to read debug information from
//	EXECINFO_MAX_BUFFER  arena ceiling in bytes (0 = unlimited)
//	EXECINFO_CACHE       cache per-address lookups (default true)
//	EXECINFO_LOG_LEVEL   enables the library's diagnostics on stderr (off by default)
//
// # Thread Safety
//
// All functions are safe for concurrent use. A Symbols value must not be used
// concurrently with its own Release.
package execinfo
