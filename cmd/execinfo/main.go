// Package main implements the execinfo CLI tool.
//
// The tool prints symbolized backtraces the way glibc's backtrace_symbols()
// renders them, one "file:line" per frame:
//
//	execinfo trace                          # the tool's own stack
//	execinfo symbolize --binary ./app 4a1f3c  # addresses of another binary
//
// Settings come from the EXECINFO_* environment variables; see package
// config.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kolkov/execinfo/execinfo"
	"github.com/kolkov/execinfo/internal/config"
	"github.com/kolkov/execinfo/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	level := cfg.LogLevel
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	logger.Configure(level, cfg.LogType)

	command := os.Args[1]

	switch command {
	case "trace":
		traceCommand(os.Args[2:])
	case "symbolize":
		symbolizeCommand(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("execinfo version %s\n", execinfo.Version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

// fail reports err and exits. Engine initialisation failures are fatal and
// go through the logger.
func fail(err error) {
	if errors.Is(err, execinfo.ErrEngineInit) {
		log.Fatal().Err(err).Msg("debug information engine is unusable")
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Print(`execinfo - backtrace() and backtrace_symbols() for Go

USAGE:
    execinfo <command> [arguments]

COMMANDS:
    trace       Print the tool's own symbolized stack
    symbolize   Resolve addresses against a binary's debug information
    version     Show version information
    help        Show this help message

EXAMPLES:
    # Print the current stack, 8 frames deep
    execinfo trace --depth 8

    # Resolve link-time addresses of another binary
    execinfo symbolize --binary ./app 4a1f3c 0x4a2000

    # Read addresses from stdin, print paths relative to the module
    nm ./app | awk '{print $1}' | execinfo symbolize --binary ./app --trim

ENVIRONMENT:
    EXECINFO_ENGINE       dwarf | runtime | none (default dwarf)
    EXECINFO_BINARY       debug information file (default: the executable)
    EXECINFO_MAX_BUFFER   arena ceiling in bytes (default 0, unlimited)
    EXECINFO_CACHE        cache per-address lookups (default true)
    EXECINFO_LOG_LEVEL    trace | debug | info | warn | error
    EXECINFO_LOG_TYPE     text | json

OUTPUT:
    Each frame is printed as <file>:<line>, unknown later frames as
    unknown:0 and zero addresses as <nil>. An unknown first frame is an
    error. Without debug information the first frame is always unknown
    and later frames print as <hex>:0.

`)
}
