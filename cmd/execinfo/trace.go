// trace.go implements the 'execinfo trace' command.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/kolkov/execinfo/execinfo"
)

type traceConfig struct {
	depth int
	trim  bool
}

// traceCommand implements the 'execinfo trace' command.
//
// It captures the tool's own stack and prints it symbolized with the
// process-wide engine, exactly as a library caller would see it.
//
// Example:
//
//	execinfo trace --depth 8 --trim
func traceCommand(args []string) {
	cfg, err := parseTraceArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := runTrace(os.Stdout, cfg); err != nil {
		fail(err)
	}
}

func parseTraceArgs(args []string) (traceConfig, error) {
	var cfg traceConfig
	fs := pflag.NewFlagSet("trace", pflag.ContinueOnError)
	fs.IntVarP(&cfg.depth, "depth", "n", execinfo.DefaultDepth, "maximum number of frames")
	fs.BoolVar(&cfg.trim, "trim", false, "print paths relative to the current Go module")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if cfg.depth <= 0 {
		return cfg, fmt.Errorf("--depth must be positive, got %d", cfg.depth)
	}
	return cfg, nil
}

func runTrace(w io.Writer, cfg traceConfig) error {
	t, err := loadTrimmer(cfg.trim)
	if err != nil {
		return err
	}
	syms, err := execinfo.Trace(cfg.depth)
	if err != nil {
		return err
	}
	defer syms.Release()
	return printSymbols(w, syms, t)
}
