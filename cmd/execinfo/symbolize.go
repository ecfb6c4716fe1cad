// symbolize.go implements the 'execinfo symbolize' command.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/kolkov/execinfo/execinfo"
	"github.com/kolkov/execinfo/internal/config"
)

type symbolizeConfig struct {
	binary    string
	trim      bool
	maxBuffer int
	addrs     []string
}

// symbolizeCommand implements the 'execinfo symbolize' command.
//
// Addresses are link-time addresses of the binary, in hex with or without
// a 0x prefix. With no address arguments they are read from stdin,
// separated by whitespace.
//
// Example:
//
//	execinfo symbolize --binary ./app 4a1f3c 0x4a2000
func symbolizeCommand(args []string) {
	cfg, err := parseSymbolizeArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if err := runSymbolize(os.Stdout, os.Stdin, cfg); err != nil {
		fail(err)
	}
}

// parseSymbolizeArgs parses flags on top of the EXECINFO_ environment:
// --binary overrides EXECINFO_BINARY.
func parseSymbolizeArgs(args []string) (symbolizeConfig, error) {
	var out symbolizeConfig
	fs := pflag.NewFlagSet("symbolize", pflag.ContinueOnError)
	fs.StringP("binary", "b", "", "binary to read debug information from")
	fs.BoolVar(&out.trim, "trim", false, "print paths relative to the current Go module")
	if err := fs.Parse(args); err != nil {
		return out, err
	}

	v := config.New()
	if err := v.BindPFlag(config.KeyBinary, fs.Lookup("binary")); err != nil {
		return out, err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return out, err
	}
	if cfg.Binary == "" {
		return out, errors.New("--binary is required")
	}
	out.binary = cfg.Binary
	out.maxBuffer = cfg.MaxBuffer
	out.addrs = fs.Args()
	return out, nil
}

func runSymbolize(w io.Writer, stdin io.Reader, cfg symbolizeConfig) error {
	t, err := loadTrimmer(cfg.trim)
	if err != nil {
		return err
	}

	var addrs []uintptr
	if len(cfg.addrs) > 0 {
		addrs, err = parseAddrs(cfg.addrs)
	} else {
		addrs, err = readAddrs(stdin)
	}
	if err != nil {
		return err
	}

	var eng execinfo.Engine
	d, err := execinfo.OpenEngine(cfg.binary)
	switch {
	case err == nil:
		defer d.Close()
		eng = d
	case errors.Is(err, execinfo.ErrEngineInit):
		return err
	default:
		log.Warn().Err(err).Str("binary", cfg.binary).Msg("no debug information, printing raw addresses")
	}

	syms, err := execinfo.BacktraceSymbolsWith(eng, addrs, execinfo.WithMaxSize(cfg.maxBuffer))
	if err != nil {
		return err
	}
	defer syms.Release()
	return printSymbols(w, syms, t)
}

// parseAddr parses one hex address, with or without a 0x prefix.
func parseAddr(s string) (uintptr, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(h, 16, strconv.IntSize)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid address %q", s)
	}
	return uintptr(v), nil
}

func parseAddrs(fields []string) ([]uintptr, error) {
	addrs := make([]uintptr, 0, len(fields))
	for _, f := range fields {
		a, err := parseAddr(f)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

func readAddrs(r io.Reader) ([]uintptr, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	var fields []string
	for sc.Scan() {
		fields = append(fields, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "reading addresses")
	}
	return parseAddrs(fields)
}
