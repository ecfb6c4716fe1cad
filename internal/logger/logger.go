// Package logger configures zerolog for the execinfo tool and library.
//
// Two loggers exist. The global zerolog logger is set up by Configure for
// programs that own the process, such as the CLI. The library packages log
// through Library, which discards everything until the program calls
// Configure or the EXECINFO_LOG_LEVEL variable enables it through
// ConfigureLibrary, so importing execinfo never writes to a user's stderr
// or touches the user's global zerolog settings.
package logger

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var stderr = struct{ io.Writer }{os.Stderr}

var library atomic.Pointer[zerolog.Logger]

func init() { //nolint:gochecknoinits // the library logger must exist before first use
	nop := zerolog.Nop()
	library.Store(&nop)
}

// Library returns the logger the library packages write to.
func Library() *zerolog.Logger {
	return library.Load()
}

// ConfigureLibrary enables the library logger at level without touching the
// global zerolog logger. An empty level leaves the library logger as it is.
func ConfigureLibrary(level, logType string) {
	if strings.TrimSpace(level) == "" {
		return
	}
	var w io.Writer = stderr
	if strings.ToLower(logType) != "json" {
		w = zerolog.ConsoleWriter{Out: stderr, NoColor: !isTerminal(), TimeFormat: "15:04:05.999 |"}
	}
	l := zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Str("lib", "execinfo").Logger()
	library.Store(&l)
}

type tTesting interface {
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Helper()
	Cleanup(f func())
}

// ConfigureTestLogging routes log output into the test's own log.
func ConfigureTestLogging(t tTesting) {
	oldLogger := log.Logger
	oldContextLogger := zerolog.DefaultContextLogger
	oldLevel := zerolog.GlobalLevel()
	oldLibrary := library.Load()
	configure(zerolog.DebugLevel, "text", zerolog.ConsoleTestWriter(t))
	t.Cleanup(func() {
		library.Store(oldLibrary)
		log.Logger = oldLogger
		zerolog.DefaultContextLogger = oldContextLogger
		zerolog.SetGlobalLevel(oldLevel)
	})
}

// Configure sets the global level and output type and routes the library
// logger to the global one.
//
// Unknown levels select info; unknown types select text.
func Configure(level, logType string) {
	configure(ParseLevel(level), strings.ToLower(logType))
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func configure(level zerolog.Level, logType string, loggingOptions ...func(w *zerolog.ConsoleWriter)) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(level)

	defaultLogging := func(w *zerolog.ConsoleWriter) {
		w.Out = stderr
		w.NoColor = !isTerminal()
		w.TimeFormat = "15:04:05.999 |"
		w.PartsOrder = []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.CallerFieldName,
			zerolog.MessageFieldName,
		}
	}
	loggingOptions = append([]func(w *zerolog.ConsoleWriter){defaultLogging}, loggingOptions...)

	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return shortFile(file) + ":" + strconv.Itoa(line)
	}

	var w io.Writer = zerolog.NewConsoleWriter(loggingOptions...)
	if logType == "json" {
		w = stderr
	}

	log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()
	zerolog.DefaultContextLogger = &log.Logger
	l := log.Logger
	library.Store(&l)
}

func isTerminal() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

// shortFile keeps the last directory and the file name.
func shortFile(file string) string {
	separators := 0
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			separators++
			if separators >= 2 {
				return file[i+1:]
			}
		}
	}
	return file
}
