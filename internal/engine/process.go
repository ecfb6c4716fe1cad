package engine

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/kolkov/execinfo/internal/config"
	"github.com/kolkov/execinfo/internal/logger"
)

// process is the engine shared by every symbolization in this process.
//
// Lifecycle: uninitialised -> loaded. The load runs at most once; its outcome
// (an engine, no engine, or a fatal error) is kept forever. There is no
// teardown and no reload.
var process struct {
	// loaded is the lock-free fast path; it is set only after eng, err
	// and cfg are written.
	loaded atomic.Bool

	// mu serializes the load path so concurrent first callers see a
	// single load.
	mu sync.Mutex

	eng   Engine
	err   error
	cfg   config.Config
	loads int
}

// loadProcess is replaced in tests.
var loadProcess = load

// Default returns the process-wide engine, loading it on first use.
//
// Returns:
//   - (engine, nil): engine ready
//   - (nil, nil): no debug information located; callers fall back to
//     raw addresses
//   - (nil, err): err wraps ErrEngineInit; the deployment is broken and
//     the error is returned unchanged by every later call
//
// Thread Safety: Safe for concurrent calls. Exactly one caller performs the
// load; the others block until it finishes.
func Default() (Engine, error) {
	ensure()
	return process.eng, process.err
}

// Settings returns the configuration the process engine was loaded with.
func Settings() config.Config {
	ensure()
	return process.cfg
}

func ensure() {
	if process.loaded.Load() {
		return
	}
	process.mu.Lock()
	defer process.mu.Unlock()
	if process.loaded.Load() {
		return
	}
	process.eng, process.cfg, process.err = loadProcess()
	process.loads++
	process.loaded.Store(true)
}

// ResetForTest returns the process engine to the uninitialised state.
//
// Only for tests: NOT safe to call while other goroutines use Default.
func ResetForTest() {
	process.mu.Lock()
	defer process.mu.Unlock()
	if c, ok := process.eng.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	process.eng, process.err, process.cfg, process.loads = nil, nil, config.Config{}, 0
	process.loaded.Store(false)
}

// load builds the process engine from the environment configuration.
func load() (Engine, config.Config, error) {
	cfg, err := config.Load()
	logger.ConfigureLibrary(cfg.LogLevel, cfg.LogType)
	if err != nil {
		logger.Library().Warn().Err(err).Msg("invalid execinfo configuration, using defaults")
		cfg = config.Default()
	}
	kind, err := ParseKind(cfg.Engine)
	if err != nil {
		logger.Library().Warn().Err(err).Msg("falling back to the dwarf engine")
	}

	eng, err := loadKind(kind, cfg.Binary)
	if err != nil {
		if errors.Is(err, ErrEngineInit) {
			logger.Library().Error().Err(err).Msg("debug information engine is unusable")
			return nil, cfg, err
		}
		logger.Library().Warn().Err(err).Msg("no debug information, addresses will not be resolved to source lines")
		return nil, cfg, nil
	}
	if eng == nil {
		return nil, cfg, nil
	}
	if cfg.Cache {
		eng = NewCache(eng)
	}
	return eng, cfg, nil
}

func loadKind(kind Kind, binary string) (Engine, error) {
	switch kind {
	case KindNone:
		logger.Library().Debug().Msg("debug information engine disabled")
		return nil, nil
	case KindRuntime:
		logger.Library().Debug().Msg("using runtime pcln tables")
		return NewRuntime(), nil
	default:
		path := binary
		if path == "" {
			exe, err := os.Executable()
			if err != nil {
				return nil, errors.Wrap(ErrNotFound, err.Error())
			}
			path = exe
		}
		d, err := Open(path, WithProcess())
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}
