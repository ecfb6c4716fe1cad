package engine

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/execinfo/internal/config"
	"github.com/kolkov/execinfo/internal/logger"
)

// fakeEngine resolves a fixed address table and counts lookups.
type fakeEngine struct {
	mu    sync.Mutex
	lines map[uintptr]Line
	calls int
}

func (f *fakeEngine) LineForAddr(addr uintptr) (Line, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	l, ok := f.lines[addr]
	return l, ok
}

// openSelf opens the test binary, skipping when it carries no DWARF.
func openSelf(t *testing.T) *DWARF {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	d, err := Open(exe, WithProcess())
	if errors.Is(err, ErrNotFound) {
		t.Skipf("test binary has no debug information: %v", err)
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindDWARF, KindRuntime, KindNone} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	assert.Equal(t, "unknown", Kind(42).String())

	k, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindDWARF, k)

	_, err = ParseKind("pdb")
	assert.Error(t, err)
}

func TestRuntimeEngine(t *testing.T) {
	pc, file, line, ok := runtime.Caller(0)
	require.True(t, ok)

	got, found := NewRuntime().LineForAddr(pc)
	require.True(t, found)
	assert.Equal(t, file, got.File)
	assert.Equal(t, uint32(line), got.Line)
	assert.Equal(t, pc, got.Addr)
}

func TestRuntimeEngineUnknownAddress(t *testing.T) {
	e := NewRuntime()
	_, ok := e.LineForAddr(0)
	assert.False(t, ok)
	_, ok = e.LineForAddr(1)
	assert.False(t, ok)
}

func TestDWARFEngineResolvesOwnCode(t *testing.T) {
	d := openSelf(t)

	pc, file, line, ok := runtime.Caller(0)
	require.True(t, ok)

	got, found := d.LineForAddr(pc)
	require.True(t, found, "pc 0x%x not covered (bias 0x%x)", pc, d.bias)
	assert.Equal(t, filepath.Base(file), filepath.Base(got.File))
	assert.Equal(t, uint32(line), got.Line)
	assert.Equal(t, exePath(t), d.Path())
	assert.Contains(t, []string{"elf", "macho", "pe"}, d.Format())
}

func TestDWARFEngineUnknownAddress(t *testing.T) {
	d := openSelf(t)
	_, ok := d.LineForAddr(0)
	assert.False(t, ok)
	_, ok = d.LineForAddr(^uintptr(0))
	assert.False(t, ok)
}

func TestDWARFEngineConcurrentLookups(t *testing.T) {
	d := openSelf(t)
	pc, _, line, ok := runtime.Caller(0)
	require.True(t, ok)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, found := d.LineForAddr(pc)
			assert.True(t, found)
			assert.Equal(t, uint32(line), got.Line)
		}()
	}
	wg.Wait()
	assert.Len(t, d.tables, 1)
}

func exePath(t *testing.T) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	return exe
}

func TestOpenNotFound(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("not an executable\n"), 0o600))

	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"missing file", filepath.Join(dir, "missing")},
		{"directory", dir},
		{"not an executable", text},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
			assert.False(t, errors.Is(err, ErrEngineInit))
		})
	}
}

func TestCache(t *testing.T) {
	inner := &fakeEngine{lines: map[uintptr]Line{
		0x1000: {Addr: 0x1000, File: "main.go", Line: 7},
	}}
	c := NewCache(inner)

	for i := 0; i < 3; i++ {
		got, ok := c.LineForAddr(0x1000)
		require.True(t, ok)
		assert.Equal(t, "main.go", got.File)

		_, ok = c.LineForAddr(0x2000)
		assert.False(t, ok)
	}
	assert.Equal(t, 2, inner.calls, "misses and hits are both cached")
	assert.Equal(t, 2, c.Len())
	assert.Same(t, inner, c.Inner())
	assert.NoError(t, c.Close())
}

// swapLoader installs a test loader for the process engine.
func swapLoader(t *testing.T, fn func() (Engine, config.Config, error)) {
	t.Helper()
	ResetForTest()
	old := loadProcess
	loadProcess = fn
	t.Cleanup(func() {
		loadProcess = old
		ResetForTest()
	})
}

func TestDefaultLoadsOnce(t *testing.T) {
	fake := &fakeEngine{}
	var mu sync.Mutex
	calls := 0
	start := make(chan struct{})
	swapLoader(t, func() (Engine, config.Config, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return fake, config.Default(), nil
	})

	const callers = 32
	var wg sync.WaitGroup
	engines := make([]Engine, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			e, err := Default()
			assert.NoError(t, err)
			engines[i] = e
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, process.loads)
	for _, e := range engines {
		assert.Same(t, fake, e)
	}
}

func TestDefaultKeepsFatalError(t *testing.T) {
	calls := 0
	swapLoader(t, func() (Engine, config.Config, error) {
		calls++
		return nil, config.Default(), errors.Wrap(ErrEngineInit, "corrupt line program")
	})

	for i := 0; i < 3; i++ {
		e, err := Default()
		assert.Nil(t, e)
		assert.True(t, errors.Is(err, ErrEngineInit))
	}
	assert.Equal(t, 1, calls)
}

func TestLoadFromConfiguration(t *testing.T) {
	logger.ConfigureTestLogging(t)

	t.Run("none", func(t *testing.T) {
		t.Setenv("EXECINFO_ENGINE", "none")
		e, cfg, err := load()
		assert.NoError(t, err)
		assert.Nil(t, e)
		assert.Equal(t, "none", cfg.Engine)
	})

	t.Run("runtime cached", func(t *testing.T) {
		t.Setenv("EXECINFO_ENGINE", "runtime")
		t.Setenv("EXECINFO_CACHE", "true")
		e, _, err := load()
		require.NoError(t, err)
		c, ok := e.(*Cache)
		require.True(t, ok, "got %T", e)
		assert.IsType(t, &Runtime{}, c.Inner())
	})

	t.Run("runtime uncached", func(t *testing.T) {
		t.Setenv("EXECINFO_ENGINE", "runtime")
		t.Setenv("EXECINFO_CACHE", "false")
		e, _, err := load()
		require.NoError(t, err)
		assert.IsType(t, &Runtime{}, e)
	})

	t.Run("missing binary degrades", func(t *testing.T) {
		t.Setenv("EXECINFO_ENGINE", "dwarf")
		t.Setenv("EXECINFO_BINARY", filepath.Join(t.TempDir(), "gone"))
		e, _, err := load()
		assert.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("unknown engine falls back to dwarf", func(t *testing.T) {
		t.Setenv("EXECINFO_ENGINE", "pdb")
		t.Setenv("EXECINFO_BINARY", filepath.Join(t.TempDir(), "gone"))
		e, cfg, err := load()
		assert.NoError(t, err)
		assert.Nil(t, e)
		assert.Equal(t, "pdb", cfg.Engine)
	})
}

func TestSettings(t *testing.T) {
	want := config.Config{Engine: "runtime", MaxBuffer: 1024}
	swapLoader(t, func() (Engine, config.Config, error) {
		return NewRuntime(), want, nil
	})
	assert.Equal(t, want, Settings())
}
