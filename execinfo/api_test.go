package execinfo

import (
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/execinfo/internal/engine"
	"github.com/kolkov/execinfo/internal/engine/enginetest"
	"github.com/kolkov/execinfo/internal/logger"
)

// withEngine reloads the process engine under the given environment.
func withEngine(t *testing.T, env map[string]string) {
	t.Helper()
	logger.ConfigureTestLogging(t)
	for k, v := range env {
		t.Setenv(k, v)
	}
	engine.ResetForTest()
	t.Cleanup(engine.ResetForTest)
}

func TestBacktraceSkipsItself(t *testing.T) {
	var pcs [8]uintptr
	n := Backtrace(pcs[:])
	require.Positive(t, n)

	fn := runtime.FuncForPC(pcs[0] - 1)
	require.NotNil(t, fn)
	self := runtime.FuncForPC(reflect.ValueOf(TestBacktraceSkipsItself).Pointer())
	assert.Equal(t, self.Name(), fn.Name())
}

func TestBacktraceEmptyBuffer(t *testing.T) {
	assert.Equal(t, 0, Backtrace(nil))
}

func TestBacktraceSymbolsEmpty(t *testing.T) {
	syms, err := BacktraceSymbols(nil)
	assert.Nil(t, syms)
	assert.True(t, errors.Is(err, ErrEmptyRequest))
	assert.True(t, errors.Is(err, ErrNoResult))
}

func TestBacktraceSymbolsRuntimeEngine(t *testing.T) {
	withEngine(t, map[string]string{"EXECINFO_ENGINE": "runtime"})

	var pcs [16]uintptr
	n := Backtrace(pcs[:])
	syms, err := BacktraceSymbols(pcs[:n])
	require.NoError(t, err)
	defer syms.Release()

	require.Equal(t, n, syms.Len())
	first, ok := syms.At(0)
	require.True(t, ok)
	assert.Contains(t, first, "api_test.go:")
}

func TestBacktraceSymbolsDWARFEngine(t *testing.T) {
	withEngine(t, map[string]string{"EXECINFO_ENGINE": "dwarf"})
	eng, err := engine.Default()
	require.NoError(t, err)
	if eng == nil {
		t.Skip("test binary has no debug information")
	}
	assert.NotEmpty(t, GetInfo().Binary)

	var pcs [16]uintptr
	n := Backtrace(pcs[:])
	syms, err := BacktraceSymbols(pcs[:n])
	require.NoError(t, err)
	defer syms.Release()

	first, _ := syms.At(0)
	assert.Contains(t, first, "api_test.go:")
}

func TestBacktraceSymbolsNoEngine(t *testing.T) {
	withEngine(t, map[string]string{"EXECINFO_ENGINE": "none"})

	syms, err := BacktraceSymbols([]uintptr{0x4a1f3c, 0xdead})
	assert.Nil(t, syms)
	assert.True(t, errors.Is(err, ErrFirstFrameUnresolved), "got %v", err)

	syms, err = BacktraceSymbols([]uintptr{0, 0x4a1f3c, 0, 0xdead})
	require.NoError(t, err)
	defer syms.Release()

	assert.Equal(t, []string{"", "4a1f3c:0", "", "dead:0"}, syms.Strings())
	assert.Zero(t, syms.Slot(0))
	assert.Zero(t, syms.Slot(2))
	assert.Zero(t, syms.Slot(4))
}

func TestBacktraceSymbolsMissingBinary(t *testing.T) {
	withEngine(t, map[string]string{
		"EXECINFO_ENGINE": "dwarf",
		"EXECINFO_BINARY": filepath.Join(t.TempDir(), "missing"),
	})

	_, err := BacktraceSymbols([]uintptr{0xabc})
	assert.True(t, errors.Is(err, ErrFirstFrameUnresolved), "got %v", err)

	syms, err := BacktraceSymbols([]uintptr{0, 0xabc})
	require.NoError(t, err)
	defer syms.Release()
	assert.Equal(t, []string{"", "abc:0"}, syms.Strings())
}

func TestBacktraceSymbolsEngineInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken")
	require.NoError(t, enginetest.WriteELF(path, map[string][]byte{
		".debug_line": {0x01},
		".debug_info": make([]byte, 16),
	}))
	withEngine(t, map[string]string{
		"EXECINFO_ENGINE": "dwarf",
		"EXECINFO_BINARY": path,
	})

	for i := 0; i < 2; i++ {
		syms, err := BacktraceSymbols([]uintptr{0x1000})
		assert.Nil(t, syms)
		assert.True(t, errors.Is(err, ErrEngineInit), "got %v", err)
		assert.False(t, errors.Is(err, ErrNoResult))
	}
	assert.True(t, errors.Is(Init(), ErrEngineInit))

	info := GetInfo()
	assert.False(t, info.Resolving)
	assert.Empty(t, info.Binary)
	assert.Error(t, info.Err)
}

func TestBacktraceSymbolsMaxBuffer(t *testing.T) {
	withEngine(t, map[string]string{
		"EXECINFO_ENGINE":     "none",
		"EXECINFO_MAX_BUFFER": "24",
	})

	syms, err := BacktraceSymbols([]uintptr{0x1000, 0x2000})
	assert.Nil(t, syms)
	assert.True(t, errors.Is(err, ErrAllocation), "got %v", err)
	assert.True(t, errors.Is(err, ErrNoResult))
}

func TestBacktraceSymbolsWith(t *testing.T) {
	eng := enginetest.NewTable(
		Line{Addr: 0x10, File: "/src/a.go", Line: 3},
		Line{Addr: 0x20, File: "/src/b.go", Line: 9},
	)

	syms, err := BacktraceSymbolsWith(eng, []uintptr{0x10, 0x30, 0x20})
	require.NoError(t, err)
	defer syms.Release()
	assert.Equal(t, []string{"/src/a.go:3", "unknown:0", "/src/b.go:9"}, syms.Strings())

	_, err = BacktraceSymbolsWith(eng, []uintptr{0x30, 0x10})
	assert.True(t, errors.Is(err, ErrFirstFrameUnresolved))

	_, err = BacktraceSymbolsWith(eng, []uintptr{0x10, 0x20}, WithMaxSize(8))
	assert.True(t, errors.Is(err, ErrAllocation))
}

func TestTrace(t *testing.T) {
	withEngine(t, map[string]string{"EXECINFO_ENGINE": "runtime"})

	syms, err := Trace(4)
	require.NoError(t, err)
	defer syms.Release()

	assert.LessOrEqual(t, syms.Len(), 4)
	first, ok := syms.At(0)
	require.True(t, ok)
	assert.True(t, strings.Contains(first, "api_test.go:"), first)

	syms2, err := Trace(0)
	require.NoError(t, err)
	defer syms2.Release()
	assert.LessOrEqual(t, syms2.Len(), DefaultDepth)
}

func TestGetInfo(t *testing.T) {
	withEngine(t, map[string]string{"EXECINFO_ENGINE": "runtime"})

	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, "runtime", info.Engine)
	assert.True(t, info.Resolving)
	assert.Empty(t, info.Binary)
	assert.NoError(t, info.Err)
	require.NoError(t, Init())
}
