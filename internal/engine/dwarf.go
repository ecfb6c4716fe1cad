package engine

import (
	"debug/dwarf"
	"io"
	"reflect"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/kolkov/execinfo/internal/logger"
)

// DWARF answers lookups from the DWARF line tables of one executable.
//
// The compile-unit index is built when the engine is opened; the line table
// of a compile unit is decoded on the first lookup that lands in it and kept
// for the lifetime of the engine.
//
// Thread Safety: Safe for concurrent lookups. Close must not race lookups.
type DWARF struct {
	path   string
	format string
	c      *container
	dw     *dwarf.Data

	// bias is subtracted from runtime addresses before lookup.
	bias uint64

	cuRanges []cuRange

	mu     sync.Mutex
	tables map[dwarf.Offset]*lineTable
	parse  singleflight.Group
}

type cuRange struct {
	low   uint64
	high  uint64
	entry *dwarf.Entry
}

type lineTable struct {
	rows []dwarf.LineEntry
}

// Open locates and loads the DWARF line information of the binary at path.
//
// Parameters:
//   - path: Executable (or separate debug file) to read
//   - opts: WithProcess when path is the running executable
//
// Returns:
//   - *DWARF: Ready engine
//   - error: wrapping ErrNotFound when nothing usable was located,
//     or ErrEngineInit when the debug information is present but broken
func Open(path string, opts ...Option) (*DWARF, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if path == "" {
		return nil, errors.Wrap(ErrNotFound, "no binary path")
	}
	if err := readable(path); err != nil {
		return nil, errors.Wrapf(ErrNotFound, "%s: %v", path, err)
	}
	c, err := openContainer(path)
	if err != nil {
		return nil, errors.Wrap(ErrNotFound, err.Error())
	}
	if !c.hasLines {
		_ = c.Close()
		return nil, errors.Wrapf(ErrNotFound, "%s: no DWARF line information (stripped binary?)", path)
	}

	dw, err := c.dwarf()
	if err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(ErrEngineInit, "%s: parse DWARF: %v", path, err)
	}

	d := &DWARF{
		path:   path,
		format: c.format,
		c:      c,
		dw:     dw,
		tables: make(map[dwarf.Offset]*lineTable),
	}
	if err := d.buildIndex(); err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(ErrEngineInit, "%s: index DWARF: %v", path, err)
	}
	if o.process {
		d.bias = loadBias(c)
	}

	logger.Library().Debug().
		Str("path", path).
		Str("format", c.format).
		Int("units", len(d.cuRanges)).
		Str("bias", "0x"+strconv.FormatUint(d.bias, 16)).
		Msg("loaded DWARF line information")
	return d, nil
}

// Path returns the file the engine was opened from.
func (d *DWARF) Path() string { return d.path }

// Format returns the container format: "elf", "macho" or "pe".
func (d *DWARF) Format() string { return d.format }

// Close releases the underlying file.
func (d *DWARF) Close() error {
	return d.c.Close()
}

// LineForAddr implements Engine.
func (d *DWARF) LineForAddr(addr uintptr) (Line, bool) {
	pc := uint64(addr)
	if pc < d.bias {
		return Line{}, false
	}
	pc -= d.bias

	cu := d.findCU(pc)
	if cu == nil {
		return Line{}, false
	}
	table, err := d.lineTable(cu)
	if err != nil {
		logger.Library().Debug().Err(err).Str("path", d.path).Msg("line table unreadable")
		return Line{}, false
	}

	// Last row with Address <= pc; an end-of-sequence row covers nothing.
	idx := sort.Search(len(table.rows), func(i int) bool {
		return table.rows[i].Address > pc
	})
	if idx == 0 {
		return Line{}, false
	}
	row := table.rows[idx-1]
	if row.EndSequence {
		return Line{}, false
	}

	line := Line{Addr: addr}
	if row.File != nil {
		line.File = row.File.Name
	}
	if row.Line > 0 {
		line.Line = uint32(row.Line)
	}
	return line, true
}

func (d *DWARF) buildIndex() error {
	r := d.dw.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		r.SkipChildren()

		ranges, err := d.dw.Ranges(entry)
		if err != nil {
			continue
		}
		for _, rng := range ranges {
			if rng[0] >= rng[1] {
				continue
			}
			d.cuRanges = append(d.cuRanges, cuRange{low: rng[0], high: rng[1], entry: entry})
		}
	}
	sort.Slice(d.cuRanges, func(i, j int) bool {
		return d.cuRanges[i].low < d.cuRanges[j].low
	})
	return nil
}

func (d *DWARF) findCU(pc uint64) *dwarf.Entry {
	idx := sort.Search(len(d.cuRanges), func(i int) bool {
		return d.cuRanges[i].high > pc
	})
	if idx < len(d.cuRanges) && d.cuRanges[idx].low <= pc {
		return d.cuRanges[idx].entry
	}
	return nil
}

// lineTable returns the decoded line table of cu. Concurrent first calls for
// the same unit share one decode.
func (d *DWARF) lineTable(cu *dwarf.Entry) (*lineTable, error) {
	d.mu.Lock()
	t, ok := d.tables[cu.Offset]
	d.mu.Unlock()
	if ok {
		return t, nil
	}

	key := strconv.FormatUint(uint64(cu.Offset), 16)
	v, err, _ := d.parse.Do(key, func() (interface{}, error) {
		t, err := d.decodeLines(cu)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		d.tables[cu.Offset] = t
		d.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*lineTable), nil
}

func (d *DWARF) decodeLines(cu *dwarf.Entry) (*lineTable, error) {
	lr, err := d.dw.LineReader(cu)
	if err != nil {
		return nil, err
	}
	if lr == nil {
		return nil, errors.Errorf("compile unit at 0x%x has no line table", cu.Offset)
	}

	var rows []dwarf.LineEntry
	var row dwarf.LineEntry
	for {
		if err := lr.Next(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		rows = append(rows, row)
	}

	// Sequence ends sort before a sequence starting at the same address.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Address != rows[j].Address {
			return rows[i].Address < rows[j].Address
		}
		return rows[i].EndSequence && !rows[j].EndSequence
	})
	return &lineTable{rows: rows}, nil
}

// biasAnchor is a function whose runtime and link-time addresses are compared
// to find the load bias of the running executable.
//
//go:noinline
func biasAnchor() {}

// loadBias returns runtime address minus link-time address for the running
// executable, 0 when the two cannot be matched.
func loadBias(c *container) uint64 {
	fn := runtime.FuncForPC(reflect.ValueOf(biasAnchor).Pointer())
	if fn == nil {
		return 0
	}
	linked, ok := c.symbol(fn.Name())
	if !ok {
		logger.Library().Debug().Str("symbol", fn.Name()).Msg("bias anchor not in symbol table, assuming no relocation")
		return 0
	}
	entry := uint64(fn.Entry())
	if entry < linked {
		return 0
	}
	return entry - linked
}
