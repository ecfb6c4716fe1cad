// Package symbols turns captured return addresses into "file:line" strings.
//
// Resolve is the Go counterpart of glibc's backtrace_symbols(). The result is
// one contiguous arena laid out like the reference implementation's single
// malloc block:
//
//	+----------------------------+-------------------------------------+
//	| slot[0] ... slot[N] (word) | "file.go:42\0" "4a1f3c:0\0" ...     |
//	+----------------------------+-------------------------------------+
//
// slot[N] is always zero. While strings are appended the arena may be grown
// (reallocated and copied), so each slot first records the string's offset
// from the arena start. Only after the last string is written does a single
// patch pass rewrite every non-zero slot to the absolute address
// base+offset, once the arena can no longer move.
//
// Formatting rules per address:
//   - 0 address: zero slot, no arena space, no lookup
//   - resolved with a file: "<file>:<line>"
//   - resolved without a file: "<lowercase hex>:<line>"
//   - unresolved first address: the whole call fails (ErrFirstFrameUnresolved)
//   - unresolved later address: "unknown:0", or "<lowercase hex>:0" when
//     no engine is loaded
//
// Without an engine nothing resolves, so the first-frame rule applies to it
// as well.
package symbols

import (
	"encoding/binary"
	"strconv"
	"strings"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/kolkov/execinfo/internal/engine"
	"github.com/kolkov/execinfo/internal/logger"
)

const (
	// slotSize is the width of one slot: a pointer on this platform.
	slotSize = int(unsafe.Sizeof(uintptr(0)))

	// initialSlack is the string space allocated beyond the slot table.
	initialSlack = 256

	// growStep is the fixed increment applied each time a field does not fit.
	growStep = 256

	// hexFieldSize fits a pointer-width address in hex plus its terminator.
	hexFieldSize = 2*slotSize + 1

	// lineFieldSize fits ':' and a 32-bit decimal line number plus terminator.
	lineFieldSize = 16

	// unknownFile names the file of unresolved addresses after the first.
	unknownFile = "unknown"
)

var (
	// ErrNoResult is matched by every error meaning "no buffer was produced".
	ErrNoResult = errors.New("no result")

	// ErrEmptyRequest is returned for an empty address list.
	ErrEmptyRequest = errors.WithMessage(ErrNoResult, "empty address list")

	// ErrAllocation is returned when the arena would exceed its size ceiling.
	ErrAllocation = errors.WithMessage(ErrNoResult, "symbols buffer allocation failed")

	// ErrFirstFrameUnresolved is returned when the engine cannot resolve the
	// first address of the request.
	ErrFirstFrameUnresolved = errors.WithMessage(ErrNoResult, "first address could not be resolved")
)

// Option configures Resolve.
type Option func(*options)

type options struct {
	maxSize int
}

// WithMaxSize caps the arena at n bytes; 0 removes the cap.
//
// An arena that would have to grow past the cap is released and Resolve
// returns ErrAllocation.
func WithMaxSize(n int) Option {
	return func(o *options) {
		o.maxSize = n
	}
}

// InitialSize returns the arena size Resolve starts with for n addresses.
func InitialSize(n int) int {
	return (n+1)*slotSize + initialSlack
}

// Resolve symbolizes addrs with eng and packs the strings into one Buffer.
//
// Parameters:
//   - eng: Engine to query; nil means no engine could be located and every
//     address is rendered as hex
//   - addrs: Return addresses; 0 entries yield empty slots
//   - opts: WithMaxSize
//
// Returns:
//   - *Buffer: Owned by the caller; release it once with Release
//   - error: ErrEmptyRequest, ErrAllocation or ErrFirstFrameUnresolved,
//     all matching ErrNoResult; the buffer is nil in that case
//
// Thread Safety: Safe for concurrent calls if eng is.
func Resolve(eng engine.Engine, addrs []uintptr, opts ...Option) (*Buffer, error) {
	n := len(addrs)
	if n == 0 {
		return nil, ErrEmptyRequest
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	b := &builder{max: o.maxSize, ends: make([]int, n)}
	if err := b.alloc(InitialSize(n)); err != nil {
		return nil, err
	}
	b.pos = (n + 1) * slotSize

	for i, addr := range addrs {
		if addr == 0 {
			continue
		}

		line, ok := lookup(eng, addr)
		if !ok {
			if i == 0 {
				b.release()
				return nil, errors.Wrapf(ErrFirstFrameUnresolved, "address 0x%x", addr)
			}
			line = fallback(eng)
		}
		line.Addr = addr

		if err := b.appendRecord(i, line); err != nil {
			b.release()
			return nil, err
		}
	}

	buf := b.finish(n)
	logger.Library().Trace().Int("addrs", n).Int("size", len(buf.arena)).Int("grows", b.grows).Msg("symbols resolved")
	return buf, nil
}

// lookup queries eng. Without an engine no address resolves.
func lookup(eng engine.Engine, addr uintptr) (engine.Line, bool) {
	if eng == nil {
		return engine.Line{}, false
	}
	return eng.LineForAddr(addr)
}

// fallback is the record of an unresolved address after the first: the
// "unknown" marker, or the bare address when no engine is loaded.
func fallback(eng engine.Engine) engine.Line {
	if eng == nil {
		return engine.Line{}
	}
	return engine.Line{File: unknownFile}
}

// builder is the arena under construction.
type builder struct {
	arena []byte
	pos   int
	max   int
	grows int

	// ends[i] is the offset of entry i's terminator.
	ends []int
}

func (b *builder) alloc(size int) error {
	if b.max > 0 && size > b.max {
		return errors.Wrapf(ErrAllocation, "%d bytes over a %d byte ceiling", size, b.max)
	}
	b.arena = make([]byte, size)
	return nil
}

// grow enlarges the arena by growStep, keeping everything written so far.
// Slots still hold offsets, which stay valid across the copy.
func (b *builder) grow() error {
	size := len(b.arena) + growStep
	if b.max > 0 && size > b.max {
		return errors.Wrapf(ErrAllocation, "%d bytes over a %d byte ceiling", size, b.max)
	}
	next := make([]byte, size)
	copy(next, b.arena)
	b.arena = next
	b.grows++
	return nil
}

// reserve grows until n bytes are free after the cursor.
func (b *builder) reserve(n int) error {
	for len(b.arena)-b.pos < n {
		if err := b.grow(); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) release() {
	b.arena = nil
	b.pos = 0
}

// appendRecord writes "<file|hex>:<line>\0" and points slot i at it.
// A field is written only after its space is reserved.
func (b *builder) appendRecord(i int, line engine.Line) error {
	b.putSlot(i, uintptr(b.pos))

	if line.File != "" {
		name := fileName(line.File)
		if err := b.reserve(len(name) + 1); err != nil {
			return err
		}
		b.pos += copy(b.arena[b.pos:], name)
	} else {
		if err := b.reserve(hexFieldSize); err != nil {
			return err
		}
		var tmp [16]byte
		b.pos += copy(b.arena[b.pos:], strconv.AppendUint(tmp[:0], uint64(line.Addr), 16))
	}

	if err := b.reserve(lineFieldSize); err != nil {
		return err
	}
	b.arena[b.pos] = ':'
	b.pos++
	var tmp [10]byte
	b.pos += copy(b.arena[b.pos:], strconv.AppendUint(tmp[:0], uint64(line.Line), 10))
	b.ends[i] = b.pos
	b.arena[b.pos] = 0
	b.pos++
	return nil
}

// fileName makes a file name safe for a NUL-terminated UTF-8 field.
// Invalid sequences and NUL bytes become U+FFFD.
func fileName(name string) string {
	name = strings.ToValidUTF8(name, "\uFFFD")
	if strings.IndexByte(name, 0) >= 0 {
		name = strings.ReplaceAll(name, "\x00", "\uFFFD")
	}
	return name
}

func (b *builder) putSlot(i int, v uintptr) {
	putWord(b.arena[i*slotSize:], v)
}

// finish runs the patch pass. It must run once, after the last grow.
func (b *builder) finish(n int) *Buffer {
	arena := b.arena
	b.arena = nil

	base := uintptr(unsafe.Pointer(unsafe.SliceData(arena)))
	entries := make([]entry, n)
	for i := 0; i < n; i++ {
		off := int(word(arena[i*slotSize:]))
		if off == 0 {
			continue
		}
		entries[i] = entry{s: unsafe.String(&arena[off], b.ends[i]-off), ok: true}
		putWord(arena[i*slotSize:], base+uintptr(off))
	}
	return &Buffer{arena: arena, n: n, entries: entries}
}

func putWord(dst []byte, v uintptr) {
	if slotSize == 8 {
		binary.NativeEndian.PutUint64(dst, uint64(v))
		return
	}
	binary.NativeEndian.PutUint32(dst, uint32(v))
}

func word(src []byte) uintptr {
	if slotSize == 8 {
		return uintptr(binary.NativeEndian.Uint64(src))
	}
	return uintptr(binary.NativeEndian.Uint32(src))
}
