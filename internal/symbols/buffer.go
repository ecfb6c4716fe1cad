package symbols

import "unsafe"

// Buffer holds the strings produced by Resolve in a single arena.
//
// Entry strings point into the arena; no entry owns memory of its own.
// The Go collector keeps the arena alive while any entry string or the
// Buffer itself is reachable, so strings obtained before Release stay valid.
type Buffer struct {
	arena   []byte
	n       int
	entries []entry
}

type entry struct {
	s  string
	ok bool
}

// Len returns the number of addresses the buffer was built from.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return b.n
}

// At returns the string of entry i.
//
// ok is false for entries built from a 0 address, for the trailing
// sentinel index Len(), and for out-of-range indexes.
func (b *Buffer) At(i int) (s string, ok bool) {
	if b == nil || i < 0 || i >= len(b.entries) {
		return "", false
	}
	e := b.entries[i]
	return e.s, e.ok
}

// Strings returns the entries as a slice of Len() strings; empty entries
// are "".
func (b *Buffer) Strings() []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.s
	}
	return out
}

// Slot returns the raw slot word i of the arena: the absolute address of
// entry i's first byte, or 0. Slot(Len()) is the sentinel and always 0.
func (b *Buffer) Slot(i int) uintptr {
	if b == nil || i < 0 || i > b.n || b.arena == nil {
		return 0
	}
	return word(b.arena[i*slotSize:])
}

// Bytes returns a copy of the whole arena, slot table included. The entry
// strings share the arena itself, which is never handed out for writing.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.arena == nil {
		return nil
	}
	return append([]byte(nil), b.arena...)
}

// Size returns the arena size in bytes.
func (b *Buffer) Size() int {
	if b == nil {
		return 0
	}
	return len(b.arena)
}

// Base returns the address of the arena's first byte, 0 after Release.
func (b *Buffer) Base() uintptr {
	if b == nil || len(b.arena) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.arena)))
}

// Release drops the arena. The buffer reports itself empty afterwards.
// Calling Release again has no effect.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	b.arena = nil
	b.entries = nil
	b.n = 0
}
