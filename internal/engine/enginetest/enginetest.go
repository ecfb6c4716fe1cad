// Package enginetest provides engine fakes and synthetic executables for tests.
package enginetest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"sort"
	"sync"

	"github.com/kolkov/execinfo/internal/engine"
)

// Table is an engine resolving a fixed set of addresses. It records every
// lookup it receives.
type Table struct {
	mu    sync.Mutex
	lines map[uintptr]engine.Line
	calls []uintptr
}

var _ engine.Engine = (*Table)(nil)

// NewTable returns a Table answering for the given lines, keyed by Addr.
func NewTable(lines ...engine.Line) *Table {
	t := &Table{lines: make(map[uintptr]engine.Line, len(lines))}
	for _, l := range lines {
		t.lines[l.Addr] = l
	}
	return t
}

// LineForAddr implements engine.Engine.
func (t *Table) LineForAddr(addr uintptr) (engine.Line, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, addr)
	l, ok := t.lines[addr]
	return l, ok
}

// Calls returns the addresses looked up so far.
func (t *Table) Calls() []uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]uintptr(nil), t.calls...)
}

// ResetCalls forgets recorded lookups.
func (t *Table) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

// WriteELF writes a minimal 64-bit little-endian x86-64 ELF executable to
// path holding the given sections (name -> contents) and nothing else.
func WriteELF(path string, sections map[string][]byte) error {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	// Section name string table: "\0" then each name.
	shstrtab := []byte{0}
	nameOff := map[string]uint32{}
	for _, name := range append([]string{".shstrtab"}, names...) {
		nameOff[name] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, name...)
		shstrtab = append(shstrtab, 0)
	}

	const hdrSize = 64
	var data bytes.Buffer
	offsets := map[string]uint64{}
	place := func(name string, b []byte) {
		offsets[name] = uint64(hdrSize + data.Len())
		data.Write(b)
	}
	place(".shstrtab", shstrtab)
	for _, name := range names {
		place(name, sections[name])
	}
	for data.Len()%8 != 0 {
		data.WriteByte(0)
	}

	shdrs := []elf.Section64{{}}
	shdrs = append(shdrs, elf.Section64{
		Name:      nameOff[".shstrtab"],
		Type:      uint32(elf.SHT_STRTAB),
		Off:       offsets[".shstrtab"],
		Size:      uint64(len(shstrtab)),
		Addralign: 1,
	})
	for _, name := range names {
		shdrs = append(shdrs, elf.Section64{
			Name:      nameOff[name],
			Type:      uint32(elf.SHT_PROGBITS),
			Off:       offsets[name],
			Size:      uint64(len(sections[name])),
			Addralign: 1,
		})
	}

	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     uint64(hdrSize + data.Len()),
		Ehsize:    hdrSize,
		Phentsize: 56,
		Shentsize: 64,
		Shnum:     uint16(len(shdrs)),
		Shstrndx:  1,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, &hdr); err != nil {
		return err
	}
	out.Write(data.Bytes())
	for i := range shdrs {
		if err := binary.Write(&out, binary.LittleEndian, &shdrs[i]); err != nil {
			return err
		}
	}
	return os.WriteFile(path, out.Bytes(), 0o600)
}
