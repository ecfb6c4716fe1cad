package engine

import (
	"debug/dwarf"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"io"

	"github.com/pkg/errors"
)

// container is the executable file format holding the DWARF sections.
type container struct {
	format   string
	closer   io.Closer
	hasLines bool
	dwarf    func() (*dwarf.Data, error)

	// symbol returns the link-time address of a named function symbol.
	symbol func(name string) (uint64, bool)
}

// lineSections are the section names carrying a DWARF line program,
// compressed or not, in ELF/PE and Mach-O naming.
var lineSections = map[string]bool{
	".debug_line":   true,
	".zdebug_line":  true,
	"__debug_line":  true,
	"__zdebug_line": true,
}

func openContainer(path string) (*container, error) {
	if f, err := elf.Open(path); err == nil {
		return elfContainer(f), nil
	}
	if f, err := macho.Open(path); err == nil {
		return machoContainer(f), nil
	}
	if f, err := pe.Open(path); err == nil {
		return peContainer(f), nil
	}
	return nil, errors.Errorf("%s: not an ELF, Mach-O or PE executable", path)
}

func elfContainer(f *elf.File) *container {
	c := &container{format: "elf", closer: f, dwarf: f.DWARF}
	for _, s := range f.Sections {
		if lineSections[s.Name] {
			c.hasLines = true
			break
		}
	}
	c.symbol = func(name string) (uint64, bool) {
		syms, err := f.Symbols()
		if err != nil {
			return 0, false
		}
		for _, s := range syms {
			if s.Name == name && elf.ST_TYPE(s.Info) == elf.STT_FUNC {
				return s.Value, true
			}
		}
		return 0, false
	}
	return c
}

func machoContainer(f *macho.File) *container {
	c := &container{format: "macho", closer: f, dwarf: f.DWARF}
	for _, s := range f.Sections {
		if lineSections[s.Name] {
			c.hasLines = true
			break
		}
	}
	c.symbol = func(name string) (uint64, bool) {
		if f.Symtab == nil {
			return 0, false
		}
		for _, s := range f.Symtab.Syms {
			if s.Name == name || s.Name == "_"+name {
				return s.Value, true
			}
		}
		return 0, false
	}
	return c
}

func peContainer(f *pe.File) *container {
	c := &container{format: "pe", closer: f, dwarf: f.DWARF}
	for _, s := range f.Sections {
		if lineSections[s.Name] {
			c.hasLines = true
			break
		}
	}
	var imageBase uint64
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		imageBase = uint64(oh.ImageBase)
	case *pe.OptionalHeader64:
		imageBase = oh.ImageBase
	}
	c.symbol = func(name string) (uint64, bool) {
		for _, s := range f.Symbols {
			if s.Name != name || s.SectionNumber <= 0 || int(s.SectionNumber) > len(f.Sections) {
				continue
			}
			sect := f.Sections[s.SectionNumber-1]
			return imageBase + uint64(sect.VirtualAddress) + uint64(s.Value), true
		}
		return 0, false
	}
	return c
}

func (c *container) Close() error {
	return c.closer.Close()
}
