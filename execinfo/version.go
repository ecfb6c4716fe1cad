package execinfo

import "github.com/kolkov/execinfo/internal/engine"

// Version is the execinfo release.
const Version = "0.1.0"

// Info reports which engine serves BacktraceSymbols in this process.
type Info struct {
	Version string

	// Engine is the configured engine kind (EXECINFO_ENGINE).
	Engine string

	// Binary is the file whose DWARF line tables are read. It is empty for
	// the runtime engine and when nothing was loaded.
	Binary string

	// Resolving is false when no engine could be loaded. BacktraceSymbols
	// then rejects a non-zero first address and prints the rest in hex.
	Resolving bool

	// Err matches ErrEngineInit when the debug information is unusable.
	Err error
}

// GetInfo loads the process-wide engine if needed and describes it.
//
//	info := execinfo.GetInfo()
//	if !info.Resolving {
//		log.Printf("execinfo: no debug information (%s engine)", info.Engine)
//	}
func GetInfo() Info {
	eng, err := engine.Default()
	info := Info{
		Version:   Version,
		Engine:    engine.Settings().Engine,
		Resolving: eng != nil,
		Err:       err,
	}
	if c, ok := eng.(*engine.Cache); ok {
		eng = c.Inner()
	}
	if d, ok := eng.(*engine.DWARF); ok {
		info.Binary = d.Path()
	}
	return info
}
