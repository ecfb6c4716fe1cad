package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/mod/modfile"
)

// findModuleRoot walks up from dir to the nearest go.mod and returns the
// directory holding it together with the declared module path.
func findModuleRoot(dir string) (root, modPath string, err error) {
	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", "", err
	}
	for {
		goModPath := filepath.Join(dir, "go.mod")
		data, err := os.ReadFile(goModPath)
		if err == nil {
			modPath = modfile.ModulePath(data)
			if modPath == "" {
				return "", "", errors.Errorf("%s: no module directive", goModPath)
			}
			return dir, modPath, nil
		}
		if !os.IsNotExist(err) {
			return "", "", errors.Wrap(err, "reading go.mod")
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", errors.New("no go.mod found in any parent directory")
		}
		dir = parent
	}
}

// trimmer rewrites file paths below a module root to import-path form,
// e.g. /src/app/internal/x.go:3 to example.com/app/internal/x.go:3.
// A nil trimmer leaves paths unchanged.
type trimmer struct {
	prefix  string
	modPath string
}

func newTrimmer(dir string) (*trimmer, error) {
	root, modPath, err := findModuleRoot(dir)
	if err != nil {
		return nil, err
	}
	return &trimmer{
		prefix:  strings.TrimSuffix(filepath.ToSlash(root), "/") + "/",
		modPath: modPath,
	}, nil
}

func (t *trimmer) trim(s string) string {
	if t == nil {
		return s
	}
	if rest, ok := strings.CutPrefix(s, t.prefix); ok {
		return t.modPath + "/" + rest
	}
	return s
}
