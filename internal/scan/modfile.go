package scan

import (
	"os"
	"path"
	"path/filepath"

	"github.com/alecthomas/errors"
	"golang.org/x/mod/modfile"
)

// importPathForDir returns the import path of the package in dir, found by searching upwards for go.mod.
func importPathForDir(dir string) (string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Errorf("failed to get absolute path for directory %s: %w", dir, err)
	}
	dir = root
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(root)
		if parent == root {
			return "", errors.Errorf("couldn't find a go.mod file above %s", dir)
		}
		root = parent
	}
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return "", errors.Errorf("failed to get relative path for directory %s: %w", dir, err)
	}
	goModPath := filepath.Join(root, "go.mod")
	data, err := os.ReadFile(goModPath) //nolint
	if err != nil {
		return "", errors.Errorf("failed to read go.mod file at %s: %w", goModPath, err)
	}
	mod, err := modfile.Parse(goModPath, data, nil)
	if err != nil {
		return "", errors.Errorf("failed to parse go.mod file at %s: %w", goModPath, err)
	}
	if mod.Module == nil {
		return "", errors.Errorf("%s has no module directive", goModPath)
	}
	return path.Join(mod.Module.Mod.Path, filepath.ToSlash(rel)), nil
}
