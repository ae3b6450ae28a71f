// Package buildtesting creates throwaway Go modules for tests that load packages.
package buildtesting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
)

// ModulePath of every module created by [Prepare].
const ModulePath = "example.com/app"

// Prepare a new Go module in a temporary directory, returning its path.
//
// Files are keyed by slash-separated path relative to the module root. The directory is removed when the test
// completes.
func Prepare(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	write(t, dir, "go.mod", "module "+ModulePath+"\n\ngo 1.24\n")
	for name, content := range files {
		write(t, dir, name, content)
	}
	return dir
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	err := os.MkdirAll(filepath.Dir(path), 0750)
	assert.NoError(t, err)
	err = os.WriteFile(path, []byte(content), 0600)
	assert.NoError(t, err)
}
