package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/alecthomas/errors"
	"github.com/alecthomas/kong"
)

const manifest = `services:
  - type: app.Repo
    lifetime: scoped
    contracts: [app.IRepo]
  - type: app.Cache
    lifetime: singleton
    dependencies:
      - target: app.IRepo
        origin: bulk
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var c CLI
	parser, err := kong.New(&c, kong.Vars{"version": "test"}, kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	assert.NoError(t, err)
	kctx, err := parser.Parse(args)
	assert.NoError(t, err)
	stdout := &bytes.Buffer{}
	a := newApp(&c.Globals, stdout, io.Discard)
	kctx.BindTo(context.Background(), (*context.Context)(nil))
	err = kctx.Run(a)
	return stdout.String(), err
}

func writeManifest(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "services.yaml")
	err := os.WriteFile(path, []byte(manifest), 0600)
	assert.NoError(t, err)
	return path
}

func TestCheckWithBaseline(t *testing.T) {
	path := writeManifest(t)
	dsn := "sqlite://file:" + filepath.Join(t.TempDir(), "baseline.db")

	out, err := run(t, "--no-color", "check", "--manifest", path)
	assert.True(t, errors.Is(err, errCheckFailed), "%v", err)
	assert.Contains(t, out, "DI002 error: singleton app.Cache depends on scoped app.Repo")

	_, err = run(t, "--no-color", "baseline", "--manifest", path, "--baseline", dsn)
	assert.NoError(t, err)

	out, err = run(t, "--no-color", "check", "--manifest", path, "--baseline", dsn)
	assert.NoError(t, err)
	assert.Equal(t, "\n0 errors, 0 warnings\n", out)

	_, err = run(t, "--no-color", "check", "--manifest", path, "--baseline", dsn, "--project", "other")
	assert.True(t, errors.Is(err, errCheckFailed), "%v", err)
}

func TestPlanAndGraph(t *testing.T) {
	path := writeManifest(t)
	out, err := run(t, "--no-color", "--lifetime-policy", "singleton", "plan", "--manifest", path, "--format", "json")
	assert.NoError(t, err)
	assert.Contains(t, out, `"contract": "app.IRepo"`)

	out, err = run(t, "--no-color", "graph", "--manifest", path)
	assert.NoError(t, err)
	assert.Equal(t, "app.Cache\n  -> app.IRepo: app.Repo\n", out)
}

func TestParseGoTags(t *testing.T) {
	t.Setenv("GOFLAGS", `-mod=mod -tags=integration,postgres "--tags=extra"`)
	assert.Equal(t, []string{"integration", "postgres", "extra"}, parseGoTags())
	t.Setenv("GOFLAGS", "")
	assert.Equal(t, []string{}, parseGoTags())
}
