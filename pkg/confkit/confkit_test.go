package confkit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	t.Setenv("CONFKIT_DIR", "nested")
	tests := []struct {
		name string
		base string
		file string
		want string
	}{
		{name: "absolute", base: "/base", file: "/abs/market.yaml", want: "/abs/market.yaml"},
		{name: "relative", base: "/base", file: "market.yaml", want: "/base/market.yaml"},
		{name: "env expanded", base: "/base", file: "${CONFKIT_DIR}/market.yaml", want: "/base/nested/market.yaml"},
		{name: "trimmed", base: "/base", file: "  market.yaml ", want: "/base/market.yaml"},
		{name: "empty", base: "/base", file: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePath(tt.base, tt.file))
		})
	}
}

func TestBaseDir(t *testing.T) {
	assert.Equal(t, "/etc/eod", BaseDir("/etc/eod/collector.yaml"))
	assert.Equal(t, "/", BaseDir("/collector.yaml"))
}

type sample struct {
	Name string `json:",default=collector"`
	Days int    `json:",default=365"`
}

func TestLoadFileAndSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.yaml")
	require.NoError(t, os.WriteFile(path, []byte("Days: ${CONFKIT_DAYS}\n"), 0o644))
	t.Setenv("CONFKIT_DAYS", "30")

	cfg, err := LoadFile[sample](path, true)
	require.NoError(t, err)
	assert.Equal(t, "collector", cfg.Name)
	assert.Equal(t, 30, cfg.Days)

	var section Section[sample]
	require.NoError(t, section.Hydrate(dir, func(p string) (*sample, error) { return LoadFile[sample](p, true) }))
	assert.False(t, section.Loaded(), "empty file is a no-op")

	section.File = "sample.yaml"
	require.NoError(t, section.Hydrate(dir, func(p string) (*sample, error) { return LoadFile[sample](p, true) }))
	require.True(t, section.Loaded())
	assert.Equal(t, path, section.File)
	assert.Equal(t, 30, section.Value.Days)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile[sample](filepath.Join(t.TempDir(), "missing.yaml"), false)
	assert.Error(t, err)
}

func TestWalkUpVisitsUntilMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644))
	deep := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	var visited []string
	got, ok := walkUp(deep, func(dir string) { visited = append(visited, dir) })
	require.True(t, ok)
	assert.Equal(t, root, got)
	assert.Equal(t, []string{deep, filepath.Join(root, "a"), root}, visited)

	_, ok = walkUp("", nil)
	assert.False(t, ok)
}
