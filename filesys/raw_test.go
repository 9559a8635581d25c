package filesys

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestRawLookupAndOpen(t *testing.T) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "rawfs")
	require.NoError(err)
	defer os.RemoveAll(dir)
	writeTree(t, dir, map[string]string{
		"a.txt":             "alpha",
		"maps/de_dust2.bsp": "bsp data",
	})

	r := NewRaw(dir, true)
	require.Equal(dir, r.Root())

	f, err := r.Lookup("maps/de_dust2.bsp")
	require.NoError(err)
	require.Equal("maps/de_dust2.bsp", f.Path())

	rc, err := f.Open()
	require.NoError(err)
	data, err := io.ReadAll(rc)
	require.NoError(err)
	require.NoError(rc.Close())
	require.Equal("bsp data", string(data))

	// Backslash input resolves to the same file.
	require.True(r.Exists(`maps\de_dust2.bsp`))
	rc, err = r.Open(`maps\de_dust2.bsp`)
	require.NoError(err)
	require.NoError(rc.Close())

	// Directories are not files.
	_, err = r.Lookup("maps")
	require.ErrorIs(err, ErrNotFound)
	require.False(r.Exists("maps"))

	_, err = r.Open("missing.txt")
	require.ErrorIs(err, ErrNotFound)
}

func TestRawWalk(t *testing.T) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "rawfs")
	require.NoError(err)
	defer os.RemoveAll(dir)
	writeTree(t, dir, map[string]string{
		"a.txt":          "1",
		"maps/x.bsp":     "2",
		"maps/sub/y.txt": "3",
	})

	r := NewRaw(dir, true)

	var all []string
	for f, err := range r.Walk("") {
		require.NoError(err)
		all = append(all, f.Path())
	}
	require.Equal([]string{"a.txt", "maps/sub/y.txt", "maps/x.bsp"}, all)

	var maps []string
	for f, err := range r.Walk("maps") {
		require.NoError(err)
		maps = append(maps, f.Path())
	}
	require.Equal([]string{"maps/sub/y.txt", "maps/x.bsp"}, maps)

	// A missing folder walks as empty.
	n := 0
	for _, err := range r.Walk("nosuch") {
		require.NoError(err)
		n++
	}
	require.Zero(n)

	// Stopping early is allowed.
	for range r.Walk("") {
		break
	}
}

func TestRawConstrain(t *testing.T) {
	require := require.New(t)

	parent, err := os.MkdirTemp("", "rawfs")
	require.NoError(err)
	defer os.RemoveAll(parent)
	writeTree(t, parent, map[string]string{
		"data/inside.txt":     "in",
		"databank/secret.txt": "out",
		"sibling.txt":         "out",
		"data/maps/de_a.bsp":  "map",
	})
	root := filepath.Join(parent, "data")

	r := NewRaw(root, true)

	_, err = r.Lookup("../sibling.txt")
	require.ErrorIs(err, ErrPathEscape)
	_, err = r.Open("../sibling.txt")
	require.ErrorIs(err, ErrPathEscape)
	require.False(r.Exists("../sibling.txt"))

	// Dotdot that stays inside the root is fine.
	_, err = r.Lookup("maps/../inside.txt")
	require.NoError(err)

	// The boundary check is per path segment: ../databank must not pass
	// just because it shares the "data" prefix with the root.
	_, err = r.Lookup("../databank/secret.txt")
	require.ErrorIs(err, ErrPathEscape)

	// Walking outside reports the escape as an iteration error.
	var walkErr error
	for _, err := range r.Walk("../databank") {
		walkErr = err
		break
	}
	require.ErrorIs(walkErr, ErrPathEscape)
}

func TestRawUnconstrained(t *testing.T) {
	require := require.New(t)

	parent, err := os.MkdirTemp("", "rawfs")
	require.NoError(err)
	defer os.RemoveAll(parent)
	writeTree(t, parent, map[string]string{
		"data/inside.txt": "in",
		"sibling.txt":     "out",
	})

	r := NewRaw(filepath.Join(parent, "data"), false)

	rc, err := r.Open("../sibling.txt")
	require.NoError(err)
	data, err := io.ReadAll(rc)
	require.NoError(err)
	require.NoError(rc.Close())
	require.Equal("out", string(data))
}

func TestRawCacheKey(t *testing.T) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "rawfs")
	require.NoError(err)
	defer os.RemoveAll(dir)
	writeTree(t, dir, map[string]string{"a.txt": "1"})

	r := NewRaw(dir, true)
	f, err := r.Lookup("a.txt")
	require.NoError(err)

	info, err := os.Stat(filepath.Join(dir, "a.txt"))
	require.NoError(err)
	require.Equal(info.ModTime().UnixNano(), f.CacheKey())

	again, err := r.Lookup("a.txt")
	require.NoError(err)
	require.Equal(f.CacheKey(), again.CacheKey())

	// Once the file is gone the key is unavailable, not an error.
	require.NoError(os.Remove(filepath.Join(dir, "a.txt")))
	require.Equal(CacheKeyInvalid, f.CacheKey())
}
