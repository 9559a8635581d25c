package filesys

import (
	"archive/zip"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type zipMember struct {
	name string
	data string
}

func writeTestZip(t *testing.T, dir, name string, members []zipMember) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for _, m := range members {
		h, err := w.Create(m.name)
		require.NoError(t, err)
		_, err = h.Write([]byte(m.data))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	return p
}

func TestZipLookup(t *testing.T) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "zipfs")
	require.NoError(err)
	defer os.RemoveAll(dir)
	p := writeTestZip(t, dir, "pack.zip", []zipMember{
		{"GameInfo.txt", "root file"},
		{"Maps/", ""},
		{"Maps/De_Dust2.bsp", "map data"},
	})

	z, err := NewZip(p)
	require.NoError(err)
	defer z.Close()
	require.Equal(p, z.Root())

	f, err := z.Lookup("maps/de_dust2.bsp")
	require.NoError(err)
	require.Equal("maps/de_dust2.bsp", f.Path())

	rc, err := f.Open()
	require.NoError(err)
	data, err := io.ReadAll(rc)
	require.NoError(err)
	require.NoError(rc.Close())
	require.Equal("map data", string(data))

	require.True(z.Exists(`MAPS\DE_DUST2.BSP`))

	// The directory entry is not a file.
	require.False(z.Exists("Maps"))

	_, err = z.Lookup("missing.txt")
	require.ErrorIs(err, ErrNotFound)
	require.ErrorContains(err, "missing.txt")

	z2, err := NewZip(p)
	require.NoError(err)
	defer z2.Close()
	require.True(Equal(z, z2))
}

func TestZipWalk(t *testing.T) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "zipfs")
	require.NoError(err)
	defer os.RemoveAll(dir)
	p := writeTestZip(t, dir, "pack.zip", []zipMember{
		{"readme.txt", "a"},
		{"maps/", ""},
		{"maps/de_dust2.bsp", "b"},
		{"mapsource/de_dust2.vmf", "c"},
		{"maps/sub/extra.nav", "d"},
	})

	z, err := NewZip(p)
	require.NoError(err)
	defer z.Close()

	var all []string
	for f, err := range z.Walk("") {
		require.NoError(err)
		all = append(all, f.Path())
	}
	require.Equal([]string{"readme.txt", "maps/de_dust2.bsp", "mapsource/de_dust2.vmf", "maps/sub/extra.nav"}, all)

	var maps []string
	for f, err := range z.Walk("MAPS") {
		require.NoError(err)
		maps = append(maps, f.Path())
	}
	require.Equal([]string{"maps/de_dust2.bsp", "maps/sub/extra.nav"}, maps)
}

func TestZipCacheKey(t *testing.T) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "zipfs")
	require.NoError(err)
	defer os.RemoveAll(dir)
	p := writeTestZip(t, dir, "pack.zip", []zipMember{{"a.txt", "alpha"}})

	z, err := NewZip(p)
	require.NoError(err)
	defer z.Close()

	f, err := z.Lookup("a.txt")
	require.NoError(err)
	require.Equal(int64(crc32.ChecksumIEEE([]byte("alpha"))), f.CacheKey())
}

func TestZipOwnedClose(t *testing.T) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "zipfs")
	require.NoError(err)
	defer os.RemoveAll(dir)
	p := writeTestZip(t, dir, "pack.zip", []zipMember{{"a.txt", "alpha"}})

	z, err := NewZip(p)
	require.NoError(err)
	require.NoError(z.Close())

	// The handle is owned, so content is unreachable after Close.
	rc, err := z.Open("a.txt")
	if err == nil {
		_, err = io.ReadAll(rc)
		rc.Close()
	}
	require.Error(err)
}

func TestZipBorrowedReader(t *testing.T) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "zipfs")
	require.NoError(err)
	defer os.RemoveAll(dir)
	p := writeTestZip(t, dir, "pack.zip", []zipMember{{"a.txt", "alpha"}})

	f, err := os.Open(p)
	require.NoError(err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(err)
	zr, err := zip.NewReader(f, info.Size())
	require.NoError(err)

	z := NewZipReader(p, zr)
	require.NoError(z.Close())

	// Close was a no-op; the caller's reader still serves content.
	rc, err := z.Open("a.txt")
	require.NoError(err)
	data, err := io.ReadAll(rc)
	require.NoError(err)
	require.NoError(rc.Close())
	require.Equal("alpha", string(data))
}

func TestZipBadFile(t *testing.T) {
	require := require.New(t)

	dir, err := os.MkdirTemp("", "zipfs")
	require.NoError(err)
	defer os.RemoveAll(dir)
	p := filepath.Join(dir, "bad.zip")
	require.NoError(os.WriteFile(p, []byte("this is not an archive"), 0o644))

	_, err = NewZip(p)
	require.ErrorIs(err, zip.ErrFormat)
}
