package vpk

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

func writeEntry(buf *bytes.Buffer, crc uint32, preload []byte, archiveIndex uint16, offset, length uint32) {
	binary.Write(buf, binary.LittleEndian, crc)
	binary.Write(buf, binary.LittleEndian, uint16(len(preload)))
	binary.Write(buf, binary.LittleEndian, archiveIndex)
	binary.Write(buf, binary.LittleEndian, offset)
	binary.Write(buf, binary.LittleEndian, length)
	binary.Write(buf, binary.LittleEndian, uint16(0xffff))
	buf.Write(preload)
}

// writeDirFile assembles a directory file: header, tree, then any data stored
// after the tree.
func writeDirFile(t *testing.T, path string, version int, tree, data []byte) {
	t.Helper()

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(Signature))
	binary.Write(&buf, binary.LittleEndian, uint32(version))
	binary.Write(&buf, binary.LittleEndian, uint32(len(tree)))
	if version == 2 {
		binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
		binary.Write(&buf, binary.LittleEndian, uint32(0))
		binary.Write(&buf, binary.LittleEndian, uint32(0))
		binary.Write(&buf, binary.LittleEndian, uint32(0))
	}
	buf.Write(tree)
	buf.Write(data)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestOpenV1(t *testing.T) {
	require := require.New(t)

	tmp, err := os.MkdirTemp("", "vpk")
	require.NoError(err)
	defer os.RemoveAll(tmp)

	var tree bytes.Buffer
	writeCString(&tree, "vmt")
	writeCString(&tree, "materials/concrete")
	writeCString(&tree, "floor01")
	writeEntry(&tree, 0xdeadbeef, []byte("pre"), DirIndex, 0, 5)
	writeCString(&tree, "")
	writeCString(&tree, "")
	writeCString(&tree, "")

	path := filepath.Join(tmp, "pak01_dir.vpk")
	writeDirFile(t, path, 1, tree.Bytes(), []byte("chunk"))

	a, err := Open(path)
	require.NoError(err)
	require.Equal(1, a.Version())
	require.Len(a.Entries(), 1)

	e := a.Entries()[0]
	require.Equal("materials/concrete/floor01.vmt", e.Filename())
	require.Equal(uint32(0xdeadbeef), e.CRC)
	require.Equal(int64(8), e.Size())

	content, err := a.ReadFile(e)
	require.NoError(err)
	require.Equal([]byte("prechunk"), content)
}

func TestOpenV2RootEntries(t *testing.T) {
	require := require.New(t)

	tmp, err := os.MkdirTemp("", "vpk")
	require.NoError(err)
	defer os.RemoveAll(tmp)

	// A root-level file uses " " for its directory. Data lives entirely in
	// the preload block here.
	var tree bytes.Buffer
	writeCString(&tree, "txt")
	writeCString(&tree, " ")
	writeCString(&tree, "readme")
	writeEntry(&tree, 42, []byte("hello"), DirIndex, 0, 0)
	writeCString(&tree, "")
	writeCString(&tree, "")
	writeCString(&tree, "")

	path := filepath.Join(tmp, "pak01_dir.vpk")
	writeDirFile(t, path, 2, tree.Bytes(), nil)

	a, err := Open(path)
	require.NoError(err)
	require.Equal(2, a.Version())
	require.Len(a.Entries(), 1)

	e := a.Entries()[0]
	require.Equal("", e.Dir)
	require.Equal("readme.txt", e.Filename())

	content, err := a.ReadFile(e)
	require.NoError(err)
	require.Equal([]byte("hello"), content)
}

func TestReadFromSiblingArchive(t *testing.T) {
	require := require.New(t)

	tmp, err := os.MkdirTemp("", "vpk")
	require.NoError(err)
	defer os.RemoveAll(tmp)

	payload := []byte("sibling archive payload")

	var tree bytes.Buffer
	writeCString(&tree, "bin")
	writeCString(&tree, "models")
	writeCString(&tree, "crate")
	writeEntry(&tree, 7, nil, 0, 4, uint32(len(payload)))
	writeCString(&tree, "")
	writeCString(&tree, "")
	writeCString(&tree, "")

	path := filepath.Join(tmp, "pak01_dir.vpk")
	writeDirFile(t, path, 1, tree.Bytes(), nil)

	// Entry offset 4 into the sibling file.
	sibling := append([]byte("pad!"), payload...)
	require.NoError(os.WriteFile(filepath.Join(tmp, "pak01_000.vpk"), sibling, 0o644))

	a, err := Open(path)
	require.NoError(err)
	require.Len(a.Entries(), 1)

	content, err := a.ReadFile(a.Entries()[0])
	require.NoError(err)
	require.Equal(payload, content)
}

func TestOpenMultipleEntries(t *testing.T) {
	require := require.New(t)

	tmp, err := os.MkdirTemp("", "vpk")
	require.NoError(err)
	defer os.RemoveAll(tmp)

	var tree bytes.Buffer
	writeCString(&tree, "vmt")
	writeCString(&tree, "materials")
	writeCString(&tree, "wall")
	writeEntry(&tree, 1, []byte("a"), DirIndex, 0, 0)
	writeCString(&tree, "floor")
	writeEntry(&tree, 2, []byte("b"), DirIndex, 0, 0)
	writeCString(&tree, "")
	writeCString(&tree, "")
	writeCString(&tree, "vtf")
	writeCString(&tree, "materials")
	writeCString(&tree, "wall")
	writeEntry(&tree, 3, []byte("c"), DirIndex, 0, 0)
	writeCString(&tree, "")
	writeCString(&tree, "")
	writeCString(&tree, "")

	path := filepath.Join(tmp, "pak01_dir.vpk")
	writeDirFile(t, path, 1, tree.Bytes(), nil)

	a, err := Open(path)
	require.NoError(err)
	require.Len(a.Entries(), 3)

	names := make([]string, 0, 3)
	for _, e := range a.Entries() {
		names = append(names, e.Filename())
	}
	require.Equal([]string{
		"materials/wall.vmt",
		"materials/floor.vmt",
		"materials/wall.vtf",
	}, names)
}

func TestOpenRejectsBadFiles(t *testing.T) {
	require := require.New(t)

	tmp, err := os.MkdirTemp("", "vpk")
	require.NoError(err)
	defer os.RemoveAll(tmp)

	// Wrong magic.
	bad := filepath.Join(tmp, "bad.vpk")
	require.NoError(os.WriteFile(bad, []byte("PK\x03\x04 definitely a zip"), 0o644))
	_, err = Open(bad)
	require.ErrorIs(err, ErrFormat)

	// Unsupported version.
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(Signature))
	binary.Write(&buf, binary.LittleEndian, uint32(99))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	v99 := filepath.Join(tmp, "v99.vpk")
	require.NoError(os.WriteFile(v99, buf.Bytes(), 0o644))
	_, err = Open(v99)
	require.ErrorIs(err, ErrFormat)

	// Truncated tree: claims entries but stops mid-way.
	var tree bytes.Buffer
	writeCString(&tree, "txt")
	writeCString(&tree, "docs")
	writeCString(&tree, "a")
	truncated := filepath.Join(tmp, "trunc.vpk")
	writeDirFile(t, truncated, 1, tree.Bytes(), nil)
	_, err = Open(truncated)
	require.ErrorIs(err, ErrFormat)
}
