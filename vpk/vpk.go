// Package vpk reads Valve Pak (VPK) archives, versions 1 and 2.
//
// A VPK consists of a directory file holding a three-level tree of entries
// (extension, folder, basename) plus optional sibling archive files named
// <base>_NNN.vpk that hold the bulk data. Small files may be stored entirely
// as "preload" bytes inside the directory tree. Writing is not supported.
package vpk

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Signature is the magic number opening every VPK directory file.
const Signature = 0x55aa1234

// DirIndex is the archive index marking data stored in the directory file
// itself, after the tree.
const DirIndex = 0x7fff

// ErrFormat is returned when the file is not a VPK directory, uses an
// unsupported version, or the tree is truncated or corrupt.
var ErrFormat = errors.New("vpk: not a valid VPK file")

// Entry is one file recorded in the directory tree.
type Entry struct {
	// Ext, Dir and Name are the stored path components. Any of them may be
	// empty; the on-disk " " placeholder is already normalized away.
	Ext  string
	Dir  string
	Name string

	// CRC is the CRC-32 checksum of the complete file content.
	CRC uint32

	// ArchiveIndex selects the sibling archive holding the data chunk, or
	// DirIndex when the chunk lives in the directory file.
	ArchiveIndex uint16

	// Offset and Length locate the data chunk. Length excludes the preload
	// bytes.
	Offset uint32
	Length uint32

	preload []byte
}

// Filename returns the entry's path in dir/name.ext form, omitting empty
// components.
func (e *Entry) Filename() string {
	name := e.Name
	if e.Ext != "" {
		name += "." + e.Ext
	}
	if e.Dir != "" {
		return e.Dir + "/" + name
	}
	return name
}

// Size returns the total content size, preload included.
func (e *Entry) Size() int64 {
	return int64(len(e.preload)) + int64(e.Length)
}

// Archive is a parsed VPK directory. The directory file is read eagerly and
// closed before Open returns, so an Archive holds no open handles; ReadFile
// opens the required file per call, which makes concurrent reads safe.
type Archive struct {
	path       string
	version    uint32
	dataOffset int64
	entries    []*Entry
}

// Open parses the directory tree of the VPK at path.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)

	var head struct {
		Signature uint32
		Version   uint32
		TreeSize  uint32
	}
	if err := binary.Read(br, binary.LittleEndian, &head); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFormat, path)
	}
	if head.Signature != Signature {
		return nil, fmt.Errorf("%w: %s", ErrFormat, path)
	}

	headerSize := 12
	switch head.Version {
	case 1:
	case 2:
		// Four more section sizes follow; only the header length matters
		// for locating the data section.
		var sections [4]uint32
		if err := binary.Read(br, binary.LittleEndian, &sections); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrFormat, path)
		}
		headerSize = 28
	default:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, head.Version)
	}

	a := &Archive{
		path:       path,
		version:    head.Version,
		dataOffset: int64(headerSize) + int64(head.TreeSize),
	}
	if err := a.readTree(br); err != nil {
		return nil, err
	}

	log.Debug().
		Str("path", path).
		Uint32("version", head.Version).
		Int("entries", len(a.entries)).
		Msg("vpk: directory parsed")

	return a, nil
}

// Version reports the archive format version, 1 or 2.
func (a *Archive) Version() int {
	return int(a.version)
}

// Path returns the directory file path the archive was opened from.
func (a *Archive) Path() string {
	return a.path
}

// Entries returns all files in directory order. The slice is shared; callers
// must not modify it.
func (a *Archive) Entries() []*Entry {
	return a.entries
}

// readTree walks the extension/directory/basename nesting. Each level is a
// run of NUL-terminated strings closed by an empty string; " " stands for an
// empty component.
func (a *Archive) readTree(br *bufio.Reader) error {
	for {
		ext, err := readString(br)
		if err != nil {
			return err
		}
		if ext == "" {
			return nil
		}
		ext = blankComponent(ext)

		for {
			dir, err := readString(br)
			if err != nil {
				return err
			}
			if dir == "" {
				break
			}
			dir = blankComponent(dir)

			for {
				name, err := readString(br)
				if err != nil {
					return err
				}
				if name == "" {
					break
				}
				name = blankComponent(name)

				e, err := a.readEntry(br)
				if err != nil {
					return err
				}
				e.Ext, e.Dir, e.Name = ext, dir, name
				a.entries = append(a.entries, e)
			}
		}
	}
}

func (a *Archive) readEntry(br *bufio.Reader) (*Entry, error) {
	var raw struct {
		CRC          uint32
		PreloadBytes uint16
		ArchiveIndex uint16
		Offset       uint32
		Length       uint32
		Terminator   uint16
	}
	if err := binary.Read(br, binary.LittleEndian, &raw); err != nil {
		return nil, fmt.Errorf("%w: truncated entry in %s", ErrFormat, a.path)
	}
	if raw.Terminator != 0xffff {
		return nil, fmt.Errorf("%w: bad entry terminator in %s", ErrFormat, a.path)
	}

	e := &Entry{
		CRC:          raw.CRC,
		ArchiveIndex: raw.ArchiveIndex,
		Offset:       raw.Offset,
		Length:       raw.Length,
	}
	if raw.PreloadBytes > 0 {
		e.preload = make([]byte, raw.PreloadBytes)
		if _, err := io.ReadFull(br, e.preload); err != nil {
			return nil, fmt.Errorf("%w: truncated preload in %s", ErrFormat, a.path)
		}
	}
	return e, nil
}

// ReadFile returns the complete content of an entry, preload bytes followed
// by the data chunk from the directory file or the sibling archive.
func (a *Archive) ReadFile(e *Entry) ([]byte, error) {
	out := make([]byte, 0, len(e.preload)+int(e.Length))
	out = append(out, e.preload...)
	if e.Length == 0 {
		return out, nil
	}

	src := a.path
	offset := a.dataOffset + int64(e.Offset)
	if e.ArchiveIndex != DirIndex {
		src = a.archivePath(e.ArchiveIndex)
		offset = int64(e.Offset)
	}

	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	chunk := make([]byte, e.Length)
	if _, err := f.ReadAt(chunk, offset); err != nil {
		return nil, fmt.Errorf("vpk: reading %s from %s: %w", e.Filename(), src, err)
	}
	return append(out, chunk...), nil
}

// archivePath builds the sibling archive path for an index. A directory file
// named pak01_dir.vpk has siblings pak01_000.vpk, pak01_001.vpk and so on.
func (a *Archive) archivePath(index uint16) string {
	ext := filepath.Ext(a.path)
	stem := strings.TrimSuffix(a.path, ext)
	stem = strings.TrimSuffix(stem, "_dir")
	return fmt.Sprintf("%s_%03d%s", stem, index, ext)
}

// readString reads a NUL-terminated string from the tree.
func readString(br *bufio.Reader) (string, error) {
	s, err := br.ReadString(0)
	if err != nil {
		return "", fmt.Errorf("%w: truncated tree", ErrFormat)
	}
	return s[:len(s)-1], nil
}

// blankComponent maps the on-disk " " placeholder to an empty component.
func blankComponent(s string) string {
	if s == " " {
		return ""
	}
	return s
}
