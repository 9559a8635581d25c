// Package filesys provides a uniform, read-only view over several file
// sources: real directories, zip archives, Valve VPK packages, in-memory
// file sets, and prioritized chains of any of these. Paths use forward
// slashes and compare case-insensitively, matching how Source engine games
// address their assets.
package filesys

import (
	"bufio"
	"io"
	"iter"
	"path"
	"strings"
)

// CacheKeyInvalid is returned by CacheKey when no change-detection value can
// be computed for a file.
const CacheKeyInvalid int64 = -1

// FileSystem is the interface shared by every backend. Implementations are
// safe for concurrent readers once constructed.
type FileSystem interface {
	// Root returns the normalized locator this filesystem reads from: a
	// directory or archive path, "<virtual>" for in-memory systems, or ""
	// for a chain.
	Root() string

	// Exists reports whether name can be resolved to a file.
	Exists(name string) bool

	// Lookup resolves name to a File handle without reading content.
	// Misses are reported as ErrNotFound.
	Lookup(name string) (*File, error)

	// Walk yields every file at or below folder, depth first. The sequence
	// may be iterated multiple times. Pass "" for the whole tree.
	Walk(folder string) iter.Seq2[*File, error]

	// Open returns the content of name as a byte stream.
	Open(name string) (io.ReadCloser, error)

	// OpenText returns the content of name as UTF-8 text with \r\n and
	// bare \r line endings translated to \n.
	OpenText(name string) (io.ReadCloser, error)

	// OpenFile opens a File previously produced by this filesystem,
	// skipping name resolution. Files from other systems are rejected
	// with ErrForeignFile.
	OpenFile(f *File) (io.ReadCloser, error)

	// CacheKey returns a value that changes when the file's content
	// changes, or CacheKeyInvalid when none is available.
	CacheKey(f *File) int64
}

// File is a handle to a file inside a FileSystem, created during lookup or
// traversal. The zero value is not useful.
type File struct {
	sys  FileSystem
	path string
	data any
}

func newFile(sys FileSystem, path string, data any) *File {
	return &File{sys: sys, path: path, data: data}
}

// Path returns the file's path relative to its filesystem root, with
// forward slashes.
func (f *File) Path() string { return f.path }

// System returns the filesystem that produced this file.
func (f *File) System() FileSystem { return f.sys }

// Open returns the file's content as a byte stream.
func (f *File) Open() (io.ReadCloser, error) {
	return f.sys.OpenFile(f)
}

// OpenText returns the file's content as UTF-8 text with line endings
// translated to \n.
func (f *File) OpenText() (io.ReadCloser, error) {
	rc, err := f.sys.OpenFile(f)
	if err != nil {
		return nil, err
	}
	return newTextReader(rc), nil
}

// CacheKey returns a change-detection value for this file, or
// CacheKeyInvalid when the owning filesystem cannot provide one.
func (f *File) CacheKey() int64 {
	return f.sys.CacheKey(f)
}

// Equal reports whether two filesystems read from the same source. Two
// systems are equal when they are the same backend kind with the same
// normalized root; chains compare member by member and virtual systems
// compare their contents.
func Equal(a, b FileSystem) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case *Chain:
		bv, ok := b.(*Chain)
		return ok && av.equal(bv)
	case *Virtual:
		bv, ok := b.(*Virtual)
		return ok && av.equal(bv)
	case *Raw:
		bv, ok := b.(*Raw)
		return ok && av.Root() == bv.Root()
	case *Zip:
		bv, ok := b.(*Zip)
		return ok && av.Root() == bv.Root()
	case *VPK:
		bv, ok := b.(*VPK)
		return ok && av.Root() == bv.Root()
	}
	return a == b
}

// Kind names a filesystem's backend for listings and metric labels: "dir",
// "zip", "vpk", "virtual" or "chain".
func Kind(sys FileSystem) string {
	switch sys.(type) {
	case *Raw:
		return "dir"
	case *Zip:
		return "zip"
	case *VPK:
		return "vpk"
	case *Virtual:
		return "virtual"
	case *Chain:
		return "chain"
	default:
		return "unknown"
	}
}

// normPath converts both separator styles to forward slashes, collapses
// "." and ".." elements and returns a relative path, "" for the root.
func normPath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// slashPath converts separators without collapsing anything, for systems
// that resolve names against the host filesystem themselves.
func slashPath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// foldPath is normPath plus case folding, producing the canonical index key
// for a path.
func foldPath(p string) string {
	return strings.ToLower(normPath(p))
}

// underFolder reports whether a folded path lies at or below the folded
// folder, matching at a path segment boundary so "maps2/x" is not under
// "maps".
func underFolder(p, folder string) bool {
	if folder == "" {
		return true
	}
	return p == folder || strings.HasPrefix(p, folder+"/")
}

// openText is the shared OpenText implementation for all backends.
func openText(sys FileSystem, name string) (io.ReadCloser, error) {
	rc, err := sys.Open(name)
	if err != nil {
		return nil, err
	}
	return newTextReader(rc), nil
}

// textReader translates \r\n and bare \r to \n, the way Source text assets
// are consumed regardless of which platform wrote them.
type textReader struct {
	rc io.ReadCloser
	br *bufio.Reader
}

func newTextReader(rc io.ReadCloser) io.ReadCloser {
	return &textReader{rc: rc, br: bufio.NewReader(rc)}
}

func (t *textReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		b, err := t.br.ReadByte()
		if err != nil {
			if n > 0 && err == io.EOF {
				return n, nil
			}
			return n, err
		}
		if b == '\r' {
			if next, err := t.br.ReadByte(); err == nil && next != '\n' {
				_ = t.br.UnreadByte()
			}
			b = '\n'
		}
		p[n] = b
		n++
	}
	return n, nil
}

func (t *textReader) Close() error { return t.rc.Close() }
