package filesys

import (
	"archive/zip"
	"io"
	"iter"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var _ FileSystem = &Zip{}

// Zip reads files out of a zip archive. The member list is indexed once at
// construction; directory entries are skipped.
type Zip struct {
	path    string
	entries []*zip.File
	index   map[string]*zip.File
	closer  io.Closer
}

// NewZip opens the archive at path and takes ownership of the handle; call
// Close when done. Malformed archives surface zip.ErrFormat unchanged.
func NewZip(path string) (*Zip, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	z := newZip(path, &rc.Reader)
	z.closer = rc
	return z, nil
}

// NewZipReader wraps an already-open zip reader. The caller keeps ownership
// of the underlying handle; Close on the returned filesystem is a no-op.
func NewZipReader(path string, r *zip.Reader) *Zip {
	return newZip(path, r)
}

func newZip(path string, r *zip.Reader) *Zip {
	z := &Zip{
		path:    filepath.Clean(path),
		entries: make([]*zip.File, 0, len(r.File)),
		index:   make(map[string]*zip.File, len(r.File)),
	}
	for _, f := range r.File {
		// Directories are stored with a trailing slash.
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		z.entries = append(z.entries, f)
		z.index[foldPath(f.Name)] = f
	}
	log.Debug().Str("path", z.path).Int("files", len(z.entries)).Msg("zipfs: indexed archive")
	return z
}

// Close releases the archive handle. It is a no-op for filesystems created
// with NewZipReader.
func (z *Zip) Close() error {
	if z.closer == nil {
		return nil
	}
	return z.closer.Close()
}

func (z *Zip) Root() string { return z.path }

// Count returns the number of indexed archive members.
func (z *Zip) Count() int { return len(z.entries) }

func (z *Zip) Exists(name string) bool {
	_, ok := z.index[foldPath(name)]
	return ok
}

func (z *Zip) Lookup(name string) (*File, error) {
	entry, ok := z.index[foldPath(name)]
	if !ok {
		return nil, notFound(z.path, name)
	}
	return newFile(z, normPath(name), entry), nil
}

// Walk yields archive members under folder in archive order, with their
// stored-case names.
func (z *Zip) Walk(folder string) iter.Seq2[*File, error] {
	prefix := foldPath(folder)
	return func(yield func(*File, error) bool) {
		for _, entry := range z.entries {
			if !underFolder(foldPath(entry.Name), prefix) {
				continue
			}
			if !yield(newFile(z, normPath(entry.Name), entry), nil) {
				return
			}
		}
	}
}

func (z *Zip) Open(name string) (io.ReadCloser, error) {
	entry, ok := z.index[foldPath(name)]
	if !ok {
		return nil, notFound(z.path, name)
	}
	return entry.Open()
}

func (z *Zip) OpenText(name string) (io.ReadCloser, error) {
	return openText(z, name)
}

func (z *Zip) OpenFile(f *File) (io.ReadCloser, error) {
	if err := checkOwned(z, f); err != nil {
		return nil, err
	}
	entry, ok := f.data.(*zip.File)
	if !ok {
		return nil, notFound(z.path, f.path)
	}
	return entry.Open()
}

// CacheKey returns the member's CRC-32 from the archive index, so it is
// available without decompressing.
func (z *Zip) CacheKey(f *File) int64 {
	if checkOwned(z, f) != nil {
		return CacheKeyInvalid
	}
	entry, ok := f.data.(*zip.File)
	if !ok {
		return CacheKeyInvalid
	}
	return int64(entry.CRC32)
}
