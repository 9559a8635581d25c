package filesys

import (
	"bytes"
	"io"
	"iter"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/ozxybox/srctools/vpk"
)

var _ FileSystem = &VPK{}

// VPK reads files out of a Valve VPK package via its _dir index. Content
// chunks are fetched from the sibling numbered archives on demand.
type VPK struct {
	path  string
	arc   *vpk.Archive
	index map[string]*vpk.Entry
}

// NewVPK opens the package index at path, which should be the _dir.vpk
// file. Malformed packages surface vpk.ErrFormat unchanged.
func NewVPK(path string) (*VPK, error) {
	arc, err := vpk.Open(path)
	if err != nil {
		return nil, err
	}
	entries := arc.Entries()
	v := &VPK{
		path:  filepath.Clean(path),
		arc:   arc,
		index: make(map[string]*vpk.Entry, len(entries)),
	}
	for _, e := range entries {
		v.index[foldPath(e.Filename())] = e
	}
	log.Debug().Str("path", v.path).Int("files", len(entries)).Msg("vpkfs: indexed package")
	return v, nil
}

func (v *VPK) Root() string { return v.path }

// Count returns the number of indexed package members.
func (v *VPK) Count() int { return len(v.index) }

func (v *VPK) Exists(name string) bool {
	_, ok := v.index[foldPath(name)]
	return ok
}

// Lookup resolves name against the package index. The returned File carries
// the folded index key as its path.
func (v *VPK) Lookup(name string) (*File, error) {
	key := foldPath(name)
	entry, ok := v.index[key]
	if !ok {
		return nil, notFound(v.path, name)
	}
	return newFile(v, key, entry), nil
}

// Walk yields package members under folder in index order, with their
// stored-case names.
func (v *VPK) Walk(folder string) iter.Seq2[*File, error] {
	prefix := foldPath(folder)
	return func(yield func(*File, error) bool) {
		for _, entry := range v.arc.Entries() {
			if !underFolder(foldPath(entry.Dir), prefix) {
				continue
			}
			if !yield(newFile(v, entry.Filename(), entry), nil) {
				return
			}
		}
	}
}

// Open materializes the member's full content in memory. VPK chunks are
// small enough for that to be the simplest correct behavior.
func (v *VPK) Open(name string) (io.ReadCloser, error) {
	entry, ok := v.index[foldPath(name)]
	if !ok {
		return nil, notFound(v.path, name)
	}
	return v.open(entry)
}

func (v *VPK) OpenText(name string) (io.ReadCloser, error) {
	return openText(v, name)
}

func (v *VPK) OpenFile(f *File) (io.ReadCloser, error) {
	if err := checkOwned(v, f); err != nil {
		return nil, err
	}
	entry, ok := f.data.(*vpk.Entry)
	if !ok {
		return nil, notFound(v.path, f.path)
	}
	return v.open(entry)
}

func (v *VPK) open(entry *vpk.Entry) (io.ReadCloser, error) {
	data, err := v.arc.ReadFile(entry)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// CacheKey returns the member's CRC-32 from the package index.
func (v *VPK) CacheKey(f *File) int64 {
	if checkOwned(v, f) != nil {
		return CacheKeyInvalid
	}
	entry, ok := f.data.(*vpk.Entry)
	if !ok {
		return CacheKeyInvalid
	}
	return int64(entry.CRC)
}
