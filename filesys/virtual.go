package filesys

import (
	"bytes"
	"io"
	"iter"
	"maps"
	"slices"
)

// VirtualRoot is the root locator shared by all in-memory filesystems.
const VirtualRoot = "<virtual>"

var _ FileSystem = &Virtual{}

// Virtual serves files from memory. It is handy for tests and for layering
// generated content over real game data in a Chain.
type Virtual struct {
	files map[string]virtualFile
	names []string
}

// virtualFile keeps the display name alongside the content; the index key
// is the folded form of the name.
type virtualFile struct {
	name string
	data []byte
}

// NewVirtual creates an in-memory filesystem from a name-to-content map.
// The contents are copied.
func NewVirtual(files map[string][]byte) *Virtual {
	v := &Virtual{files: make(map[string]virtualFile, len(files))}
	for name, data := range files {
		v.files[foldPath(name)] = virtualFile{
			name: normPath(name),
			data: bytes.Clone(data),
		}
	}
	v.names = slices.Sorted(maps.Keys(v.files))
	return v
}

// NewVirtualStrings is NewVirtual for text content.
func NewVirtualStrings(files map[string]string) *Virtual {
	converted := make(map[string][]byte, len(files))
	for name, data := range files {
		converted[name] = []byte(data)
	}
	return NewVirtual(converted)
}

func (v *Virtual) Root() string { return VirtualRoot }

// Count returns the number of files held in memory.
func (v *Virtual) Count() int { return len(v.files) }

func (v *Virtual) Exists(name string) bool {
	_, ok := v.files[foldPath(name)]
	return ok
}

// Lookup folds the name for the index and hands back the stored-case name,
// matching what Walk yields for the same file.
func (v *Virtual) Lookup(name string) (*File, error) {
	key := foldPath(name)
	vf, ok := v.files[key]
	if !ok {
		return nil, notFound(VirtualRoot, name)
	}
	return newFile(v, vf.name, key), nil
}

// Walk yields files under folder in sorted order, with their stored-case
// names.
func (v *Virtual) Walk(folder string) iter.Seq2[*File, error] {
	prefix := foldPath(folder)
	return func(yield func(*File, error) bool) {
		for _, key := range v.names {
			if !underFolder(key, prefix) {
				continue
			}
			if !yield(newFile(v, v.files[key].name, key), nil) {
				return
			}
		}
	}
}

func (v *Virtual) Open(name string) (io.ReadCloser, error) {
	vf, ok := v.files[foldPath(name)]
	if !ok {
		return nil, notFound(VirtualRoot, name)
	}
	return io.NopCloser(bytes.NewReader(vf.data)), nil
}

func (v *Virtual) OpenText(name string) (io.ReadCloser, error) {
	return openText(v, name)
}

func (v *Virtual) OpenFile(f *File) (io.ReadCloser, error) {
	if err := checkOwned(v, f); err != nil {
		return nil, err
	}
	key, ok := f.data.(string)
	if !ok {
		return nil, notFound(VirtualRoot, f.path)
	}
	vf, ok := v.files[key]
	if !ok {
		return nil, notFound(VirtualRoot, f.path)
	}
	return io.NopCloser(bytes.NewReader(vf.data)), nil
}

// CacheKey always reports CacheKeyInvalid: in-memory content has no
// underlying source to detect changes against.
func (v *Virtual) CacheKey(*File) int64 { return CacheKeyInvalid }

func (v *Virtual) equal(o *Virtual) bool {
	return maps.EqualFunc(v.files, o.files, func(a, b virtualFile) bool {
		return a.name == b.name && bytes.Equal(a.data, b.data)
	})
}
