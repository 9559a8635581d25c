package filesys

import (
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var _ FileSystem = &Raw{}

// Raw reads files from a real directory tree. When constrained, paths that
// resolve outside the root are rejected with ErrPathEscape; an unconstrained
// system follows them, which mods rely on for gameinfo-style search paths
// pointing at sibling folders.
type Raw struct {
	root      string
	constrain bool
}

// NewRaw creates a filesystem rooted at the given directory. The root is
// resolved to an absolute path; the directory does not have to exist yet.
func NewRaw(root string, constrain bool) *Raw {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	return &Raw{root: abs, constrain: constrain}
}

func (r *Raw) Root() string { return r.root }

// resolve maps a filesystem-relative name onto the host filesystem,
// enforcing the root boundary when constrained.
func (r *Raw) resolve(name string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(name, "\\", "/"))
	abs, err := filepath.Abs(filepath.Join(r.root, rel))
	if err != nil {
		return "", err
	}
	if r.constrain && !withinRoot(r.root, abs) {
		log.Debug().Str("root", r.root).Str("name", name).Msg("rawfs: rejected escaping path")
		return "", fmt.Errorf("path %q escaped %q: %w", name, r.root, ErrPathEscape)
	}
	return abs, nil
}

// withinRoot reports whether abs is root itself or below it, comparing at a
// path segment boundary so /data does not match /databank.
func withinRoot(root, abs string) bool {
	if abs == root {
		return true
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	return strings.HasPrefix(abs, root)
}

func (r *Raw) Exists(name string) bool {
	resolved, err := r.resolve(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(resolved)
	return err == nil && info.Mode().IsRegular()
}

func (r *Raw) Lookup(name string) (*File, error) {
	resolved, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return nil, notFound(r.root, name)
	}
	return newFile(r, slashPath(name), resolved), nil
}

func (r *Raw) Walk(folder string) iter.Seq2[*File, error] {
	return func(yield func(*File, error) bool) {
		base, err := r.resolve(folder)
		if err != nil {
			yield(nil, err)
			return
		}
		_ = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil || !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(r.root, p)
			if err != nil {
				return nil
			}
			if !yield(newFile(r, filepath.ToSlash(rel), p), nil) {
				return fs.SkipAll
			}
			return nil
		})
	}
}

func (r *Raw) Open(name string) (io.ReadCloser, error) {
	resolved, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(resolved)
	if err != nil {
		return nil, notFound(r.root, name)
	}
	return f, nil
}

func (r *Raw) OpenText(name string) (io.ReadCloser, error) {
	return openText(r, name)
}

func (r *Raw) OpenFile(f *File) (io.ReadCloser, error) {
	if err := checkOwned(r, f); err != nil {
		return nil, err
	}
	resolved, ok := f.data.(string)
	if !ok {
		return nil, fmt.Errorf("%s: %w", f.path, ErrForeignFile)
	}
	rc, err := os.Open(resolved)
	if err != nil {
		return nil, notFound(r.root, f.path)
	}
	return rc, nil
}

// CacheKey returns the file's modification time in nanoseconds, or
// CacheKeyInvalid if it cannot be statted.
func (r *Raw) CacheKey(f *File) int64 {
	if checkOwned(r, f) != nil {
		return CacheKeyInvalid
	}
	resolved, ok := f.data.(string)
	if !ok {
		return CacheKeyInvalid
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return CacheKeyInvalid
	}
	return info.ModTime().UnixNano()
}
