package filesys

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is reported when a lookup or open misses. Probing several
	// names is expected usage, so callers should match it with errors.Is.
	ErrNotFound = errors.New("file not found")

	// ErrPathEscape is reported by a constrained Raw filesystem when a path
	// resolves outside the root. It is never silently clamped.
	ErrPathEscape = errors.New("path escapes filesystem root")

	// ErrUnsupportedFormat is reported by Detect for paths with an
	// unrecognized extension.
	ErrUnsupportedFormat = errors.New("unsupported filesystem format")

	// ErrForeignFile is reported when a File is passed to a filesystem other
	// than the one that created it.
	ErrForeignFile = errors.New("file belongs to a different filesystem")
)

// notFound tags ErrNotFound with the root locator and the requested name.
func notFound(root, name string) error {
	if root == "" {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return fmt.Errorf("%s:%s: %w", root, name, ErrNotFound)
}

// checkOwned verifies that a File originated from sys.
func checkOwned(sys FileSystem, f *File) error {
	if f != nil && f.sys == sys {
		return nil
	}
	if f == nil {
		return ErrForeignFile
	}
	return fmt.Errorf("%s: %w", f.path, ErrForeignFile)
}
