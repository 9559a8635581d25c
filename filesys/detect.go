package filesys

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Detect creates the right filesystem for a path: directories become
// constrained Raw filesystems, and files are dispatched on extension.
func Detect(path string) (FileSystem, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		log.Debug().Str("path", path).Msg("detect: directory")
		return NewRaw(path, true), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zip":
		log.Debug().Str("path", path).Msg("detect: zip archive")
		return NewZip(path)
	case ".vpk":
		log.Debug().Str("path", path).Msg("detect: vpk package")
		return NewVPK(path)
	}
	return nil, fmt.Errorf("unrecognised filesystem for %q: %w", path, ErrUnsupportedFormat)
}
