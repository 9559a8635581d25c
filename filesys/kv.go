package filesys

import (
	"github.com/ozxybox/srctools/keyvalues"
)

// ReadKeyValues opens name as text and parses it as a KeyValues1 document.
// Parse diagnostics are tagged with the filesystem root and the path, so
// errors out of a chain member still identify their source.
func ReadKeyValues(sys FileSystem, name string) (*keyvalues.KeyValues, error) {
	rc, err := sys.OpenText(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return keyvalues.Parse(rc, sys.Root()+":"+name)
}
