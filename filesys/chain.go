package filesys

import (
	"errors"
	"io"
	"iter"
	"slices"
	"strings"
)

var _ FileSystem = &Chain{}

// Chain layers several filesystems into one search path, the way gameinfo
// search paths stack game directories and VPKs. Earlier members shadow
// later ones. A member's prefix narrows it to a subfolder, so the chain
// root can map straight into, say, a pack's materials/ tree.
type Chain struct {
	entries []ChainEntry
}

// ChainEntry is one member of a Chain: a filesystem and the folder inside
// it that the chain reads from ("" for the member's root).
type ChainEntry struct {
	System FileSystem
	Prefix string
}

// NewChain creates a chain of the given filesystems, all mounted at the
// root, in priority order.
func NewChain(systems ...FileSystem) *Chain {
	c := &Chain{entries: make([]ChainEntry, 0, len(systems))}
	for _, sys := range systems {
		c.Add(sys, "")
	}
	return c
}

// Add appends a filesystem with the lowest priority.
func (c *Chain) Add(sys FileSystem, prefix string) {
	c.entries = append(c.entries, ChainEntry{System: sys, Prefix: normPath(prefix)})
}

// AddFront inserts a filesystem with the highest priority. Its files
// shadow every existing member.
func (c *Chain) AddFront(sys FileSystem, prefix string) {
	c.entries = slices.Insert(c.entries, 0, ChainEntry{System: sys, Prefix: normPath(prefix)})
}

// Entries returns the members in priority order.
func (c *Chain) Entries() []ChainEntry {
	return slices.Clone(c.entries)
}

func (c *Chain) Root() string { return "" }

// System returns the member backend that produced f during a chain lookup
// or walk.
func (c *Chain) System(f *File) (FileSystem, error) {
	inner, err := c.inner(f)
	if err != nil {
		return nil, err
	}
	return inner.System(), nil
}

func (c *Chain) inner(f *File) (*File, error) {
	if err := checkOwned(c, f); err != nil {
		return nil, err
	}
	inner, ok := f.data.(*File)
	if !ok {
		return nil, errors.New("chain: file has no member handle")
	}
	return inner, nil
}

func (c *Chain) Exists(name string) bool {
	for _, ent := range c.entries {
		if ent.System.Exists(joinPrefix(ent.Prefix, name)) {
			return true
		}
	}
	return false
}

// Lookup resolves name against each member in priority order. The returned
// File carries the member-side path, prefix included; reopen it through
// the handle rather than by another name lookup.
func (c *Chain) Lookup(name string) (*File, error) {
	for _, ent := range c.entries {
		full := joinPrefix(ent.Prefix, name)
		inner, err := ent.System.Lookup(full)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		return newFile(c, full, inner), nil
	}
	return nil, notFound("", name)
}

// Walk yields files under folder from all members, earliest member first,
// skipping names already seen in a higher-priority member.
func (c *Chain) Walk(folder string) iter.Seq2[*File, error] {
	return func(yield func(*File, error) bool) {
		seen := make(map[string]struct{})
		for f, err := range c.WalkRepeat(folder) {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			folded := strings.ToLower(f.Path())
			if _, ok := seen[folded]; ok {
				continue
			}
			seen[folded] = struct{}{}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// WalkRepeat is Walk without shadowing: a name present in several members
// is yielded once per member. Paths are relative to each member's prefix.
func (c *Chain) WalkRepeat(folder string) iter.Seq2[*File, error] {
	return func(yield func(*File, error) bool) {
		for _, ent := range c.entries {
			for inner, err := range ent.System.Walk(joinPrefix(ent.Prefix, folder)) {
				if err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				if !yield(newFile(c, stripPrefix(inner.Path(), ent.Prefix), inner), nil) {
					return
				}
			}
		}
	}
}

func (c *Chain) Open(name string) (io.ReadCloser, error) {
	f, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	return c.OpenFile(f)
}

func (c *Chain) OpenText(name string) (io.ReadCloser, error) {
	return openText(c, name)
}

func (c *Chain) OpenFile(f *File) (io.ReadCloser, error) {
	inner, err := c.inner(f)
	if err != nil {
		return nil, err
	}
	return inner.Open()
}

// CacheKey delegates to the member that produced the file.
func (c *Chain) CacheKey(f *File) int64 {
	inner, err := c.inner(f)
	if err != nil {
		return CacheKeyInvalid
	}
	return inner.CacheKey()
}

func (c *Chain) equal(o *Chain) bool {
	if len(c.entries) != len(o.entries) {
		return false
	}
	for i, ent := range c.entries {
		if ent.Prefix != o.entries[i].Prefix || !Equal(ent.System, o.entries[i].System) {
			return false
		}
	}
	return true
}

// joinPrefix places a chain-relative name under a member's prefix. The
// name is passed through otherwise untouched, so members still see and can
// reject dotdot elements themselves.
func joinPrefix(prefix, name string) string {
	name = slashPath(name)
	switch {
	case prefix == "":
		return name
	case name == "":
		return prefix
	}
	return prefix + "/" + name
}

// stripPrefix undoes joinPrefix on a member-produced path, tolerating case
// differences between the stored name and the mount prefix.
func stripPrefix(p, prefix string) string {
	prefix = normPath(prefix)
	if prefix == "" {
		return normPath(p)
	}
	p = normPath(p)
	if strings.HasPrefix(strings.ToLower(p), strings.ToLower(prefix)+"/") {
		return p[len(prefix)+1:]
	}
	return p
}
