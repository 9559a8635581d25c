package fscache

import (
	"encoding/json"
	"hash/fnv"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog/log"

	"github.com/ozxybox/srctools/filesys"
	dlog "github.com/ozxybox/srctools/internal/log"
)

const entryRootKey = "/files/"

// Store persists per-file change-detection state between runs, keyed by
// filesystem root and folded path.
type Store struct {
	db *badger.DB
}

// Entry is the stored state for one file. ContentHash is only set for
// files whose backend cannot provide a cache key.
type Entry struct {
	CacheKey    int64     `json:"cache_key"`
	ContentHash uint64    `json:"content_hash,omitempty"`
	SeenAt      time.Time `json:"seen_at"`
}

// Report lists the differences between a filesystem and the stored state.
type Report struct {
	Tracked int
	New     []string
	Changed []string
	Removed []string
}

func NewStore(path string) (*Store, error) {
	l := log.Logger.With().Str("component", "fscache").Logger()

	opts := badger.DefaultOptions(path).
		WithLogger(&dlog.Badger{L: l}).
		WithValueLogFileSize(1<<26 - 1)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	err = db.RunValueLogGC(0.5)
	if err != nil && err != badger.ErrNoRewrite {
		return nil, err
	}

	return &Store{
		db: db,
	}, nil
}

// Track scans every file in the filesystem, compares it against the stored
// state and persists the new state. Files whose backend reports no cache
// key are fingerprinted by content instead, so in-memory systems still get
// change detection.
func (s *Store) Track(fsys filesys.FileSystem) (*Report, error) {
	root := fsys.Root()
	now := time.Now()
	report := &Report{}
	seen := make(map[string]struct{})
	var muts []mutation

	// Compare against one read snapshot; the writes are applied separately
	// so a large tree is not forced through a single transaction.
	err := s.db.View(func(txn *badger.Txn) error {
		for f, err := range fsys.Walk("") {
			if err != nil {
				return err
			}
			name := strings.ToLower(f.Path())
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}

			entry := Entry{CacheKey: f.CacheKey(), SeenAt: now}
			if entry.CacheKey == filesys.CacheKeyInvalid {
				h, err := contentHash(f)
				if err != nil {
					return err
				}
				entry.ContentHash = h
			}

			key := fileKey(root, name)
			prev, found, err := readEntry(txn, key)
			if err != nil {
				return err
			}
			switch {
			case !found:
				report.New = append(report.New, name)
			case prev.CacheKey != entry.CacheKey || prev.ContentHash != entry.ContentHash:
				report.Changed = append(report.Changed, name)
			}

			data, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			muts = append(muts, mutation{key: key, value: data})
		}

		// Sweep entries whose files are gone.
		prefix := rootPrefix(root)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			name := string(key[len(prefix):])
			if _, ok := seen[name]; !ok {
				report.Removed = append(report.Removed, name)
				muts = append(muts, mutation{key: key})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.apply(muts); err != nil {
		return nil, err
	}

	if err := s.db.Sync(); err != nil {
		return nil, err
	}

	report.Tracked = len(seen)
	sort.Strings(report.New)
	sort.Strings(report.Changed)
	sort.Strings(report.Removed)

	log.Debug().
		Str("root", root).
		Int("tracked", report.Tracked).
		Int("new", len(report.New)).
		Int("changed", len(report.Changed)).
		Int("removed", len(report.Removed)).
		Msg("fscache: tracked filesystem")

	return report, nil
}

// mutation is one pending write out of a Track pass. A nil value deletes
// the key.
type mutation struct {
	key   []byte
	value []byte
}

// apply writes the mutations, committing and starting a fresh transaction
// whenever badger reports the current one full.
func (s *Store) apply(muts []mutation) error {
	txn := s.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	write := func(m mutation) error {
		if m.value == nil {
			return txn.Delete(m.key)
		}
		return txn.Set(m.key, m.value)
	}

	for _, m := range muts {
		err := write(m)
		if err == badger.ErrTxnTooBig {
			if err = txn.Commit(); err != nil {
				return err
			}
			txn = s.db.NewTransaction(true)
			err = write(m)
		}
		if err != nil {
			return err
		}
	}
	return txn.Commit()
}

// Get returns the stored state for one file.
func (s *Store) Get(root, name string) (Entry, bool, error) {
	var entry Entry
	var found bool

	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		entry, found, err = readEntry(txn, fileKey(root, strings.ToLower(name)))
		return err
	})
	return entry, found, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// rootPrefix separates the root from file paths with a NUL, so a root that
// is a string prefix of another cannot match its entries.
func rootPrefix(root string) []byte {
	return append([]byte(entryRootKey+root), 0)
}

func fileKey(root, name string) []byte {
	return append(rootPrefix(root), []byte(name)...)
}

func readEntry(txn *badger.Txn, key []byte) (Entry, bool, error) {
	item, err := txn.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}

	var e Entry
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// contentHash fingerprints a file's content for backends that cannot
// provide a cache key, such as in-memory systems.
func contentHash(f *filesys.File) (uint64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	h := fnv.New64a()
	if _, err := io.Copy(h, rc); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}
