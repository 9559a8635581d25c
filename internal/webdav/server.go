package webdav

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/webdav"

	"github.com/ozxybox/srctools/filesys"
	"github.com/ozxybox/srctools/internal/metrics"
)

// Server exposes a filesystem over WebDAV, read-only. Write methods are
// rejected with os.ErrPermission so clients see 403 rather than silent
// data loss.
type Server struct {
	handler *webdav.Handler
}

// NewServer creates a new WebDAV server over fsys. Metrics may be nil.
func NewServer(fsys filesys.FileSystem, m *metrics.Metrics) *Server {
	s := &Server{}

	s.handler = &webdav.Handler{
		Prefix:     "",
		FileSystem: &webdavFS{fsys: fsys, metrics: m, started: time.Now()},
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				log.Debug().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Err(err).
					Msg("webdav request")
			} else {
				log.Debug().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("webdav request")
			}
		},
	}

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// webdavFS adapts filesys.FileSystem to webdav.FileSystem. The underlying
// interface has no directory objects, so folders are synthesized from walk
// results on demand.
type webdavFS struct {
	fsys    filesys.FileSystem
	metrics *metrics.Metrics // may be nil
	started time.Time
}

func (wfs *webdavFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return os.ErrPermission
}

func (wfs *webdavFS) RemoveAll(ctx context.Context, name string) error {
	return os.ErrPermission
}

func (wfs *webdavFS) Rename(ctx context.Context, oldName, newName string) error {
	return os.ErrPermission
}

func (wfs *webdavFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	// Reject write operations
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, os.ErrPermission
	}

	return wfs.open(cleanPath(name))
}

func (wfs *webdavFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	f, err := wfs.open(cleanPath(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return f.Stat()
}

// open resolves name to a file or a synthesized directory handle.
func (wfs *webdavFS) open(name string) (*webdavFile, error) {
	if wfs.metrics != nil {
		wfs.metrics.Lookups.Inc()
	}

	f, err := wfs.fsys.Lookup(name)
	if err == nil {
		return wfs.openRegular(f)
	}
	if !errors.Is(err, filesys.ErrNotFound) {
		return nil, err
	}

	// Not a file. It is a directory if anything lives under it.
	if name == "" || wfs.hasFiles(name) {
		return &webdavFile{
			wfs:  wfs,
			path: name,
			r:    bytes.NewReader(nil),
			info: &fileInfoWrapper{
				name:    baseName(name),
				isDir:   true,
				modTime: wfs.started,
			},
		}, nil
	}

	return nil, os.ErrNotExist
}

// openRegular materializes the file into memory so the handle can seek,
// which range requests and Content-Length probing both need.
func (wfs *webdavFS) openRegular(f *filesys.File) (*webdavFile, error) {
	rc, err := f.Open()
	if err != nil {
		if wfs.metrics != nil {
			wfs.metrics.OpenErrors.Inc()
		}
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		if wfs.metrics != nil {
			wfs.metrics.OpenErrors.Inc()
		}
		return nil, err
	}

	if wfs.metrics != nil {
		wfs.metrics.Opens.Inc()
		wfs.metrics.ReadBytes.Add(float64(len(data)))
	}

	return &webdavFile{
		wfs:  wfs,
		path: f.Path(),
		r:    bytes.NewReader(data),
		info: &fileInfoWrapper{
			name:    baseName(f.Path()),
			size:    int64(len(data)),
			modTime: wfs.modTimeOf(f),
		},
	}, nil
}

func (wfs *webdavFS) hasFiles(folder string) bool {
	found := false
	for _, err := range wfs.fsys.Walk(folder) {
		if err == nil {
			found = true
			break
		}
	}
	return found
}

// modTimeOf recovers a modification time where the backend has one.
// On-disk filesystems use the file's mtime as its cache key.
func (wfs *webdavFS) modTimeOf(f *filesys.File) time.Time {
	sys := f.System()
	if c, ok := sys.(*filesys.Chain); ok {
		if member, err := c.System(f); err == nil {
			sys = member
		}
	}
	if _, ok := sys.(*filesys.Raw); ok {
		if key := f.CacheKey(); key != filesys.CacheKeyInvalid {
			return time.Unix(0, key)
		}
	}
	return wfs.started
}

// webdavFile is a seekable handle over materialized content, or over a
// synthesized directory.
type webdavFile struct {
	wfs  *webdavFS
	path string
	r    *bytes.Reader
	info os.FileInfo

	// Directory listing state
	dirMu      sync.Mutex
	dirEntries []os.FileInfo
	dirPos     int
}

func (f *webdavFile) Close() error {
	return nil
}

func (f *webdavFile) Read(p []byte) (int, error) {
	return f.r.Read(p)
}

func (f *webdavFile) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}

func (f *webdavFile) Write(p []byte) (int, error) {
	return 0, os.ErrPermission
}

func (f *webdavFile) Stat() (os.FileInfo, error) {
	return f.info, nil
}

func (f *webdavFile) Readdir(count int) ([]os.FileInfo, error) {
	f.dirMu.Lock()
	defer f.dirMu.Unlock()

	if !f.info.IsDir() {
		return nil, os.ErrInvalid
	}

	// Load directory entries on first call
	if f.dirEntries == nil {
		entries, err := f.wfs.listFolder(f.path)
		if err != nil {
			return nil, err
		}
		f.dirEntries = entries
	}

	if count <= 0 {
		entries := f.dirEntries[f.dirPos:]
		f.dirPos = len(f.dirEntries)
		return entries, nil
	}

	end := f.dirPos + count
	if end > len(f.dirEntries) {
		end = len(f.dirEntries)
	}

	entries := f.dirEntries[f.dirPos:end]
	f.dirPos = end

	return entries, nil
}

// listFolder derives the immediate children of a folder from the walk.
// Children that differ only by case collapse into one entry, keeping the
// first spelling seen.
func (wfs *webdavFS) listFolder(folder string) ([]os.FileInfo, error) {
	children := make(map[string]os.FileInfo)

	for file, err := range wfs.fsys.Walk(folder) {
		if err != nil {
			continue
		}

		rel := stripFolder(file.Path(), folder)
		if rel == "" {
			continue
		}

		if slash := strings.IndexByte(rel, '/'); slash >= 0 {
			dir := rel[:slash]
			key := strings.ToLower(dir)
			if _, ok := children[key]; !ok {
				children[key] = &fileInfoWrapper{
					name:    dir,
					isDir:   true,
					modTime: wfs.started,
				}
			}
			continue
		}

		key := strings.ToLower(rel)
		if _, ok := children[key]; ok {
			continue
		}
		children[key] = &fileInfoWrapper{
			name:    rel,
			size:    fileSize(file),
			modTime: wfs.modTimeOf(file),
		}
	}

	infos := make([]os.FileInfo, 0, len(children))
	for _, info := range children {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name() < infos[j].Name()
	})
	return infos, nil
}

// fileSize measures a file by draining it. The filesystem interface has no
// stat operation, so this is the only size source for listings.
func fileSize(f *filesys.File) int64 {
	rc, err := f.Open()
	if err != nil {
		return 0
	}
	defer rc.Close()

	n, _ := io.Copy(io.Discard, rc)
	return n
}

// Helper functions

func cleanPath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// stripFolder removes the folder prefix from a walked path, tolerating
// case differences between the request and the stored spelling.
func stripFolder(p, folder string) string {
	if folder == "" {
		return p
	}
	if len(p) <= len(folder) || !strings.EqualFold(p[:len(folder)], folder) {
		return ""
	}
	return strings.TrimPrefix(p[len(folder):], "/")
}

func baseName(p string) string {
	if p == "" {
		return "/"
	}
	return path.Base(p)
}

// fileInfo wrapper for virtual files
type fileInfoWrapper struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (fi *fileInfoWrapper) Name() string { return fi.name }
func (fi *fileInfoWrapper) Size() int64  { return fi.size }
func (fi *fileInfoWrapper) Mode() fs.FileMode {
	if fi.isDir {
		return fs.ModeDir | 0755
	}
	return 0644
}
func (fi *fileInfoWrapper) ModTime() time.Time { return fi.modTime }
func (fi *fileInfoWrapper) IsDir() bool        { return fi.isDir }
func (fi *fileInfoWrapper) Sys() interface{}   { return nil }
