package api

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ozxybox/srctools/filesys"
)

// Mount handlers

func (s *Server) getStatus(c *gin.Context) {
	resp := StatusResponse{Mounts: []MountResponse{}}

	if chain, ok := s.fsys.(*filesys.Chain); ok {
		for _, e := range chain.Entries() {
			resp.Mounts = append(resp.Mounts, toMountResponse(e.System, e.Prefix))
		}
	} else {
		resp.Mounts = append(resp.Mounts, toMountResponse(s.fsys, ""))
	}

	c.JSON(http.StatusOK, resp)
}

// File handlers

func (s *Server) listFiles(c *gin.Context) {
	folder := c.Query("folder")
	repeat, _ := strconv.ParseBool(c.Query("repeat"))

	walk := s.fsys.Walk
	if repeat {
		// Repeat listings include files shadowed by earlier mounts.
		if chain, ok := s.fsys.(*filesys.Chain); ok {
			walk = chain.WalkRepeat
		}
	}

	resp := FileListResponse{Folder: folder, Files: []FileResponse{}}
	for f, err := range walk(folder) {
		if err != nil {
			abortWithError(c, err)
			return
		}
		resp.Files = append(resp.Files, toFileResponse(f))
	}
	resp.Count = len(resp.Files)

	c.JSON(http.StatusOK, resp)
}

func (s *Server) checkExists(c *gin.Context) {
	name := c.Query("path")
	if name == "" {
		errorResponse(c, http.StatusBadRequest, "path query parameter is required")
		return
	}

	c.JSON(http.StatusOK, ExistsResponse{Path: name, Exists: s.fsys.Exists(name)})
}

func (s *Server) lookupFile(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.Lookups.Inc()
	}

	f, err := s.fsys.Lookup(req.Path)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, toFileResponse(f))
}

func (s *Server) getRaw(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("path"), "/")
	asText, _ := strconv.ParseBool(c.Query("text"))

	if s.metrics != nil {
		s.metrics.Lookups.Inc()
	}

	open := s.fsys.Open
	if asText {
		open = s.fsys.OpenText
	}

	rc, err := open(name)
	if err != nil {
		if s.metrics != nil {
			s.metrics.OpenErrors.Inc()
		}
		abortWithError(c, err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		if s.metrics != nil {
			s.metrics.OpenErrors.Inc()
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	if s.metrics != nil {
		s.metrics.Opens.Inc()
		s.metrics.ReadBytes.Add(float64(len(data)))
	}

	contentType := mime.TypeByExtension(strings.ToLower(path.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Data(http.StatusOK, contentType, data)
}

// Change tracking handlers

func (s *Server) trackChanges(c *gin.Context) {
	if s.store == nil {
		errorResponse(c, http.StatusServiceUnavailable, "change tracking is not configured")
		return
	}

	report, err := s.store.Track(s.fsys)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, TrackResponse{
		Tracked: report.Tracked,
		New:     report.New,
		Changed: report.Changed,
		Removed: report.Removed,
	})
}

// Conversion helpers

func toFileResponse(f *filesys.File) FileResponse {
	resp := FileResponse{Path: f.Path(), CacheKey: f.CacheKey()}

	sys := f.System()
	if chain, ok := sys.(*filesys.Chain); ok {
		if member, err := chain.System(f); err == nil {
			sys = member
		}
	}
	resp.Root = sys.Root()
	resp.Kind = filesys.Kind(sys)

	return resp
}

func toMountResponse(sys filesys.FileSystem, prefix string) MountResponse {
	m := MountResponse{Root: sys.Root(), Kind: filesys.Kind(sys), Prefix: prefix}
	if counter, ok := sys.(interface{ Count() int }); ok {
		n := counter.Count()
		m.Files = &n
	}
	return m
}

func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, filesys.ErrNotFound):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, filesys.ErrPathEscape):
		errorResponse(c, http.StatusBadRequest, err.Error())
	default:
		errorResponse(c, http.StatusInternalServerError, err.Error())
	}
}
