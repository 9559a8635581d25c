package api

// Lookup request/response types
type LookupRequest struct {
	Path string `json:"path" binding:"required"`
}

type FileResponse struct {
	Path     string `json:"path"`
	Root     string `json:"root,omitempty"`
	Kind     string `json:"kind,omitempty"`
	CacheKey int64  `json:"cache_key"`
}

type FileListResponse struct {
	Folder string         `json:"folder,omitempty"`
	Count  int            `json:"count"`
	Files  []FileResponse `json:"files"`
}

type ExistsResponse struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// Mount status types
type MountResponse struct {
	Root   string `json:"root"`
	Kind   string `json:"kind"`
	Prefix string `json:"prefix,omitempty"`
	Files  *int   `json:"files,omitempty"` // indexed mounts only
}

type StatusResponse struct {
	Mounts []MountResponse `json:"mounts"`
}

// Change tracking response
type TrackResponse struct {
	Tracked int      `json:"tracked"`
	New     []string `json:"new"`
	Changed []string `json:"changed"`
	Removed []string `json:"removed"`
}
