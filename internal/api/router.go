package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ozxybox/srctools/filesys"
	"github.com/ozxybox/srctools/internal/fscache"
	"github.com/ozxybox/srctools/internal/metrics"
)

// Server represents the REST API server
type Server struct {
	router  *gin.Engine
	fsys    filesys.FileSystem
	store   *fscache.Store   // Optional: nil disables change tracking
	metrics *metrics.Metrics // Optional: nil disables instrumentation
}

// NewServer creates a new API server over the mounted filesystems.
func NewServer(fsys filesys.FileSystem, store *fscache.Store, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:  gin.New(),
		fsys:    fsys,
		store:   store,
		metrics: m,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(gin.Recovery())

	// Logging middleware
	s.router.Use(func(c *gin.Context) {
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("api request")
	})

	// CORS for development
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")

	// Mounts
	api.GET("/status", s.getStatus)

	// Files
	api.GET("/files", s.listFiles)
	api.GET("/exists", s.checkExists)
	api.POST("/lookup", s.lookupFile)
	api.GET("/raw/*path", s.getRaw)

	// Change tracking
	api.POST("/track", s.trackChanges)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Error response helper
func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
