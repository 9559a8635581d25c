package config

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// Config is the srcfs tool configuration.
type Config struct {
	Server *Server  `yaml:"server"`
	Log    *Log     `yaml:"log"`
	Cache  *Cache   `yaml:"cache"`
	Mounts []*Mount `yaml:"mounts"`
}

type Server struct {
	HTTPPort    int         `yaml:"http_port"`
	WebDAVPort  int         `yaml:"webdav_port"`
	MetricsPort int         `yaml:"metrics_port"`
	WebDAVAuth  *WebDAVAuth `yaml:"webdav_auth"`
}

type WebDAVAuth struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Log struct {
	Debug          bool   `yaml:"debug"`
	DisableFileLog bool   `yaml:"disable_file_log"`
	Path           string `yaml:"path"`
	MaxBackups     int    `yaml:"max_backups"` // files
	MaxSize        int    `yaml:"max_size"`    // megabytes
	MaxAge         int    `yaml:"max_age"`     // days
}

type Cache struct {
	Path string `yaml:"path"`
}

// Mount is one content source: a game directory, a zip archive or a VPK
// _dir file. Prefix narrows the source to a subfolder; priority mounts
// shadow everything mounted before them.
type Mount struct {
	Path     string `yaml:"path"`
	Prefix   string `yaml:"prefix"`
	Priority bool   `yaml:"priority"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: &Server{
			HTTPPort:    4444,
			WebDAVPort:  36911,
			MetricsPort: 2112,
			WebDAVAuth:  &WebDAVAuth{},
		},
		Log: &Log{
			Path:       "./logs",
			MaxBackups: 2,
			MaxSize:    50,
			MaxAge:     30,
		},
		Cache: &Cache{
			Path: "./data/fscache",
		},
	}
}

// Load reads configuration from a YAML file. A missing file is not an
// error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnsureDirectories creates the directories the tool writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Log.Path,
		filepath.Dir(c.Cache.Path),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}
