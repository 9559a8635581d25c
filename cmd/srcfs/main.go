package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/ozxybox/srctools/filesys"
	"github.com/ozxybox/srctools/internal/api"
	"github.com/ozxybox/srctools/internal/config"
	"github.com/ozxybox/srctools/internal/fscache"
	dlog "github.com/ozxybox/srctools/internal/log"
	"github.com/ozxybox/srctools/internal/metrics"
	"github.com/ozxybox/srctools/internal/webdav"
)

const configFlag = "config"

func main() {
	app := &cli.App{
		Name:  "srcfs",
		Usage: "browse and serve Source engine content from game directories, zips and VPKs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    configFlag,
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the configuration file",
			},
		},
		Commands: []*cli.Command{
			lsCommand(),
			catCommand(),
			extractCommand(),
			statusCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("error running app")
	}
}

// stack is the mounted search path shared by every command, plus the
// archive handles that need closing on exit.
type stack struct {
	cfg     *config.Config
	chain   *filesys.Chain
	closers []io.Closer
}

func (s *stack) Close() {
	for _, c := range s.closers {
		c.Close()
	}
}

func loadStack(c *cli.Context) (*stack, error) {
	cfg, err := config.Load(c.String(configFlag))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dlog.Load(cfg.Log)

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}

	if len(cfg.Mounts) == 0 {
		return nil, fmt.Errorf("no mounts configured in %s", c.String(configFlag))
	}

	st := &stack{cfg: cfg, chain: filesys.NewChain()}
	for _, m := range cfg.Mounts {
		sys, err := filesys.Detect(m.Path)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("mount %s: %w", m.Path, err)
		}
		if closer, ok := sys.(io.Closer); ok {
			st.closers = append(st.closers, closer)
		}

		if m.Priority {
			st.chain.AddFront(sys, m.Prefix)
		} else {
			st.chain.Add(sys, m.Prefix)
		}
		log.Info().
			Str("path", m.Path).
			Str("prefix", m.Prefix).
			Bool("priority", m.Priority).
			Msg("mounted")
	}

	return st, nil
}

type listEntry struct {
	Path   string `json:"path" yaml:"path"`
	Kind   string `json:"kind" yaml:"kind"`
	Source string `json:"source" yaml:"source"`
}

func lsCommand() *cli.Command {
	return &cli.Command{
		Name:      "ls",
		Usage:     "list files across all mounts",
		ArgsUsage: "[FOLDER]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "repeat",
				Usage: "also list files shadowed by higher priority mounts",
			},
			&cli.StringFlag{
				Name:  "format",
				Value: "table",
				Usage: "output format: table, json or yaml",
			},
		},
		Action: func(c *cli.Context) error {
			st, err := loadStack(c)
			if err != nil {
				return err
			}
			defer st.Close()

			walk := st.chain.Walk
			if c.Bool("repeat") {
				walk = st.chain.WalkRepeat
			}

			var entries []listEntry
			for f, err := range walk(c.Args().First()) {
				if err != nil {
					return err
				}
				entries = append(entries, toListEntry(st.chain, f))
			}

			return writeListing(os.Stdout, c.String("format"), entries)
		},
	}
}

func toListEntry(chain *filesys.Chain, f *filesys.File) listEntry {
	e := listEntry{Path: f.Path()}
	if sys, err := chain.System(f); err == nil {
		e.Source = sys.Root()
		e.Kind = filesys.Kind(sys)
	}
	return e
}

func writeListing(w io.Writer, format string, entries []listEntry) error {
	switch format {
	case "table":
		tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
		fmt.Fprintln(tw, "PATH\tKIND\tSOURCE")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Path, e.Kind, e.Source)
		}
		return tw.Flush()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		return yaml.NewEncoder(w).Encode(entries)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func catCommand() *cli.Command {
	return &cli.Command{
		Name:      "cat",
		Usage:     "write files from the mounts to stdout",
		ArgsUsage: "PATH...",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "text",
				Usage: "normalize line endings while reading",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("cat: at least one path is required")
			}

			st, err := loadStack(c)
			if err != nil {
				return err
			}
			defer st.Close()

			open := st.chain.Open
			if c.Bool("text") {
				open = st.chain.OpenText
			}

			for _, name := range c.Args().Slice() {
				rc, err := open(name)
				if err != nil {
					return err
				}
				_, err = io.Copy(os.Stdout, rc)
				rc.Close()
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "copy files out of the mounts into a directory",
		ArgsUsage: "DEST",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "folder",
				Usage: "only extract files under this folder",
			},
		},
		Action: func(c *cli.Context) error {
			dest := c.Args().First()
			if dest == "" {
				return fmt.Errorf("extract: destination directory is required")
			}

			st, err := loadStack(c)
			if err != nil {
				return err
			}
			defer st.Close()

			var files int
			var bytes int64
			for f, err := range st.chain.Walk(c.String("folder")) {
				if err != nil {
					return err
				}

				target := filepath.Join(dest, filepath.FromSlash(f.Path()))
				// Archive entries choose their own names; never let one
				// climb out of the destination.
				if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
					log.Warn().Str("path", f.Path()).Msg("skipping entry outside destination")
					continue
				}

				n, err := extractFile(f, target)
				if err != nil {
					return fmt.Errorf("extract %s: %w", f.Path(), err)
				}
				files++
				bytes += n
			}

			log.Info().Int("files", files).Int64("bytes", bytes).Str("dest", dest).Msg("extracted")
			return nil
		},
	}
}

func extractFile(f *filesys.File, target string) (int64, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}

	out, err := os.Create(target)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "scan the mounts and report changes since the last run",
		Action: func(c *cli.Context) error {
			st, err := loadStack(c)
			if err != nil {
				return err
			}
			defer st.Close()

			store, err := fscache.NewStore(st.cfg.Cache.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.Track(st.chain)
			if err != nil {
				return err
			}

			fmt.Printf("tracked %d files: %d new, %d changed, %d removed\n",
				report.Tracked, len(report.New), len(report.Changed), len(report.Removed))

			tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			for _, p := range report.New {
				fmt.Fprintf(tw, "new\t%s\n", p)
			}
			for _, p := range report.Changed {
				fmt.Fprintf(tw, "changed\t%s\n", p)
			}
			for _, p := range report.Removed {
				fmt.Fprintf(tw, "removed\t%s\n", p)
			}
			return tw.Flush()
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve the mounts over REST and WebDAV",
		Action: func(c *cli.Context) error {
			st, err := loadStack(c)
			if err != nil {
				return err
			}
			defer st.Close()
			cfg := st.cfg

			store, err := fscache.NewStore(cfg.Cache.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			reg.MustRegister(metrics.NewChainCollector(st.chain))

			apiServer := api.NewServer(st.chain, store, m)
			webdavServer := webdav.NewServer(st.chain, m)
			webdav.ValidateConfig(cfg.Server.WebDAVAuth)
			metricsServer := metrics.NewServer(cfg.Server.MetricsPort, reg)

			httpServer := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
				Handler: apiServer.Handler(),
			}
			webdavHTTPServer := &http.Server{
				Addr:    fmt.Sprintf(":%d", cfg.Server.WebDAVPort),
				Handler: webdav.NewAuthMiddleware(webdavServer.Handler(), cfg.Server.WebDAVAuth),
			}

			// Start servers in goroutines
			go func() {
				log.Info().Int("port", cfg.Server.HTTPPort).Msg("starting REST API server")
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("REST API server error")
				}
			}()

			go func() {
				log.Info().Int("port", cfg.Server.WebDAVPort).Msg("starting WebDAV server")
				if err := webdavHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("WebDAV server error")
				}
			}()

			go func() {
				if err := metricsServer.Start(); err != nil {
					log.Error().Err(err).Msg("metrics server error")
				}
			}()

			log.Info().
				Str("api_url", fmt.Sprintf("http://localhost:%d/api", cfg.Server.HTTPPort)).
				Str("webdav_url", fmt.Sprintf("http://localhost:%d", cfg.Server.WebDAVPort)).
				Str("metrics_url", fmt.Sprintf("http://localhost:%d/metrics", cfg.Server.MetricsPort)).
				Msg("srcfs is ready")

			// Wait for shutdown signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			sig := <-sigChan
			log.Info().Str("signal", sig.String()).Msg("received signal, shutting down")

			// Graceful shutdown with timeout
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("REST API server shutdown error")
			}
			if err := webdavHTTPServer.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("WebDAV server shutdown error")
			}
			if err := metricsServer.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("metrics server shutdown error")
			}

			log.Info().Msg("srcfs stopped")
			return nil
		},
	}
}
