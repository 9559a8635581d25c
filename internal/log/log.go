package log

import (
	"io"
	"path/filepath"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ozxybox/srctools/internal/config"
)

const FileName = "srcfs.log"

// Load configures the global logger: colored console output plus a rolling
// file under the configured log folder.
func Load(conf *config.Log) {
	var writers []io.Writer

	// colorable keeps console colors working on windows
	writers = append(writers, zerolog.ConsoleWriter{
		Out:        colorable.NewColorableStdout(),
		TimeFormat: time.RFC3339,
	})

	if !conf.DisableFileLog {
		writers = append(writers, newRollingFile(conf))
	}

	log.Logger = log.Output(io.MultiWriter(writers...))

	l := zerolog.InfoLevel
	if conf.Debug {
		l = zerolog.DebugLevel
	}

	zerolog.SetGlobalLevel(l)
}

func newRollingFile(conf *config.Log) io.Writer {
	return &lumberjack.Logger{
		Filename:   filepath.Join(conf.Path, FileName),
		MaxBackups: conf.MaxBackups, // files
		MaxSize:    conf.MaxSize,    // megabytes
		MaxAge:     conf.MaxAge,     // days
	}
}
