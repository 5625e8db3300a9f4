package logger

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log output destinations and verbosity.
type Config struct {
	Level         string `json:"level,omitempty" yaml:"level,omitempty"`
	Format        string `json:"format,omitempty" yaml:"format,omitempty"`
	EnableConsole bool   `json:"enable_console" yaml:"enable_console"`
	EnableFile    bool   `json:"enable_file,omitempty" yaml:"enable_file,omitempty"`
	FilePath      string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	MaxSizeMB     int    `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups    int    `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
}

// NewDefaultConfig returns console-only info logging.
func NewDefaultConfig() Config {
	return Config{
		Level:         "info",
		Format:        "console",
		EnableConsole: true,
		MaxSizeMB:     100,
		MaxBackups:    3,
	}
}

// New creates a zerolog logger from the given config.
func New(cfg Config) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if cfg.EnableConsole {
		writers = append(writers, consoleWriter(cfg.Format))
	}
	if cfg.EnableFile && cfg.FilePath != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	multiWriter := zerolog.MultiLevelWriter(writers...)
	logger := zerolog.New(multiWriter).
		Level(level).
		With().
		Timestamp().
		Logger()

	zerolog.SetGlobalLevel(level)
	stdlog.SetOutput(logger)
	stdlog.SetFlags(0)

	return logger, nil
}

// consoleWriter returns a human console writer unless JSON format is requested.
func consoleWriter(format string) io.Writer {
	if strings.ToLower(format) == "json" {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
}
