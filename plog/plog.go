// Package plog builds the zap loggers handed to the capture readers,
// interpreter and fragment manager. It supports console and JSON encoding,
// stdout output and rotated file output.
package plog

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Encoding selects the log line format.
type Encoding string

const (
	ConsoleEncoding Encoding = "console"
	JSONEncoding    Encoding = "json"
)

// RotationConfig bounds the size and age of log files.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// Config describes one logger. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	Level       string         `mapstructure:"level"`
	Encoding    Encoding       `mapstructure:"encoding"`
	Stdout      bool           `mapstructure:"stdout"`
	FilePath    string         `mapstructure:"file_path"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Encoding: ConsoleEncoding,
		Stdout:   true,
		Rotation: RotationConfig{
			MaxSizeMB:  100,
			MaxAgeDays: 30,
			MaxBackups: 7,
			Compress:   true,
		},
	}
}

// New builds a logger from cfg. At least one of Stdout and FilePath must be
// enabled.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("plog: bad level %q: %w", cfg.Level, err)
	}

	var syncers []zapcore.WriteSyncer
	if cfg.Stdout {
		syncers = append(syncers, zapcore.AddSync(os.Stdout))
	}
	if cfg.FilePath != "" {
		syncers = append(syncers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.Rotation.MaxSizeMB,
			MaxAge:     cfg.Rotation.MaxAgeDays,
			MaxBackups: cfg.Rotation.MaxBackups,
			Compress:   cfg.Rotation.Compress,
		}))
	}
	if len(syncers) == 0 {
		return nil, fmt.Errorf("plog: no outputs enabled")
	}

	core := zapcore.NewCore(
		buildEncoder(cfg),
		zapcore.NewMultiWriteSyncer(syncers...),
		level,
	)

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...), nil
}

func buildEncoder(cfg Config) zapcore.Encoder {
	ec := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "lvl",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.Encoding == JSONEncoding {
		return zapcore.NewJSONEncoder(ec)
	}
	return zapcore.NewConsoleEncoder(ec)
}
