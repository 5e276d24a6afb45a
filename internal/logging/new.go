package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatZap  = "zap"
)

// Options selects the backend and verbosity of the logger built by New.
type Options struct {
	Format string
	Level  string
	Output io.Writer
}

// New builds a Logger for the given options. Unknown levels fall back to info.
func New(opts Options) (Logger, error) {
	switch strings.ToLower(opts.Format) {
	case "", FormatText:
		h := slog.NewTextHandler(opts.Output, &slog.HandlerOptions{Level: slogLevel(opts.Level)})
		return NewSlogLogger(slog.New(h)), nil
	case FormatJSON:
		h := slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{Level: slogLevel(opts.Level)})
		return NewSlogLogger(slog.New(h)), nil
	case FormatZap:
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(opts.Output), zapLevel(opts.Level))
		return NewZapLogger(zap.New(core, zap.AddCaller())), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
}

func slogLevel(l string) slog.Level {
	switch strings.ToLower(l) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func zapLevel(l string) zapcore.Level {
	switch strings.ToLower(l) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
