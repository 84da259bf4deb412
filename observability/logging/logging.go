package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options tune the handler built by SetupWithOptions.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup installs a JSON logger on stdout as the slog and log defaults.
func Setup(service, env string) *slog.Logger {
	logger, _ := SetupWithOptions(service, env, Options{})
	return logger
}

// SetupWithOptions is Setup plus a level and an optional rotating file that
// receives a copy of every line. Close the returned closer on shutdown.
func SetupWithOptions(service, env string, opts Options) (*slog.Logger, io.Closer) {
	out, closer := sink(opts)
	handler := NewHandler(out, ParseLevel(opts.Level))

	fields := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env = strings.TrimSpace(env); env != "" {
		fields = append(fields, slog.String("env", env))
	}
	handler = handler.WithAttrs(fields)

	logger := slog.New(handler)
	slog.SetDefault(logger)
	bridgeStdlib(handler)
	return logger, closer
}

// NewHandler builds the node's JSON handler: timestamp, severity and message
// keys, with sensitive attributes masked.
func NewHandler(out io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: renameAndMask,
	})
}

// ParseLevel maps a textual level to slog, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

func renameAndMask(groups []string, attr slog.Attr) slog.Attr {
	if len(groups) == 0 {
		switch attr.Key {
		case slog.TimeKey:
			attr.Key = "timestamp"
			return attr
		case slog.LevelKey:
			return slog.String("severity", strings.ToUpper(attr.Value.String()))
		case slog.MessageKey:
			attr.Key = "message"
			return attr
		}
	}
	return MaskAttr(groups, attr)
}

func sink(opts Options) (io.Writer, io.Closer) {
	file := strings.TrimSpace(opts.File)
	if file == "" {
		return os.Stdout, noClose{}
	}
	rotating := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotating), rotating
}

// bridgeStdlib routes the log package through handler at info level.
func bridgeStdlib(handler slog.Handler) {
	bridge := slog.NewLogLogger(handler, slog.LevelInfo)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")
}

type noClose struct{}

func (noClose) Close() error { return nil }
