// Package log provides the application's structured logging, a thin layer
// over slog that stamps every record with the component that emitted it.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger embeds slog.Logger; the component attribute is attached once, so the
// leveled methods come straight from slog.
type Logger struct {
	*slog.Logger
	component string
}

type Config struct {
	Level  slog.Level
	Format string // "text" (default) or "json"
	Output io.Writer
}

func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo, Format: "text", Output: os.Stdout}
}

func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// With returns a logger carrying the given attributes on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), component: l.component}
}

// WithComponent names the subsystem the returned logger belongs to. The name
// rides along as a permanent attribute.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With(FieldComponent, name), component: name}
}

func (l *Logger) Component() string {
	return l.component
}

// SetDefault routes the package-level slog helpers through this logger.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}
