// Package logger is the structured logger shared by the dbspec command, the
// HTTP server and the pipeline stages. It wraps zerolog.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog. A nil *Logger is valid and discards everything, so
// pure packages can accept an optional logger without nil checks.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string    `yaml:"level"`       // debug, info, warn, error
	Format     string    `yaml:"format"`      // json, console
	TimeFormat string    `yaml:"time_format"` // rfc3339, unix, unixms, unixmicro
	Output     io.Writer `yaml:"-"`
}

// DefaultConfig logs JSON at info level to stderr, keeping stdout free for
// dumped documents and printed statements.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		TimeFormat: "rfc3339",
		Output:     os.Stderr,
	}
}

// New creates a logger from cfg. Missing fields fall back to DefaultConfig.
func New(cfg *Config) *Logger {
	def := DefaultConfig()
	if cfg == nil {
		cfg = def
	}
	out := cfg.Output
	if out == nil {
		out = def.Output
	}

	zerolog.TimeFieldFormat = getTimeFormat(cfg.TimeFormat)

	var zlog zerolog.Logger
	if cfg.Format == "console" {
		// Human-readable console output for terminals
		output := zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
		zlog = zerolog.New(output).With().Timestamp().Logger()
	} else {
		zlog = zerolog.New(out).With().Timestamp().Logger()
	}

	return &Logger{zlog: zlog.Level(parseLevel(cfg.Level))}
}

// Nop returns a logger that writes nothing.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// WithContext adds logger to context
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return OrNop(l).zlog.WithContext(ctx)
}

// FromContext retrieves the logger stored by WithContext, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	zlog := zerolog.Ctx(ctx)
	if zlog.GetLevel() == zerolog.Disabled {
		return Nop()
	}
	return &Logger{zlog: *zlog}
}

// With creates a child logger with additional fields
func (l *Logger) With() *Context {
	return &Context{ctx: OrNop(l).zlog.With()}
}

// Context wraps zerolog.Context for field chaining
type Context struct {
	ctx zerolog.Context
}

func (c *Context) Str(key, val string) *Context {
	c.ctx = c.ctx.Str(key, val)
	return c
}

func (c *Context) Int(key string, val int) *Context {
	c.ctx = c.ctx.Int(key, val)
	return c
}

func (c *Context) Err(err error) *Context {
	c.ctx = c.ctx.Err(err)
	return c
}

func (c *Context) Any(key string, val interface{}) *Context {
	c.ctx = c.ctx.Interface(key, val)
	return c
}

func (c *Context) Logger() *Logger {
	return &Logger{zlog: c.ctx.Logger()}
}

// Logging methods
func (l *Logger) Debug(msg string) {
	if l != nil {
		l.zlog.Debug().Msg(msg)
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	if l != nil {
		l.zlog.Debug().Msgf(format, args...)
	}
}

func (l *Logger) Info(msg string) {
	if l != nil {
		l.zlog.Info().Msg(msg)
	}
}

func (l *Logger) Infof(format string, args ...interface{}) {
	if l != nil {
		l.zlog.Info().Msgf(format, args...)
	}
}

func (l *Logger) Warn(msg string) {
	if l != nil {
		l.zlog.Warn().Msg(msg)
	}
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	if l != nil {
		l.zlog.Warn().Msgf(format, args...)
	}
}

func (l *Logger) Error(msg string) {
	if l != nil {
		l.zlog.Error().Msg(msg)
	}
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	if l != nil {
		l.zlog.Error().Msgf(format, args...)
	}
}

// DebugWith logs msg at debug level with extra fields.
func (l *Logger) DebugWith(msg string, fields map[string]interface{}) {
	if l == nil {
		return
	}
	event := l.zlog.Debug()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// Structured logging with fields
func (l *Logger) InfoWith(msg string, fields map[string]interface{}) {
	if l == nil {
		return
	}
	event := l.zlog.Info()
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

func (l *Logger) ErrorWith(msg string, err error, fields map[string]interface{}) {
	if l == nil {
		return
	}
	event := l.zlog.Error().Err(err)
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	event.Msg(msg)
}

// HTTPEvent starts the info-level event the server middleware completes
// with request fields.
func (l *Logger) HTTPEvent() *zerolog.Event {
	return OrNop(l).zlog.Info()
}

// Helper functions
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func getTimeFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	default:
		return time.RFC3339
	}
}
