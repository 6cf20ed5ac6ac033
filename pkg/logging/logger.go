package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents different logging levels
type LogLevel int

const (
	LevelDebug LogLevel = LogLevel(slog.LevelDebug)
	LevelInfo  LogLevel = LogLevel(slog.LevelInfo)
	LevelWarn  LogLevel = LogLevel(slog.LevelWarn)
	LevelError LogLevel = LogLevel(slog.LevelError)
)

// Context keys understood by WithContext loggers.
type ctxKey string

const (
	RequestIDKey ctxKey = "request_id"
	PlaceIDKey   ctxKey = "place_id"
	UserIDKey    ctxKey = "user_id"
)

// LogConfig holds logging configuration
type LogConfig struct {
	Level       LogLevel
	Format      string    // "json" or "text"
	Output      io.Writer // defaults to stdout
	EnableAsync bool
	BufferSize  int
}

// Logger provides structured logging with context support
type Logger struct {
	config  LogConfig
	slogger *slog.Logger
	asyncCh chan entry
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

type entry struct {
	at    time.Time
	level LogLevel
	msg   string
	attrs []slog.Attr
}

// DefaultLogConfig returns the configuration used when nothing is set
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      LevelInfo,
		Format:     "json",
		Output:     os.Stdout,
		BufferSize: 1000,
	}
}

// ParseLevel maps a config string to a LogLevel. Unknown values yield info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error", "fatal":
		return LevelError
	default:
		return LevelInfo
	}
}

// NewLogger creates a new structured logger
func NewLogger(config LogConfig) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slog.Level(config.Level)}

	var handler slog.Handler
	if config.Format == "text" {
		handler = slog.NewTextHandler(config.Output, opts)
	} else {
		handler = slog.NewJSONHandler(config.Output, opts)
	}

	l := &Logger{config: config, slogger: slog.New(handler)}
	if config.EnableAsync {
		if config.BufferSize <= 0 {
			config.BufferSize = 1000
		}
		l.asyncCh = make(chan entry, config.BufferSize)
		l.wg.Add(1)
		go l.asyncWorker()
	}
	return l
}

// NewNop returns a logger that discards everything. Handy in tests.
func NewNop() *Logger {
	return NewLogger(LogConfig{Level: LevelError + 4, Output: io.Discard})
}

func (l *Logger) asyncWorker() {
	defer l.wg.Done()
	for e := range l.asyncCh {
		l.write(e)
	}
}

func (l *Logger) write(e entry) {
	l.slogger.LogAttrs(context.Background(), slog.Level(e.level), e.msg,
		append([]slog.Attr{slog.Time("timestamp", e.at)}, e.attrs...)...)
}

// Close flushes pending async entries. Safe to call more than once.
func (l *Logger) Close() error {
	if l.asyncCh == nil {
		return nil
	}
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.asyncCh)
	}
	l.mu.Unlock()
	l.wg.Wait()
	return nil
}

// WithContext returns a logger that adds request scoped values from ctx
func (l *Logger) WithContext(ctx context.Context) *ContextLogger {
	return &ContextLogger{logger: l, ctx: ctx}
}

// WithComponent returns a logger tagged with a component name
func (l *Logger) WithComponent(component string) *ComponentLogger {
	return &ComponentLogger{logger: l, component: component}
}

// ContextLogger provides context-aware logging
type ContextLogger struct {
	logger    *Logger
	ctx       context.Context
	component string
}

// ComponentLogger provides component-specific logging
type ComponentLogger struct {
	logger    *Logger
	component string
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(context.Background(), LevelDebug, msg, nil, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(context.Background(), LevelInfo, msg, nil, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(context.Background(), LevelWarn, msg, nil, fields) }
func (l *Logger) Error(msg string, err error, fields ...Field) {
	l.log(context.Background(), LevelError, msg, err, fields)
}

func (cl *ComponentLogger) Debug(msg string, fields ...Field) {
	cl.logger.log(context.Background(), LevelDebug, msg, nil, cl.tag(fields))
}
func (cl *ComponentLogger) Info(msg string, fields ...Field) {
	cl.logger.log(context.Background(), LevelInfo, msg, nil, cl.tag(fields))
}
func (cl *ComponentLogger) Warn(msg string, err error, fields ...Field) {
	cl.logger.log(context.Background(), LevelWarn, msg, err, cl.tag(fields))
}
func (cl *ComponentLogger) Error(msg string, err error, fields ...Field) {
	cl.logger.log(context.Background(), LevelError, msg, err, cl.tag(fields))
}

// Ctx binds a component logger to a request context.
func (cl *ComponentLogger) Ctx(ctx context.Context) *ContextLogger {
	return &ContextLogger{logger: cl.logger, ctx: ctx, component: cl.component}
}

func (cl *ComponentLogger) tag(fields []Field) []Field {
	return append(fields, String("component", cl.component))
}

func (cl *ContextLogger) Debug(msg string, fields ...Field) {
	cl.logger.log(cl.ctx, LevelDebug, msg, nil, cl.tag(fields))
}
func (cl *ContextLogger) Info(msg string, fields ...Field) {
	cl.logger.log(cl.ctx, LevelInfo, msg, nil, cl.tag(fields))
}
func (cl *ContextLogger) Warn(msg string, err error, fields ...Field) {
	cl.logger.log(cl.ctx, LevelWarn, msg, err, cl.tag(fields))
}
func (cl *ContextLogger) Error(msg string, err error, fields ...Field) {
	cl.logger.log(cl.ctx, LevelError, msg, err, cl.tag(fields))
}

func (cl *ContextLogger) tag(fields []Field) []Field {
	if cl.component == "" {
		return fields
	}
	return append(fields, String("component", cl.component))
}

func (l *Logger) log(ctx context.Context, level LogLevel, msg string, err error, fields []Field) {
	if level < l.config.Level {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	attrs := make([]slog.Attr, 0, len(fields)+4)
	for _, k := range []ctxKey{RequestIDKey, PlaceIDKey, UserIDKey} {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(k), v))
		}
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	if level >= LevelWarn {
		if _, file, line, ok := runtime.Caller(2); ok {
			attrs = append(attrs, slog.String("caller", fmt.Sprintf("%s:%d", filepath.Base(file), line)))
		}
	}
	for _, f := range fields {
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}

	e := entry{at: time.Now(), level: level, msg: msg, attrs: attrs}
	if l.asyncCh != nil {
		l.mu.RLock()
		if !l.closed {
			select {
			case l.asyncCh <- e:
				l.mu.RUnlock()
				return
			default:
				// buffer full, write inline
			}
		}
		l.mu.RUnlock()
	}
	l.write(e)
}

// Field represents a structured log field
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field                 { return Field{Key: key, Value: value} }
func Int(key string, value int) Field                { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field            { return Field{Key: key, Value: value} }
func Float64(key string, value float64) Field        { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field              { return Field{Key: key, Value: value} }
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }
func Any(key string, value any) Field                { return Field{Key: key, Value: value} }
