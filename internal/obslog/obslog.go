// Package obslog is the structured-logging layer every gsetool command
// and pkg/gse caller wires in: a slog.Logger configured from
// internal/config, with request-scoped fields (QoS, FragID, operation
// name) threaded through context.Context rather than passed positionally
// through every call.
package obslog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level mirrors slog's levels under the names used in configuration
// files (logging.level).
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func toSlogLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures the package-level logger.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	currentLevel  atomic.Int32
	currentFormat atomic.Value

	mu      sync.RWMutex
	slogger *slog.Logger
	output  io.Writer = os.Stdout
)

func init() {
	currentLevel.Store(int32(LevelInfo))
	currentFormat.Store("text")
	reconfigure()
}

func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	levelVar := new(slog.LevelVar)
	levelVar.Set(toSlogLevel(Level(currentLevel.Load())))
	opts := &slog.HandlerOptions{Level: levelVar}

	format, _ := currentFormat.Load().(string)
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}
	slogger = slog.New(handler)
}

// Init applies cfg to the package-level logger. Called once from
// gsetool's root command after config load.
func Init(cfg Config) error {
	if cfg.Output != "" {
		mu.Lock()
		switch strings.ToLower(cfg.Output) {
		case "stdout", "":
			output = os.Stdout
		case "stderr":
			output = os.Stderr
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				mu.Unlock()
				return fmt.Errorf("obslog: open log file %q: %w", cfg.Output, err)
			}
			output = f
		}
		mu.Unlock()
	}
	if cfg.Level != "" {
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	return nil
}

// SetLevel sets the minimum level logged; unrecognized values are
// ignored rather than rejected, so a malformed config falls back to the
// previous setting instead of going silent.
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel.Store(int32(LevelDebug))
	case "INFO":
		currentLevel.Store(int32(LevelInfo))
	case "WARN":
		currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(LevelError))
	default:
		return
	}
	reconfigure()
}

// SetFormat sets the output encoding ("text" or "json").
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	currentFormat.Store(format)
	reconfigure()
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Logger returns the current package-level *slog.Logger, for callers
// that want to pass it into gse.WithLogger/gse.WithDeencapLogger.
func Logger() *slog.Logger { return getLogger() }

// With returns a *slog.Logger pre-bound with args.
func With(args ...any) *slog.Logger { return getLogger().With(args...) }

// Debug, Info, Warn, Error log at the package-level logger's configured
// level, filtering cheaply (no arg formatting) below threshold.
func Debug(msg string, args ...any) {
	if LevelDebug >= Level(currentLevel.Load()) {
		getLogger().Debug(msg, args...)
	}
}

func Info(msg string, args ...any) {
	if LevelInfo >= Level(currentLevel.Load()) {
		getLogger().Info(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if LevelWarn >= Level(currentLevel.Load()) {
		getLogger().Warn(msg, args...)
	}
}

func Error(msg string, args ...any) {
	getLogger().Error(msg, args...)
}

type contextKey struct{}

var opContextKey = contextKey{}

// OpContext carries fields that should be attached to every log line
// emitted while processing one encapsulation/de-encapsulation operation.
type OpContext struct {
	Operation string // "encap", "deencap", "refrag"
	QoS       int
	FragID    int
	StartTime time.Time
}

// WithOpContext returns a context carrying oc.
func WithOpContext(ctx context.Context, oc *OpContext) context.Context {
	return context.WithValue(ctx, opContextKey, oc)
}

// OpContextFromContext retrieves the OpContext stored by WithOpContext,
// or nil if none is present.
func OpContextFromContext(ctx context.Context) *OpContext {
	if ctx == nil {
		return nil
	}
	oc, _ := ctx.Value(opContextKey).(*OpContext)
	return oc
}

// DurationMs reports the time elapsed since oc.StartTime in
// milliseconds, or 0 if oc is nil or StartTime is unset.
func (oc *OpContext) DurationMs() float64 {
	if oc == nil || oc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(oc.StartTime).Microseconds()) / 1000.0
}

func appendOpFields(ctx context.Context, args []any) []any {
	oc := OpContextFromContext(ctx)
	if oc == nil {
		return args
	}
	fields := make([]any, 0, 6+len(args))
	if oc.Operation != "" {
		fields = append(fields, "operation", oc.Operation)
	}
	fields = append(fields, "qos", oc.QoS, "frag_id", oc.FragID)
	fields = append(fields, args...)
	return fields
}

// DebugCtx, InfoCtx, WarnCtx, ErrorCtx log with the calling operation's
// OpContext fields (if any) prepended to args.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	if LevelDebug >= Level(currentLevel.Load()) {
		getLogger().Debug(msg, appendOpFields(ctx, args)...)
	}
}

func InfoCtx(ctx context.Context, msg string, args ...any) {
	if LevelInfo >= Level(currentLevel.Load()) {
		getLogger().Info(msg, appendOpFields(ctx, args)...)
	}
}

func WarnCtx(ctx context.Context, msg string, args ...any) {
	if LevelWarn >= Level(currentLevel.Load()) {
		getLogger().Warn(msg, appendOpFields(ctx, args)...)
	}
}

func ErrorCtx(ctx context.Context, msg string, args ...any) {
	getLogger().Error(msg, appendOpFields(ctx, args)...)
}
