// Package logger provides structured logging functionality using zap.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.SugaredLogger with the fields the scan pipeline attaches
// to every entry.
type Logger struct {
	*zap.SugaredLogger
	config *Config
}

// Config holds logger configuration options
type Config struct {
	// Level is the minimum log level to output (debug, info, warn, error)
	Level string

	// Format is "console" (human-readable) or "json"
	Format string

	// Output receives log entries (nil = stderr). The CLI talks to the
	// operator on stdout, so logs must never default there.
	Output io.Writer

	// OutputPath is an additional file to append log entries to
	OutputPath string

	// EnableCaller adds caller information to log entries
	EnableCaller bool

	// EnableStacktrace adds stack traces to error-level logs
	EnableStacktrace bool
}

var global atomic.Pointer[Logger]

// New creates a new logger instance with the provided configuration
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = &Config{Level: "info", Format: "console"}
	}

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	sinks := []zapcore.WriteSyncer{zapcore.Lock(zapcore.AddSync(out))}

	if cfg.OutputPath != "" {
		file, err := os.OpenFile(cfg.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.OutputPath, err)
		}
		sinks = append(sinks, zapcore.AddSync(file))
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.NewMultiWriteSyncer(sinks...), level)

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return &Logger{
		SugaredLogger: zap.New(core, opts...).Sugar(),
		config:        cfg,
	}, nil
}

func newEncoder(format string) zapcore.Encoder {
	if format == "json" {
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return zapcore.NewConsoleEncoder(ec)
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		SugaredLogger: zap.NewNop().Sugar(),
		config:        &Config{Level: "info", Format: "console"},
	}
}

// Init replaces the global logger.
func Init(cfg *Config) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	global.Store(l)
	return nil
}

// Get returns the global logger, creating a console logger at info level
// on first use. Safe for concurrent use.
func Get() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	l, _ := New(nil)
	if global.CompareAndSwap(nil, l) {
		return l
	}
	return global.Load()
}

// WithFields returns a logger with the key/value pairs attached
func (l *Logger) WithFields(fields ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.With(fields...),
		config:        l.config,
	}
}

// WithSessionID tags entries with the scan session
func (l *Logger) WithSessionID(sessionID string) *Logger {
	return l.WithFields("session_id", sessionID)
}

// WithRole tags entries with the identity group (tenant/landlord) being filled
func (l *Logger) WithRole(role string) *Logger {
	return l.WithFields("role", role)
}

// WithAttempt tags entries with the scan sequence number
func (l *Logger) WithAttempt(seq uint64) *Logger {
	return l.WithFields("seq", seq)
}

// WithEngine tags entries with the recognition runtime and language
func (l *Logger) WithEngine(runtime, language string) *Logger {
	return l.WithFields("runtime", runtime, "language", language)
}

// WithError attaches err
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields("error", err)
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", level)
	}
}
