package logger

import (
	"io"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the logging level
type Level int

const (
	TRACE Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	TRACE: "TRACE",
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// String returns the upper-case level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

// Component represents the logging component
type Component string

const (
	ComponentApp      Component = "app"
	ComponentRuntime  Component = "runtime"
	ComponentSolver   Component = "solver"
	ComponentProtocol Component = "protocol"
	ComponentAssets   Component = "assets"
	ComponentPool     Component = "pool"
	ComponentRemote   Component = "remote"
	ComponentServer   Component = "server"
	ComponentCache    Component = "cache"
	ComponentClient   Component = "client"
)

// Format represents the log output format
type Format int

const (
	FormatText Format = iota
	FormatJSON
	FormatColor
)

// Config holds logger configuration
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	Components map[Component]bool
	ShowCaller bool
	Timestamp  bool
}

// DefaultConfig returns default logger configuration.
// Runtime and protocol stay enabled: they carry script exceptions and raw
// wire text, the only signal that the player format changed.
func DefaultConfig() *Config {
	return &Config{
		Level:  INFO,
		Format: FormatText,
		Output: os.Stderr,
		Components: map[Component]bool{
			ComponentApp:      true,
			ComponentRuntime:  true,
			ComponentSolver:   false,
			ComponentProtocol: true,
			ComponentAssets:   false,
			ComponentPool:     false,
			ComponentRemote:   false,
			ComponentServer:   true,
			ComponentCache:    false,
			ComponentClient:   false,
		},
		ShowCaller: false,
		Timestamp:  false,
	}
}

// Logger provides structured logging functionality on top of zap
type Logger struct {
	config *Config
	zl     *zap.Logger
	mu     sync.RWMutex
}

// New creates a new logger instance
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Output == nil {
		config.Output = os.Stderr
	}
	if config.Components == nil {
		config.Components = make(map[Component]bool)
	}
	l := &Logger{config: config}
	l.zl = build(config)
	return l
}

// Nop returns a logger that drops everything.
func Nop() *Logger {
	cfg := DefaultConfig()
	cfg.Output = io.Discard
	cfg.Components = map[Component]bool{}
	return New(cfg)
}

// build assembles the zap core for the current configuration.
func build(config *Config) *zap.Logger {
	ec := zapcore.EncoderConfig{
		LevelKey:       "level",
		NameKey:        "component",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	if config.Timestamp {
		ec.TimeKey = "timestamp"
		ec.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	}
	if config.ShowCaller {
		ec.CallerKey = "caller"
		ec.EncodeCaller = zapcore.ShortCallerEncoder
	}

	var enc zapcore.Encoder
	switch config.Format {
	case FormatJSON:
		ec.EncodeLevel = zapcore.LowercaseLevelEncoder
		enc = zapcore.NewJSONEncoder(ec)
	case FormatColor:
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	default:
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(ec)
	}

	// Level filtering happens in log; the core accepts everything.
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(config.Output)), zapcore.DebugLevel)

	var opts []zap.Option
	if config.ShowCaller {
		// log -> ComponentLogger.log -> ComponentLogger.<Level> -> caller
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(3))
	}
	return zap.New(core, opts...)
}

// WithComponent creates a new logger instance for a specific component
func (l *Logger) WithComponent(component Component) *ComponentLogger {
	return &ComponentLogger{
		logger:    l,
		component: component,
	}
}

// SetLevel changes the logging level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Level = level
}

// SetFormat changes the log format
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Format = format
	l.zl = build(l.config)
}

// SetOutput changes the log output
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Output = w
	l.zl = build(l.config)
}

// EnableComponent enables logging for a specific component
func (l *Logger) EnableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = true
}

// DisableComponent disables logging for a specific component
func (l *Logger) DisableComponent(component Component) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Components[component] = false
}

// Enabled reports whether a message at level for component would be written.
func (l *Logger) Enabled(level Level, component Component) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.config.Level && l.config.Components[component]
}

// Zap exposes the underlying zap logger, e.g. for HTTP middleware.
func (l *Logger) Zap() *zap.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.zl
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.zl.Sync()
}

// log writes a log entry
func (l *Logger) log(level Level, component Component, message string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	// Check if level is enabled
	if level < l.config.Level {
		return
	}

	// Check if component is enabled
	if !l.config.Components[component] {
		return
	}

	zl := l.zl.Named(string(component))
	zf := toZapFields(fields)

	switch level {
	case TRACE:
		zl.Debug(message, append(zf, zap.Bool("trace", true))...)
	case DEBUG:
		zl.Debug(message, zf...)
	case INFO:
		zl.Info(message, zf...)
	case WARN:
		zl.Warn(message, zf...)
	default:
		zl.Error(message, zf...)
	}
}

// toZapFields converts a field map to zap fields in stable key order.
func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys)+1)
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

// ComponentLogger provides component-specific logging
type ComponentLogger struct {
	logger    *Logger
	component Component
}

// Trace logs a trace message
func (cl *ComponentLogger) Trace(message string, fields ...map[string]interface{}) {
	cl.log(TRACE, message, fields...)
}

// Debug logs a debug message
func (cl *ComponentLogger) Debug(message string, fields ...map[string]interface{}) {
	cl.log(DEBUG, message, fields...)
}

// Info logs an info message
func (cl *ComponentLogger) Info(message string, fields ...map[string]interface{}) {
	cl.log(INFO, message, fields...)
}

// Warn logs a warning message
func (cl *ComponentLogger) Warn(message string, fields ...map[string]interface{}) {
	cl.log(WARN, message, fields...)
}

// Error logs an error message
func (cl *ComponentLogger) Error(message string, fields ...map[string]interface{}) {
	cl.log(ERROR, message, fields...)
}

// log writes a log entry for the component
func (cl *ComponentLogger) log(level Level, message string, fields ...map[string]interface{}) {
	if cl == nil || cl.logger == nil {
		return
	}
	var mergedFields map[string]interface{}
	switch len(fields) {
	case 0:
	case 1:
		mergedFields = fields[0]
	default:
		mergedFields = make(map[string]interface{})
		for _, f := range fields {
			for k, v := range f {
				mergedFields[k] = v
			}
		}
	}
	cl.logger.log(level, cl.component, message, mergedFields)
}

// Global logger instance
var (
	globalMu     sync.RWMutex
	globalLogger = New(DefaultConfig())
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// WithComponent returns a component logger from global logger
func WithComponent(component Component) *ComponentLogger {
	return GetGlobalLogger().WithComponent(component)
}
