package syncache

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger. Provide an adapter around your logging
// stack (see log/zap, log/slog, log/logrus) or a bare function via
// LoggerFunc. If Logger is nil in Options, logging is disabled.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// LoggerFunc adapts a single diagnostic sink function to Logger. level is
// one of "debug", "info", "warn", "error".
type LoggerFunc func(level, msg string, f Fields)

func (fn LoggerFunc) Debug(msg string, f Fields) { fn("debug", msg, f) }
func (fn LoggerFunc) Info(msg string, f Fields)  { fn("info", msg, f) }
func (fn LoggerFunc) Warn(msg string, f Fields)  { fn("warn", msg, f) }
func (fn LoggerFunc) Error(msg string, f Fields) { fn("error", msg, f) }
