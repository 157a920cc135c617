package wsclient

import "github.com/pion/logging"

// noopLogger satisfies logging.LeveledLogger without emitting anything,
// so WebSocket never has to nil-check its logger before use — the same
// null-object treatment spec.md §4.5 prescribes for unset host callback
// slots ("calling a null slot is a no-op").
type noopLogger struct{}

func (noopLogger) Trace(string)          {}
func (noopLogger) Tracef(string, ...any) {}
func (noopLogger) Debug(string)          {}
func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Info(string)           {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warn(string)           {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Error(string)          {}
func (noopLogger) Errorf(string, ...any) {}

var defaultLogger logging.LeveledLogger = noopLogger{}

// NewLogger returns a pion/logging leveled logger scoped under "wsclient".
// It is only used when passed to WithLogger; without that option a
// connection logs nothing (noopLogger).
func NewLogger() logging.LeveledLogger {
	return logging.NewDefaultLoggerFactory().NewLogger("wsclient")
}
