// Package obslog adapts a zap logger to core.Logger, the narrow
// three-method surface the consensus core depends on.
package obslog

import (
	"go.uber.org/zap"

	"github.com/corebft/ibft/core"
)

// Logger wraps a *zap.SugaredLogger as a core.Logger.
type Logger struct {
	s *zap.SugaredLogger
}

// New wraps z as a core.Logger.
func New(z *zap.Logger) *Logger {
	return &Logger{s: z.Sugar()}
}

// NewProduction builds a JSON-encoded production zap logger wrapped as a
// core.Logger.
func NewProduction() (*Logger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

// NewDevelopment builds a console-encoded, debug-enabled zap logger
// wrapped as a core.Logger, suitable for cmd/ibftd's default output.
func NewDevelopment() (*Logger, error) {
	z, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return New(z), nil
}

func (l *Logger) Info(msg string, args ...interface{})  { l.s.Infow(msg, args...) }
func (l *Logger) Debug(msg string, args ...interface{}) { l.s.Debugw(msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.s.Errorw(msg, args...) }

// With returns a Logger with additional persistent key-value fields,
// mirroring the With/contextual-field pattern the source stack's logging
// interfaces expose.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{s: l.s.With(args...)}
}

// Sync flushes any buffered log entries; call before process exit.
func (l *Logger) Sync() error {
	return l.s.Sync()
}

var _ core.Logger = (*Logger)(nil)
