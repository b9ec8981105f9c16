// Package logging wraps logharbour the way alya's logger package wraps it,
// so the coordinator/worker/supervisor/httpapi call sites never hand-format
// log lines. The only one that imports logharbour itself is the worker, for
// the ChangeInfo/ChangeDetail values DataChange takes.
package logging

import (
	"io"

	"github.com/remiges-tech/logharbour/logharbour"
)

// Logger narrows a *logharbour.Logger to a module/op/class scope and logs
// activity, data-change, and error entries, the same shape alya's
// jobs/jobmanager.go and jobs/recovery.go drive their own Logger field
// through.
type Logger struct {
	*logharbour.Logger
}

// New builds the root Logger for a process, the Go-judge-service analogue
// of logger.LoadLogger(appName) in the teacher.
func New(appName string, w io.Writer) *Logger {
	lctx := logharbour.NewLoggerContext(logharbour.DefaultPriority)
	return &Logger{logharbour.NewLogger(lctx, appName, w)}
}

// WithModule narrows the logger to a module (coordinator/worker/supervisor/
// httpapi), mirroring logharbour's WithModule/WithOp fluent narrowing seen
// in jobs/filexfr/examples/infiled's pgx tracer bridge.
func (l *Logger) WithModule(module string) *Logger {
	return &Logger{l.Logger.WithModule(module)}
}

// Activity logs a routine, successful step (server start, worker-pool
// start, each supervisor sweep).
func (l *Logger) Activity(message string, data map[string]any) {
	l.Info().LogActivity(message, data)
}

// DataChange logs a state transition worth auditing (the worker's
// lifetime-skip of a stale item), matching jobs/jobmanager.go's LogDataChange call shape.
func (l *Logger) DataChange(message string, changes logharbour.ChangeInfo) {
	l.Logger.LogDataChange(message, changes)
}

// Warn logs a recoverable anomaly (clock skew at startup, a dropped item).
func (l *Logger) Warn(message string, data map[string]any) {
	l.Logger.Warn().LogActivity(message, data)
}

// Err logs an error condition, attaching err the way jobs/recovery.go does
// (jm.logger.Error(err).LogActivity(...)).
func (l *Logger) Err(err error, message string, data map[string]any) {
	l.Logger.Error(err).LogActivity(message, data)
}

// Raw exposes the underlying *logharbour.Logger for call sites that need
// logharbour's full fluent API (WithOp/WithRemoteIP/WithClass/...) beyond
// this wrapper's narrowed surface, e.g. router's request logging adapter.
func (l *Logger) Raw() *logharbour.Logger {
	return l.Logger
}
