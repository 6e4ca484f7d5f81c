// Package monitoring routes the controller's diagnostic output into three
// log streams so that operators can mute the high-rate ones independently.
package monitoring

import (
	"io"
	"log"
	"os"
	"sync"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	// Ops carries lifecycle events and actionable faults (send failures,
	// sensor loss, disarm).
	Ops io.Writer
	// Diag carries per-tick status lines.
	Diag io.Writer
	// Trace carries per-frame blob telemetry.
	Trace io.Writer
}

var (
	mu          sync.RWMutex
	opsLogger   = newLogger(os.Stderr)
	diagLogger  *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures all three logging streams at once.
// Pass nil for any writer to disable that stream.
func SetLogWriters(w LogWriters) {
	mu.Lock()
	defer mu.Unlock()
	opsLogger = newLogger(w.Ops)
	diagLogger = newLogger(w.Diag)
	traceLogger = newLogger(w.Trace)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "[servo] ", log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream.
func Opsf(format string, args ...interface{}) {
	logTo(&opsLogger, format, args...)
}

// Diagf logs to the diag stream.
func Diagf(format string, args ...interface{}) {
	logTo(&diagLogger, format, args...)
}

// Tracef logs to the trace stream.
func Tracef(format string, args ...interface{}) {
	logTo(&traceLogger, format, args...)
}

func logTo(target **log.Logger, format string, args ...interface{}) {
	mu.RLock()
	l := *target
	mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}
