// Package logging provides the minimal leveled logger interface every
// component in this module logs through. Grounded on the teacher's
// (twmb/kafka-go) kgo.Logger/kgo.LogLevel, visible throughout broker.go
// as `cxn.cl.cfg.logger.Log(LogLevelDebug, "...", "key", val, ...)`; the
// interface itself lives in the teacher's client.go, which was not part
// of the retrieval pack, so it is reconstructed here from its call sites
// rather than copied. It is split into its own package (rather than
// living in the root façade package, as the teacher's does) because
// internal/session, internal/topology, and internal/dispatch all need to
// log and none of them may import the root façade package.
package logging

import (
	"fmt"
	"log"
	"os"
)

// LogLevel mirrors the teacher's kgo.LogLevel ordering.
type LogLevel int8

const (
	LogLevelNone LogLevel = iota
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	default:
		return "NONE"
	}
}

// Logger is the leveled, structured logging sink every component takes
// as an injected dependency (§ "AMBIENT STACK"). keyvals is an
// alternating key/value list, exactly as the teacher's Log method takes
// it.
type Logger interface {
	Level() LogLevel
	Log(level LogLevel, msg string, keyvals ...interface{})
}

// nopLogger discards everything; it is the default when no logger is
// configured.
type nopLogger struct{}

func (nopLogger) Level() LogLevel                                    { return LogLevelNone }
func (nopLogger) Log(level LogLevel, msg string, keyvals ...interface{}) {}

// Nop is the default no-op logger.
var Nop Logger = nopLogger{}

// BasicLogger is a minimal stdlib-log-backed Logger, suitable as a
// drop-in default for callers that want to see anything at all without
// wiring their own structured sink.
type BasicLogger struct {
	level  LogLevel
	target *log.Logger
}

// NewBasicLogger returns a BasicLogger writing to os.Stderr at the given
// level.
func NewBasicLogger(level LogLevel) *BasicLogger {
	return &BasicLogger{level: level, target: log.New(os.Stderr, "", log.LstdFlags)}
}

func (b *BasicLogger) Level() LogLevel { return b.level }

func (b *BasicLogger) Log(level LogLevel, msg string, keyvals ...interface{}) {
	if level > b.level {
		return
	}
	line := fmt.Sprintf("[%s] %s", level, msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		line += fmt.Sprintf(" %v=%v", keyvals[i], keyvals[i+1])
	}
	b.target.Println(line)
}
