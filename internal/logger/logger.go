package logger

import (
	"io"
	"log"
)

// Logger defines the telesync logging contract.
// Every component receives a Logger from its caller instead of reaching for a global.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// StdLogger wraps Go's standard logger to implement the telesync logging contract.
type StdLogger struct {
	logger *log.Logger
	debug  bool
}

// New creates a StdLogger writing to w. Debug lines are dropped unless debug is set.
func New(w io.Writer, debug bool) *StdLogger {
	return &StdLogger{
		logger: log.New(w, "", log.LstdFlags),
		debug:  debug,
	}
}

func (l *StdLogger) Info(msg string, args ...any) {
	l.logger.Printf("[INFO] "+msg, args...)
}

func (l *StdLogger) Warn(msg string, args ...any) {
	l.logger.Printf("[WARN] "+msg, args...)
}

func (l *StdLogger) Error(msg string, args ...any) {
	l.logger.Printf("[ERROR] "+msg, args...)
}

func (l *StdLogger) Debug(msg string, args ...any) {
	if !l.debug {
		return
	}
	l.logger.Printf("[DEBUG] "+msg, args...)
}

type nop struct{}

func (nop) Info(string, ...any)  {}
func (nop) Warn(string, ...any)  {}
func (nop) Error(string, ...any) {}
func (nop) Debug(string, ...any) {}

// Nop discards everything. Useful in tests.
var Nop Logger = nop{}
