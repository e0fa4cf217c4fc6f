// Package logging provides the small logging seam used across warp's long-running
// tasks (interface workers, the rendezvous receive loop, gate tasks, the core runtime).
package logging

import "log"

// Logger is the logging surface every long-running task depends on instead of
// calling the standard log package directly, so tests can inject a recording
// implementation.
type Logger interface {
	Errorf(format string, v ...any)
	Warnf(format string, v ...any)
	Infof(format string, v ...any)
}

// StdLogger backs Logger with the standard library's log package. Info-level
// messages are dropped unless Verbose is set, matching spec.md §6's
// "log verbosity" CLI option.
type StdLogger struct {
	Verbose bool
}

func NewStdLogger() Logger {
	return StdLogger{}
}

// NewVerboseStdLogger returns a Logger whose Infof calls are not suppressed.
func NewVerboseStdLogger(verbose bool) Logger {
	return StdLogger{Verbose: verbose}
}

func (StdLogger) Errorf(format string, v ...any) {
	log.Printf("error: "+format, v...)
}

func (StdLogger) Warnf(format string, v ...any) {
	log.Printf("warn: "+format, v...)
}

func (l StdLogger) Infof(format string, v ...any) {
	if !l.Verbose {
		return
	}
	log.Printf("info: "+format, v...)
}
