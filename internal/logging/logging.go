// Package logging is the ambient-stack logger: a thin wrapper around the
// standard library's log.Logger that prefixes each line with a component
// tag, the same way the teacher prefixes its own messages ("Server
// starting on port %s") without reaching for a structured logging
// library. The teacher never imports one, so stdlib log stays the
// teacher-grounded choice here too.
package logging

import (
	"log"
	"os"
)

// Logger is a component-scoped log.Logger wrapper.
type Logger struct {
	*log.Logger
}

// New returns a Logger that prefixes every line with "[component] ",
// writing to stderr like the standard library's default logger.
func New(component string) *Logger {
	return &Logger{Logger: log.New(os.Stderr, "["+component+"] ", log.LstdFlags)}
}
