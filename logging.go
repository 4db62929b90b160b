package main

import (
	"fmt"
	"log"
)

// Logger is the minimal logging surface components depend on. Wrappers add
// worker or account prefixes without the components knowing.
type Logger interface {
	Log(format string, args ...any)
}

type moduleLogger struct {
	logger *log.Logger
}

func (m *moduleLogger) Log(format string, args ...any) {
	m.logger.Printf("      "+format, args...)
}

// workerLogger wraps a logger with a worker ID prefix.
type workerLogger struct {
	id   string
	base Logger
}

func (w *workerLogger) Log(format string, args ...any) {
	w.base.Log("[%s] %s", w.id, fmt.Sprintf(format, args...))
}
