package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// InvocationLog is a single completed invocation: enough to answer "what
// happened to request X" without re-deriving it from the store, which
// evicts Processed records on its own retention schedule.
type InvocationLog struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	SpanID     string    `json:"span_id,omitempty"`
	Function   string    `json:"function"`
	Kind       string    `json:"kind"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
}

// Logger writes InvocationLog entries to the console and, optionally, to a
// JSON-lines file.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console bool
}

var defaultLogger = &Logger{enabled: true, console: true}

// Default returns the process-wide invocation logger.
func Default() *Logger {
	return defaultLogger
}

// SetOutput directs file output to path, replacing any previous file.
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole enables or disables the human-readable console line.
func (l *Logger) SetConsole(enabled bool) {
	l.mu.Lock()
	l.console = enabled
	l.mu.Unlock()
}

// Log records one invocation's outcome.
func (l *Logger) Log(entry *InvocationLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}

	entry.Timestamp = time.Now()

	if l.console {
		status := "ok"
		if !entry.Success {
			status = "fail"
		}
		fmt.Printf("[invoke] %s %s %s %s %dms\n",
			status, entry.RequestID, entry.Function, entry.Kind, entry.DurationMs)
		if entry.Error != "" {
			fmt.Printf("[invoke]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close releases the file handle, if one is open.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
