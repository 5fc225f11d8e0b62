// Package diag records every connection lifecycle, room, message, and error
// event as one JSON line in an append-only file, rotated by size. A logging
// failure never reaches the protocol layer; it is reported to stderr only.
package diag

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DefaultMaxSize is the rotation threshold for the active log file.
const DefaultMaxSize = 10 * 1024 * 1024

// Entry is one structured audit record. Entries are never mutated after
// being written.
type Entry struct {
	Timestamp    string                 `json:"timestamp"`
	Level        Level                  `json:"level"`
	Event        string                 `json:"event"`
	ConnectionID string                 `json:"connectionId,omitempty"`
	UserID       string                 `json:"userId,omitempty"`
	TenantID     string                 `json:"tenantId,omitempty"`
	Transport    string                 `json:"transport,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	Message      string                 `json:"message"`
}

// Context carries the optional identifiers attached to a log call.
type Context struct {
	ConnectionID string
	UserID       string
	TenantID     string
	Transport    string
	Details      map[string]interface{}
}

// Logger appends entries to a single active file. The rotation check runs
// before every write, never mid-write, so no line is split across files.
type Logger struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	file    *os.File
	w       *bufio.Writer
	size    int64
	now     func() time.Time
}

func NewLogger(path string, maxSize int64) (*Logger, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat log file %s: %w", path, err)
	}

	return &Logger{
		path:    path,
		maxSize: maxSize,
		file:    file,
		w:       bufio.NewWriter(file),
		size:    info.Size(),
		now:     time.Now,
	}, nil
}

func (l *Logger) Debug(event, message string, ctx Context) { l.Log(LevelDebug, event, message, ctx) }
func (l *Logger) Info(event, message string, ctx Context)  { l.Log(LevelInfo, event, message, ctx) }
func (l *Logger) Warn(event, message string, ctx Context)  { l.Log(LevelWarn, event, message, ctx) }
func (l *Logger) Error(event, message string, ctx Context) { l.Log(LevelError, event, message, ctx) }

// Log appends one entry. It never panics or returns an error to the caller;
// any failure is written to stderr and otherwise swallowed.
func (l *Logger) Log(level Level, event, message string, ctx Context) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "diag: recovered while logging %s: %v\n", event, r)
		}
	}()

	entry := Entry{
		Timestamp:    l.now().Format(time.RFC3339Nano),
		Level:        level,
		Event:        event,
		ConnectionID: ctx.ConnectionID,
		UserID:       ctx.UserID,
		TenantID:     ctx.TenantID,
		Transport:    ctx.Transport,
		Details:      ctx.Details,
		Message:      message,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diag: failed to marshal entry for %s: %v\n", event, err)
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size+int64(len(line)) > l.maxSize {
		if err := l.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "diag: rotation failed: %v\n", err)
		}
	}

	n, err := l.w.Write(line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diag: write failed: %v\n", err)
		return
	}
	if err := l.w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "diag: flush failed: %v\n", err)
	}
	l.size += int64(n)
}

// rotate renames the active file with a timestamp suffix and starts a fresh
// one. Caller holds l.mu.
func (l *Logger) rotate() error {
	if err := l.w.Flush(); err != nil {
		return err
	}
	if err := l.file.Close(); err != nil {
		return err
	}

	rotated := fmt.Sprintf("%s.%s", l.path, l.now().Format("20060102T150405.000000000"))
	if err := os.Rename(l.path, rotated); err != nil {
		return err
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	l.file = file
	l.w = bufio.NewWriter(file)
	l.size = 0
	return nil
}

// Path returns the active log file path.
func (l *Logger) Path() string {
	return l.path
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}
