package diag

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// DefaultQueryLimit caps how many entries a single query returns when the
// caller does not supply a limit.
const DefaultQueryLimit = 100

// Query selects entries from the active log file. Zero values mean "no
// filter" for Level and Event, and defaults for Limit.
type Query struct {
	Level  Level
	Event  string
	Limit  int
	Offset int
}

// FileStats describes the active log file at the time of a query.
type FileStats struct {
	SizeBytes    int64  `json:"sizeBytes"`
	LineCount    int    `json:"lineCount"`
	LastModified string `json:"lastModified"`
}

// QueryResult is the paginated answer to a Query. Total counts all entries
// matching the filters, before pagination.
type QueryResult struct {
	Entries []Entry   `json:"entries"`
	Total   int       `json:"total"`
	Stats   FileStats `json:"stats"`
}

// RunQuery reads the active file, applies the filters, and paginates.
// Lines that fail to parse are counted in the stats but excluded from the
// results rather than failing the whole query.
func (l *Logger) RunQuery(q Query) (QueryResult, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	l.mu.Lock()
	if err := l.w.Flush(); err != nil {
		l.mu.Unlock()
		return QueryResult{}, fmt.Errorf("failed to flush log before read: %w", err)
	}
	l.mu.Unlock()

	file, err := os.Open(l.path)
	if err != nil {
		return QueryResult{}, fmt.Errorf("failed to open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return QueryResult{}, fmt.Errorf("failed to stat log file: %w", err)
	}

	result := QueryResult{
		Entries: []Entry{},
		Stats: FileStats{
			SizeBytes:    info.Size(),
			LastModified: info.ModTime().Format(time.RFC3339),
		},
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		result.Stats.LineCount++

		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if q.Level != "" && entry.Level != q.Level {
			continue
		}
		if q.Event != "" && entry.Event != q.Event {
			continue
		}

		if result.Total >= q.Offset && len(result.Entries) < q.Limit {
			result.Entries = append(result.Entries, entry)
		}
		result.Total++
	}
	if err := scanner.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("failed to scan log file: %w", err)
	}

	return result, nil
}
