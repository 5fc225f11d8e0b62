package diag

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, maxSize int64) *Logger {
	t.Helper()

	l, err := NewLogger(filepath.Join(t.TempDir(), "hub.log"), maxSize)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLogAppendsOneJSONLinePerEntry(t *testing.T) {
	l := newTestLogger(t, 0)

	l.Info("CONNECTION_ESTABLISHED", "connection established", Context{
		ConnectionID: "c1",
		Transport:    "websocket",
		Details:      map[string]interface{}{"remoteAddr": "127.0.0.1:9"},
	})
	l.Warn("MALFORMED_EVENT", "bad payload", Context{ConnectionID: "c2"})

	file, err := os.Open(l.Path())
	require.NoError(t, err)
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e), "every line must be valid JSON")
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, entries, 2)
	assert.Equal(t, LevelInfo, entries[0].Level)
	assert.Equal(t, "CONNECTION_ESTABLISHED", entries[0].Event)
	assert.Equal(t, "c1", entries[0].ConnectionID)
	assert.NotEmpty(t, entries[0].Timestamp)
	assert.Equal(t, LevelWarn, entries[1].Level)
}

func TestQueryFiltersAndPaginates(t *testing.T) {
	l := newTestLogger(t, 0)
	for i := 0; i < 5; i++ {
		l.Info("MESSAGE_SENT", "sent", Context{TenantID: "t-1"})
	}
	l.Warn("MALFORMED_EVENT", "dropped", Context{})
	l.Error("TRANSPORT_ERROR", "reset", Context{})

	all, err := l.RunQuery(Query{})
	require.NoError(t, err)
	assert.Equal(t, 7, all.Total)
	assert.Len(t, all.Entries, 7)
	assert.Equal(t, 7, all.Stats.LineCount)
	assert.Greater(t, all.Stats.SizeBytes, int64(0))
	assert.NotEmpty(t, all.Stats.LastModified)

	byLevel, err := l.RunQuery(Query{Level: LevelWarn})
	require.NoError(t, err)
	require.Len(t, byLevel.Entries, 1)
	assert.Equal(t, "MALFORMED_EVENT", byLevel.Entries[0].Event)

	byEvent, err := l.RunQuery(Query{Event: "MESSAGE_SENT"})
	require.NoError(t, err)
	assert.Equal(t, 5, byEvent.Total)

	page, err := l.RunQuery(Query{Event: "MESSAGE_SENT", Limit: 2, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Entries, 2)
}

func TestRotationNeverSplitsALine(t *testing.T) {
	l := newTestLogger(t, 400)
	for i := 0; i < 10; i++ {
		l.Info("MESSAGE_SENT", "a reasonably long audit message to force rotation", Context{
			ConnectionID: "c1",
			TenantID:     "t-1",
		})
	}

	matches, err := filepath.Glob(l.Path() + ".*")
	require.NoError(t, err)
	require.NotEmpty(t, matches, "rotation should have produced at least one archived file")

	// Every line in every file, active and rotated, is complete JSON.
	for _, path := range append(matches, l.Path()) {
		file, err := os.Open(path)
		require.NoError(t, err)
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			var e Entry
			assert.NoError(t, json.Unmarshal(scanner.Bytes(), &e), "split line in %s", path)
		}
		require.NoError(t, scanner.Err())
		file.Close()

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.LessOrEqual(t, info.Size(), int64(400)+256, "file grew past the rotation threshold")
	}
}

func TestLoggingFailureNeverReachesTheCaller(t *testing.T) {
	l := newTestLogger(t, 0)
	require.NoError(t, l.Close())

	// Writing to a closed logger reports to stderr only.
	assert.NotPanics(t, func() {
		l.Info("DISCONNECT", "after close", Context{})
	})
}
