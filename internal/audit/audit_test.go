package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndRead(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(dir)

	err := l.Append([]Entry{
		{
			Timestamp:     time.Date(2025, 1, 12, 10, 0, 0, 0, time.UTC),
			Action:        "transition",
			Details:       "PENDING -> OVERDUE",
			InstallmentID: "i1",
		},
		{
			Timestamp:     time.Date(2025, 1, 12, 10, 1, 0, 0, time.UTC),
			Action:        "match",
			Details:       "alta",
			InstallmentID: "i1",
			TransactionID: "t9",
		},
	})
	require.NoError(t, err)

	entries, err := l.Read()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "transition", entries[0].Action)
	assert.Equal(t, "PENDING -> OVERDUE", entries[0].Details)
	assert.Equal(t, "t9", entries[1].TransactionID)
}

func TestAppend_CreatesFileWithHeader(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(dir)

	require.NoError(t, l.Record(Entry{Timestamp: time.Now(), Action: "sweep"}))

	data, err := os.ReadFile(filepath.Join(dir, "logs", "audit-log.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), Header)
}

func TestRead_MissingFile(t *testing.T) {
	l := NewLog(t.TempDir())
	entries, err := l.Read()
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestNilLog(t *testing.T) {
	var l *Log
	assert.NoError(t, l.Record(Entry{Action: "transition"}))
	entries, err := l.Read()
	require.NoError(t, err)
	assert.Nil(t, entries)
}
