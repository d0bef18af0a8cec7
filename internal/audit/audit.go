// Package audit keeps an append-only CSV trail of status transitions and
// auto-applied reconciliation matches.
package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Entry is one row in the audit log.
type Entry struct {
	Timestamp     time.Time
	Action        string // "transition", "match", "sweep", "import"
	Details       string
	InstallmentID string
	TransactionID string
}

// Header is the CSV header for audit-log.csv.
const Header = "timestamp,action,details,installment_id,transaction_id"

const (
	numFields        = 5
	logDir           = "logs"
	logFile          = "logs/audit-log.csv"
	colTimestamp     = 0
	colAction        = 1
	colDetails       = 2
	colInstallmentID = 3
	colTransactionID = 4
)

// Log writes entries under a root directory. A nil *Log is valid and drops
// everything, so callers can leave auditing unconfigured.
type Log struct {
	root string
}

// NewLog creates a Log rooted at dir.
func NewLog(dir string) *Log {
	return &Log{root: dir}
}

// Record appends a single entry. No-op on a nil Log.
func (l *Log) Record(e Entry) error {
	if l == nil {
		return nil
	}
	return l.Append([]Entry{e})
}

// Append writes entries to <root>/logs/audit-log.csv, creating the file and
// header if needed.
func (l *Log) Append(entries []Entry) error {
	if l == nil {
		return nil
	}

	dir := filepath.Join(l.root, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(l.root, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(marshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	return cw.Error()
}

// Read returns all entries from <root>/logs/audit-log.csv. Returns nil if the
// file does not exist.
func (l *Log) Read() ([]Entry, error) {
	if l == nil {
		return nil, nil
	}

	path := filepath.Join(l.root, logFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func marshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colAction] = e.Action
	row[colDetails] = e.Details
	row[colInstallmentID] = e.InstallmentID
	row[colTransactionID] = e.TransactionID
	return row
}

func unmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	return Entry{
		Timestamp:     ts,
		Action:        record[colAction],
		Details:       record[colDetails],
		InstallmentID: record[colInstallmentID],
		TransactionID: record[colTransactionID],
	}, nil
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading audit log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := unmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
