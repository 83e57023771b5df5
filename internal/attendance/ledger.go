package attendance

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var ledgerHeader = []string{"StudentName", "Date", "Time", "SessionID"}

// Mark is one attendance entry: a student seen in a session.
type Mark struct {
	StudentID string    `json:"student_id"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

// MarkStore persists attendance marks, at most one per student and session.
type MarkStore interface {
	// RecordMark stores the mark and reports false when the student was already
	// marked in that session.
	RecordMark(ctx context.Context, m Mark) (bool, error)
	Marks(ctx context.Context, sessionID string) ([]Mark, error)
}

// Ledger is an append-only CSV of marks shared by all sessions.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// NewLedger creates a ledger backed by the CSV file at path. The file is
// created on the first mark.
func NewLedger(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// RecordMark appends the mark unless the student already has one in the session.
// The header is written when the file is created.
func (l *Ledger) RecordMark(_ context.Context, m Mark) (bool, error) {
	if m.StudentID == "" || m.SessionID == "" {
		return false, errors.New("mark needs a student and a session")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.read()
	if err != nil {
		return false, err
	}
	for _, e := range existing {
		if e.StudentID == m.StudentID && e.SessionID == m.SessionID {
			return false, nil
		}
	}

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec // path is from trusted config
	if err != nil {
		return false, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat ledger: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(ledgerHeader); err != nil {
			return false, fmt.Errorf("failed to write ledger header: %w", err)
		}
	}
	if err := w.Write([]string{m.StudentID, m.At.Format(time.DateOnly), m.At.Format(time.TimeOnly), m.SessionID}); err != nil {
		return false, fmt.Errorf("failed to write ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return false, fmt.Errorf("failed to flush ledger: %w", err)
	}
	return true, nil
}

// Marks returns the marks of a session in file order. An empty sessionID returns
// every mark.
func (l *Ledger) Marks(_ context.Context, sessionID string) ([]Mark, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all, err := l.read()
	if err != nil {
		return nil, err
	}
	if sessionID == "" {
		return all, nil
	}

	var marks []Mark
	for _, m := range all {
		if m.SessionID == sessionID {
			marks = append(marks, m)
		}
	}
	return marks, nil
}

// Sessions returns the distinct session IDs in order of first appearance.
func (l *Ledger) Sessions(ctx context.Context) ([]string, error) {
	all, err := l.Marks(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var sessions []string
	for _, m := range all {
		if !seen[m.SessionID] {
			seen[m.SessionID] = true
			sessions = append(sessions, m.SessionID)
		}
	}
	return sessions, nil
}

func (l *Ledger) read() ([]Mark, error) {
	f, err := os.Open(l.path) //nolint:gosec // path is from trusted config
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var marks []Mark
	for line := 1; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger: %w", err)
		}
		if line == 1 && len(record) > 0 && record[0] == ledgerHeader[0] {
			continue
		}
		if len(record) < len(ledgerHeader) {
			return nil, fmt.Errorf("ledger line %d: expected %d fields, got %d", line, len(ledgerHeader), len(record))
		}

		at, err := time.ParseInLocation(time.DateOnly+" "+time.TimeOnly, record[1]+" "+record[2], time.Local)
		if err != nil {
			return nil, fmt.Errorf("ledger line %d: %w", line, err)
		}
		marks = append(marks, Mark{StudentID: record[0], SessionID: record[3], At: at})
	}
	return marks, nil
}
