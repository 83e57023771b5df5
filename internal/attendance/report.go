package attendance

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"

	"github.com/kozaktomas/attendance/internal/roster"
)

// Report formats.
const (
	FormatText = "text"
	FormatCSV  = "csv"
)

const (
	StatusPresent = "Present"
	StatusAbsent  = "Absent"
)

// Row is one student line of the report.
type Row struct {
	StudentID string
	Name      string
	Present   bool
	Time      time.Time
}

// Status returns Present or Absent.
func (r Row) Status() string {
	if r.Present {
		return StatusPresent
	}
	return StatusAbsent
}

// BuildRows lists every student in the given order. Present students carry their
// confirmation time, absent students the report time.
func BuildRows(students []roster.Student, snap Snapshot, now time.Time) []Row {
	rows := make([]Row, 0, len(students))
	for _, s := range students {
		row := Row{StudentID: s.ID, Name: s.DisplayName(), Time: now}
		if at, ok := snap.ConfirmedAt[s.ID]; ok {
			row.Present = true
			row.Time = at
		}
		rows = append(rows, row)
	}
	return rows
}

// RenderReport writes the report in the requested format.
func RenderReport(w io.Writer, format string, rows []Row, sessionID string) error {
	switch strings.ToLower(format) {
	case FormatText, "":
		return renderText(w, rows)
	case FormatCSV:
		return renderCSV(w, rows, sessionID)
	}
	return fmt.Errorf("unknown report format %q", format)
}

func renderText(w io.Writer, rows []Row) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-10s %s\n", "Name", "Time", "Status")
	b.WriteString(strings.Repeat("-", 40) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-20s %-10s %s\n", r.Name, r.Time.Format(time.TimeOnly), r.Status())
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderCSV(w io.Writer, rows []Row, sessionID string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"StudentID", "Name", "Date", "Time", "Status", "SessionID"}); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.StudentID,
			r.Name,
			r.Time.Format(time.DateOnly),
			r.Time.Format(time.TimeOnly),
			r.Status(),
			sessionID,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReport renders the report and replaces the file at path atomically, so a
// reader never sees a half written report.
func WriteReport(path, format string, rows []Row, sessionID string) error {
	var buf bytes.Buffer
	if err := RenderReport(&buf, format, rows, sessionID); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
