package attendance

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/attendance/internal/roster"
)

var (
	reportTime  = time.Date(2026, 2, 4, 10, 30, 0, 0, time.UTC)
	confirmTime = time.Date(2026, 2, 4, 9, 5, 12, 0, time.UTC)
)

func testRows() []Row {
	students := []roster.Student{
		{ID: "21CS001_RAHUL"},
		{ID: "21CS002_PRIYA", Name: "Priya Patel"},
	}
	snap := Snapshot{ConfirmedAt: map[string]time.Time{"21CS001_RAHUL": confirmTime}}
	return BuildRows(students, snap, reportTime)
}

func TestBuildRows(t *testing.T) {
	rows := testRows()

	require.Len(t, rows, 2)
	assert.True(t, rows[0].Present)
	assert.Equal(t, confirmTime, rows[0].Time)
	assert.Equal(t, "21CS001_RAHUL", rows[0].Name)
	assert.False(t, rows[1].Present)
	assert.Equal(t, reportTime, rows[1].Time)
	assert.Equal(t, "Priya Patel", rows[1].Name)
}

func TestRenderReport_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, FormatText, testRows(), "CS101_2026-02-04"))

	expected := "Name                 Time       Status\n" +
		strings.Repeat("-", 40) + "\n" +
		"21CS001_RAHUL        09:05:12   Present\n" +
		"Priya Patel          10:30:00   Absent\n"
	assert.Equal(t, expected, buf.String())
}

func TestRenderReport_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderReport(&buf, FormatCSV, testRows(), "CS101_2026-02-04"))

	expected := "StudentID,Name,Date,Time,Status,SessionID\n" +
		"21CS001_RAHUL,21CS001_RAHUL,2026-02-04,09:05:12,Present,CS101_2026-02-04\n" +
		"21CS002_PRIYA,Priya Patel,2026-02-04,10:30:00,Absent,CS101_2026-02-04\n"
	assert.Equal(t, expected, buf.String())
}

func TestRenderReport_UnknownFormat(t *testing.T) {
	assert.Error(t, RenderReport(&bytes.Buffer{}, "xlsx", nil, ""))
}

func TestWriteReport_Rewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "attendance.txt")

	require.NoError(t, WriteReport(path, FormatText, testRows(), ""))
	require.NoError(t, WriteReport(path, FormatText, testRows()[:1], ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Priya", "the report is fully rewritten")
	assert.Contains(t, string(data), "21CS001_RAHUL")
}

func TestWriteReport_EmptyRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendance.txt")
	require.NoError(t, WriteReport(path, FormatText, nil, ""))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}
