package postgres

import (
	"testing"
	"testing/fstest"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_attendance.sql": {Data: []byte("SELECT 2;")},
		"migrations/001_students.sql":   {Data: []byte("SELECT 1;")},
		"migrations/README.md":          {Data: []byte("notes")},
	}

	tests := []struct {
		name     string
		applied  []string
		expected []string
	}{
		{"fresh database", nil, []string{"001_students.sql", "002_attendance.sql"}},
		{"partially applied", []string{"001_students.sql"}, []string{"002_attendance.sql"}},
		{"up to date", []string{"001_students.sql", "002_attendance.sql"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pendingMigrations(fsys, tt.applied)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("pendingMigrations() = %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("pendingMigrations()[%d] = %s, want %s", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := pendingMigrations(migrationsFS, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) < 2 {
		t.Errorf("expected embedded migrations, got %v", files)
	}
}
