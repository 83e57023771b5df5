package database

import (
	"context"
	"time"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/recognition"
)

// Student is a registered student as stored in the database.
type Student struct {
	ID         string
	Name       string
	Embeddings int
	UpdatedAt  time.Time
}

// Session is one attendance session (one class meeting).
type Session struct {
	ID        string
	ClassName string
	StartedAt time.Time
}

// StudentStore persists the registry of reference embeddings.
type StudentStore interface {
	// SaveRegistry replaces all stored students and embeddings with the registry.
	SaveRegistry(ctx context.Context, reg *recognition.Registry, model string, names map[string]string) error
	// LoadRegistry returns every stored student, including students without embeddings.
	LoadRegistry(ctx context.Context) (*recognition.Registry, error)
	// Students lists stored students with embedding counts.
	Students(ctx context.Context) ([]Student, error)
	// Count returns the number of stored reference embeddings.
	Count(ctx context.Context) (int, error)
}

// SessionStore persists sessions and their attendance marks.
type SessionStore interface {
	attendance.MarkStore

	// StartSession creates the session if it does not exist yet.
	StartSession(ctx context.Context, s Session) error
	// Sessions lists sessions, newest first.
	Sessions(ctx context.Context) ([]Session, error)
}
