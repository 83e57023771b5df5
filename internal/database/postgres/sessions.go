package postgres

import (
	"context"
	"fmt"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/database"
)

// SessionRepository provides PostgreSQL-backed attendance sessions and marks.
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

var _ database.SessionStore = (*SessionRepository)(nil)

// StartSession stores the session. For an existing session only a missing class
// name is filled in.
func (r *SessionRepository) StartSession(ctx context.Context, s database.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_sessions (id, class_name, started_at)
		VALUES ($1, NULLIF($2, ''), $3)
		ON CONFLICT (id) DO UPDATE
		SET class_name = COALESCE(attendance_sessions.class_name, EXCLUDED.class_name)
	`, s.ID, s.ClassName, s.StartedAt)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

// RecordMark inserts the mark; the primary key keeps one mark per student and session.
// The session row is created on demand so marks never reference a missing session.
func (r *SessionRepository) RecordMark(ctx context.Context, m attendance.Mark) (bool, error) {
	if err := r.StartSession(ctx, database.Session{ID: m.SessionID, StartedAt: m.At}); err != nil {
		return false, err
	}

	result, err := r.pool.Exec(ctx, `
		INSERT INTO attendance_marks (session_id, student_id, marked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`, m.SessionID, m.StudentID, m.At)
	if err != nil {
		return false, fmt.Errorf("record mark: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return count > 0, nil
}

// Marks returns the marks of a session ordered by time.
func (r *SessionRepository) Marks(ctx context.Context, sessionID string) ([]attendance.Mark, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id, student_id, marked_at
		FROM attendance_marks
		WHERE session_id = $1
		ORDER BY marked_at, student_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query marks: %w", err)
	}
	defer rows.Close()

	var marks []attendance.Mark
	for rows.Next() {
		var m attendance.Mark
		if err := rows.Scan(&m.SessionID, &m.StudentID, &m.At); err != nil {
			return nil, fmt.Errorf("scan mark: %w", err)
		}
		marks = append(marks, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate marks: %w", err)
	}
	return marks, nil
}

// Sessions lists sessions, newest first.
func (r *SessionRepository) Sessions(ctx context.Context) ([]database.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, COALESCE(class_name, ''), started_at
		FROM attendance_sessions
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []database.Session
	for rows.Next() {
		var s database.Session
		if err := rows.Scan(&s.ID, &s.ClassName, &s.StartedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}
