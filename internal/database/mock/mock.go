// Package mock provides in-memory implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/attendance/internal/attendance"
	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/recognition"
)

// MockStudentStore is a mock implementation of database.StudentStore
type MockStudentStore struct {
	mu         sync.RWMutex
	dim        int
	embeddings map[string][][]float32
	names      map[string]string
	models     map[string]string
	updatedAt  time.Time

	// Error injection
	SaveError  error
	LoadError  error
	CountError error
}

// NewMockStudentStore creates a new mock student store
func NewMockStudentStore() *MockStudentStore {
	return &MockStudentStore{
		embeddings: make(map[string][][]float32),
		names:      make(map[string]string),
		models:     make(map[string]string),
	}
}

var _ database.StudentStore = (*MockStudentStore)(nil)

// SaveRegistry replaces the stored registry
func (m *MockStudentStore) SaveRegistry(_ context.Context, reg *recognition.Registry, model string, names map[string]string) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dim = reg.Dim()
	m.embeddings = make(map[string][][]float32)
	m.names = make(map[string]string)
	m.models = make(map[string]string)
	for _, id := range reg.Students() {
		m.embeddings[id] = slices.Clone(reg.Embeddings(id))
		m.models[id] = model
		if n, ok := names[id]; ok {
			m.names[id] = n
		}
	}
	m.updatedAt = time.Now()
	return nil
}

// LoadRegistry rebuilds a registry from the stored embeddings
func (m *MockStudentStore) LoadRegistry(_ context.Context) (*recognition.Registry, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	reg := recognition.NewRegistry(m.dim)
	for id, embs := range m.embeddings {
		reg.Ensure(id)
		for _, emb := range embs {
			if err := reg.Add(id, emb); err != nil {
				return nil, err
			}
		}
	}
	return reg, nil
}

// Students lists stored students sorted by ID
func (m *MockStudentStore) Students(_ context.Context) ([]database.Student, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	students := make([]database.Student, 0, len(m.embeddings))
	for id, embs := range m.embeddings {
		students = append(students, database.Student{
			ID:         id,
			Name:       m.names[id],
			Embeddings: len(embs),
			UpdatedAt:  m.updatedAt,
		})
	}
	slices.SortFunc(students, func(a, b database.Student) int { return strings.Compare(a.ID, b.ID) })
	return students, nil
}

// Count returns the number of stored embeddings
func (m *MockStudentStore) Count(_ context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, embs := range m.embeddings {
		n += len(embs)
	}
	return n, nil
}

// MockSessionStore is a mock implementation of database.SessionStore
type MockSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]database.Session
	marks    []attendance.Mark

	// Error injection
	RecordError error
	MarksError  error
}

// NewMockSessionStore creates a new mock session store
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{sessions: make(map[string]database.Session)}
}

var _ database.SessionStore = (*MockSessionStore)(nil)

// StartSession stores the session; an existing session only gets a missing class name
func (m *MockSessionStore) StartSession(_ context.Context, s database.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sessions[s.ID]
	if !ok {
		m.sessions[s.ID] = s
		return nil
	}
	if existing.ClassName == "" {
		existing.ClassName = s.ClassName
		m.sessions[s.ID] = existing
	}
	return nil
}

// RecordMark stores the mark unless the student is already marked in the session
func (m *MockSessionStore) RecordMark(ctx context.Context, mark attendance.Mark) (bool, error) {
	if m.RecordError != nil {
		return false, m.RecordError
	}
	if err := m.StartSession(ctx, database.Session{ID: mark.SessionID, StartedAt: mark.At}); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.marks {
		if existing.SessionID == mark.SessionID && existing.StudentID == mark.StudentID {
			return false, nil
		}
	}
	m.marks = append(m.marks, mark)
	return true, nil
}

// Marks returns the marks of a session in insertion order
func (m *MockSessionStore) Marks(_ context.Context, sessionID string) ([]attendance.Mark, error) {
	if m.MarksError != nil {
		return nil, m.MarksError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var marks []attendance.Mark
	for _, mark := range m.marks {
		if mark.SessionID == sessionID {
			marks = append(marks, mark)
		}
	}
	return marks, nil
}

// Sessions lists sessions, newest first
func (m *MockSessionStore) Sessions(_ context.Context) ([]database.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]database.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	slices.SortFunc(sessions, func(a, b database.Session) int { return b.StartedAt.Compare(a.StartedAt) })
	return sessions, nil
}
