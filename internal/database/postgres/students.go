package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/attendance/internal/database"
	"github.com/kozaktomas/attendance/internal/recognition"
)

// StudentRepository provides PostgreSQL-backed storage of reference embeddings.
type StudentRepository struct {
	pool *Pool
}

// NewStudentRepository creates a new PostgreSQL student repository.
func NewStudentRepository(pool *Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

var _ database.StudentStore = (*StudentRepository)(nil)

// SaveRegistry replaces the stored registry in one transaction.
func (r *StudentRepository) SaveRegistry(
	ctx context.Context, reg *recognition.Registry, model string, names map[string]string,
) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM students"); err != nil {
		return fmt.Errorf("delete existing students: %w", err)
	}

	for _, id := range reg.Students() {
		var name sql.NullString
		if n, ok := names[id]; ok && n != "" {
			name = sql.NullString{String: n, Valid: true}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO students (id, name, updated_at) VALUES ($1, $2, NOW())", id, name); err != nil {
			return fmt.Errorf("insert student %s: %w", id, err)
		}

		for i, emb := range reg.Embeddings(id) {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO student_embeddings (student_id, embedding, dim, model)
				VALUES ($1, $2::vector, $3, $4)
			`, id, pgvector.NewVector(emb), len(emb), model); err != nil {
				return fmt.Errorf("insert embedding %d of %s: %w", i, id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadRegistry reads all students and their embeddings.
func (r *StudentRepository) LoadRegistry(ctx context.Context) (*recognition.Registry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, e.embedding
		FROM students s
		LEFT JOIN student_embeddings e ON e.student_id = s.id
		ORDER BY s.id, e.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query registry: %w", err)
	}
	defer rows.Close()

	reg := recognition.NewRegistry(0)
	for rows.Next() {
		var id string
		var vec *pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, fmt.Errorf("scan registry row: %w", err)
		}
		if vec == nil {
			reg.Ensure(id)
			continue
		}
		if err := reg.Add(id, vec.Slice()); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registry rows: %w", err)
	}
	return reg, nil
}

// Students lists stored students with their embedding counts.
func (r *StudentRepository) Students(ctx context.Context) ([]database.Student, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, COALESCE(s.name, ''), COUNT(e.id), s.updated_at
		FROM students s
		LEFT JOIN student_embeddings e ON e.student_id = s.id
		GROUP BY s.id, s.name, s.updated_at
		ORDER BY s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []database.Student
	for rows.Next() {
		var s database.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Embeddings, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return students, nil
}

// Count returns the number of stored reference embeddings.
func (r *StudentRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM student_embeddings").Scan(&count); err != nil {
		return 0, fmt.Errorf("count embeddings: %w", err)
	}
	return count, nil
}

// VectorIndex answers nearest-neighbour queries with pgvector distance operators.
type VectorIndex struct {
	repo   *StudentRepository
	metric recognition.Metric
}

// NewVectorIndex creates a recognition index backed by the student_embeddings table.
func NewVectorIndex(repo *StudentRepository, metric recognition.Metric) *VectorIndex {
	return &VectorIndex{repo: repo, metric: metric}
}

var _ recognition.Index = (*VectorIndex)(nil)

// distanceExpr returns the SQL distance expression for a metric. cosine uses <=>,
// euclidean uses <->, euclidean_l2 compares normalised vectors.
func distanceExpr(metric recognition.Metric) string {
	switch metric {
	case recognition.Euclidean:
		return "embedding <-> $1::vector"
	case recognition.EuclideanL2:
		return "l2_normalize(embedding) <-> l2_normalize($1::vector)"
	default:
		return "embedding <=> $1::vector"
	}
}

func (v *VectorIndex) Nearest(ctx context.Context, query []float32) (recognition.Neighbor, error) {
	expr := distanceExpr(v.metric)
	q := fmt.Sprintf(`
		SELECT student_id, %s AS distance
		FROM student_embeddings
		WHERE dim = $2
		ORDER BY distance
		LIMIT 1
	`, expr)

	var n recognition.Neighbor
	err := v.repo.pool.QueryRow(ctx, q, pgvector.NewVector(query), len(query)).Scan(&n.StudentID, &n.Distance)
	if errors.Is(err, sql.ErrNoRows) {
		return recognition.Neighbor{}, recognition.ErrEmptyIndex
	}
	if err != nil {
		return recognition.Neighbor{}, fmt.Errorf("query nearest student: %w", err)
	}
	return n, nil
}
