package recognition

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrEmptyIndex is returned by an Index without any reference embeddings.
var ErrEmptyIndex = errors.New("index has no reference embeddings")

// ErrDimensionMismatch is returned when a query does not have the registry's dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Neighbor is the closest reference embedding found for a query.
type Neighbor struct {
	StudentID string
	Distance  float64
}

// Index finds the closest registered student for a live embedding.
type Index interface {
	Nearest(ctx context.Context, query []float32) (Neighbor, error)
}

// LinearIndex compares the query against every reference embedding and returns
// the global minimum. It is exact and fast enough for a classroom.
type LinearIndex struct {
	metric Metric
	dim    int
	refs   []reference
}

// NewLinearIndex snapshots the registry. Embeddings added to the registry later
// are not seen by the index.
func NewLinearIndex(reg *Registry, metric Metric) *LinearIndex {
	return &LinearIndex{metric: metric, dim: reg.Dim(), refs: reg.references()}
}

// Nearest returns the globally closest reference embedding.
func (l *LinearIndex) Nearest(_ context.Context, query []float32) (Neighbor, error) {
	if len(l.refs) == 0 {
		return Neighbor{}, ErrEmptyIndex
	}
	if err := checkDim(query, l.dim); err != nil {
		return Neighbor{}, err
	}

	best := Neighbor{Distance: math.Inf(1)}
	for _, ref := range l.refs {
		d := l.metric.Distance(query, ref.embedding)
		if d < best.Distance {
			best = Neighbor{StudentID: ref.studentID, Distance: d}
		}
	}
	if best.StudentID == "" {
		return Neighbor{}, ErrEmptyIndex
	}
	return best, nil
}

// Len returns the number of reference embeddings in the index.
func (l *LinearIndex) Len() int {
	return len(l.refs)
}

func checkDim(query []float32, dim int) error {
	if len(query) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(query), dim)
	}
	return nil
}
