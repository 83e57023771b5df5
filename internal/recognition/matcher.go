package recognition

import (
	"context"
	"errors"
	"fmt"
)

// Unknown is the label used for faces that do not match any student.
const Unknown = "Unknown"

// Match is the result of recognising one live embedding.
type Match struct {
	StudentID  string  `json:"student_id"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"` // percent, 0 for unknown faces
	Known      bool    `json:"known"`
}

// Label returns the student ID for known matches and Unknown otherwise.
func (m Match) Label() string {
	if !m.Known {
		return Unknown
	}
	return m.StudentID
}

// String formats the match the way the preview window labels faces.
func (m Match) String() string {
	if !m.Known {
		return Unknown
	}
	return fmt.Sprintf("%s (%.0f%%)", m.StudentID, m.Confidence)
}

// Matcher accepts the nearest neighbour only when its distance is strictly below
// the threshold.
type Matcher struct {
	index     Index
	threshold float64
}

// NewMatcher creates a matcher that accepts neighbours strictly below threshold.
func NewMatcher(index Index, threshold float64) *Matcher {
	return &Matcher{index: index, threshold: threshold}
}

// Threshold returns the distance threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Match finds the closest student. An empty index yields an unknown match
// rather than an error, so a run without registered embeddings still produces
// an all-absent report.
func (m *Matcher) Match(ctx context.Context, emb []float32) (Match, error) {
	n, err := m.index.Nearest(ctx, emb)
	if err != nil {
		if errors.Is(err, ErrEmptyIndex) {
			return Match{}, nil
		}
		return Match{}, err
	}

	if n.Distance >= m.threshold {
		return Match{StudentID: n.StudentID, Distance: n.Distance}, nil
	}

	return Match{
		StudentID:  n.StudentID,
		Distance:   n.Distance,
		Confidence: Confidence(n.Distance, m.threshold),
		Known:      true,
	}, nil
}

// Confidence maps a distance below threshold to a percentage: 100 for an exact
// match, falling linearly to 0 at the threshold.
func Confidence(distance, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	c := (1 - distance/threshold) * 100
	return max(0, min(100, c))
}
