package attendance

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/attendance/internal/recognition"
)

// Observation is the tracker's verdict on one match.
type Observation struct {
	StudentID      string `json:"student_id,omitempty"`
	Count          int    `json:"count"`
	Counted        bool   `json:"counted"`         // the match increased the running count
	Confirmed      bool   `json:"confirmed"`       // the student is present
	NewlyConfirmed bool   `json:"newly_confirmed"` // this observation made the student present
}

// Snapshot is a copy of the tracker state.
type Snapshot struct {
	Counts      map[string]int
	ConfirmedAt map[string]time.Time
}

// Present reports whether a student has been confirmed.
func (s Snapshot) Present(studentID string) bool {
	_, ok := s.ConfirmedAt[studentID]
	return ok
}

// PresentIDs returns the confirmed students, sorted.
func (s Snapshot) PresentIDs() []string {
	return slices.Sorted(maps.Keys(s.ConfirmedAt))
}

// Tracker implements the debounce policy: a student becomes present once the
// running count of accepted matches reaches the required confirmations. Counts
// never decay and a confirmed student stays confirmed for the session.
type Tracker struct {
	mu            sync.Mutex
	confirmations int
	minConfidence float64
	counts        map[string]int
	confirmedAt   map[string]time.Time
}

// NewTracker creates a tracker. confirmations below 1 are treated as 1.
func NewTracker(confirmations int, minConfidence float64) *Tracker {
	return &Tracker{
		confirmations: max(1, confirmations),
		minConfidence: minConfidence,
		counts:        make(map[string]int),
		confirmedAt:   make(map[string]time.Time),
	}
}

// Confirmations returns the number of detections required.
func (t *Tracker) Confirmations() int {
	return t.confirmations
}

// Observe records a match. Unknown matches and matches below the minimum
// confidence are ignored.
func (t *Tracker) Observe(m recognition.Match, at time.Time) Observation {
	if !m.Known || m.StudentID == "" {
		return Observation{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	obs := Observation{StudentID: m.StudentID}
	if m.Confidence < t.minConfidence {
		obs.Count = t.counts[m.StudentID]
		_, obs.Confirmed = t.confirmedAt[m.StudentID]
		return obs
	}

	t.counts[m.StudentID]++
	obs.Count = t.counts[m.StudentID]
	obs.Counted = true

	if _, ok := t.confirmedAt[m.StudentID]; ok {
		obs.Confirmed = true
		return obs
	}
	if obs.Count >= t.confirmations {
		t.confirmedAt[m.StudentID] = at
		obs.Confirmed = true
		obs.NewlyConfirmed = true
	}
	return obs
}

// Snapshot returns a copy of the counts and confirmation times.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		Counts:      maps.Clone(t.counts),
		ConfirmedAt: maps.Clone(t.confirmedAt),
	}
}

// PresentCount returns how many students are confirmed.
func (t *Tracker) PresentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.confirmedAt)
}

// Restore marks students as present without counting detections, used when a
// session is resumed from the ledger.
func (t *Tracker) Restore(studentID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.confirmedAt[studentID]; ok {
		return
	}
	t.confirmedAt[studentID] = at
	t.counts[studentID] = max(t.counts[studentID], t.confirmations)
}
