package attendance

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kozaktomas/attendance/internal/recognition"
)

func known(id string, confidence float64) recognition.Match {
	return recognition.Match{StudentID: id, Confidence: confidence, Known: true}
}

func TestTracker_ConfirmsAfterThreshold(t *testing.T) {
	tr := NewTracker(3, 0)
	base := time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC)

	for i := 1; i <= 2; i++ {
		obs := tr.Observe(known("A_ALICE", 80), base.Add(time.Duration(i)*time.Second))
		assert.Equal(t, i, obs.Count)
		assert.False(t, obs.Confirmed)
	}

	third := base.Add(3 * time.Second)
	obs := tr.Observe(known("A_ALICE", 80), third)
	assert.True(t, obs.Confirmed)
	assert.True(t, obs.NewlyConfirmed)

	obs = tr.Observe(known("A_ALICE", 80), base.Add(10*time.Second))
	assert.True(t, obs.Confirmed)
	assert.False(t, obs.NewlyConfirmed)
	assert.Equal(t, 4, obs.Count)

	snap := tr.Snapshot()
	assert.Equal(t, third, snap.ConfirmedAt["A_ALICE"], "first confirmation time is kept")
	assert.Equal(t, []string{"A_ALICE"}, snap.PresentIDs())
	assert.Equal(t, 1, tr.PresentCount())
}

func TestTracker_IgnoresUnknownAndLowConfidence(t *testing.T) {
	tr := NewTracker(1, 50)
	now := time.Now()

	obs := tr.Observe(recognition.Match{StudentID: "B_BOB", Distance: 0.9}, now)
	assert.Equal(t, Observation{}, obs)

	obs = tr.Observe(known("B_BOB", 49.9), now)
	assert.False(t, obs.Counted)
	assert.False(t, obs.Confirmed)
	assert.Equal(t, 0, obs.Count)

	obs = tr.Observe(known("B_BOB", 50), now)
	assert.True(t, obs.NewlyConfirmed)

	obs = tr.Observe(known("B_BOB", 10), now)
	assert.True(t, obs.Confirmed, "low confidence never un-confirms")
}

func TestTracker_SingleConfirmationAndFloor(t *testing.T) {
	tr := NewTracker(0, 0)
	assert.Equal(t, 1, tr.Confirmations())
	assert.True(t, tr.Observe(known("C", 1), time.Now()).NewlyConfirmed)
}

func TestTracker_Restore(t *testing.T) {
	tr := NewTracker(3, 0)
	at := time.Date(2026, 2, 4, 8, 55, 0, 0, time.UTC)
	tr.Restore("A_ALICE", at)
	tr.Restore("A_ALICE", at.Add(time.Hour))

	snap := tr.Snapshot()
	assert.True(t, snap.Present("A_ALICE"))
	assert.Equal(t, at, snap.ConfirmedAt["A_ALICE"])
	assert.False(t, tr.Observe(known("A_ALICE", 90), time.Now()).NewlyConfirmed)
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker(100, 0)
	var wg sync.WaitGroup
	newly := make(chan bool, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			newly <- tr.Observe(known("A", 90), time.Now()).NewlyConfirmed
		}()
	}
	wg.Wait()
	close(newly)

	confirmations := 0
	for n := range newly {
		if n {
			confirmations++
		}
	}
	assert.Equal(t, 1, confirmations)
	assert.Equal(t, 200, tr.Snapshot().Counts["A"])
}
