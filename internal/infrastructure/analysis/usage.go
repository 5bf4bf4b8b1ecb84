// Package analysis provides the usage and semantic collaborators the
// promotion engine consumes.
package analysis

import (
	"sync"
	"time"

	"github.com/blackms/memtier-go/internal/shared"
)

// UsageTracker derives access-pattern scores from record fields and from the
// access events it has observed.
type UsageTracker struct {
	mu       sync.Mutex
	accesses map[string][]time.Time
	maxTrack int
	now      func() time.Time
}

// NewUsageTracker creates an empty tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		accesses: make(map[string][]time.Time),
		maxTrack: 50,
		now:      time.Now,
	}
}

// RecordAccess notes one access to a record, keeping a bounded window of
// recent accesses per id.
func (u *UsageTracker) RecordAccess(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	times := append(u.accesses[id], u.now())
	if len(times) > u.maxTrack {
		times = times[len(times)-u.maxTrack:]
	}
	u.accesses[id] = times
}

// CalculateAccessFrequency returns accesses per day, age-normalized.
func (u *UsageTracker) CalculateAccessFrequency(record *shared.Record) float64 {
	ageDays := record.AgeHours() / 24
	if ageDays < 1 {
		ageDays = 1
	}
	return float64(record.AccessCount) / ageDays
}

// CalculateAccessRecency maps hours-since-access into (0,1], where anything
// touched within the last day scores near 1.
func (u *UsageTracker) CalculateAccessRecency(record *shared.Record) float64 {
	recency := 24 / (record.HoursSinceAccess() + 1)
	if recency > 1 {
		return 1
	}
	return recency
}

// GetTemporalPatternScore returns the observed access velocity of a record:
// accesses in the last 24 hours scaled into [0,1].
func (u *UsageTracker) GetTemporalPatternScore(id string) float64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	cutoff := u.now().Add(-24 * time.Hour)
	recent := 0
	for _, ts := range u.accesses[id] {
		if ts.After(cutoff) {
			recent++
		}
	}
	score := float64(recent) / 10
	if score > 1 {
		return 1
	}
	return score
}

// HasAcceleration reports whether a record's access rate is rising: more
// accesses in the newer half of the observed window than in the older half.
func (u *UsageTracker) HasAcceleration(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	times := u.accesses[id]
	if len(times) < 4 {
		return false
	}
	mid := times[0].Add(u.now().Sub(times[0]) / 2)
	older, newer := 0, 0
	for _, ts := range times {
		if ts.Before(mid) {
			older++
		} else {
			newer++
		}
	}
	return newer > older
}
