// Package shared provides the core types used across all memtier modules.
package shared

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Tier Types
// ============================================================================

// Tier identifies which durability layer a record lives in. Records move
// Interact -> Insights -> Assets as their computed importance grows.
type Tier string

const (
	// TierInteract holds hot, ephemeral records (recent conversation turns).
	TierInteract Tier = "interact"
	// TierInsights holds warm, aggregated records.
	TierInsights Tier = "insights"
	// TierAssets holds cold, durable records. Assets never expire.
	TierAssets Tier = "assets"
)

// AllTiers lists the tiers in promotion order, least durable first.
func AllTiers() []Tier {
	return []Tier{TierInteract, TierInsights, TierAssets}
}

// Next returns the tier one step up the promotion path, and false when the
// tier is already terminal.
func (t Tier) Next() (Tier, bool) {
	switch t {
	case TierInteract:
		return TierInsights, true
	case TierInsights:
		return TierAssets, true
	default:
		return t, false
	}
}

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierInteract, TierInsights, TierAssets:
		return true
	}
	return false
}

// ============================================================================
// Record Types
// ============================================================================

// RecordMetadata carries the low-cardinality attributes attached to a record.
type RecordMetadata struct {
	Tags    []string `json:"tags,omitempty"`
	Project string   `json:"project,omitempty"`
	Session string   `json:"session,omitempty"`
	Kind    string   `json:"kind,omitempty"`
}

// Record is a single memory entry. (ID, Tier) is unique: a record belongs to
// exactly one tier at a time, and a tier change is applied atomically.
type Record struct {
	ID          string         `json:"id"`
	Tier        Tier           `json:"tier"`
	Content     string         `json:"content"`
	Embedding   []float32      `json:"embedding,omitempty"`
	Metadata    RecordMetadata `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	AccessCount uint32         `json:"accessCount"`
	LastAccess  time.Time      `json:"lastAccess"`
	Score       float64        `json:"score"`
}

// NewRecord creates a Record in the given tier with a fresh ID and timestamps.
func NewRecord(content string, tier Tier) *Record {
	now := time.Now()
	return &Record{
		ID:         uuid.New().String(),
		Tier:       tier,
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
		LastAccess: now,
	}
}

// AgeHours returns the record age in fractional hours.
func (r *Record) AgeHours() float64 {
	return time.Since(r.CreatedAt).Hours()
}

// HoursSinceAccess returns the fractional hours since the last access.
func (r *Record) HoursSinceAccess() float64 {
	return time.Since(r.LastAccess).Hours()
}

// Touch records an access.
func (r *Record) Touch() {
	r.AccessCount++
	r.LastAccess = time.Now()
}

// ============================================================================
// Search Types
// ============================================================================

// SearchOptions narrows and sizes a search. The zero value means "top 10,
// no threshold, no filters".
type SearchOptions struct {
	TopK           int      `json:"topK"`
	ScoreThreshold float64  `json:"scoreThreshold"`
	Tags           []string `json:"tags,omitempty"`
	Project        string   `json:"project,omitempty"`
}

// DefaultSearchOptions returns the options used when a caller passes none.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{TopK: 10}
}

// SearchResult pairs a record with its similarity score for one query.
type SearchResult struct {
	Record *Record `json:"record"`
	Score  float64 `json:"score"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthStatus is the result of a storage health probe.
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	LatencyMS float64       `json:"latencyMs"`
	CheckedAt time.Time     `json:"checkedAt"`
	Detail    string        `json:"detail,omitempty"`
	Latency   time.Duration `json:"-"`
}
