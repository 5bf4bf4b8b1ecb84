// Package resources defines the value types of the resource controller:
// snapshots, limits, alerts, scaling events, and trend forecasts.
package resources

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Snapshots & Usage
// ============================================================================

// Snapshot is one observation of resource pressure. The controller keeps a
// ring of 288 of these: 24 hours at 5-minute resolution.
type Snapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	MemoryPercent float64   `json:"memoryPercent"`
	VectorPercent float64   `json:"vectorPercent"`
	CachePercent  float64   `json:"cachePercent"`
	OpsPerSecond  float64   `json:"opsPerSecond"`
}

// Usage is the current accounting reported by the storage layer.
type Usage struct {
	VectorCount     uint64  `json:"vectorCount"`
	CacheBytes      uint64  `json:"cacheBytes"`
	MemoryBytes     uint64  `json:"memoryBytes"`
	MemoryPercent   float64 `json:"memoryPercent"`
	VectorPercent   float64 `json:"vectorPercent"`
	CachePercent    float64 `json:"cachePercent"`
	OpsPerSecond    float64 `json:"opsPerSecond"`
}

// Limits is the controller's current ceiling set. Changes are applied as one
// atomic, fully-formed replacement.
type Limits struct {
	MaxVectors    uint64    `json:"maxVectors"`
	CacheBytes    uint64    `json:"cacheBytes"`
	ScalingFactor float64   `json:"scalingFactor"`
	LastScaled    time.Time `json:"lastScaled"`
}

// ============================================================================
// Alerts
// ============================================================================

// AlertType classifies a resource alert.
type AlertType string

const (
	// AlertMemoryPressure fires when memory usage crosses 85% (warning)
	// or 90% (critical).
	AlertMemoryPressure AlertType = "memory_pressure"
	// AlertVectorLimitApproached fires when vector usage crosses 90%.
	AlertVectorLimitApproached AlertType = "vector_limit_approached"
	// AlertResourceExhaustion fires whenever the emergency free-resources
	// path runs.
	AlertResourceExhaustion AlertType = "resource_exhaustion"
)

// AlertSeverity grades an alert.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is one raised condition. Alerts auto-resolve after an hour and are
// purged 24 hours after resolution.
type Alert struct {
	ID         string        `json:"id"`
	Type       AlertType     `json:"type"`
	Severity   AlertSeverity `json:"severity"`
	Message    string        `json:"message"`
	Timestamp  time.Time     `json:"timestamp"`
	Resolved   bool          `json:"resolved"`
	ResolvedAt time.Time     `json:"resolvedAt,omitempty"`
}

// NewAlert creates an unresolved alert stamped now.
func NewAlert(alertType AlertType, severity AlertSeverity, message string) Alert {
	return Alert{
		ID:        uuid.New().String(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// ============================================================================
// Scaling & Forecasting
// ============================================================================

// ScalingDirection says which way a scaling event moved a limit.
type ScalingDirection string

const (
	ScaleUp   ScalingDirection = "up"
	ScaleDown ScalingDirection = "down"
)

// ScalingEvent records one applied limit change. The controller keeps the
// last 100.
type ScalingEvent struct {
	Timestamp time.Time        `json:"timestamp"`
	Direction ScalingDirection `json:"direction"`
	Resource  string           `json:"resource"`
	Factor    float64          `json:"factor"`
	OldValue  uint64           `json:"oldValue"`
	NewValue  uint64           `json:"newValue"`
	Reason    string           `json:"reason"`
}

// TrendForecast is the output of the predictive loop: least-squares slopes
// over recent snapshots, in percentage points per snapshot interval. It is
// informational only and never gates scaling decisions.
type TrendForecast struct {
	MemorySlope float64   `json:"memorySlope"`
	VectorSlope float64   `json:"vectorSlope"`
	Confidence  float64   `json:"confidence"`
	ComputedAt  time.Time `json:"computedAt"`
	SampleCount int       `json:"sampleCount"`
}

// ControllerMetrics is a point-in-time copy of the controller's counters.
type ControllerMetrics struct {
	SnapshotCount    int     `json:"snapshotCount"`
	ScalingEvents    uint64  `json:"scalingEvents"`
	ActiveAlerts     int     `json:"activeAlerts"`
	EMAMemoryPercent float64 `json:"emaMemoryPercent"`
	EMAVectorPercent float64 `json:"emaVectorPercent"`
	PeakMemoryPercent float64 `json:"peakMemoryPercent"`
	PeakVectorPercent float64 `json:"peakVectorPercent"`
}
