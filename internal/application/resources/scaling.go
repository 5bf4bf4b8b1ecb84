package resources

import (
	"fmt"
	"time"

	domainres "github.com/blackms/memtier-go/internal/domain/resources"
)

// emaAlpha weights the smoothed usage metrics toward recent samples.
const emaAlpha = 0.1

// ============================================================================
// Monitoring
// ============================================================================

// observe folds one usage reading into the snapshot ring, the EMA/peak
// metrics, and the pressure alerts.
func (c *Controller) observe(usage domainres.Usage) {
	snapshot := domainres.Snapshot{
		Timestamp:     c.now(),
		MemoryPercent: usage.MemoryPercent,
		VectorPercent: usage.VectorPercent,
		CachePercent:  usage.CachePercent,
		OpsPerSecond:  usage.OpsPerSecond,
	}

	c.stateMu.Lock()
	c.snapshots = append(c.snapshots, snapshot)
	if len(c.snapshots) > c.config.SnapshotCapacity {
		c.snapshots = c.snapshots[len(c.snapshots)-c.config.SnapshotCapacity:]
	}
	if c.haveEMA {
		c.emaMemory = emaAlpha*usage.MemoryPercent + (1-emaAlpha)*c.emaMemory
		c.emaVector = emaAlpha*usage.VectorPercent + (1-emaAlpha)*c.emaVector
	} else {
		c.emaMemory = usage.MemoryPercent
		c.emaVector = usage.VectorPercent
		c.haveEMA = true
	}
	if usage.MemoryPercent > c.peakMemory {
		c.peakMemory = usage.MemoryPercent
	}
	if usage.VectorPercent > c.peakVector {
		c.peakVector = usage.VectorPercent
	}
	c.stateMu.Unlock()

	switch {
	case usage.MemoryPercent > 90:
		c.raiseAlert(domainres.NewAlert(domainres.AlertMemoryPressure, domainres.SeverityCritical,
			fmt.Sprintf("memory usage at %.1f%%", usage.MemoryPercent)))
	case usage.MemoryPercent > 85:
		c.raiseAlert(domainres.NewAlert(domainres.AlertMemoryPressure, domainres.SeverityWarning,
			fmt.Sprintf("memory usage at %.1f%%", usage.MemoryPercent)))
	}
	if usage.VectorPercent > 90 {
		c.raiseAlert(domainres.NewAlert(domainres.AlertVectorLimitApproached, domainres.SeverityWarning,
			fmt.Sprintf("vector usage at %.1f%% of limit", usage.VectorPercent)))
	}
}

// ============================================================================
// Auto-scaling
// ============================================================================

// evaluateScaling applies at most one limit change per direction, honoring
// the per-direction cooldowns. The new limit set is written atomically.
func (c *Controller) evaluateScaling(usage domainres.Usage) {
	th := c.config.thresholds()
	now := c.now()

	c.stateMu.Lock()
	upAllowed := c.lastScaleUp.IsZero() || now.Sub(c.lastScaleUp) >= th.upCooldown
	downAllowed := c.lastScaleDown.IsZero() || now.Sub(c.lastScaleDown) >= th.downCooldown
	c.stateMu.Unlock()

	limits := c.GetLimits()
	next := limits
	var events []domainres.ScalingEvent

	if upAllowed {
		if usage.MemoryPercent > th.upMemory {
			old := next.CacheBytes
			next.CacheBytes = clampUint64(uint64(float64(old)*c.config.ScaleUpFactor),
				c.config.BaseCacheBytes, c.config.MaxCacheBytes)
			if next.CacheBytes != old {
				events = append(events, domainres.ScalingEvent{
					Timestamp: now, Direction: domainres.ScaleUp, Resource: "cache_bytes",
					Factor: c.config.ScaleUpFactor, OldValue: old, NewValue: next.CacheBytes,
					Reason: fmt.Sprintf("memory at %.1f%% above %.0f%%", usage.MemoryPercent, th.upMemory),
				})
			}
		}
		if usage.VectorPercent > th.upVector {
			old := next.MaxVectors
			next.MaxVectors = clampUint64(uint64(float64(old)*c.config.ScaleUpFactor),
				c.config.BaseMaxVectors, c.config.MaxMaxVectors)
			if next.MaxVectors != old {
				events = append(events, domainres.ScalingEvent{
					Timestamp: now, Direction: domainres.ScaleUp, Resource: "max_vectors",
					Factor: c.config.ScaleUpFactor, OldValue: old, NewValue: next.MaxVectors,
					Reason: fmt.Sprintf("vectors at %.1f%% above %.0f%%", usage.VectorPercent, th.upVector),
				})
			}
		}
	}

	scaledUp := len(events) > 0
	if downAllowed && !scaledUp {
		if usage.MemoryPercent < th.downMemory && usage.MemoryPercent > 0 {
			old := next.CacheBytes
			next.CacheBytes = clampUint64(uint64(float64(old)*c.config.ScaleDownFactor),
				c.config.BaseCacheBytes, c.config.MaxCacheBytes)
			if next.CacheBytes != old {
				events = append(events, domainres.ScalingEvent{
					Timestamp: now, Direction: domainres.ScaleDown, Resource: "cache_bytes",
					Factor: c.config.ScaleDownFactor, OldValue: old, NewValue: next.CacheBytes,
					Reason: fmt.Sprintf("memory at %.1f%% below %.0f%%", usage.MemoryPercent, th.downMemory),
				})
			}
		}
		if usage.VectorPercent < th.downVector && usage.VectorPercent > 0 {
			old := next.MaxVectors
			next.MaxVectors = clampUint64(uint64(float64(old)*c.config.ScaleDownFactor),
				c.config.BaseMaxVectors, c.config.MaxMaxVectors)
			if next.MaxVectors != old {
				events = append(events, domainres.ScalingEvent{
					Timestamp: now, Direction: domainres.ScaleDown, Resource: "max_vectors",
					Factor: c.config.ScaleDownFactor, OldValue: old, NewValue: next.MaxVectors,
					Reason: fmt.Sprintf("vectors at %.1f%% below %.0f%%", usage.VectorPercent, th.downVector),
				})
			}
		}
	}

	if len(events) == 0 {
		return
	}

	next.LastScaled = now
	if scaledUp {
		next.ScalingFactor = limits.ScalingFactor * c.config.ScaleUpFactor
	} else {
		next.ScalingFactor = limits.ScalingFactor * c.config.ScaleDownFactor
	}
	c.setLimits(next)

	c.stateMu.Lock()
	if scaledUp {
		c.lastScaleUp = now
	} else {
		c.lastScaleDown = now
	}
	c.events = append(c.events, events...)
	if len(c.events) > c.config.EventCapacity {
		c.events = c.events[len(c.events)-c.config.EventCapacity:]
	}
	c.stateMu.Unlock()

	for range events {
		c.scalingEvents.Add(1)
	}
	for _, ev := range events {
		c.logger.Info("scaled resource limit",
			"resource", ev.Resource, "direction", string(ev.Direction),
			"old", ev.OldValue, "new", ev.NewValue, "reason", ev.Reason)
	}
}

func clampUint64(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ============================================================================
// Forecasting
// ============================================================================

// trendWindow is how many recent snapshots the least-squares fit uses.
const trendWindow = 10

// minSnapshotsForTrend gates forecasting until enough history exists.
const minSnapshotsForTrend = 20

// updateTrend fits a least-squares slope over the recent snapshots. The
// result is stored for observers; it never feeds back into limit decisions.
func (c *Controller) updateTrend() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if len(c.snapshots) < minSnapshotsForTrend {
		return
	}
	window := c.snapshots[len(c.snapshots)-trendWindow:]

	memory := make([]float64, len(window))
	vector := make([]float64, len(window))
	for i, snap := range window {
		memory[i] = snap.MemoryPercent
		vector[i] = snap.VectorPercent
	}

	confidence := 0.5
	if len(window) >= 10 {
		confidence = 0.8
	}
	c.trend = domainres.TrendForecast{
		MemorySlope: leastSquaresSlope(memory),
		VectorSlope: leastSquaresSlope(vector),
		Confidence:  confidence,
		ComputedAt:  c.now(),
		SampleCount: len(window),
	}
}

// leastSquaresSlope fits y = a + b*x over x = 0..n-1 and returns b.
func leastSquaresSlope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// ============================================================================
// Alert lifecycle
// ============================================================================

// autoResolveAge is how long an alert stays active before auto-resolution.
const autoResolveAge = time.Hour

// purgeAge is how long a resolved alert is kept before purging.
const purgeAge = 24 * time.Hour

// processAlerts auto-resolves stale alerts and purges long-resolved ones.
func (c *Controller) processAlerts() {
	now := c.now()

	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	kept := c.alerts[:0]
	for _, alert := range c.alerts {
		if !alert.Resolved && now.Sub(alert.Timestamp) >= autoResolveAge {
			alert.Resolved = true
			alert.ResolvedAt = now
		}
		if alert.Resolved && !alert.ResolvedAt.IsZero() && now.Sub(alert.ResolvedAt) >= purgeAge {
			continue
		}
		kept = append(kept, alert)
	}
	c.alerts = kept
}
