// Package resources implements the resource controller: it tracks vector and
// cache utilization, auto-scales limits, forecasts trend, and raises alerts.
package resources

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	domainres "github.com/blackms/memtier-go/internal/domain/resources"
)

// Mode selects the scaling aggressiveness.
type Mode string

const (
	// ModeStandard uses the conservative thresholds and cooldowns.
	ModeStandard Mode = "standard"
	// ModeAggressive reacts earlier and cools down faster.
	ModeAggressive Mode = "aggressive"
)

// Config tunes the controller.
type Config struct {
	Mode Mode

	// Base limits; scale-down never goes below these.
	BaseMaxVectors uint64
	BaseCacheBytes uint64
	// Hard ceilings; scale-up never exceeds these.
	MaxMaxVectors uint64
	MaxCacheBytes uint64

	// MemoryBudgetBytes is the process heap budget that memory
	// percentages are computed against.
	MemoryBudgetBytes uint64

	// ScaleUpFactor multiplies a limit on scale-up. Valid range 1.2-1.5.
	ScaleUpFactor float64
	// ScaleDownFactor multiplies a limit on scale-down. Valid range
	// 0.7-0.9.
	ScaleDownFactor float64

	// Loop cadences.
	MonitorInterval    time.Duration
	ScalingInterval    time.Duration
	PredictiveInterval time.Duration
	AlertInterval      time.Duration

	// SnapshotCapacity bounds the history ring: 288 keeps 24 hours at
	// 5-minute resolution.
	SnapshotCapacity int
	// AlertCapacity bounds the alert list.
	AlertCapacity int
	// EventCapacity bounds the scaling-event history.
	EventCapacity int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Mode:               ModeStandard,
		BaseMaxVectors:     100_000,
		BaseCacheBytes:     256 << 20,
		MaxMaxVectors:      10_000_000,
		MaxCacheBytes:      4 << 30,
		MemoryBudgetBytes:  1 << 30,
		ScaleUpFactor:      1.3,
		ScaleDownFactor:    0.8,
		MonitorInterval:    60 * time.Second,
		ScalingInterval:    180 * time.Second,
		PredictiveInterval: 900 * time.Second,
		AlertInterval:      300 * time.Second,
		SnapshotCapacity:   288,
		AlertCapacity:      50,
		EventCapacity:      100,
	}
}

// thresholds are the per-mode scaling trigger points, in percent.
type thresholds struct {
	upMemory     float64
	upVector     float64
	downMemory   float64
	downVector   float64
	upCooldown   time.Duration
	downCooldown time.Duration
}

func (c Config) thresholds() thresholds {
	if c.Mode == ModeAggressive {
		return thresholds{
			upMemory: 75, upVector: 80,
			downMemory: 35, downVector: 25,
			upCooldown: 3 * time.Minute, downCooldown: 10 * time.Minute,
		}
	}
	return thresholds{
		upMemory: 80, upVector: 85,
		downMemory: 40, downVector: 30,
		upCooldown: 5 * time.Minute, downCooldown: 15 * time.Minute,
	}
}

// AccountingSource reports what storage currently holds; the controller's
// only dependency on the persistence layer.
type AccountingSource interface {
	ResourceAccounting(ctx context.Context) (records uint64, embeddingBytes uint64, err error)
}

// Cleaner is the optional hook FreeResources uses to force cleanup against
// temporarily lowered limits. It returns the bytes it freed.
type Cleaner interface {
	EnforceLimits(ctx context.Context, limits domainres.Limits) (uint64, error)
}

// CleanerFunc adapts a function to the Cleaner interface.
type CleanerFunc func(ctx context.Context, limits domainres.Limits) (uint64, error)

// EnforceLimits calls f.
func (f CleanerFunc) EnforceLimits(ctx context.Context, limits domainres.Limits) (uint64, error) {
	return f(ctx, limits)
}

// Controller owns the limits, the snapshot history, the alert list, and the
// four background loops. Limit reads and writes go through one RWMutex;
// replacements are always fully formed.
type Controller struct {
	config Config

	limitsMu sync.RWMutex
	limits   domainres.Limits

	stateMu       sync.Mutex
	snapshots     []domainres.Snapshot
	alerts        []domainres.Alert
	events        []domainres.ScalingEvent
	trend         domainres.TrendForecast
	emaMemory     float64
	emaVector     float64
	peakMemory    float64
	peakVector    float64
	haveEMA       bool
	lastScaleUp   time.Time
	lastScaleDown time.Time

	scalingEvents atomic.Uint64
	opsCount      atomic.Uint64
	lastOpsReset  atomic.Int64

	source  AccountingSource
	cleaner Cleaner
	logger  *slog.Logger

	loopCancel context.CancelFunc
	loopWG     sync.WaitGroup

	now     func() time.Time
	memUsed func() uint64
}

// Option configures optional controller dependencies.
type Option func(*Controller)

// WithCleaner attaches the emergency cleanup hook.
func WithCleaner(cleaner Cleaner) Option {
	return func(c *Controller) { c.cleaner = cleaner }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// NewController creates a controller over the given accounting source. Call
// Start to launch the background loops.
func NewController(config Config, source AccountingSource, opts ...Option) *Controller {
	def := DefaultConfig()
	if config.BaseMaxVectors == 0 {
		config.BaseMaxVectors = def.BaseMaxVectors
	}
	if config.BaseCacheBytes == 0 {
		config.BaseCacheBytes = def.BaseCacheBytes
	}
	if config.MaxMaxVectors == 0 {
		config.MaxMaxVectors = def.MaxMaxVectors
	}
	if config.MaxCacheBytes == 0 {
		config.MaxCacheBytes = def.MaxCacheBytes
	}
	if config.MemoryBudgetBytes == 0 {
		config.MemoryBudgetBytes = def.MemoryBudgetBytes
	}
	if config.ScaleUpFactor < 1.2 || config.ScaleUpFactor > 1.5 {
		config.ScaleUpFactor = def.ScaleUpFactor
	}
	if config.ScaleDownFactor < 0.7 || config.ScaleDownFactor > 0.9 {
		config.ScaleDownFactor = def.ScaleDownFactor
	}
	if config.MonitorInterval <= 0 {
		config.MonitorInterval = def.MonitorInterval
	}
	if config.ScalingInterval <= 0 {
		config.ScalingInterval = def.ScalingInterval
	}
	if config.PredictiveInterval <= 0 {
		config.PredictiveInterval = def.PredictiveInterval
	}
	if config.AlertInterval <= 0 {
		config.AlertInterval = def.AlertInterval
	}
	if config.SnapshotCapacity <= 0 {
		config.SnapshotCapacity = def.SnapshotCapacity
	}
	if config.AlertCapacity <= 0 {
		config.AlertCapacity = def.AlertCapacity
	}
	if config.EventCapacity <= 0 {
		config.EventCapacity = def.EventCapacity
	}

	c := &Controller{
		config: config,
		limits: domainres.Limits{
			MaxVectors:    config.BaseMaxVectors,
			CacheBytes:    config.BaseCacheBytes,
			ScalingFactor: 1.0,
		},
		source:  source,
		logger:  slog.Default(),
		now:     time.Now,
		memUsed: heapInUse,
	}
	c.lastOpsReset.Store(c.now().UnixNano())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func heapInUse() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// RecordOperation bumps the throughput counter feeding ops/sec.
func (c *Controller) RecordOperation() {
	c.opsCount.Add(1)
}

// ResourceUsage returns current usage and percentages.
func (c *Controller) ResourceUsage(ctx context.Context) (domainres.Usage, error) {
	records, embeddingBytes, err := c.source.ResourceAccounting(ctx)
	if err != nil {
		return domainres.Usage{}, err
	}
	limits := c.GetLimits()
	memBytes := c.memUsed()

	usage := domainres.Usage{
		VectorCount: records,
		CacheBytes:  embeddingBytes,
		MemoryBytes: memBytes,
	}
	if limits.MaxVectors > 0 {
		usage.VectorPercent = float64(records) / float64(limits.MaxVectors) * 100
	}
	if limits.CacheBytes > 0 {
		usage.CachePercent = float64(embeddingBytes) / float64(limits.CacheBytes) * 100
	}
	if c.config.MemoryBudgetBytes > 0 {
		usage.MemoryPercent = float64(memBytes) / float64(c.config.MemoryBudgetBytes) * 100
	}
	usage.OpsPerSecond = c.opsPerSecond()
	return usage, nil
}

// opsPerSecond reads and resets the throughput counter.
func (c *Controller) opsPerSecond() float64 {
	nowNano := c.now().UnixNano()
	lastNano := c.lastOpsReset.Swap(nowNano)
	elapsed := time.Duration(nowNano - lastNano).Seconds()
	ops := c.opsCount.Swap(0)
	if elapsed <= 0 {
		return float64(ops)
	}
	return float64(ops) / elapsed
}

// CheckResources is the cheap pre-flight gate: false means the system is
// under memory pressure and the operation should not start.
func (c *Controller) CheckResources(ctx context.Context, op string) bool {
	if c.config.MemoryBudgetBytes == 0 {
		return true
	}
	percent := float64(c.memUsed()) / float64(c.config.MemoryBudgetBytes) * 100
	if percent >= 90 {
		c.logger.Warn("operation gated by memory pressure", "op", op, "memoryPercent", percent)
		return false
	}
	return true
}

// AdaptLimits runs one scaling evaluation immediately. Idempotent: within a
// cooldown window it changes nothing.
func (c *Controller) AdaptLimits(ctx context.Context) error {
	usage, err := c.ResourceUsage(ctx)
	if err != nil {
		return err
	}
	c.evaluateScaling(usage)
	return nil
}

// GetLimits returns the current limits.
func (c *Controller) GetLimits() domainres.Limits {
	c.limitsMu.RLock()
	defer c.limitsMu.RUnlock()
	return c.limits
}

// setLimits replaces the limits atomically.
func (c *Controller) setLimits(limits domainres.Limits) {
	c.limitsMu.Lock()
	c.limits = limits
	c.limitsMu.Unlock()
}

// FreeResources is the emergency path: it temporarily drops both limits by
// 20%, forces cleanup against the lower watermark, restores the originals,
// and always raises a ResourceExhaustion alert. Returns bytes freed.
func (c *Controller) FreeResources(ctx context.Context) (uint64, error) {
	original := c.GetLimits()
	lowered := original
	lowered.MaxVectors = uint64(float64(original.MaxVectors) * 0.8)
	lowered.CacheBytes = uint64(float64(original.CacheBytes) * 0.8)
	lowered.LastScaled = c.now()
	c.setLimits(lowered)

	var freed uint64
	var err error
	if c.cleaner != nil {
		freed, err = c.cleaner.EnforceLimits(ctx, lowered)
	}

	restored := original
	restored.LastScaled = c.now()
	c.setLimits(restored)

	c.raiseAlert(domainres.NewAlert(
		domainres.AlertResourceExhaustion,
		domainres.SeverityCritical,
		"emergency resource reclamation executed",
	))
	if err != nil {
		return freed, err
	}
	return freed, nil
}

// Alerts returns a copy of the alert list.
func (c *Controller) Alerts() []domainres.Alert {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	out := make([]domainres.Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

// Trend returns the latest forecast. Informational only.
func (c *Controller) Trend() domainres.TrendForecast {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.trend
}

// ScalingHistory returns a copy of the recorded scaling events.
func (c *Controller) ScalingHistory() []domainres.ScalingEvent {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	out := make([]domainres.ScalingEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Metrics returns the controller counters.
func (c *Controller) Metrics() domainres.ControllerMetrics {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	active := 0
	for _, alert := range c.alerts {
		if !alert.Resolved {
			active++
		}
	}
	return domainres.ControllerMetrics{
		SnapshotCount:     len(c.snapshots),
		ScalingEvents:     c.scalingEvents.Load(),
		ActiveAlerts:      active,
		EMAMemoryPercent:  c.emaMemory,
		EMAVectorPercent:  c.emaVector,
		PeakMemoryPercent: c.peakMemory,
		PeakVectorPercent: c.peakVector,
	}
}

// raiseAlert appends an alert, trimming the oldest past capacity.
func (c *Controller) raiseAlert(alert domainres.Alert) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.alerts = append(c.alerts, alert)
	if len(c.alerts) > c.config.AlertCapacity {
		c.alerts = c.alerts[len(c.alerts)-c.config.AlertCapacity:]
	}
}
