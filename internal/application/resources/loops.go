package resources

import (
	"context"
	"time"
)

// Start launches the four background loops: monitoring, auto-scaling,
// forecasting, and alert processing. Each runs on its own cadence, logs and
// continues on iteration errors, and is joined by Close.
func (c *Controller) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	c.loopCancel = cancel

	c.runLoop(loopCtx, "monitoring", c.config.MonitorInterval, func(ctx context.Context) error {
		usage, err := c.ResourceUsage(ctx)
		if err != nil {
			return err
		}
		c.observe(usage)
		return nil
	})
	c.runLoop(loopCtx, "auto-scaling", c.config.ScalingInterval, func(ctx context.Context) error {
		usage, err := c.ResourceUsage(ctx)
		if err != nil {
			return err
		}
		c.evaluateScaling(usage)
		return nil
	})
	c.runLoop(loopCtx, "predictive", c.config.PredictiveInterval, func(ctx context.Context) error {
		c.updateTrend()
		return nil
	})
	c.runLoop(loopCtx, "alerts", c.config.AlertInterval, func(ctx context.Context) error {
		c.processAlerts()
		return nil
	})
}

// runLoop owns one ticker-driven goroutine.
func (c *Controller) runLoop(ctx context.Context, name string, interval time.Duration, iterate func(context.Context) error) {
	c.loopWG.Add(1)
	go func() {
		defer c.loopWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := iterate(ctx); err != nil {
					c.logger.Error("background loop iteration failed", "loop", name, "error", err)
				}
			}
		}
	}()
}

// Close stops and joins every background loop.
func (c *Controller) Close() {
	if c.loopCancel != nil {
		c.loopCancel()
	}
	c.loopWG.Wait()
}
