package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Checker refreshes the review-queue depth gauge on an interval.
type Checker struct {
	collector *Collector
	interval  time.Duration
}

// NewChecker creates a background refresher. A non-positive interval
// means one minute.
func NewChecker(collector *Collector, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Checker{collector: collector, interval: interval}
}

// Run refreshes once immediately, then on every tick. It blocks until ctx
// is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting review queue depth refresher", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.check(ctx, log)
	for {
		select {
		case <-ctx.Done():
			log.Info("review queue depth refresher stopped")
			return
		case <-ticker.C:
			c.check(ctx, log)
		}
	}
}

func (c *Checker) check(ctx context.Context, log *zap.Logger) {
	depth, err := c.collector.Refresh(ctx)
	if err != nil {
		log.Error("monitoring: failed to refresh review queue depth", zap.Error(err))
		return
	}
	if depth != nil {
		log.Debug("monitoring: review queue depth",
			zap.Int("high", depth["high"]),
			zap.Int("medium", depth["medium"]),
			zap.Int("low", depth["low"]),
		)
	}
}
