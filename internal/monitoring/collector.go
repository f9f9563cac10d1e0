package monitoring

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/oceanid/ingest-worker/internal/metrics"
)

// DepthSource reports unreviewed cells by priority band.
type DepthSource interface {
	ReviewQueueDepth(ctx context.Context) (map[string]int, error)
}

// Collector publishes the review-queue depth gauge from the store.
type Collector struct {
	src     DepthSource
	metrics *metrics.Metrics

	// Refreshes come from the ticker and from finished tasks; one at a time
	// is enough.
	mu sync.Mutex
}

// NewCollector creates a Collector. m may be nil.
func NewCollector(src DepthSource, m *metrics.Metrics) *Collector {
	return &Collector{src: src, metrics: m}
}

// Refresh queries the current depth and resets the gauge to it.
func (c *Collector) Refresh(ctx context.Context) (map[string]int, error) {
	if !c.mu.TryLock() {
		return nil, nil
	}
	defer c.mu.Unlock()

	depth, err := c.src.ReviewQueueDepth(ctx)
	if err != nil {
		c.metrics.DatabaseError("review_queue_depth")
		return nil, eris.Wrap(err, "monitoring: review queue depth")
	}
	c.metrics.SetReviewQueueDepth(depth)
	return depth, nil
}
