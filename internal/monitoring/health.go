package monitoring

import (
	"context"
	"time"

	"github.com/oceanid/ingest-worker/internal/metrics"
)

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RuleCounter reports how many rules the live index holds.
type RuleCounter interface {
	Len() int
}

// Report is the JSON body of the health endpoint.
type Report struct {
	Status      string `json:"status"`
	RulesLoaded int    `json:"rules_loaded"`
	Error       string `json:"error,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Healthy reports whether the worker can take tasks.
func (r Report) Healthy() bool { return r.Status == "healthy" }

// HealthChecker combines a store ping with the rule count.
type HealthChecker struct {
	store   Pinger
	rules   RuleCounter
	metrics *metrics.Metrics
	timeout time.Duration
	now     func() time.Time
}

// NewHealthChecker creates a HealthChecker. m may be nil.
func NewHealthChecker(store Pinger, rules RuleCounter, m *metrics.Metrics) *HealthChecker {
	return &HealthChecker{store: store, rules: rules, metrics: m, timeout: 2 * time.Second, now: time.Now}
}

// Check pings the store and requires at least one loaded rule.
func (h *HealthChecker) Check(ctx context.Context) Report {
	r := Report{
		Status:      "healthy",
		RulesLoaded: h.rules.Len(),
		Timestamp:   h.now().UTC().Format(time.RFC3339),
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.metrics.DatabaseError("health_check")
		r.Status = "unhealthy"
		r.Error = err.Error()
		return r
	}
	if r.RulesLoaded == 0 {
		r.Status = "unhealthy"
		r.Error = "no cleaning rules loaded"
	}
	return r
}
