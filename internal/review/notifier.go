// Package review notifies the external review queue about cells that need a
// human decision. Notifications are best-effort.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/oceanid/ingest-worker/internal/resilience"
)

// Notifier announces a document with cells needing review.
type Notifier interface {
	Notify(ctx context.Context, documentID int64, cellsNeedingReview int) error
}

// Notification is the JSON body posted to the review queue.
type Notification struct {
	DocumentID         int64  `json:"document_id"`
	CellsNeedingReview int    `json:"cells_needing_review"`
	Timestamp          string `json:"timestamp"`
}

// HTTPNotifier posts notifications to {baseURL}/notify behind a circuit
// breaker, so an unavailable review queue costs one fast failure per task.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
	breaker *resilience.Breaker
	now     func() time.Time
}

// NewHTTPNotifier creates an HTTPNotifier. A zero timeout means 10s.
func NewHTTPNotifier(baseURL string, timeout time.Duration) *HTTPNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPNotifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name:             "review-queue",
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
		now: time.Now,
	}
}

// Notify posts one notification. Only 200 and 202 count as success.
func (n *HTTPNotifier) Notify(ctx context.Context, documentID int64, cellsNeedingReview int) error {
	body, err := json.Marshal(Notification{
		DocumentID:         documentID,
		CellsNeedingReview: cellsNeedingReview,
		Timestamp:          n.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return eris.Wrap(err, "review: marshal notification")
	}

	return n.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/notify", bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "review: create request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return eris.Wrap(err, "review: send notification")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return eris.Errorf("review: queue returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return nil
	})
}

// Breaker exposes the circuit breaker state for health reporting.
func (n *HTTPNotifier) Breaker() *resilience.Breaker {
	return n.breaker
}

// Nop discards notifications. Used for local runs without a review queue.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, int64, int) error { return nil }
