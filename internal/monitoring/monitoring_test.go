package monitoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oceanid/ingest-worker/internal/metrics"
	"github.com/oceanid/ingest-worker/internal/store/mocks"
)

type fixedRules int

func (f fixedRules) Len() int { return int(f) }

func TestCollector_Refresh(t *testing.T) {
	st := mocks.NewMockStore(t)
	st.On("ReviewQueueDepth", mock.Anything).Return(map[string]int{"high": 2, "medium": 0, "low": 5}, nil)

	m := metrics.New()
	c := NewCollector(st, m)

	depth, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, depth["low"])

	count, err := testutil.GatherAndCount(m.Registry(), "csv_review_queue_depth")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestCollector_RefreshError(t *testing.T) {
	st := mocks.NewMockStore(t)
	st.On("ReviewQueueDepth", mock.Anything).Return(nil, errors.New("connection refused"))

	m := metrics.New()
	c := NewCollector(st, m)

	_, err := c.Refresh(context.Background())
	require.Error(t, err)

	count, err := testutil.GatherAndCount(m.Registry(), "csv_database_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChecker_RunRefreshesAndStops(t *testing.T) {
	var calls atomic.Int32
	st := mocks.NewMockStore(t)
	st.On("ReviewQueueDepth", mock.Anything).
		Run(func(mock.Arguments) { calls.Add(1) }).
		Return(map[string]int{"high": 1}, nil)

	checker := NewChecker(NewCollector(st, nil), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("checker did not stop after cancel")
	}
}

func TestNewChecker_DefaultInterval(t *testing.T) {
	c := NewChecker(nil, 0)
	assert.Equal(t, time.Minute, c.interval)
}

func TestHealthChecker(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	t.Run("healthy", func(t *testing.T) {
		st := mocks.NewMockStore(t)
		st.On("Ping", mock.Anything).Return(nil)
		h := NewHealthChecker(st, fixedRules(12), nil)
		h.now = func() time.Time { return now }

		r := h.Check(context.Background())
		assert.True(t, r.Healthy())
		assert.Equal(t, Report{Status: "healthy", RulesLoaded: 12, Timestamp: "2024-05-01T08:00:00Z"}, r)
	})

	t.Run("store down", func(t *testing.T) {
		st := mocks.NewMockStore(t)
		st.On("Ping", mock.Anything).Return(errors.New("dial tcp: connection refused"))
		h := NewHealthChecker(st, fixedRules(12), metrics.New())

		r := h.Check(context.Background())
		assert.False(t, r.Healthy())
		assert.Contains(t, r.Error, "connection refused")
	})

	t.Run("no rules", func(t *testing.T) {
		st := mocks.NewMockStore(t)
		st.On("Ping", mock.Anything).Return(nil)
		h := NewHealthChecker(st, fixedRules(0), nil)

		r := h.Check(context.Background())
		assert.False(t, r.Healthy())
		assert.Equal(t, "no cleaning rules loaded", r.Error)
	})
}
