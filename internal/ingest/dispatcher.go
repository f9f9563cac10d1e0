package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oceanid/ingest-worker/internal/metrics"
	"github.com/oceanid/ingest-worker/internal/model"
)

// Dispatcher errors, matched with errors.Is.
var (
	ErrQueueFull = eris.New("ingest: queue full")
	ErrClosed    = eris.New("ingest: dispatcher closed")
)

// Processor runs one task.
type Processor interface {
	ProcessTask(ctx context.Context, task model.Task) (*model.ProcessingSummary, error)
}

// FailureMarker records a failure for a task whose run never returned, such
// as one that panicked. Processors that implement it own the failed status
// and the task metric for those runs.
type FailureMarker interface {
	MarkFailed(ctx context.Context, task model.Task, cause error)
}

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers     int           // default 10
	QueueSize   int           // default 100
	TaskTimeout time.Duration // default 5m
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 100
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 5 * time.Minute
	}
}

// Dispatcher runs accepted tasks on a fixed set of workers fed by a bounded
// queue. Submit never blocks; a full queue is reported to the caller.
type Dispatcher struct {
	proc    Processor
	cfg     DispatcherConfig
	metrics *metrics.Metrics
	queue   chan model.Task

	mu     sync.RWMutex
	closed bool

	startOnce sync.Once
	g         *errgroup.Group
	runCtx    context.Context
	cancel    context.CancelFunc
}

// NewDispatcher creates a Dispatcher. Call Start before tasks can run.
func NewDispatcher(proc Processor, cfg DispatcherConfig, m *metrics.Metrics) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		proc:    proc,
		cfg:     cfg,
		metrics: m,
		queue:   make(chan model.Task, cfg.QueueSize),
	}
}

// Start launches the workers. Tasks inherit ctx's values but not its
// cancellation; they are cut short only by their own timeout or by a
// Shutdown whose deadline expires.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.runCtx, d.cancel = context.WithCancel(context.WithoutCancel(ctx))
		d.g = new(errgroup.Group)
		d.g.SetLimit(d.cfg.Workers)
		for i := range d.cfg.Workers {
			d.g.Go(func() error {
				d.worker(i)
				return nil
			})
		}
		zap.L().Info("ingest: dispatcher started",
			zap.Int("workers", d.cfg.Workers),
			zap.Int("queue_size", d.cfg.QueueSize),
			zap.Duration("task_timeout", d.cfg.TaskTimeout),
		)
	})
}

// Submit enqueues a task without waiting.
func (d *Dispatcher) Submit(task model.Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- task:
		d.metrics.SetQueueLength(len(d.queue))
		return nil
	default:
		return eris.Wrapf(ErrQueueFull, "ingest: task %d", task.TaskID)
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Shutdown stops accepting tasks and waits for queued and running ones.
// If ctx ends first, running tasks are cancelled and ctx's error returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	g, cancel := d.g, d.cancel
	d.mu.Unlock()

	if g == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		<-done
		return eris.Wrap(ctx.Err(), "ingest: shutdown")
	}
}

func (d *Dispatcher) worker(id int) {
	for task := range d.queue {
		d.metrics.SetQueueLength(len(d.queue))
		d.run(id, task)
	}
}

func (d *Dispatcher) run(worker int, task model.Task) {
	log := zap.L().With(zap.Int("worker", worker), zap.Int64("task_id", task.TaskID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("ingest: task panicked", zap.Any("panic", r))
			d.markFailed(task, eris.Errorf("ingest: task %d panicked: %v", task.TaskID, r))
		}
	}()

	ctx, cancel := context.WithTimeout(d.runCtx, d.cfg.TaskTimeout)
	defer cancel()

	// ProcessTask logs and records its own failures.
	if _, err := d.proc.ProcessTask(ctx, task); err != nil {
		log.Debug("ingest: task returned error", zap.Error(err))
	}
}

func (d *Dispatcher) markFailed(task model.Task, cause error) {
	fm, ok := d.proc.(FailureMarker)
	if !ok {
		d.metrics.TaskFinished(string(model.TaskStatusFailed))
		return
	}
	fm.MarkFailed(d.runCtx, task, cause)
}
