// Package ingest runs parse tasks end to end: download, parse, clean,
// persist, summarize and notify.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oceanid/ingest-worker/internal/confidence"
	"github.com/oceanid/ingest-worker/internal/engine"
	"github.com/oceanid/ingest-worker/internal/fetcher"
	"github.com/oceanid/ingest-worker/internal/metrics"
	"github.com/oceanid/ingest-worker/internal/model"
	"github.com/oceanid/ingest-worker/internal/review"
	"github.com/oceanid/ingest-worker/internal/store"
	"github.com/oceanid/ingest-worker/internal/tabular"
)

// statusTimeout bounds the status write after a failed or timed-out run.
const statusTimeout = 10 * time.Second

// DepthRefresher updates the review-queue depth gauge.
type DepthRefresher interface {
	Refresh(ctx context.Context) (map[string]int, error)
}

// Orchestrator processes one task at a time per call. It is safe for
// concurrent use; tasks share only the rule index and the store.
type Orchestrator struct {
	store    store.Store
	fetcher  fetcher.Fetcher
	engine   *engine.Engine
	notifier review.Notifier
	metrics  *metrics.Metrics
	depth    DepthRefresher
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier sets the review-queue notifier. The default discards.
func WithNotifier(n review.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithMetrics records per-cell and per-task metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithDepthRefresher refreshes the review-queue gauge after each task.
func WithDepthRefresher(d DepthRefresher) Option {
	return func(o *Orchestrator) { o.depth = d }
}

// New creates an Orchestrator.
func New(st store.Store, f fetcher.Fetcher, eng *engine.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		fetcher:  f,
		engine:   eng,
		notifier: review.Nop{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProcessTask runs one task to a terminal status. Any error before the
// summary is saved marks the task failed; notification errors do not.
func (o *Orchestrator) ProcessTask(ctx context.Context, task model.Task) (*model.ProcessingSummary, error) {
	task = withDefaults(task)
	log := zap.L().With(
		zap.Int64("task_id", task.TaskID),
		zap.String("file", task.FileName),
		zap.String("source_type", task.SourceType),
	)
	log.Info("ingest: starting task")
	start := time.Now()

	doc, err := o.store.CreateDocument(ctx, task)
	if err != nil {
		o.metrics.DatabaseError("create_document")
		err = eris.Wrap(err, "ingest: create document")
		o.fail(ctx, log, task, err)
		return nil, err
	}
	log = log.With(zap.Int64("document_id", doc.ID))

	summary, err := o.process(ctx, log, task, doc)
	if err != nil {
		o.fail(ctx, log, task, err)
		return nil, err
	}

	if summary.CellsNeedReview > 0 {
		if nErr := o.notifier.Notify(ctx, doc.ID, summary.CellsNeedReview); nErr != nil {
			log.Warn("ingest: review notification failed", zap.Error(nErr))
		}
	}

	if sErr := o.store.UpdateTaskStatus(ctx, task.TaskID, model.TaskStatusCompleted, ""); sErr != nil {
		o.metrics.DatabaseError("update_status")
		log.Warn("ingest: failed to mark task completed", zap.Error(sErr))
	}

	elapsed := time.Since(start)
	o.metrics.TaskFinished(string(model.TaskStatusCompleted))
	o.metrics.ObserveDuration(task.SourceType, elapsed)
	o.refreshDepth(ctx, log)

	log.Info("ingest: task complete",
		zap.Int("rows", summary.RowsProcessed),
		zap.Int("cells", summary.CellsProcessed),
		zap.Int("needs_review", summary.CellsNeedReview),
		zap.Float64("avg_confidence", summary.AvgConfidence),
		zap.Duration("elapsed", elapsed),
	)
	return summary, nil
}

// process covers download through summary persistence.
func (o *Orchestrator) process(ctx context.Context, log *zap.Logger, task model.Task, doc *model.Document) (*model.ProcessingSummary, error) {
	content, err := o.fetcher.Fetch(ctx, task.FileURL)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: download %s", task.FileName)
	}
	log.Debug("ingest: downloaded", zap.Int("bytes", len(content)))

	table, err := tabular.Parse(task.FileName, content)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: parse")
	}
	log.Debug("ingest: parsed",
		zap.Int("rows", len(table.Rows)),
		zap.Strings("headers", table.Headers),
		zap.String("sheet", table.Sheet),
	)

	extractions, _, err := o.CleanTable(ctx, doc, table)
	if err != nil {
		return nil, err
	}

	if _, err := o.store.StoreExtractions(ctx, doc.ID, extractions); err != nil {
		o.metrics.DatabaseError("store_extractions")
		return nil, eris.Wrap(err, "ingest: store extractions")
	}

	// Stats come back from the store so the summary reflects what was
	// written, not what was computed.
	stats, err := o.store.SummarizeExtractions(ctx, doc.ID)
	if err != nil {
		o.metrics.DatabaseError("summarize_extractions")
		return nil, eris.Wrap(err, "ingest: summarize extractions")
	}

	summary := model.NewProcessingSummary(doc.ID, len(table.Rows), stats)
	if err := o.store.SaveSummary(ctx, summary); err != nil {
		o.metrics.DatabaseError("save_summary")
		return nil, eris.Wrap(err, "ingest: save summary")
	}
	return summary, nil
}

// CleanTable runs the engine over every cell of table and returns the
// extractions in row-major order with the number needing review. It stops
// with an error when ctx is done.
func (o *Orchestrator) CleanTable(ctx context.Context, doc *model.Document, table *tabular.Table) ([]model.CellExtraction, int, error) {
	fieldTypes := make([]string, len(table.Headers))
	for i, h := range table.Headers {
		fieldTypes[i] = string(confidence.ClassifyField(h))
	}

	extractions := make([]model.CellExtraction, 0, len(table.Rows)*len(table.Headers))
	reviewCount := 0
	for rowIdx, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return nil, 0, eris.Wrapf(err, "ingest: cleaning stopped at row %d", rowIdx)
		}
		for colIdx, raw := range row {
			if colIdx >= len(table.Headers) {
				continue
			}
			ext := o.engine.Process(engine.Cell{
				DocumentID: doc.ID,
				RowIndex:   rowIdx,
				Column:     table.Headers[colIdx],
				Raw:        raw,
				SourceType: doc.SourceType,
				SourceName: doc.SourceName,
			})
			if ext.NeedsReview {
				reviewCount++
			}
			o.metrics.ObserveCell(fieldTypes[colIdx], doc.SourceType, ext.Confidence, ext.NeedsReview)
			extractions = append(extractions, ext)
		}
	}
	return extractions, reviewCount, nil
}

// MarkFailed records a failed run that ended without returning from
// ProcessTask.
func (o *Orchestrator) MarkFailed(ctx context.Context, task model.Task, cause error) {
	task = withDefaults(task)
	log := zap.L().With(zap.Int64("task_id", task.TaskID), zap.String("file", task.FileName))
	o.fail(ctx, log, task, cause)
}

// fail records a failed run. The status write gets its own deadline so a
// run that failed by timing out can still be marked.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, task model.Task, cause error) {
	log.Error("ingest: task failed", zap.Error(cause))
	o.metrics.TaskFinished(string(model.TaskStatusFailed))

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusTimeout)
	defer cancel()
	if err := o.store.UpdateTaskStatus(sctx, task.TaskID, model.TaskStatusFailed, failureMessage(cause)); err != nil {
		o.metrics.DatabaseError("update_status")
		log.Warn("ingest: failed to mark task failed", zap.Error(err))
	}
}

func (o *Orchestrator) refreshDepth(ctx context.Context, log *zap.Logger) {
	if o.depth == nil {
		return
	}
	if _, err := o.depth.Refresh(ctx); err != nil {
		log.Debug("ingest: review queue depth refresh failed", zap.Error(err))
	}
}

func failureMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "processing timed out: " + err.Error()
	}
	return err.Error()
}

// withDefaults fills in the source and file name when the event left them
// out.
func withDefaults(task model.Task) model.Task {
	if task.SourceType == "" {
		task.SourceType = model.UnknownSource
	}
	if task.SourceName == "" {
		task.SourceName = model.UnknownSource
	}
	if task.FileName == "" {
		task.FileName = fetcher.FileName(task.FileURL)
	}
	return task
}
