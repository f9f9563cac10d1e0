package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/oceanid/ingest-worker/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = eris.New("store: not found")

// Review-queue priority bands, keyed by the confidence of the unreviewed cell.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Store defines the persistence contract of the ingestion worker.
type Store interface {
	// Rules
	ActiveRules(ctx context.Context) ([]model.CleaningRule, error)
	UpsertRules(ctx context.Context, rules []model.CleaningRule) (int64, error)

	// Documents and extractions
	CreateDocument(ctx context.Context, task model.Task) (*model.Document, error)
	StoreExtractions(ctx context.Context, documentID int64, extractions []model.CellExtraction) (int64, error)
	SummarizeExtractions(ctx context.Context, documentID int64) (model.ExtractionStats, error)

	// Processing log
	SaveSummary(ctx context.Context, summary *model.ProcessingSummary) error
	GetSummary(ctx context.Context, documentID int64) (*model.ProcessingSummary, error)
	// UpdateTaskStatus moves the task's in-flight log rows to status. Rows
	// already completed or failed are left alone; ErrNotFound means no
	// in-flight row matched.
	UpdateTaskStatus(ctx context.Context, taskID int64, status model.TaskStatus, errMsg string) error

	// Audit and monitoring
	RecordEvent(ctx context.Context, event model.Event) error
	ReviewQueueDepth(ctx context.Context) (map[string]int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// documentMetadata is the JSON stored alongside each document.
func documentMetadata(task model.Task) map[string]any {
	meta := make(map[string]any, len(task.Metadata)+2)
	for k, v := range task.Metadata {
		meta[k] = v
	}
	meta["file_url"] = task.FileURL
	meta["task_id"] = task.TaskID
	return meta
}

func sourceOrUnknown(s string) string {
	if s == "" {
		return model.UnknownSource
	}
	return s
}
