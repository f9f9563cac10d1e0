package model

// TaskStatus is the processing state recorded for a task.
type TaskStatus string

const (
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// UnknownSource is used when a task does not declare its source.
const UnknownSource = "UNKNOWN"

// Task is a parse request extracted from an inbound event.
type Task struct {
	TaskID     int64          `json:"task_id" validate:"required,gt=0"`
	FileURL    string         `json:"file_url" validate:"required,url"`
	FileName   string         `json:"file_name" validate:"required"`
	SourceType string         `json:"source_type"`
	SourceName string         `json:"source_name"`
	OrgID      string         `json:"org_id,omitempty"`
	DocType    string         `json:"doc_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
