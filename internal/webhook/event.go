package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/oceanid/ingest-worker/internal/fetcher"
	"github.com/oceanid/ingest-worker/internal/model"
)

// Actions that create parse tasks. Every other action is acknowledged and
// dropped.
const (
	ActionTaskCreated      = "TASK_CREATED"
	ActionTasksBulkCreated = "TASKS_BULK_CREATED"
)

// fileFields are the task data keys that may carry the file URL, checked in
// order. Older payloads use the later names.
var fileFields = []string{"csv", "file", "csv_url", "file_url", "file_upload", "document_url"}

// Envelope is the inbound event. The task stays raw until the action is
// known to be relevant, so other event types are never rejected for their
// task shape.
type Envelope struct {
	Action string          `json:"action"`
	Task   json.RawMessage `json:"task"`
}

// TaskPayload is the task object inside a relevant Envelope.
type TaskPayload struct {
	ID   json.Number    `json:"id"`
	Data map[string]any `json:"data"`
}

// Relevant reports whether the action creates tasks.
func (e *Envelope) Relevant() bool {
	return e.Action == ActionTaskCreated || e.Action == ActionTasksBulkCreated
}

// Decode parses the action of a raw event body.
func Decode(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrap(ErrInvalidPayload, "webhook: decode event: "+err.Error())
	}
	return &env, nil
}

// ExtractTask builds a Task from a relevant envelope. A missing or
// malformed task, task id or file URL is an ErrInvalidPayload.
func ExtractTask(env *Envelope) (model.Task, error) {
	trimmed := bytes.TrimSpace(env.Task)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return model.Task{}, eris.Wrap(ErrInvalidPayload, "webhook: no task in event")
	}
	var payload TaskPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return model.Task{}, eris.Wrap(ErrInvalidPayload, "webhook: decode task: "+err.Error())
	}

	id, err := taskID(payload.ID)
	if err != nil {
		return model.Task{}, err
	}
	if payload.Data == nil {
		return model.Task{}, eris.Wrapf(ErrInvalidPayload, "webhook: task %d has no data", id)
	}

	var fileURL string
	for _, field := range fileFields {
		if s, ok := payload.Data[field].(string); ok && strings.TrimSpace(s) != "" {
			fileURL = strings.TrimSpace(s)
			break
		}
	}
	if fileURL == "" {
		return model.Task{}, eris.Wrapf(ErrInvalidPayload, "webhook: task %d has no file url", id)
	}

	meta, _ := payload.Data["meta"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}

	return model.Task{
		TaskID:     id,
		FileURL:    fileURL,
		FileName:   fetcher.FileName(fileURL),
		SourceType: metaString(meta, "source_type", model.UnknownSource),
		SourceName: metaString(meta, "source_name", model.UnknownSource),
		OrgID:      metaString(meta, "org_id", ""),
		DocType:    metaString(meta, "doc_type", ""),
		Metadata:   meta,
	}, nil
}

func taskID(n json.Number) (int64, error) {
	if n == "" {
		return 0, eris.Wrap(ErrInvalidPayload, "webhook: missing task id")
	}
	if id, err := n.Int64(); err == nil {
		return id, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, eris.Wrapf(ErrInvalidPayload, "webhook: invalid task id %q", n.String())
	}
	return int64(f), nil
}

func metaString(meta map[string]any, key, fallback string) string {
	if s, ok := meta[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

// newValidator reports field errors under their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateTask checks a task before it is queued.
func validateTask(v *validator.Validate, task model.Task) error {
	if err := v.Struct(task); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
			}
			return eris.Wrapf(ErrInvalidPayload, "webhook: task %d invalid: %s", task.TaskID, strings.Join(fields, ", "))
		}
		return eris.Wrap(err, "webhook: validate task")
	}
	return nil
}
