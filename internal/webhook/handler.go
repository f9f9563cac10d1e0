// Package webhook receives task events, verifies and decodes them, and
// hands relevant tasks to the ingestion dispatcher.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oceanid/ingest-worker/internal/ingest"
	"github.com/oceanid/ingest-worker/internal/metrics"
	"github.com/oceanid/ingest-worker/internal/model"
	"github.com/oceanid/ingest-worker/internal/tabular"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrInvalidSignature = eris.New("webhook: invalid signature")
	ErrInvalidPayload   = eris.New("webhook: invalid payload")
)

// DefaultSignatureHeader carries the hex HMAC of the body.
const DefaultSignatureHeader = "X-Oceanid-Signature"

const defaultMaxBodyBytes = 10 << 20

// Submitter queues a task for asynchronous processing.
type Submitter interface {
	Submit(task model.Task) error
}

// EventRecorder keeps an audit copy of accepted events.
type EventRecorder interface {
	RecordEvent(ctx context.Context, event model.Event) error
}

// Config configures a Handler.
type Config struct {
	Secret          string
	SignatureHeader string
	MaxBodyBytes    int64
}

// Result describes what happened to one event.
type Result struct {
	Accepted bool
	Action   string
	TaskID   int64
	Reason   string
}

// Handler verifies, decodes and dispatches events. It implements
// http.Handler.
type Handler struct {
	secret   []byte
	header   string
	maxBody  int64
	submit   Submitter
	events   EventRecorder
	metrics  *metrics.Metrics
	validate *validator.Validate
}

// NewHandler creates a Handler. events and m may be nil.
func NewHandler(cfg Config, submit Submitter, events EventRecorder, m *metrics.Metrics) *Handler {
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = DefaultSignatureHeader
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Secret == "" {
		zap.L().Warn("webhook: no secret configured, signature verification disabled")
	}
	return &Handler{
		secret:   []byte(cfg.Secret),
		header:   cfg.SignatureHeader,
		maxBody:  cfg.MaxBodyBytes,
		submit:   submit,
		events:   events,
		metrics:  m,
		validate: newValidator(),
	}
}

// Handle processes one raw event. Irrelevant events return a Result with
// Accepted false and no error.
func (h *Handler) Handle(ctx context.Context, body []byte, signature string) (Result, error) {
	if !VerifySignature(h.secret, body, signature) {
		return Result{}, ErrInvalidSignature
	}

	env, err := Decode(body)
	if err != nil {
		return Result{}, err
	}
	res := Result{Action: env.Action}

	if !env.Relevant() {
		res.Reason = "not a task creation event"
		return res, nil
	}

	task, err := ExtractTask(env)
	if err != nil {
		return res, err
	}
	res.TaskID = task.TaskID

	if !tabular.Supported(task.FileName) {
		res.Reason = "not a CSV, TSV, XLS or XLSX file"
		return res, nil
	}
	if err := validateTask(h.validate, task); err != nil {
		return res, err
	}

	h.recordEvent(ctx, env.Action, task.TaskID, body)

	if err := h.submit.Submit(task); err != nil {
		return res, eris.Wrapf(err, "webhook: submit task %d", task.TaskID)
	}
	res.Accepted = true
	return res, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		h.metrics.Webhook("unknown", metrics.WebhookInvalid)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	res, err := h.Handle(r.Context(), body, r.Header.Get(h.header))
	eventType := res.Action
	if eventType == "" {
		eventType = "unknown"
	}
	log := zap.L().With(zap.String("action", eventType), zap.Int64("task_id", res.TaskID))

	switch {
	case errors.Is(err, ErrInvalidSignature):
		log.Warn("webhook: invalid signature", zap.String("remote", r.RemoteAddr))
		h.metrics.Webhook(eventType, metrics.WebhookRejected)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
	case errors.Is(err, ErrInvalidPayload):
		log.Warn("webhook: invalid payload", zap.Error(err))
		h.metrics.Webhook(eventType, metrics.WebhookInvalid)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ingest.ErrQueueFull), errors.Is(err, ingest.ErrClosed):
		log.Warn("webhook: task not queued", zap.Error(err))
		h.metrics.Webhook(eventType, metrics.WebhookBusy)
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ingestion queue is full"})
	case err != nil:
		log.Error("webhook: handle event", zap.Error(err))
		h.metrics.Webhook(eventType, metrics.WebhookRejected)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	case !res.Accepted:
		log.Debug("webhook: event acknowledged", zap.String("reason", res.Reason))
		h.metrics.Webhook(eventType, metrics.WebhookIgnored)
		writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged", "reason": res.Reason})
	default:
		log.Info("webhook: task accepted")
		h.metrics.Webhook(eventType, metrics.WebhookAccepted)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":  "accepted",
			"task_id": res.TaskID,
			"message": "processing started",
		})
	}
}

// recordEvent stores the audit copy. Failures only log.
func (h *Handler) recordEvent(ctx context.Context, action string, taskID int64, body []byte) {
	if h.events == nil {
		return
	}
	err := h.events.RecordEvent(ctx, model.Event{
		Type:    "webhook",
		Action:  action,
		TaskID:  taskID,
		Payload: body,
	})
	if err != nil {
		h.metrics.DatabaseError("store_webhook")
		zap.L().Warn("webhook: failed to record event", zap.Int64("task_id", taskID), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
