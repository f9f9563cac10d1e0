package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oceanid/ingest-worker/internal/db"
	"github.com/oceanid/ingest-worker/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	activeRulesSQL = `SELECT id, rule_name, rule_type, pattern, replacement, priority, confidence::float8,
	source_type, source_name, column_name, is_active
FROM stage.cleaning_rules
WHERE is_active = true
ORDER BY priority ASC, id ASC`

	insertDocumentSQL = `INSERT INTO stage.documents (task_id, file_name, source_type, source_name, org_id, doc_type, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at`

	insertProcessingLogSQL = `INSERT INTO stage.document_processing_log
	(document_id, task_id, run_id, processing_status, processing_stage, started_at, updated_at)
VALUES ($1, $2, $3, 'processing', 'csv_ingestion', $4, $4)`

	summarizeSQL = `SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE needs_review),
	COALESCE(AVG(confidence), 0)::float8,
	COALESCE(MIN(confidence), 0)::float8,
	COALESCE(MAX(confidence), 0)::float8,
	COUNT(*) FILTER (WHERE confidence >= $2),
	COUNT(*) FILTER (WHERE confidence >= $3 AND confidence < $2),
	COUNT(*) FILTER (WHERE confidence < $3),
	(SELECT COUNT(DISTINCT r.rule_id)
		FROM stage.csv_extractions e, unnest(e.rule_chain) AS r(rule_id)
		WHERE e.document_id = $1)
FROM stage.csv_extractions
WHERE document_id = $1`

	reviewDepthSQL = `SELECT
	CASE WHEN confidence < 0.6 THEN 'high' WHEN confidence < 0.8 THEN 'medium' ELSE 'low' END AS priority,
	COUNT(*)
FROM stage.csv_extractions
WHERE needs_review = true AND review_status IS NULL
GROUP BY 1`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"active_rules":          activeRulesSQL,
	"insert_document":       insertDocumentSQL,
	"insert_processing_log": insertProcessingLogSQL,
	"summarize_extractions": summarizeSQL,
}

var extractionColumns = []string{
	"document_id", "row_index", "column_name", "raw_value", "cleaned_value",
	"confidence", "rule_chain", "needs_review", "similarity", "source_type", "source_name", "created_at",
}

var ruleColumns = []string{
	"id", "rule_name", "rule_type", "pattern", "replacement", "priority", "confidence",
	"source_type", "source_name", "column_name", "is_active",
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Statements are prepared only once the schema exists; migrate runs
	// against a fresh database, so a failed prepare is not fatal here.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				zap.L().Debug("postgres: prepare skipped", zap.String("statement", name), zap.Error(err))
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS stage;

CREATE TABLE IF NOT EXISTS stage.cleaning_rules (
	id          BIGSERIAL PRIMARY KEY,
	rule_name   TEXT NOT NULL,
	rule_type   TEXT NOT NULL CHECK (rule_type IN
		('regex_replace', 'validator', 'type_coercion', 'format_standardizer', 'field_merger')),
	pattern     TEXT,
	replacement TEXT,
	priority    INTEGER NOT NULL DEFAULT 100,
	confidence  NUMERIC(4,3) NOT NULL DEFAULT 0.900,
	source_type TEXT,
	source_name TEXT,
	column_name TEXT,
	is_active   BOOLEAN NOT NULL DEFAULT true,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stage.documents (
	id          BIGSERIAL PRIMARY KEY,
	task_id     BIGINT NOT NULL,
	file_name   TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_name TEXT NOT NULL,
	org_id      TEXT,
	doc_type    TEXT,
	metadata    JSONB NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stage.csv_extractions (
	id            BIGSERIAL PRIMARY KEY,
	document_id   BIGINT NOT NULL REFERENCES stage.documents(id),
	row_index     INTEGER NOT NULL,
	column_name   TEXT NOT NULL,
	raw_value     TEXT,
	cleaned_value TEXT,
	confidence    NUMERIC(4,3) NOT NULL,
	rule_chain    BIGINT[] NOT NULL DEFAULT '{}',
	needs_review  BOOLEAN NOT NULL DEFAULT false,
	similarity    NUMERIC(4,3),
	source_type   TEXT,
	source_name   TEXT,
	review_status TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stage.document_processing_log (
	id                 BIGSERIAL PRIMARY KEY,
	document_id        BIGINT NOT NULL REFERENCES stage.documents(id),
	task_id            BIGINT NOT NULL,
	run_id             TEXT NOT NULL,
	processing_status  TEXT NOT NULL,
	processing_stage   TEXT NOT NULL,
	processing_metrics JSONB,
	rows_processed     INTEGER,
	confidence_avg     NUMERIC(4,3),
	error_message      TEXT,
	started_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at       TIMESTAMPTZ,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS stage.event_log (
	id           BIGSERIAL PRIMARY KEY,
	event_type   TEXT NOT NULL,
	event_action TEXT NOT NULL,
	task_id      BIGINT,
	payload      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_cleaning_rules_active ON stage.cleaning_rules(is_active, priority);
CREATE INDEX IF NOT EXISTS idx_csv_extractions_document ON stage.csv_extractions(document_id);
CREATE INDEX IF NOT EXISTS idx_csv_extractions_review ON stage.csv_extractions(needs_review) WHERE review_status IS NULL;
CREATE INDEX IF NOT EXISTS idx_processing_log_task ON stage.document_processing_log(task_id);
CREATE INDEX IF NOT EXISTS idx_processing_log_document ON stage.document_processing_log(document_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ActiveRules(ctx context.Context) ([]model.CleaningRule, error) {
	rows, err := s.pool.Query(ctx, activeRulesSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query active rules")
	}
	defer rows.Close()

	var out []model.CleaningRule
	for rows.Next() {
		var r model.CleaningRule
		var ruleType string
		if err := rows.Scan(&r.ID, &r.Name, &ruleType, &r.Pattern, &r.Replacement, &r.Priority,
			&r.Confidence, &r.SourceType, &r.SourceName, &r.ColumnName, &r.IsActive); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rule")
		}
		r.Type = model.RuleType(ruleType)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate rules")
}

// UpsertRules writes rule records keyed by id. Used to seed fixtures.
func (s *PostgresStore) UpsertRules(ctx context.Context, rules []model.CleaningRule) (int64, error) {
	rows := make([][]any, len(rules))
	for i, r := range rules {
		rows[i] = []any{r.ID, r.Name, string(r.Type), r.Pattern, r.Replacement, r.Priority,
			r.Confidence, r.SourceType, r.SourceName, r.ColumnName, r.IsActive}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "stage.cleaning_rules",
		Columns:      ruleColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert rules")
	}
	return n, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, task model.Task) (*model.Document, error) {
	doc := &model.Document{
		TaskID:     task.TaskID,
		FileName:   task.FileName,
		SourceType: sourceOrUnknown(task.SourceType),
		SourceName: sourceOrUnknown(task.SourceName),
		OrgID:      task.OrgID,
		DocType:    task.DocType,
		Metadata:   documentMetadata(task),
	}

	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal document metadata")
	}

	err = s.pool.QueryRow(ctx, insertDocumentSQL,
		doc.TaskID, doc.FileName, doc.SourceType, doc.SourceName, doc.OrgID, doc.DocType, metaJSON,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: create document for task %d", task.TaskID)
	}

	if _, err := s.pool.Exec(ctx, insertProcessingLogSQL,
		doc.ID, doc.TaskID, uuid.New().String(), time.Now().UTC()); err != nil {
		zap.L().Warn("postgres: processing log insert failed",
			zap.Int64("document_id", doc.ID), zap.Int64("task_id", doc.TaskID), zap.Error(err))
	}
	return doc, nil
}

// StoreExtractions replaces the document's extractions in a single transaction.
func (s *PostgresStore) StoreExtractions(ctx context.Context, documentID int64, extractions []model.CellExtraction) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin extractions tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM stage.csv_extractions WHERE document_id = $1`, documentID); err != nil {
		return 0, eris.Wrapf(err, "postgres: clear extractions for document %d", documentID)
	}

	now := time.Now().UTC()
	rows := make([][]any, len(extractions))
	for i, e := range extractions {
		chain := e.RuleChain
		if chain == nil {
			chain = []int64{}
		}
		rows[i] = []any{documentID, e.RowIndex, e.ColumnName, e.RawValue, e.CleanedValue,
			e.Confidence, chain, e.NeedsReview, e.Similarity, e.SourceType, e.SourceName, now}
	}

	n, err := db.CopyFrom(ctx, tx, "stage.csv_extractions", extractionColumns, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: store extractions for document %d", documentID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit extractions tx")
	}
	return n, nil
}

func (s *PostgresStore) SummarizeExtractions(ctx context.Context, documentID int64) (model.ExtractionStats, error) {
	var st model.ExtractionStats
	err := s.pool.QueryRow(ctx, summarizeSQL, documentID, model.HighConfidence, model.MediumConfidence).Scan(
		&st.Cells, &st.NeedsReview, &st.AvgConfidence, &st.MinConfidence, &st.MaxConfidence,
		&st.HighCount, &st.MediumCount, &st.LowCount, &st.UniqueRulesUsed,
	)
	if err != nil {
		return st, eris.Wrapf(err, "postgres: summarize document %d", documentID)
	}
	return st, nil
}

func (s *PostgresStore) SaveSummary(ctx context.Context, summary *model.ProcessingSummary) error {
	metrics, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE stage.document_processing_log
		SET processing_stage = 'csv_cleaned', processing_metrics = $1, rows_processed = $2,
			confidence_avg = $3, updated_at = $4
		WHERE document_id = $5`,
		metrics, summary.RowsProcessed, summary.AvgConfidence, time.Now().UTC(), summary.DocumentID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save summary for document %d", summary.DocumentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: processing log for document %d", summary.DocumentID)
	}
	return nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, documentID int64) (*model.ProcessingSummary, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT processing_metrics FROM stage.document_processing_log
		WHERE document_id = $1 AND processing_metrics IS NOT NULL
		ORDER BY id DESC LIMIT 1`, documentID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: summary for document %d", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get summary for document %d", documentID)
	}

	var summary model.ProcessingSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal summary")
	}
	return &summary, nil
}

func (s *PostgresStore) UpdateTaskStatus(ctx context.Context, taskID int64, status model.TaskStatus, errMsg string) error {
	now := time.Now().UTC()
	var completedAt *time.Time
	if status.IsTerminal() {
		completedAt = &now
	}
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE stage.document_processing_log
		SET processing_status = $1, error_message = $2, completed_at = $3, updated_at = $4
		WHERE task_id = $5 AND processing_status = 'processing'`,
		string(status), msg, completedAt, now, taskID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status for task %d", taskID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: processing log for task %d", taskID)
	}
	return nil
}

func (s *PostgresStore) RecordEvent(ctx context.Context, event model.Event) error {
	var payload any
	if len(event.Payload) > 0 {
		payload = event.Payload
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stage.event_log (event_type, event_action, task_id, payload) VALUES ($1, $2, $3, $4)`,
		event.Type, event.Action, event.TaskID, payload,
	)
	return eris.Wrapf(err, "postgres: record %s event", event.Action)
}

func (s *PostgresStore) ReviewQueueDepth(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, reviewDepthSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query review queue depth")
	}
	defer rows.Close()

	depth := map[string]int{PriorityHigh: 0, PriorityMedium: 0, PriorityLow: 0}
	for rows.Next() {
		var priority string
		var n int
		if err := rows.Scan(&priority, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan review queue depth")
		}
		depth[priority] = n
	}
	return depth, eris.Wrap(rows.Err(), "postgres: iterate review queue depth")
}
