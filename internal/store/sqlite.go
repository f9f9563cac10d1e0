package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/oceanid/ingest-worker/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// runs and tests; tables live unqualified instead of in the stage schema.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cleaning_rules (
	id          INTEGER PRIMARY KEY,
	rule_name   TEXT NOT NULL,
	rule_type   TEXT NOT NULL,
	pattern     TEXT,
	replacement TEXT,
	priority    INTEGER NOT NULL DEFAULT 100,
	confidence  REAL NOT NULL DEFAULT 0.9,
	source_type TEXT,
	source_name TEXT,
	column_name TEXT,
	is_active   INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS documents (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id     INTEGER NOT NULL,
	file_name   TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_name TEXT NOT NULL,
	org_id      TEXT,
	doc_type    TEXT,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS csv_extractions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id   INTEGER NOT NULL REFERENCES documents(id),
	row_index     INTEGER NOT NULL,
	column_name   TEXT NOT NULL,
	raw_value     TEXT,
	cleaned_value TEXT,
	confidence    REAL NOT NULL,
	rule_chain    TEXT NOT NULL DEFAULT '[]',
	needs_review  INTEGER NOT NULL DEFAULT 0,
	similarity    REAL,
	source_type   TEXT,
	source_name   TEXT,
	review_status TEXT,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS document_processing_log (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id        INTEGER NOT NULL REFERENCES documents(id),
	task_id            INTEGER NOT NULL,
	run_id             TEXT NOT NULL,
	processing_status  TEXT NOT NULL,
	processing_stage   TEXT NOT NULL,
	processing_metrics TEXT,
	rows_processed     INTEGER,
	confidence_avg     REAL,
	error_message      TEXT,
	started_at         DATETIME NOT NULL,
	completed_at       DATETIME,
	updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type   TEXT NOT NULL,
	event_action TEXT NOT NULL,
	task_id      INTEGER,
	payload      TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_csv_extractions_document ON csv_extractions(document_id);
CREATE INDEX IF NOT EXISTS idx_processing_log_task ON document_processing_log(task_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ActiveRules(ctx context.Context) ([]model.CleaningRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rule_name, rule_type, pattern, replacement, priority, confidence,
			source_type, source_name, column_name, is_active
		FROM cleaning_rules WHERE is_active = 1 ORDER BY priority ASC, id ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query active rules")
	}
	defer rows.Close()

	var out []model.CleaningRule
	for rows.Next() {
		var r model.CleaningRule
		var ruleType string
		if err := rows.Scan(&r.ID, &r.Name, &ruleType, &r.Pattern, &r.Replacement, &r.Priority,
			&r.Confidence, &r.SourceType, &r.SourceName, &r.ColumnName, &r.IsActive); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rule")
		}
		r.Type = model.RuleType(ruleType)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate rules")
}

func (s *SQLiteStore) UpsertRules(ctx context.Context, rules []model.CleaningRule) (int64, error) {
	if len(rules) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin rules tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cleaning_rules (id, rule_name, rule_type, pattern, replacement, priority, confidence,
			source_type, source_name, column_name, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rule_name = excluded.rule_name, rule_type = excluded.rule_type,
			pattern = excluded.pattern, replacement = excluded.replacement,
			priority = excluded.priority, confidence = excluded.confidence,
			source_type = excluded.source_type, source_name = excluded.source_name,
			column_name = excluded.column_name, is_active = excluded.is_active`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare rule upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, r := range rules {
		res, err := stmt.ExecContext(ctx, r.ID, r.Name, string(r.Type), r.Pattern, r.Replacement,
			r.Priority, r.Confidence, r.SourceType, r.SourceName, r.ColumnName, r.IsActive)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert rule %d", r.ID)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit rules tx")
	}
	return n, nil
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, task model.Task) (*model.Document, error) {
	doc := &model.Document{
		TaskID:     task.TaskID,
		FileName:   task.FileName,
		SourceType: sourceOrUnknown(task.SourceType),
		SourceName: sourceOrUnknown(task.SourceName),
		OrgID:      task.OrgID,
		DocType:    task.DocType,
		Metadata:   documentMetadata(task),
		CreatedAt:  time.Now().UTC(),
	}
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal document metadata")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (task_id, file_name, source_type, source_name, org_id, doc_type, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.TaskID, doc.FileName, doc.SourceType, doc.SourceName, doc.OrgID, doc.DocType, string(metaJSON), doc.CreatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: create document for task %d", task.TaskID)
	}
	if doc.ID, err = res.LastInsertId(); err != nil {
		return nil, eris.Wrap(err, "sqlite: document id")
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO document_processing_log
			(document_id, task_id, run_id, processing_status, processing_stage, started_at, updated_at)
		VALUES (?, ?, ?, 'processing', 'csv_ingestion', ?, ?)`,
		doc.ID, doc.TaskID, uuid.New().String(), doc.CreatedAt, doc.CreatedAt); err != nil {
		zap.L().Warn("sqlite: processing log insert failed",
			zap.Int64("document_id", doc.ID), zap.Int64("task_id", doc.TaskID), zap.Error(err))
	}
	return doc, nil
}

func (s *SQLiteStore) StoreExtractions(ctx context.Context, documentID int64, extractions []model.CellExtraction) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin extractions tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM csv_extractions WHERE document_id = ?`, documentID); err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear extractions for document %d", documentID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO csv_extractions (document_id, row_index, column_name, raw_value, cleaned_value,
			confidence, rule_chain, needs_review, similarity, source_type, source_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare extraction insert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	for _, e := range extractions {
		chain := e.RuleChain
		if chain == nil {
			chain = []int64{}
		}
		chainJSON, err := json.Marshal(chain)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: marshal rule chain")
		}
		if _, err := stmt.ExecContext(ctx, documentID, e.RowIndex, e.ColumnName, e.RawValue, e.CleanedValue,
			e.Confidence, string(chainJSON), e.NeedsReview, e.Similarity, e.SourceType, e.SourceName, now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert extraction row %d column %s", e.RowIndex, e.ColumnName)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit extractions tx")
	}
	return int64(len(extractions)), nil
}

func (s *SQLiteStore) SummarizeExtractions(ctx context.Context, documentID int64) (model.ExtractionStats, error) {
	var st model.ExtractionStats
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN needs_review THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(confidence), 0),
			COALESCE(MIN(confidence), 0),
			COALESCE(MAX(confidence), 0),
			COALESCE(SUM(CASE WHEN confidence >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN confidence >= ? AND confidence < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN confidence < ? THEN 1 ELSE 0 END), 0),
			(SELECT COUNT(DISTINCT j.value)
				FROM csv_extractions e, json_each(e.rule_chain) j
				WHERE e.document_id = ?)
		FROM csv_extractions WHERE document_id = ?`,
		model.HighConfidence, model.MediumConfidence, model.HighConfidence, model.MediumConfidence,
		documentID, documentID,
	).Scan(&st.Cells, &st.NeedsReview, &st.AvgConfidence, &st.MinConfidence, &st.MaxConfidence,
		&st.HighCount, &st.MediumCount, &st.LowCount, &st.UniqueRulesUsed)
	if err != nil {
		return st, eris.Wrapf(err, "sqlite: summarize document %d", documentID)
	}
	return st, nil
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, summary *model.ProcessingSummary) error {
	metrics, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE document_processing_log
		SET processing_stage = 'csv_cleaned', processing_metrics = ?, rows_processed = ?,
			confidence_avg = ?, updated_at = ?
		WHERE document_id = ?`,
		string(metrics), summary.RowsProcessed, summary.AvgConfidence, time.Now().UTC(), summary.DocumentID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save summary for document %d", summary.DocumentID)
	}
	return checkRowsAffected(res, "processing log for document", summary.DocumentID)
}

func (s *SQLiteStore) GetSummary(ctx context.Context, documentID int64) (*model.ProcessingSummary, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT processing_metrics FROM document_processing_log
		WHERE document_id = ? AND processing_metrics IS NOT NULL
		ORDER BY id DESC LIMIT 1`, documentID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: summary for document %d", documentID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get summary for document %d", documentID)
	}

	var summary model.ProcessingSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal summary")
	}
	return &summary, nil
}

func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, taskID int64, status model.TaskStatus, errMsg string) error {
	now := time.Now().UTC()
	var completedAt *time.Time
	if status.IsTerminal() {
		completedAt = &now
	}
	var msg *string
	if errMsg != "" {
		msg = &errMsg
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE document_processing_log
		SET processing_status = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE task_id = ? AND processing_status = 'processing'`,
		string(status), msg, completedAt, now, taskID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status for task %d", taskID)
	}
	return checkRowsAffected(res, "processing log for task", taskID)
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, event model.Event) error {
	var payload *string
	if len(event.Payload) > 0 {
		p := string(event.Payload)
		payload = &p
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_log (event_type, event_action, task_id, payload) VALUES (?, ?, ?, ?)`,
		event.Type, event.Action, event.TaskID, payload)
	return eris.Wrapf(err, "sqlite: record %s event", event.Action)
}

func (s *SQLiteStore) ReviewQueueDepth(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT
			CASE WHEN confidence < 0.6 THEN 'high' WHEN confidence < 0.8 THEN 'medium' ELSE 'low' END,
			COUNT(*)
		FROM csv_extractions
		WHERE needs_review = 1 AND review_status IS NULL
		GROUP BY 1`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query review queue depth")
	}
	defer rows.Close()

	depth := map[string]int{PriorityHigh: 0, PriorityMedium: 0, PriorityLow: 0}
	for rows.Next() {
		var priority string
		var n int
		if err := rows.Scan(&priority, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan review queue depth")
		}
		depth[priority] = n
	}
	return depth, eris.Wrap(rows.Err(), "sqlite: iterate review queue depth")
}

// helpers

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %d", entity, id)
	}
	return nil
}
