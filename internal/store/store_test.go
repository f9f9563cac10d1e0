package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanid/ingest-worker/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func strPtr(s string) *string { return &s }

func sampleTask() model.Task {
	return model.Task{
		TaskID:     42,
		FileURL:    "https://files.example.com/uploads/vessels.csv",
		FileName:   "vessels.csv",
		SourceType: "RFMO",
		SourceName: "ICCAT",
		Metadata:   map[string]any{"batch": "2024-q1"},
	}
}

func sampleExtractions(docID int64) []model.CellExtraction {
	return []model.CellExtraction{
		{DocumentID: docID, RowIndex: 0, ColumnName: "VESSEL_NAME", RawValue: "Atlantic  Star",
			CleanedValue: "ATLANTIC STAR", Confidence: 0.97, RuleChain: []int64{1, 2}, Similarity: 0.9},
		{DocumentID: docID, RowIndex: 0, ColumnName: "IMO", RawValue: "IMO 1234567",
			CleanedValue: "1234567", Confidence: 0.88, RuleChain: []int64{3}, Similarity: 0.7},
		{DocumentID: docID, RowIndex: 1, ColumnName: "FLAG", RawValue: "??",
			CleanedValue: "??", Confidence: 0.55, RuleChain: nil, NeedsReview: true, Similarity: 1},
		{DocumentID: docID, RowIndex: 1, ColumnName: "VESSEL_NAME", RawValue: "sea",
			CleanedValue: "SEA", Confidence: 0.7, RuleChain: []int64{1}, NeedsReview: true, Similarity: 0.3},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("RulesRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rules := []model.CleaningRule{
			{ID: 2, Name: "upper", Type: model.RuleTypeFormatStandardizer, Pattern: strPtr(`{"format":"uppercase"}`),
				Priority: 20, Confidence: 0.95, IsActive: true},
			{ID: 1, Name: "strip imo prefix", Type: model.RuleTypeRegexReplace, Pattern: strPtr(`^IMO\s*`),
				Replacement: strPtr(""), Priority: 10, Confidence: 0.9, ColumnName: strPtr("IMO"), IsActive: true},
			{ID: 3, Name: "disabled", Type: model.RuleTypeValidator, Pattern: strPtr(`.*`),
				Priority: 1, Confidence: 0.5, IsActive: false},
		}
		n, err := s.UpsertRules(ctx, rules)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		active, err := s.ActiveRules(ctx)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, int64(1), active[0].ID)
		assert.Equal(t, model.RuleTypeRegexReplace, active[0].Type)
		assert.Equal(t, "IMO", model.Deref(active[0].ColumnName))
		assert.Nil(t, active[0].SourceType)
		assert.Equal(t, "", model.Deref(active[0].Replacement))
		assert.NotNil(t, active[0].Replacement)
		assert.Equal(t, int64(2), active[1].ID)

		// Re-upserting updates in place.
		rules[0].Priority = 5
		_, err = s.UpsertRules(ctx, rules[:1])
		require.NoError(t, err)
		active, err = s.ActiveRules(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), active[0].ID)
	})

	t.Run("DocumentLifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		doc, err := s.CreateDocument(ctx, sampleTask())
		require.NoError(t, err)
		assert.NotZero(t, doc.ID)
		assert.Equal(t, "RFMO", doc.SourceType)
		assert.Equal(t, "https://files.example.com/uploads/vessels.csv", doc.Metadata["file_url"])

		n, err := s.StoreExtractions(ctx, doc.ID, sampleExtractions(doc.ID))
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)

		st, err := s.SummarizeExtractions(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, st.Cells)
		assert.Equal(t, 2, st.NeedsReview)
		assert.InDelta(t, 0.775, st.AvgConfidence, 0.001)
		assert.InDelta(t, 0.55, st.MinConfidence, 0.001)
		assert.InDelta(t, 0.97, st.MaxConfidence, 0.001)
		assert.Equal(t, 1, st.HighCount)
		assert.Equal(t, 1, st.MediumCount)
		assert.Equal(t, 2, st.LowCount)
		assert.Equal(t, 3, st.UniqueRulesUsed)

		summary := model.NewProcessingSummary(doc.ID, 2, st)
		require.NoError(t, s.SaveSummary(ctx, summary))
		require.NoError(t, s.UpdateTaskStatus(ctx, 42, model.TaskStatusCompleted, ""))

		got, err := s.GetSummary(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.RowsProcessed)
		assert.Equal(t, 4, got.CellsProcessed)
		assert.InDelta(t, 50.0, got.ReviewPercentage, 0.001)
	})

	t.Run("StoreExtractionsReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		doc, err := s.CreateDocument(ctx, sampleTask())
		require.NoError(t, err)

		_, err = s.StoreExtractions(ctx, doc.ID, sampleExtractions(doc.ID))
		require.NoError(t, err)
		_, err = s.StoreExtractions(ctx, doc.ID, sampleExtractions(doc.ID)[:1])
		require.NoError(t, err)

		st, err := s.SummarizeExtractions(ctx, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, st.Cells)
		assert.Equal(t, 2, st.UniqueRulesUsed)
	})

	t.Run("SummarizeEmpty", func(t *testing.T) {
		s := newStore(t)
		st, err := s.SummarizeExtractions(context.Background(), 999)
		require.NoError(t, err)
		assert.Equal(t, model.ExtractionStats{}, st)
	})

	t.Run("UnknownSourceDefaults", func(t *testing.T) {
		s := newStore(t)
		task := sampleTask()
		task.SourceType = ""
		task.SourceName = ""

		doc, err := s.CreateDocument(context.Background(), task)
		require.NoError(t, err)
		assert.Equal(t, model.UnknownSource, doc.SourceType)
		assert.Equal(t, model.UnknownSource, doc.SourceName)
	})

	t.Run("MissingRowsAreNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetSummary(ctx, 12345)
		assert.True(t, errors.Is(err, ErrNotFound))

		err = s.UpdateTaskStatus(ctx, 12345, model.TaskStatusFailed, "boom")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("ReviewQueueDepth", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		doc, err := s.CreateDocument(ctx, sampleTask())
		require.NoError(t, err)
		_, err = s.StoreExtractions(ctx, doc.ID, sampleExtractions(doc.ID))
		require.NoError(t, err)

		depth, err := s.ReviewQueueDepth(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{PriorityHigh: 1, PriorityMedium: 1, PriorityLow: 0}, depth)
	})

	t.Run("RecordEvent", func(t *testing.T) {
		s := newStore(t)
		err := s.RecordEvent(context.Background(), model.Event{
			Type: "webhook", Action: "TASK_CREATED", TaskID: 42, Payload: []byte(`{"action":"TASK_CREATED"}`),
		})
		assert.NoError(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_TerminalStatusIsFinal(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	first, err := s.CreateDocument(ctx, sampleTask())
	require.NoError(t, err)
	require.NoError(t, s.UpdateTaskStatus(ctx, 42, model.TaskStatusCompleted, ""))

	err = s.UpdateTaskStatus(ctx, 42, model.TaskStatusFailed, "late failure")
	assert.True(t, errors.Is(err, ErrNotFound))

	// A redelivered task gets its own log row; finishing it leaves the
	// earlier run untouched.
	second, err := s.CreateDocument(ctx, sampleTask())
	require.NoError(t, err)
	require.NoError(t, s.UpdateTaskStatus(ctx, 42, model.TaskStatusFailed, "download failed"))

	status := func(docID int64) (string, *string) {
		var st string
		var msg *string
		row := s.(*SQLiteStore).db.QueryRowContext(ctx,
			`SELECT processing_status, error_message FROM document_processing_log WHERE document_id = ?`, docID)
		require.NoError(t, row.Scan(&st, &msg))
		return st, msg
	}
	st, msg := status(first.ID)
	assert.Equal(t, "completed", st)
	assert.Nil(t, msg)
	st, msg = status(second.ID)
	assert.Equal(t, "failed", st)
	assert.Equal(t, "download failed", model.Deref(msg))
}

func TestDocumentMetadata(t *testing.T) {
	meta := documentMetadata(sampleTask())
	assert.Equal(t, "2024-q1", meta["batch"])
	assert.Equal(t, int64(42), meta["task_id"])
	assert.Equal(t, "https://files.example.com/uploads/vessels.csv", meta["file_url"])
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
