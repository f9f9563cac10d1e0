package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanid/ingest-worker/internal/config"
	"github.com/oceanid/ingest-worker/internal/fetcher"
	"github.com/oceanid/ingest-worker/internal/model"
	"github.com/oceanid/ingest-worker/internal/monitoring"
	"github.com/oceanid/ingest-worker/internal/store"
)

const vesselCSV = "IMO,FLAG\n 907 4729 ,pa\nnan,es\n"

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "iccat_vessels.csv")
	require.NoError(t, os.WriteFile(path, []byte(vesselCSV), 0o644))
	return path
}

func TestRunIngest_DryRun(t *testing.T) {
	env := testEnv(t, nil, testRules())
	env.Fetcher = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})

	var buf bytes.Buffer
	err := runIngest(context.Background(), env, ingestRequest{
		Target:      writeCSV(t),
		SourceType:  "RFMO",
		SourceName:  "ICCAT",
		Extractions: true,
	}, &buf)
	require.NoError(t, err)

	var res ingestResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
	assert.Equal(t, "iccat_vessels.csv", res.File)
	assert.Equal(t, []string{"IMO", "FLAG"}, res.Headers)
	require.NotNil(t, res.Summary)
	assert.Equal(t, 2, res.Summary.RowsProcessed)
	assert.Equal(t, 4, res.Summary.CellsProcessed)

	require.Len(t, res.Extractions, 4)
	assert.Equal(t, "9074729", res.Extractions[0].CleanedValue)
	assert.Equal(t, "PA", res.Extractions[1].CleanedValue)
	assert.Equal(t, "", res.Extractions[2].CleanedValue)
	assert.False(t, res.Extractions[2].NeedsReview)
	for _, ext := range res.Extractions {
		assert.Equal(t, "RFMO", ext.SourceType)
		assert.Equal(t, "ICCAT", ext.SourceName)
	}
}

func TestRunIngest_DryRunOmitsExtractions(t *testing.T) {
	env := testEnv(t, nil, testRules())

	var buf bytes.Buffer
	require.NoError(t, runIngest(context.Background(), env, ingestRequest{Target: writeCSV(t)}, &buf))
	assert.NotContains(t, buf.String(), `"extractions"`)
	assert.Contains(t, buf.String(), `"cells_processed": 4`)
}

func TestRunIngest_RemoteFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(vesselCSV))
	}))
	defer srv.Close()

	env := testEnv(t, nil, testRules())
	env.Fetcher = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})

	var buf bytes.Buffer
	require.NoError(t, runIngest(context.Background(), env, ingestRequest{Target: srv.URL + "/files/vessels.csv?sig=abc"}, &buf))

	var res ingestResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
	assert.Equal(t, "vessels.csv", res.File)
	assert.Equal(t, 4, res.Summary.CellsProcessed)
}

func TestRunIngest_MissingFile(t *testing.T) {
	env := testEnv(t, nil, nil)

	err := runIngest(context.Background(), env, ingestRequest{Target: filepath.Join(t.TempDir(), "missing.csv")}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.csv")
}

func TestRunIngest_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	err := runIngest(context.Background(), testEnv(t, nil, nil), ingestRequest{Target: path}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunIngest_PersistNeedsStore(t *testing.T) {
	err := runIngest(context.Background(), testEnv(t, nil, nil), ingestRequest{Target: writeCSV(t), Persist: true}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--persist")
}

func TestRunIngest_Persist(t *testing.T) {
	cfg = &config.Config{}

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	env := testEnv(t, st, testRules())
	env.Collector = monitoring.NewCollector(st, env.Metrics)

	var buf bytes.Buffer
	require.NoError(t, runIngest(context.Background(), env, ingestRequest{
		Target:     writeCSV(t),
		SourceType: "RFMO",
		SourceName: "ICCAT",
		TaskID:     99,
		Persist:    true,
	}, &buf))

	var summary model.ProcessingSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &summary))
	assert.Positive(t, summary.DocumentID)
	assert.Equal(t, 2, summary.RowsProcessed)
	assert.Equal(t, 4, summary.CellsProcessed)

	stored, err := st.GetSummary(context.Background(), summary.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, summary.CellsProcessed, stored.CellsProcessed)
}

func TestLocalOrRemote(t *testing.T) {
	path := writeCSV(t)

	data, err := localOrRemote{}.Fetch(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, vesselCSV, string(data))

	_, err = localOrRemote{}.Fetch(context.Background(), "https://files.example.com/a.csv")
	assert.Error(t, err)
}

func TestTargetName(t *testing.T) {
	assert.Equal(t, "a.csv", targetName("/tmp/data/a.csv"))
	assert.Equal(t, "b.xlsx", targetName("https://files.example.com/up/b.xlsx?token=1"))
	assert.True(t, isRemote("HTTPS://files.example.com/a.csv"))
	assert.False(t, isRemote("./a.csv"))
}
