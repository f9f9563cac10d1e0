package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oceanid/ingest-worker/internal/fetcher"
	"github.com/oceanid/ingest-worker/internal/ingest"
	"github.com/oceanid/ingest-worker/internal/model"
	"github.com/oceanid/ingest-worker/internal/tabular"
)

var (
	ingestSourceType  string
	ingestSourceName  string
	ingestTaskID      int64
	ingestPersist     bool
	ingestExtractions bool
	ingestOutput      string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-url>",
	Short: "Clean one file and print the results",
	Long: "Parses a local CSV/TSV/XLS/XLSX file or downloads one over HTTP(S), cleans every cell " +
		"and prints the processing summary. With --persist the run is stored like a webhook task.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		env, err := initWorker(cmd.Context(), ingestPersist || cfg.Rules.File == "")
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		if ingestOutput != "" {
			f, err := os.Create(ingestOutput)
			if err != nil {
				return eris.Wrapf(err, "create %s", ingestOutput)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		return runIngest(cmd.Context(), env, ingestRequest{
			Target:      args[0],
			SourceType:  ingestSourceType,
			SourceName:  ingestSourceName,
			TaskID:      ingestTaskID,
			Persist:     ingestPersist,
			Extractions: ingestExtractions,
		}, out)
	},
}

// ingestRequest is one ingest command invocation.
type ingestRequest struct {
	Target      string
	SourceType  string
	SourceName  string
	TaskID      int64
	Persist     bool
	Extractions bool
}

// ingestResult is the dry-run output.
type ingestResult struct {
	File        string                   `json:"file"`
	Sheet       string                   `json:"sheet,omitempty"`
	Headers     []string                 `json:"headers"`
	Summary     *model.ProcessingSummary `json:"summary"`
	Extractions []model.CellExtraction   `json:"extractions,omitempty"`
}

func runIngest(ctx context.Context, env *workerEnv, req ingestRequest, w io.Writer) error {
	src := localOrRemote{remote: env.Fetcher}
	task := model.Task{
		TaskID:     req.TaskID,
		FileURL:    req.Target,
		FileName:   targetName(req.Target),
		SourceType: req.SourceType,
		SourceName: req.SourceName,
	}
	if task.SourceType == "" {
		task.SourceType = model.UnknownSource
	}
	if task.SourceName == "" {
		task.SourceName = model.UnknownSource
	}

	if req.Persist {
		if env.Store == nil {
			return eris.New("--persist needs store.database_url")
		}
		if task.TaskID <= 0 {
			task.TaskID = time.Now().Unix()
		}
		orch := ingest.New(env.Store, src, env.Engine,
			ingest.WithMetrics(env.Metrics),
			ingest.WithDepthRefresher(env.Collector),
			ingest.WithNotifier(newNotifier()),
		)
		summary, err := orch.ProcessTask(ctx, task)
		if err != nil {
			return err
		}
		return printJSON(w, summary)
	}

	content, err := src.Fetch(ctx, task.FileURL)
	if err != nil {
		return err
	}
	table, err := tabular.Parse(task.FileName, content)
	if err != nil {
		return err
	}

	doc := &model.Document{
		TaskID:     task.TaskID,
		FileName:   task.FileName,
		SourceType: task.SourceType,
		SourceName: task.SourceName,
	}
	extractions, _, err := ingest.New(nil, src, env.Engine, ingest.WithMetrics(env.Metrics)).CleanTable(ctx, doc, table)
	if err != nil {
		return err
	}

	res := ingestResult{
		File:    task.FileName,
		Sheet:   table.Sheet,
		Headers: table.Headers,
		Summary: model.NewProcessingSummary(0, len(table.Rows), model.ComputeStats(extractions)),
	}
	if req.Extractions {
		res.Extractions = extractions
	}
	zap.L().Info("dry run complete",
		zap.String("file", task.FileName),
		zap.Int("cells", res.Summary.CellsProcessed),
		zap.Int("needs_review", res.Summary.CellsNeedReview),
	)
	return printJSON(w, res)
}

// localOrRemote downloads http(s) URLs and reads anything else from disk.
type localOrRemote struct {
	remote fetcher.Fetcher
}

func (l localOrRemote) Fetch(ctx context.Context, target string) ([]byte, error) {
	if isRemote(target) {
		if l.remote == nil {
			return nil, eris.Errorf("no fetcher configured for %s", target)
		}
		return l.remote.Fetch(ctx, target)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", target)
	}
	return data, nil
}

func isRemote(target string) bool {
	lower := strings.ToLower(target)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func targetName(target string) string {
	if isRemote(target) {
		return fetcher.FileName(target)
	}
	return filepath.Base(target)
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSourceType, "source-type", "", "source type, e.g. RFMO")
	ingestCmd.Flags().StringVar(&ingestSourceName, "source-name", "", "source name, e.g. ICCAT")
	ingestCmd.Flags().Int64Var(&ingestTaskID, "task-id", 0, "task id to record with --persist (default: current unix time)")
	ingestCmd.Flags().BoolVar(&ingestPersist, "persist", false, "store the document, extractions and summary")
	ingestCmd.Flags().BoolVar(&ingestExtractions, "extractions", false, "include every cell in the dry-run output")
	ingestCmd.Flags().StringVarP(&ingestOutput, "output", "o", "", "write JSON to a file instead of stdout")
	rootCmd.AddCommand(ingestCmd)
}
