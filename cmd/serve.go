package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oceanid/ingest-worker/internal/ingest"
	"github.com/oceanid/ingest-worker/internal/monitoring"
	"github.com/oceanid/ingest-worker/internal/rules"
	"github.com/oceanid/ingest-worker/internal/store"
	"github.com/oceanid/ingest-worker/internal/webhook"
)

var servePort int

// shutdownTimeout bounds the wait for in-flight tasks on SIGTERM.
const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server and ingestion workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initWorker(ctx, true, ingest.WithNotifier(newNotifier()))
		if err != nil {
			return err
		}
		defer env.Close()

		dispatcher := ingest.NewDispatcher(env.Orchestrator, ingest.DispatcherConfig{
			Workers:     cfg.Ingest.Workers,
			QueueSize:   cfg.Ingest.QueueSize,
			TaskTimeout: seconds(cfg.Ingest.TaskTimeoutSecs),
		}, env.Metrics)
		dispatcher.Start(ctx)

		go monitoring.NewChecker(env.Collector, seconds(cfg.Monitoring.QueueDepthIntervalSecs)).Run(ctx)

		hook := webhook.NewHandler(webhook.Config{
			Secret:          cfg.Webhook.Secret,
			SignatureHeader: cfg.Webhook.SignatureHeader,
			MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		}, dispatcher, env.Store, env.Metrics)

		mux := buildMux(muxDeps{
			Env:         env,
			Webhook:     hook,
			Health:      monitoring.NewHealthChecker(env.Store, env.Rules, env.Metrics),
			CORSOrigins: cfg.Server.CORSOrigins,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       seconds(cfg.Server.ReadTimeoutSecs),
			WriteTimeout:      seconds(cfg.Server.WriteTimeoutSecs),
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("starting server", zap.Int("port", port))
			errCh <- srv.ListenAndServe()
		}()

		var listenErr error
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				listenErr = eris.Wrap(err, "server listen")
			}
		case <-ctx.Done():
		}

		// Stop taking events first, then drain queued and running tasks.
		zap.L().Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
		if err := dispatcher.Shutdown(sctx); err != nil {
			zap.L().Warn("dispatcher shutdown", zap.Error(err), zap.Int("pending", dispatcher.Pending()))
		}
		return listenErr
	},
}

// muxDeps are the handlers and components behind the HTTP routes.
type muxDeps struct {
	Env         *workerEnv
	Webhook     http.Handler
	Health      *monitoring.HealthChecker
	CORSOrigins []string
}

// buildMux registers the webhook, health, metrics and admin routes.
func buildMux(d muxDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: d.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	if d.Webhook != nil {
		r.Method(http.MethodPost, "/webhook", d.Webhook)
	}

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if d.Health == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		report := d.Health.Check(req.Context())
		code := http.StatusOK
		if !report.Healthy() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, report)
	})

	if d.Env == nil {
		return r
	}

	if d.Env.Metrics != nil {
		r.Handle("/metrics", d.Env.Metrics.Handler())
	}

	r.Route("/rules", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			var list []rules.Rule
			if col := q.Get("column"); col != "" || q.Get("source_type") != "" {
				list = d.Env.Rules.Resolve(col, q.Get("source_type"), q.Get("source_name"))
			} else {
				list = d.Env.Rules.Index().Rules()
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"rules":     ruleViews(list),
				"loaded_at": d.Env.Rules.LoadedAt().UTC().Format(time.RFC3339),
			})
		})
		r.Post("/reload", func(w http.ResponseWriter, req *http.Request) {
			idx, err := d.Env.Rules.Reload(req.Context())
			if err != nil {
				zap.L().Error("rule reload failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "rule reload failed"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]int{"rules": idx.Len(), "inert": idx.Invalid()})
		})
	})

	r.Get("/documents/{id}/summary", func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid document id"})
			return
		}
		if d.Env.Store == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no store configured"})
			return
		}
		summary, err := d.Env.Store.GetSummary(req.Context(), id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "summary not found"})
		case err != nil:
			zap.L().Error("get summary", zap.Int64("document_id", id), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		default:
			writeJSON(w, http.StatusOK, summary)
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
