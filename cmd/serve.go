package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maclay/research-assistant/internal/model"
	"github.com/maclay/research-assistant/internal/progress"
	"github.com/maclay/research-assistant/internal/store"
)

var servePort int

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The UI is served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the research API and progress WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/api/research", func(w http.ResponseWriter, req *http.Request) {
			var runReq model.RunRequest
			if err := json.NewDecoder(req.Body).Decode(&runReq); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if !runReq.Kind.Valid() {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be feature or product"})
				return
			}

			run, err := env.Store.CreateRun(req.Context(), runReq)
			if err != nil {
				zap.L().Error("create run failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not create run"})
				return
			}

			// The run outlives the request; it proceeds even if the
			// observer never connects or disconnects early.
			go executeRun(ctx, env, run)

			writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "status": "accepted"})
		})

		r.Get("/ws/{runID}", func(w http.ResponseWriter, req *http.Request) {
			runID := chi.URLParam(req, "runID")
			ws, err := upgrader.Upgrade(w, req, nil)
			if err != nil {
				zap.L().Warn("websocket upgrade failed", zap.String("run_id", runID), zap.Error(err))
				return
			}
			env.Hub.Register(runID, progress.NewWSConn(ws))
		})

		r.Get("/api/runs/{runID}", func(w http.ResponseWriter, req *http.Request) {
			run, err := env.Store.GetRun(req.Context(), chi.URLParam(req, "runID"))
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
			filter := store.RunFilter{Status: model.RunStatus(req.URL.Query().Get("status"))}
			if v := req.URL.Query().Get("limit"); v != "" {
				filter.Limit, _ = strconv.Atoi(v)
			}
			runs, err := env.Store.ListRuns(req.Context(), filter)
			if err != nil {
				zap.L().Error("list runs failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list runs"})
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/api/reports", func(w http.ResponseWriter, req *http.Request) {
			var (
				reports []model.Report
				err     error
			)
			if q := req.URL.Query().Get("q"); q != "" {
				reports, err = env.Store.SearchReports(req.Context(), q)
			} else {
				limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
				reports, err = env.Store.ListRecentReports(req.Context(), limit)
			}
			if err != nil {
				zap.L().Error("list reports failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list reports"})
				return
			}
			writeJSON(w, http.StatusOK, reports)
		})

		r.Get("/api/reports/{reportID}", func(w http.ResponseWriter, req *http.Request) {
			report, err := env.Store.GetReport(req.Context(), chi.URLParam(req, "reportID"))
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "report not found"})
				return
			}
			writeJSON(w, http.StatusOK, report)
		})

		r.Delete("/api/reports/{reportID}", func(w http.ResponseWriter, req *http.Request) {
			if err := env.Store.DeleteReport(req.Context(), chi.URLParam(req, "reportID")); err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "report not found"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		})

		// Reference documents are served under the same prefix their derived
		// download links point at.
		r.Handle(cfg.Documents.AssetPath+"/*", http.StripPrefix(cfg.Documents.AssetPath+"/",
			http.FileServer(http.Dir(env.Documents.Dir()))))

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// executeRun drives one research run in the background and persists its
// outcome.
func executeRun(ctx context.Context, env *appEnv, run *model.Run) {
	if err := env.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusRunning); err != nil {
		zap.L().Error("mark run running failed", zap.String("run_id", run.ID), zap.Error(err))
	}

	result := env.Processor.Run(ctx, run.ID, run.Request)

	if err := env.Store.UpdateRunResult(ctx, run.ID, result); err != nil {
		zap.L().Error("persist run result failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	if !result.Success {
		return
	}

	report := &model.Report{
		Title:                  model.ReportTitle(run.Request),
		Content:                result.Report,
		Kind:                   run.Request.Kind,
		ProductDescription:     run.Request.ProductDescription,
		Segment:                run.Request.Segment,
		ResearchElement:        run.Request.ResearchElement,
		ProductCharacteristics: run.Request.ProductCharacteristics,
		Benchmarks:             run.Request.Benchmarks,
		RequiredPlayers:        run.Request.RequiredPlayers,
		RequiredCountries:      run.Request.RequiredCountries,
		Model:                  cfg.Gemini.Model,
		ProcessingMillis:       result.DurationMillis,
	}
	if err := env.Store.SaveReport(ctx, report); err != nil {
		zap.L().Error("save report failed", zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	zap.L().Info("report saved",
		zap.String("run_id", run.ID),
		zap.String("report_id", report.ID))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
