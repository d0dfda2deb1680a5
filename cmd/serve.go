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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-cli/internal/config"
	"github.com/sells-group/contact-cli/internal/model"
	"github.com/sells-group/contact-cli/internal/monitoring"
	"github.com/sells-group/contact-cli/internal/pipeline"
	"github.com/sells-group/contact-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the contact resolution HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		e, err := initEnv(ctx, cfg, envOptions{Registerer: reg})
		if err != nil {
			return err
		}
		defer e.Close()

		if cfg.Alerts.WebhookURL != "" && e.Store != nil {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(e.Store, e.Cooldowns),
				monitoring.NewAlerter(cfg.Alerts),
				cfg.Alerts,
			)
			go checker.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(e, cfg.Server, reg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// resolveRequest is the body of POST /v1/resolve.
type resolveRequest struct {
	Companies []model.CompanyRecord `json:"companies"`
}

// apiHandler serves the HTTP API over one wired environment.
type apiHandler struct {
	env          *env
	maxCompanies int
}

// newRouter builds the chi router for the API.
func newRouter(e *env, sc config.ServerConfig, gatherer prometheus.Gatherer) http.Handler {
	h := &apiHandler{env: e, maxCompanies: sc.MaxCompanies}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: sc.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolve", h.resolve)
		r.Get("/runs", h.listRuns)
		r.Get("/runs/{id}", h.getRun)
		r.Get("/providers", h.providers)
	})
	return r
}

func (h *apiHandler) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Companies) == 0 {
		writeError(w, http.StatusBadRequest, "companies is required")
		return
	}
	if h.maxCompanies > 0 && len(req.Companies) > h.maxCompanies {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("at most %d companies per request; use the resolve command for batches", h.maxCompanies))
		return
	}
	for i := range req.Companies {
		if req.Companies[i].Key() == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("company %d has no name or domain", i))
			return
		}
		if req.Companies[i].Row == 0 {
			req.Companies[i].Row = i + 1
		}
	}

	out, err := h.env.Pipeline.Run(r.Context(), req.Companies, pipeline.RunOptions{
		Input:   "api",
		Segment: h.env.Segment,
	})
	if err != nil {
		zap.L().Error("api resolve failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *apiHandler) getRun(w http.ResponseWriter, r *http.Request) {
	if h.env.Store == nil {
		writeError(w, http.StatusNotImplemented, "no run store configured")
		return
	}
	run, err := h.env.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		zap.L().Error("api get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *apiHandler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.env.Store == nil {
		writeError(w, http.StatusNotImplemented, "no run store configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := h.env.Store.ListRuns(r.Context(), limit)
	if err != nil {
		zap.L().Error("api list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *apiHandler) providers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, providerInfos(h.env))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
