// Package api is the HTTP surface for the dashboard: job control, company
// and filing browsing, and the aggregated risk summary.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"riskradar/internal/config"
	"riskradar/internal/jobs"
	"riskradar/internal/storage"
)

type Server struct {
	cfg       config.Config
	log       zerolog.Logger
	db        *storage.DB
	runner    *jobs.Runner
	companies *storage.CompanyRepo
	filings   *storage.FilingRepo
	analyses  *storage.AnalysisRepo
	http      *http.Server
}

func NewServer(cfg config.Config, log zerolog.Logger, db *storage.DB, runner *jobs.Runner) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log.With().Str("component", "api").Logger(),
		db:        db,
		runner:    runner,
		companies: storage.NewCompanyRepo(db),
		filings:   storage.NewFilingRepo(db),
		analyses:  storage.NewAnalysisRepo(db),
	}
	s.http = &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/fetch-all", s.handleStartFetchAll)
			r.Post("/analyze-all", s.handleStartAnalyzeAll)
			r.Get("/status", s.handleJobStatus)
			r.Get("/history", s.handleJobHistory)
			r.Get("/risk-summary", s.handleRiskSummary)
		})

		r.Route("/companies", func(r chi.Router) {
			r.Get("/", s.handleListCompanies)
			r.Get("/sectors/list", s.handleSectors)
			r.Get("/{ticker}", s.handleGetCompany)
		})

		r.Route("/filings", func(r chi.Router) {
			r.Get("/", s.handleListFilings)
			r.Get("/{id}", s.handleGetFiling)
			r.Get("/{id}/analysis", s.handleGetFilingAnalysis)
			r.Post("/{id}/reset", s.handleResetFiling)
		})
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("api listening")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Pool.Ping(r.Context()); err != nil {
		writeErr(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
