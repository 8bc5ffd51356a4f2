package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"riskradar/internal/api"
	"riskradar/internal/config"
	"riskradar/internal/edgar"
	"riskradar/internal/jobs"
	"riskradar/internal/logging"
	"riskradar/internal/providers"
	"riskradar/internal/storage"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	jobRepo := storage.NewJobRepo(db)
	if n, err := jobRepo.FailStale(ctx); err != nil {
		log.Fatal().Err(err).Msg("recover stale jobs")
	} else if n > 0 {
		log.Warn().Int64("count", n).Msg("failed jobs left running by a previous process")
	}

	analyzer, err := providers.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("configure analyzer")
	}
	fetcher := edgar.NewClient(cfg.SECUserAgent, cfg.EdgarBaseURL, cfg.EdgarDataURL)

	runner := jobs.NewRunner(log, cfg,
		storage.NewCompanyRepo(db),
		storage.NewFilingRepo(db),
		storage.NewAnalysisRepo(db),
		jobRepo,
		fetcher, analyzer)

	srv := api.NewServer(cfg, log, db, runner)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.APIAddr).Str("provider", cfg.LLMProvider).Msg("riskradar api starting")
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("api server")
	}
}
