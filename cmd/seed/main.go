// seed imports the company universe into the companies table. Safe to run
// repeatedly: existing tickers keep their id and any backfilled identity.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"riskradar/internal/config"
	"riskradar/internal/logging"
	"riskradar/internal/models"
	"riskradar/internal/storage"
)

type companiesFile struct {
	Companies []struct {
		Ticker string `json:"ticker"`
		Name   string `json:"name"`
		Sector string `json:"sector"`
	} `json:"companies"`
}

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogPretty)

	path := flag.String("file", cfg.CompaniesFile, "path to the companies JSON file")
	flag.Parse()

	raw, err := os.ReadFile(*path)
	if err != nil {
		log.Fatal().Err(err).Str("file", *path).Msg("read companies file")
	}
	var parsed companiesFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		log.Fatal().Err(err).Str("file", *path).Msg("decode companies file")
	}
	if len(parsed.Companies) == 0 {
		log.Fatal().Str("file", *path).Msg("companies file is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	repo := storage.NewCompanyRepo(db)
	for _, c := range parsed.Companies {
		if c.Ticker == "" || c.Name == "" {
			log.Warn().Str("ticker", c.Ticker).Msg("skipping entry without ticker or name")
			continue
		}
		if err := repo.Upsert(ctx, models.Company{Ticker: c.Ticker, Name: c.Name, Sector: c.Sector}); err != nil {
			log.Fatal().Err(err).Str("ticker", c.Ticker).Msg("upsert company")
		}
	}
	log.Info().Int("count", len(parsed.Companies)).Str("file", *path).Msg("company universe seeded")
}
