package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

// Migrate applies the idempotent schema. The partial unique index on running
// jobs is what makes "start a job iff none is running" a single atomic insert.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			ticker TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			cik TEXT,
			sector TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS filings (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			company_id BIGINT NOT NULL REFERENCES companies(id),
			filing_type TEXT NOT NULL,
			filing_date DATE NOT NULL,
			fiscal_year INT,
			accession_number TEXT NOT NULL UNIQUE,
			filing_url TEXT,
			business TEXT NOT NULL DEFAULT '',
			risk_factors TEXT NOT NULL DEFAULT '',
			mda TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS analyses (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			filing_id BIGINT NOT NULL UNIQUE REFERENCES filings(id) ON DELETE CASCADE,
			summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS risk_assessments (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			filing_id BIGINT NOT NULL REFERENCES filings(id) ON DELETE CASCADE,
			category TEXT NOT NULL,
			score INT NOT NULL,
			severity TEXT NOT NULL,
			key_risks JSONB NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id TEXT PRIMARY KEY,
			job_kind TEXT NOT NULL,
			status TEXT NOT NULL,
			total_items INT NOT NULL DEFAULT 0,
			completed_items INT NOT NULL DEFAULT 0,
			error_message TEXT,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS jobs_single_running ON jobs ((1)) WHERE status = 'running'`,
		`CREATE INDEX IF NOT EXISTS filings_company_idx ON filings (company_id, filing_type)`,
		`CREATE INDEX IF NOT EXISTS filings_status_idx ON filings (status)`,
		`CREATE INDEX IF NOT EXISTS risk_assessments_filing_idx ON risk_assessments (filing_id)`,
	}
	for _, stmt := range stmts {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
