package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"riskradar/internal/models"
)

type CompanyRepo struct {
	db *DB
}

func NewCompanyRepo(db *DB) *CompanyRepo {
	return &CompanyRepo{db: db}
}

// Upsert seeds a company by ticker. Name and sector refresh on re-import;
// cik is owned by the fetch flow and left untouched here.
func (r *CompanyRepo) Upsert(ctx context.Context, c models.Company) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO companies (ticker, name, sector)
VALUES ($1, $2, NULLIF($3,''))
ON CONFLICT (ticker)
DO UPDATE SET
  name = EXCLUDED.name,
  sector = COALESCE(EXCLUDED.sector, companies.sector)`,
		c.Ticker, c.Name, c.Sector,
	)
	if err != nil {
		return fmt.Errorf("upsert company: %w", err)
	}
	return nil
}

// BackfillIdentity records the EDGAR-resolved cik (and sector when the seed
// file had none) after the first successful fetch.
func (r *CompanyRepo) BackfillIdentity(ctx context.Context, id int64, cik, sector string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE companies
SET cik = COALESCE(NULLIF($2,''), cik),
    sector = COALESCE(sector, NULLIF($3,''))
WHERE id = $1`, id, cik, sector)
	if err != nil {
		return fmt.Errorf("backfill company: %w", err)
	}
	return nil
}

// List returns the whole universe in creation order. This is the fetch
// worklist, so the ordering must be stable across runs.
func (r *CompanyRepo) List(ctx context.Context) ([]models.Company, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, ticker, name, COALESCE(cik,''), COALESCE(sector,''), created_at
FROM companies
ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()
	return scanCompanies(rows)
}

func (r *CompanyRepo) ListFiltered(ctx context.Context, sector string, limit, offset int) ([]models.Company, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `
SELECT COUNT(*) FROM companies WHERE $1 = '' OR sector = $1`, sector).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count companies: %w", err)
	}
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, ticker, name, COALESCE(cik,''), COALESCE(sector,''), created_at
FROM companies
WHERE $1 = '' OR sector = $1
ORDER BY id
LIMIT $2 OFFSET $3`, sector, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()
	out, err := scanCompanies(rows)
	return out, total, err
}

func (r *CompanyRepo) GetByTicker(ctx context.Context, ticker string) (*models.Company, error) {
	var c models.Company
	err := r.db.Pool.QueryRow(ctx, `
SELECT id, ticker, name, COALESCE(cik,''), COALESCE(sector,''), created_at
FROM companies
WHERE ticker = $1`, ticker).
		Scan(&c.ID, &c.Ticker, &c.Name, &c.CIK, &c.Sector, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get company by ticker: %w", err)
	}
	return &c, nil
}

func (r *CompanyRepo) Sectors(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT DISTINCT sector FROM companies WHERE sector IS NOT NULL ORDER BY sector`)
	if err != nil {
		return nil, fmt.Errorf("list sectors: %w", err)
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan sector: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanCompanies(rows pgx.Rows) ([]models.Company, error) {
	out := make([]models.Company, 0)
	for rows.Next() {
		var c models.Company
		if err := rows.Scan(&c.ID, &c.Ticker, &c.Name, &c.CIK, &c.Sector, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return out, nil
}
