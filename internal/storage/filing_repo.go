package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"riskradar/internal/models"
)

type FilingRepo struct {
	db *DB
}

func NewFilingRepo(db *DB) *FilingRepo {
	return &FilingRepo{db: db}
}

const filingCols = `id, company_id, filing_type, filing_date, fiscal_year,
       accession_number, COALESCE(filing_url,''), status, COALESCE(error_message,''),
       created_at, updated_at`

// Insert creates a pending filing with its extracted sections. The unique
// accession constraint is the de-duplication guard; callers check
// AccessionExists first, so a violation here is surfaced as an error.
func (r *FilingRepo) Insert(ctx context.Context, f *models.Filing) error {
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO filings (company_id, filing_type, filing_date, fiscal_year, accession_number,
                     filing_url, business, risk_factors, mda, status)
VALUES ($1, $2, $3, $4, $5, NULLIF($6,''), $7, $8, $9, $10)
RETURNING id, created_at, updated_at`,
		f.CompanyID, f.FilingType, f.FilingDate, f.FiscalYear, f.AccessionNumber,
		f.FilingURL, f.Business, f.RiskFactors, f.MDA, f.Status,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert filing: %w", err)
	}
	return nil
}

func (r *FilingRepo) AccessionExists(ctx context.Context, accession string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM filings WHERE accession_number = $1)`, accession).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("accession exists: %w", err)
	}
	return exists, nil
}

func (r *FilingRepo) HasFilingOfType(ctx context.Context, companyID int64, filingType string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM filings WHERE company_id = $1 AND filing_type = $2)`,
		companyID, filingType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has filing of type: %w", err)
	}
	return exists, nil
}

func (r *FilingRepo) SetStatus(ctx context.Context, id int64, status models.FilingStatus, errMsg string) error {
	_, err := r.db.Pool.Exec(ctx, `
UPDATE filings SET status = $2, error_message = NULLIF($3,''), updated_at = NOW()
WHERE id = $1`, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("set filing status: %w", err)
	}
	return nil
}

// ResetError returns an errored filing to the analyze worklist.
func (r *FilingRepo) ResetError(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE filings SET status = 'pending', error_message = NULL, updated_at = NOW()
WHERE id = $1 AND status = 'error'`, id)
	if err != nil {
		return false, fmt.Errorf("reset filing: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListPending is the analyze worklist: insertion order, so repeated runs are
// deterministic and resumable.
func (r *FilingRepo) ListPending(ctx context.Context) ([]models.Filing, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+filingCols+`, business, risk_factors, mda
FROM filings
WHERE status = 'pending'
ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list pending filings: %w", err)
	}
	defer rows.Close()

	out := make([]models.Filing, 0)
	for rows.Next() {
		var f models.Filing
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.FilingType, &f.FilingDate, &f.FiscalYear,
			&f.AccessionNumber, &f.FilingURL, &f.Status, &f.ErrorMessage,
			&f.CreatedAt, &f.UpdatedAt, &f.Business, &f.RiskFactors, &f.MDA); err != nil {
			return nil, fmt.Errorf("scan pending filing: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending filings: %w", err)
	}
	return out, nil
}

func (r *FilingRepo) List(ctx context.Context, status string, limit, offset int) ([]models.Filing, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+filingCols+`
FROM filings
WHERE $1 = '' OR status = $1
ORDER BY filing_date DESC, id DESC
LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list filings: %w", err)
	}
	defer rows.Close()
	return scanFilings(rows)
}

func (r *FilingRepo) ListByCompany(ctx context.Context, companyID int64) ([]models.Filing, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT `+filingCols+`
FROM filings
WHERE company_id = $1
ORDER BY filing_date DESC, id DESC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("list filings by company: %w", err)
	}
	defer rows.Close()
	return scanFilings(rows)
}

func (r *FilingRepo) Get(ctx context.Context, id int64) (*models.Filing, error) {
	var f models.Filing
	err := r.db.Pool.QueryRow(ctx, `
SELECT `+filingCols+`
FROM filings
WHERE id = $1`, id).
		Scan(&f.ID, &f.CompanyID, &f.FilingType, &f.FilingDate, &f.FiscalYear,
			&f.AccessionNumber, &f.FilingURL, &f.Status, &f.ErrorMessage,
			&f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get filing: %w", err)
	}
	return &f, nil
}

func scanFilings(rows pgx.Rows) ([]models.Filing, error) {
	out := make([]models.Filing, 0)
	for rows.Next() {
		var f models.Filing
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.FilingType, &f.FilingDate, &f.FiscalYear,
			&f.AccessionNumber, &f.FilingURL, &f.Status, &f.ErrorMessage,
			&f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan filing: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate filings: %w", err)
	}
	return out, nil
}
