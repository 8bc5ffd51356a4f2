package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"riskradar/internal/models"
)

type AnalysisRepo struct {
	db *DB
}

func NewAnalysisRepo(db *DB) *AnalysisRepo {
	return &AnalysisRepo{db: db}
}

// Replace atomically swaps in the new analysis: prior analysis and
// assessments for the filing are removed, the new rows are written, and the
// filing is marked completed — all in one transaction, so a filing is never
// observed completed without its analysis or with two of them.
func (r *AnalysisRepo) Replace(ctx context.Context, filingID int64, summary string, assessments []models.RiskAssessment) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace analysis: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM risk_assessments WHERE filing_id = $1`, filingID); err != nil {
		return fmt.Errorf("delete prior assessments: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM analyses WHERE filing_id = $1`, filingID); err != nil {
		return fmt.Errorf("delete prior analysis: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO analyses (filing_id, summary) VALUES ($1, $2)`, filingID, summary); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	for _, a := range assessments {
		risks, err := json.Marshal(a.KeyRisks)
		if err != nil {
			return fmt.Errorf("encode key risks: %w", err)
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO risk_assessments (filing_id, category, score, severity, key_risks)
VALUES ($1, $2, $3, $4, $5)`, filingID, a.Category, a.Score, a.Severity, risks); err != nil {
			return fmt.Errorf("insert assessment: %w", err)
		}
	}
	if _, err := tx.Exec(ctx, `
UPDATE filings SET status = 'completed', error_message = NULL, updated_at = NOW()
WHERE id = $1`, filingID); err != nil {
		return fmt.Errorf("mark filing completed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepo) GetByFiling(ctx context.Context, filingID int64) (*models.Analysis, error) {
	var a models.Analysis
	err := r.db.Pool.QueryRow(ctx, `
SELECT id, filing_id, summary, created_at FROM analyses WHERE filing_id = $1`, filingID).
		Scan(&a.ID, &a.FilingID, &a.Summary, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return &a, nil
}

func (r *AnalysisRepo) AssessmentsByFiling(ctx context.Context, filingID int64) ([]models.RiskAssessment, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, filing_id, category, score, severity, key_risks
FROM risk_assessments
WHERE filing_id = $1
ORDER BY category`, filingID)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()
	return scanAssessments(rows)
}

// LatestCompletedAssessments returns, per company, the assessments of its
// most recent completed filing. This is the aggregator's input: one row set
// per analyzed company, un-analyzed companies absent.
func (r *AnalysisRepo) LatestCompletedAssessments(ctx context.Context) (map[int64][]models.RiskAssessment, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT f.company_id, ra.id, ra.filing_id, ra.category, ra.score, ra.severity, ra.key_risks
FROM risk_assessments ra
JOIN filings f ON f.id = ra.filing_id
WHERE f.status = 'completed'
  AND f.id = (
    SELECT f2.id FROM filings f2
    WHERE f2.company_id = f.company_id AND f2.status = 'completed'
    ORDER BY f2.filing_date DESC, f2.id DESC
    LIMIT 1
  )`)
	if err != nil {
		return nil, fmt.Errorf("latest completed assessments: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]models.RiskAssessment)
	for rows.Next() {
		var companyID int64
		var a models.RiskAssessment
		var risks []byte
		if err := rows.Scan(&companyID, &a.ID, &a.FilingID, &a.Category, &a.Score, &a.Severity, &risks); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		if err := json.Unmarshal(risks, &a.KeyRisks); err != nil {
			return nil, fmt.Errorf("decode key risks: %w", err)
		}
		out[companyID] = append(out[companyID], a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}
	return out, nil
}

// CompanyAssessments returns the latest completed filing's assessments for a
// single company, or nil when it has none.
func (r *AnalysisRepo) CompanyAssessments(ctx context.Context, companyID int64) ([]models.RiskAssessment, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT ra.id, ra.filing_id, ra.category, ra.score, ra.severity, ra.key_risks
FROM risk_assessments ra
WHERE ra.filing_id = (
  SELECT id FROM filings
  WHERE company_id = $1 AND status = 'completed'
  ORDER BY filing_date DESC, id DESC
  LIMIT 1
)
ORDER BY ra.category`, companyID)
	if err != nil {
		return nil, fmt.Errorf("company assessments: %w", err)
	}
	defer rows.Close()
	return scanAssessments(rows)
}

func scanAssessments(rows pgx.Rows) ([]models.RiskAssessment, error) {
	out := make([]models.RiskAssessment, 0)
	for rows.Next() {
		var a models.RiskAssessment
		var risks []byte
		if err := rows.Scan(&a.ID, &a.FilingID, &a.Category, &a.Score, &a.Severity, &risks); err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		if err := json.Unmarshal(risks, &a.KeyRisks); err != nil {
			return nil, fmt.Errorf("decode key risks: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}
	return out, nil
}
