package models

import "time"

type FilingStatus string

const (
	FilingPending    FilingStatus = "pending"
	FilingProcessing FilingStatus = "processing"
	FilingCompleted  FilingStatus = "completed"
	FilingError      FilingStatus = "error"
)

type JobKind string

const (
	JobFetch   JobKind = "fetch"
	JobAnalyze JobKind = "analyze"
)

type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

const FilingType10K = "10-K"

type Company struct {
	ID        int64     `json:"id"`
	Ticker    string    `json:"ticker"`
	Name      string    `json:"name"`
	CIK       string    `json:"cik,omitempty"`
	Sector    string    `json:"sector,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Filing struct {
	ID              int64        `json:"id"`
	CompanyID       int64        `json:"company_id"`
	FilingType      string       `json:"filing_type"`
	FilingDate      time.Time    `json:"filing_date"`
	FiscalYear      *int         `json:"fiscal_year,omitempty"`
	AccessionNumber string       `json:"accession_number"`
	FilingURL       string       `json:"filing_url,omitempty"`
	Business        string       `json:"-"`
	RiskFactors     string       `json:"-"`
	MDA             string       `json:"-"`
	Status          FilingStatus `json:"status"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type Analysis struct {
	ID        int64     `json:"id"`
	FilingID  int64     `json:"filing_id"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

type RiskAssessment struct {
	ID       int64    `json:"id"`
	FilingID int64    `json:"filing_id"`
	Category string   `json:"category"`
	Score    int      `json:"score"`
	Severity string   `json:"severity"`
	KeyRisks []string `json:"key_risks"`
}

type Job struct {
	ID             string     `json:"id"`
	Kind           JobKind    `json:"job_type"`
	Status         JobStatus  `json:"status"`
	TotalItems     int        `json:"total_items"`
	CompletedItems int        `json:"completed_items"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// RiskScores is the latest per-category view for one company. Nil fields mean
// the company has no completed analysis.
type RiskScores struct {
	Operational  *int     `json:"operational"`
	Financial    *int     `json:"financial"`
	Regulatory   *int     `json:"regulatory"`
	Strategic    *int     `json:"strategic"`
	Reputational *int     `json:"reputational"`
	Overall      *float64 `json:"overall"`
}

// RiskSummary is the dashboard-level aggregate over all analyzed companies.
type RiskSummary struct {
	TotalCompanies    int                 `json:"total_companies"`
	AnalyzedCompanies int                 `json:"analyzed_companies"`
	HighRiskCount     int                 `json:"high_risk_count"`
	MediumRiskCount   int                 `json:"medium_risk_count"`
	LowRiskCount      int                 `json:"low_risk_count"`
	AverageRiskScore  *float64            `json:"average_risk_score"`
	RiskByCategory    map[string]*float64 `json:"risk_by_category"`
}
