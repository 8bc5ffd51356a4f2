package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"riskradar/internal/models"
	"riskradar/internal/risk"
	"riskradar/internal/util"
)

func (s *Server) handleStartFetchAll(w http.ResponseWriter, r *http.Request) {
	job, err := s.runner.StartFetchAll(r.Context())
	if errors.Is(err, util.ErrJobAlreadyRunning) {
		writeErr(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("start fetch-all")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleStartAnalyzeAll(w http.ResponseWriter, r *http.Request) {
	job, err := s.runner.StartAnalyzeAll(r.Context())
	if errors.Is(err, util.ErrJobAlreadyRunning) {
		writeErr(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("start analyze-all")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// handleJobStatus returns one job by id, or the most recent job when no id is
// given. The dashboard polls this while a job runs.
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	var (
		job *models.Job
		err error
	)
	id := r.URL.Query().Get("job_id")
	if id != "" {
		job, err = s.runner.Status(r.Context(), id)
	} else {
		job, err = s.runner.Latest(r.Context())
	}
	if err != nil {
		s.log.Error().Err(err).Msg("job status")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if job == nil {
		if id != "" {
			writeErr(w, http.StatusNotFound, fmt.Errorf("no such job"))
			return
		}
		// No job has ever run: that is a valid answer, not an error.
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 10, 100)
	history, err := s.runner.History(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("job history")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": history})
}

func (s *Server) handleRiskSummary(w http.ResponseWriter, r *http.Request) {
	companies, err := s.companies.List(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("risk summary companies")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	byCompany, err := s.analyses.LatestCompletedAssessments(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("risk summary assessments")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, risk.Summarize(len(companies), byCompany))
}

type companyView struct {
	models.Company
	RiskScores *models.RiskScores `json:"risk_scores"`
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	sector := r.URL.Query().Get("sector")
	limit := parseInt(r.URL.Query().Get("limit"), 100, 200)
	offset := parseInt(r.URL.Query().Get("offset"), 0, 1<<30)

	companies, total, err := s.companies.ListFiltered(r.Context(), sector, limit, offset)
	if err != nil {
		s.log.Error().Err(err).Msg("list companies")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	byCompany, err := s.analyses.LatestCompletedAssessments(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list companies assessments")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]companyView, 0, len(companies))
	for _, co := range companies {
		out = append(out, companyView{Company: co, RiskScores: risk.Scores(byCompany[co.ID])})
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": out, "total": total})
}

func (s *Server) handleSectors(w http.ResponseWriter, r *http.Request) {
	sectors, err := s.companies.Sectors(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list sectors")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sectors": sectors})
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	company, err := s.companies.GetByTicker(r.Context(), ticker)
	if err != nil {
		s.log.Error().Err(err).Str("ticker", ticker).Msg("get company")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if company == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("company %s not found", ticker))
		return
	}

	filings, err := s.filings.ListByCompany(r.Context(), company.ID)
	if err != nil {
		s.log.Error().Err(err).Str("ticker", ticker).Msg("company filings")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	assessments, err := s.analyses.CompanyAssessments(r.Context(), company.ID)
	if err != nil {
		s.log.Error().Err(err).Str("ticker", ticker).Msg("company assessments")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	var analysis *models.Analysis
	for _, f := range filings {
		if f.Status == models.FilingCompleted {
			analysis, err = s.analyses.GetByFiling(r.Context(), f.ID)
			if err != nil {
				s.log.Error().Err(err).Int64("filing_id", f.ID).Msg("company analysis")
				writeErr(w, http.StatusInternalServerError, err)
				return
			}
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"company":     company,
		"risk_scores": risk.Scores(assessments),
		"filings":     filings,
		"analysis":    analysis,
		"assessments": assessments,
	})
}

func (s *Server) handleListFilings(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch models.FilingStatus(status) {
	case "", models.FilingPending, models.FilingProcessing, models.FilingCompleted, models.FilingError:
	default:
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid status %q", status))
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 100, 200)
	offset := parseInt(r.URL.Query().Get("offset"), 0, 1<<30)

	filings, err := s.filings.List(r.Context(), status, limit, offset)
	if err != nil {
		s.log.Error().Err(err).Msg("list filings")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filings": filings})
}

func (s *Server) handleGetFiling(w http.ResponseWriter, r *http.Request) {
	filing, ok := s.filingFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, filing)
}

func (s *Server) handleGetFilingAnalysis(w http.ResponseWriter, r *http.Request) {
	filing, ok := s.filingFromPath(w, r)
	if !ok {
		return
	}
	analysis, err := s.analyses.GetByFiling(r.Context(), filing.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("filing_id", filing.ID).Msg("get analysis")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if analysis == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("filing %d has no analysis", filing.ID))
		return
	}
	assessments, err := s.analyses.AssessmentsByFiling(r.Context(), filing.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("filing_id", filing.ID).Msg("get assessments")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"analysis": analysis, "assessments": assessments})
}

// handleResetFiling moves an errored filing back to pending so the next
// analyze run retries it. Filings in any other state are left alone.
func (s *Server) handleResetFiling(w http.ResponseWriter, r *http.Request) {
	filing, ok := s.filingFromPath(w, r)
	if !ok {
		return
	}
	if filing.Status != models.FilingError {
		writeErr(w, http.StatusConflict, fmt.Errorf("filing %d is %s, only errored filings can be reset", filing.ID, filing.Status))
		return
	}
	reset, err := s.filings.ResetError(r.Context(), filing.ID)
	if err != nil {
		s.log.Error().Err(err).Int64("filing_id", filing.ID).Msg("reset filing")
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !reset {
		writeErr(w, http.StatusConflict, fmt.Errorf("filing %d changed state, retry", filing.ID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": filing.ID, "status": models.FilingPending})
}

func (s *Server) filingFromPath(w http.ResponseWriter, r *http.Request) (*models.Filing, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid filing id"))
		return nil, false
	}
	filing, err := s.filings.Get(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Int64("filing_id", id).Msg("get filing")
		writeErr(w, http.StatusInternalServerError, err)
		return nil, false
	}
	if filing == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("filing %d not found", id))
		return nil, false
	}
	return filing, true
}

func parseInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}
