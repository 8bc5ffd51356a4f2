package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"riskradar/internal/config"
	"riskradar/internal/edgar"
	"riskradar/internal/models"
	"riskradar/internal/providers"
	"riskradar/internal/risk"
	"riskradar/internal/util"
)

type CompanyStore interface {
	List(ctx context.Context) ([]models.Company, error)
	BackfillIdentity(ctx context.Context, id int64, cik, sector string) error
}

type FilingStore interface {
	Insert(ctx context.Context, f *models.Filing) error
	AccessionExists(ctx context.Context, accession string) (bool, error)
	HasFilingOfType(ctx context.Context, companyID int64, filingType string) (bool, error)
	ListPending(ctx context.Context) ([]models.Filing, error)
	SetStatus(ctx context.Context, id int64, status models.FilingStatus, errMsg string) error
}

type AnalysisStore interface {
	Replace(ctx context.Context, filingID int64, summary string, assessments []models.RiskAssessment) error
}

type JobStore interface {
	StartRunning(ctx context.Context, kind models.JobKind) (models.Job, error)
	SetTotal(ctx context.Context, id string, total int) error
	IncrementCompleted(ctx context.Context, id string) error
	Finish(ctx context.Context, id string, status models.JobStatus, errMsg string) error
	Get(ctx context.Context, id string) (*models.Job, error)
	Latest(ctx context.Context) (*models.Job, error)
	History(ctx context.Context, limit int) ([]models.Job, error)
}

type Fetcher interface {
	FetchLatest10K(ctx context.Context, ticker string) (edgar.Filing10K, error)
}

// Runner executes batch jobs over the company universe. At most one job runs
// at a time; the jobs table enforces that, not the Runner, so the invariant
// holds across process restarts.
type Runner struct {
	log       zerolog.Logger
	companies CompanyStore
	filings   FilingStore
	analyses  AnalysisStore
	jobs      JobStore
	fetcher   Fetcher
	analyzer  providers.Analyzer

	secLimiter *rate.Limiter
	llmLimiter *rate.Limiter
	policy     Policy
}

func NewRunner(
	log zerolog.Logger,
	cfg config.Config,
	companies CompanyStore,
	filings FilingStore,
	analyses AnalysisStore,
	jobs JobStore,
	fetcher Fetcher,
	analyzer providers.Analyzer,
) *Runner {
	return &Runner{
		log:       log.With().Str("component", "jobs").Logger(),
		companies: companies,
		filings:   filings,
		analyses:  analyses,
		jobs:      jobs,
		fetcher:   fetcher,
		analyzer:  analyzer,
		// SEC allows short bursts up to its per-second cap; the LLM
		// budget is per minute, so requests are spaced evenly.
		secLimiter: rate.NewLimiter(rate.Limit(cfg.SECRatePerSec), cfg.SECRatePerSec),
		llmLimiter: rate.NewLimiter(rate.Limit(float64(cfg.LLMRPM)/60.0), 1),
		policy:     PolicyFromConfig(cfg),
	}
}

// StartFetchAll claims the job slot and launches the fetch pass in the
// background. Returns ErrJobAlreadyRunning when another job holds the slot.
func (r *Runner) StartFetchAll(ctx context.Context) (models.Job, error) {
	job, err := r.jobs.StartRunning(ctx, models.JobFetch)
	if err != nil {
		return models.Job{}, err
	}
	r.log.Info().Str("job_id", job.ID).Msg("fetch-all job started")
	go r.execute(context.WithoutCancel(ctx), job, r.runFetch)
	return job, nil
}

// StartAnalyzeAll claims the job slot and launches the analyze pass in the
// background.
func (r *Runner) StartAnalyzeAll(ctx context.Context) (models.Job, error) {
	job, err := r.jobs.StartRunning(ctx, models.JobAnalyze)
	if err != nil {
		return models.Job{}, err
	}
	r.log.Info().Str("job_id", job.ID).Msg("analyze-all job started")
	go r.execute(context.WithoutCancel(ctx), job, r.runAnalyze)
	return job, nil
}

// execute runs a job pass with a panic guard. A panic must not take the
// process down, and it must release the singleton slot by failing the job,
// or no job could ever start again.
func (r *Runner) execute(ctx context.Context, job models.Job, run func(context.Context, models.Job)) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("job_id", job.ID).Interface("panic", rec).Msg("job panicked")
			r.finish(ctx, job.ID, models.JobFailed, fmt.Sprintf("internal error: %v", rec))
		}
	}()
	run(ctx, job)
}

func (r *Runner) Status(ctx context.Context, id string) (*models.Job, error) {
	return r.jobs.Get(ctx, id)
}

func (r *Runner) Latest(ctx context.Context) (*models.Job, error) {
	return r.jobs.Latest(ctx)
}

func (r *Runner) History(ctx context.Context, limit int) ([]models.Job, error) {
	return r.jobs.History(ctx, limit)
}

// runFetch walks the whole universe once. Per-item failures mark progress and
// move on; only an exhausted rate-limit retry aborts the job, because at that
// point every remaining item would hit the same wall.
func (r *Runner) runFetch(ctx context.Context, job models.Job) {
	log := r.log.With().Str("job_id", job.ID).Logger()

	companies, err := r.companies.List(ctx)
	if err != nil {
		r.finish(ctx, job.ID, models.JobFailed, fmt.Sprintf("list companies: %v", err))
		return
	}
	if err := r.jobs.SetTotal(ctx, job.ID, len(companies)); err != nil {
		log.Error().Err(err).Msg("set job total")
	}

	for _, co := range companies {
		has, err := r.filings.HasFilingOfType(ctx, co.ID, models.FilingType10K)
		if err != nil {
			log.Error().Err(err).Str("ticker", co.Ticker).Msg("filing lookup failed")
			r.increment(ctx, job.ID)
			continue
		}
		if has {
			log.Debug().Str("ticker", co.Ticker).Msg("10-K already on record, skipping")
			r.increment(ctx, job.ID)
			continue
		}

		var fetched edgar.Filing10K
		err = r.policy.Execute(ctx, func(ctx context.Context) error {
			// Each attempt pays the limiter, retries included.
			if err := r.secLimiter.Wait(ctx); err != nil {
				return err
			}
			var ferr error
			fetched, ferr = r.fetcher.FetchLatest10K(ctx, co.Ticker)
			return ferr
		})
		if err != nil {
			if util.Classify(err) == util.KindRateLimited {
				log.Error().Err(err).Str("ticker", co.Ticker).Msg("rate limit persisted, aborting job")
				r.finish(ctx, job.ID, models.JobFailed,
					fmt.Sprintf("aborted at %s: rate limit persisted through retries", co.Ticker))
				return
			}
			log.Warn().Err(err).Str("ticker", co.Ticker).Msg("fetch failed")
			r.increment(ctx, job.ID)
			continue
		}

		exists, err := r.filings.AccessionExists(ctx, fetched.AccessionNumber)
		if err != nil {
			log.Error().Err(err).Str("ticker", co.Ticker).Msg("accession lookup failed")
			r.increment(ctx, job.ID)
			continue
		}
		if exists {
			log.Debug().Str("ticker", co.Ticker).Str("accession", fetched.AccessionNumber).
				Msg("accession already stored, skipping")
			r.increment(ctx, job.ID)
			continue
		}

		if err := r.companies.BackfillIdentity(ctx, co.ID, fetched.CIK, fetched.Sector); err != nil {
			log.Warn().Err(err).Str("ticker", co.Ticker).Msg("identity backfill failed")
		}
		filing := &models.Filing{
			CompanyID:       co.ID,
			FilingType:      models.FilingType10K,
			FilingDate:      fetched.FilingDate,
			FiscalYear:      fetched.FiscalYear,
			AccessionNumber: fetched.AccessionNumber,
			FilingURL:       fetched.DocumentURL,
			Business:        fetched.Sections.Business,
			RiskFactors:     fetched.Sections.RiskFactors,
			MDA:             fetched.Sections.MDA,
			Status:          models.FilingPending,
		}
		if err := r.filings.Insert(ctx, filing); err != nil {
			log.Error().Err(err).Str("ticker", co.Ticker).Msg("store filing failed")
			r.increment(ctx, job.ID)
			continue
		}
		log.Info().Str("ticker", co.Ticker).Str("accession", fetched.AccessionNumber).Msg("filing stored")
		r.increment(ctx, job.ID)
	}

	r.finish(ctx, job.ID, models.JobCompleted, "")
	log.Info().Msg("fetch-all job completed")
}

// runAnalyze processes every pending filing. A filing moves pending ->
// processing -> completed or error; on a rate-limit abort the in-flight
// filing goes back to pending so the next run picks it up.
func (r *Runner) runAnalyze(ctx context.Context, job models.Job) {
	log := r.log.With().Str("job_id", job.ID).Logger()

	pending, err := r.filings.ListPending(ctx)
	if err != nil {
		r.finish(ctx, job.ID, models.JobFailed, fmt.Sprintf("list pending filings: %v", err))
		return
	}
	if err := r.jobs.SetTotal(ctx, job.ID, len(pending)); err != nil {
		log.Error().Err(err).Msg("set job total")
	}

	companies, err := r.companies.List(ctx)
	if err != nil {
		r.finish(ctx, job.ID, models.JobFailed, fmt.Sprintf("list companies: %v", err))
		return
	}
	byID := make(map[int64]models.Company, len(companies))
	for _, co := range companies {
		byID[co.ID] = co
	}

	for _, filing := range pending {
		co := byID[filing.CompanyID]
		if err := r.filings.SetStatus(ctx, filing.ID, models.FilingProcessing, ""); err != nil {
			log.Error().Err(err).Int64("filing_id", filing.ID).Msg("mark processing failed")
			r.increment(ctx, job.ID)
			continue
		}

		var analysis providers.Analysis
		err := r.policy.Execute(ctx, func(ctx context.Context) error {
			if err := r.llmLimiter.Wait(ctx); err != nil {
				return err
			}
			got, _, aerr := r.analyzer.Analyze(ctx, providers.AnalyzeRequest{
				Ticker:      co.Ticker,
				CompanyName: co.Name,
				RiskFactors: filing.RiskFactors,
				MDA:         filing.MDA,
			})
			if aerr != nil {
				return aerr
			}
			analysis = got
			return nil
		})
		if err != nil {
			if util.Classify(err) == util.KindRateLimited {
				// Restore the in-flight filing so no work is stranded
				// in processing after the abort.
				if serr := r.filings.SetStatus(ctx, filing.ID, models.FilingPending, ""); serr != nil {
					log.Error().Err(serr).Int64("filing_id", filing.ID).Msg("restore pending failed")
				}
				log.Error().Err(err).Str("ticker", co.Ticker).Msg("rate limit persisted, aborting job")
				r.finish(ctx, job.ID, models.JobFailed,
					fmt.Sprintf("aborted at %s: rate limit persisted through retries", co.Ticker))
				return
			}
			log.Warn().Err(err).Str("ticker", co.Ticker).Int64("filing_id", filing.ID).Msg("analysis failed")
			if serr := r.filings.SetStatus(ctx, filing.ID, models.FilingError, err.Error()); serr != nil {
				log.Error().Err(serr).Int64("filing_id", filing.ID).Msg("mark error failed")
			}
			r.increment(ctx, job.ID)
			continue
		}

		if err := r.analyses.Replace(ctx, filing.ID, analysis.Summary, toAssessments(filing.ID, analysis)); err != nil {
			log.Error().Err(err).Int64("filing_id", filing.ID).Msg("store analysis failed")
			if serr := r.filings.SetStatus(ctx, filing.ID, models.FilingError, err.Error()); serr != nil {
				log.Error().Err(serr).Int64("filing_id", filing.ID).Msg("mark error failed")
			}
			r.increment(ctx, job.ID)
			continue
		}
		log.Info().Str("ticker", co.Ticker).Int64("filing_id", filing.ID).Msg("filing analyzed")
		r.increment(ctx, job.ID)
	}

	r.finish(ctx, job.ID, models.JobCompleted, "")
	log.Info().Msg("analyze-all job completed")
}

// toAssessments flattens the provider output into rows, one per category in
// the fixed taxonomy order.
func toAssessments(filingID int64, a providers.Analysis) []models.RiskAssessment {
	out := make([]models.RiskAssessment, 0, len(risk.Categories))
	for _, cat := range risk.Categories {
		ca := a.Risk[cat]
		out = append(out, models.RiskAssessment{
			FilingID: filingID,
			Category: cat,
			Score:    ca.Score,
			Severity: risk.Severity(ca.Score),
			KeyRisks: ca.Risks,
		})
	}
	return out
}

func (r *Runner) increment(ctx context.Context, jobID string) {
	if err := r.jobs.IncrementCompleted(ctx, jobID); err != nil {
		r.log.Error().Err(err).Str("job_id", jobID).Msg("increment progress failed")
	}
}

func (r *Runner) finish(ctx context.Context, jobID string, status models.JobStatus, errMsg string) {
	if err := r.jobs.Finish(ctx, jobID, status, errMsg); err != nil {
		r.log.Error().Err(err).Str("job_id", jobID).Msg("finish job failed")
	}
}
