package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"riskradar/internal/config"
	"riskradar/internal/edgar"
	"riskradar/internal/models"
	"riskradar/internal/providers"
	"riskradar/internal/util"
)

// memStore backs all four store interfaces for runner tests.
type memStore struct {
	mu        sync.Mutex
	companies []models.Company
	filings   map[int64]*models.Filing
	summaries map[int64]string
	nextID    int64
	jobs      map[string]*models.Job
	jobOrder  []string
}

func newMemStore(companies ...models.Company) *memStore {
	return &memStore{
		companies: companies,
		filings:   make(map[int64]*models.Filing),
		summaries: make(map[int64]string),
		jobs:      make(map[string]*models.Job),
	}
}

func (s *memStore) List(ctx context.Context) ([]models.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Company, len(s.companies))
	copy(out, s.companies)
	return out, nil
}

func (s *memStore) BackfillIdentity(ctx context.Context, id int64, cik, sector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.companies {
		if s.companies[i].ID == id {
			s.companies[i].CIK = cik
			s.companies[i].Sector = sector
		}
	}
	return nil
}

func (s *memStore) Insert(ctx context.Context, f *models.Filing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	f.ID = s.nextID
	cp := *f
	s.filings[f.ID] = &cp
	return nil
}

func (s *memStore) AccessionExists(ctx context.Context, accession string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.filings {
		if f.AccessionNumber == accession {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) HasFilingOfType(ctx context.Context, companyID int64, filingType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.filings {
		if f.CompanyID == companyID && f.FilingType == filingType {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListPending(ctx context.Context) ([]models.Filing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Filing, 0)
	for _, f := range s.filings {
		if f.Status == models.FilingPending {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SetStatus(ctx context.Context, id int64, status models.FilingStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.filings[id]
	if !ok {
		return fmt.Errorf("filing %d not found", id)
	}
	f.Status = status
	f.ErrorMessage = errMsg
	return nil
}

func (s *memStore) Replace(ctx context.Context, filingID int64, summary string, assessments []models.RiskAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.filings[filingID]
	if !ok {
		return fmt.Errorf("filing %d not found", filingID)
	}
	s.summaries[filingID] = summary
	f.Status = models.FilingCompleted
	f.ErrorMessage = ""
	return nil
}

func (s *memStore) StartRunning(ctx context.Context, kind models.JobKind) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.Status == models.JobRunning {
			return models.Job{}, util.ErrJobAlreadyRunning
		}
	}
	job := models.Job{ID: uuid.NewString(), Kind: kind, Status: models.JobRunning}
	cp := job
	s.jobs[job.ID] = &cp
	s.jobOrder = append(s.jobOrder, job.ID)
	return job, nil
}

func (s *memStore) SetTotal(ctx context.Context, id string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j := s.jobs[id]; j != nil && j.Status == models.JobRunning {
		j.TotalItems = total
	}
	return nil
}

func (s *memStore) IncrementCompleted(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j := s.jobs[id]; j != nil && j.Status == models.JobRunning && j.CompletedItems < j.TotalItems {
		j.CompletedItems++
	}
	return nil
}

func (s *memStore) Finish(ctx context.Context, id string, status models.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j := s.jobs[id]; j != nil && j.Status == models.JobRunning {
		j.Status = status
		j.ErrorMessage = errMsg
	}
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) Latest(ctx context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobOrder) == 0 {
		return nil, nil
	}
	cp := *s.jobs[s.jobOrder[len(s.jobOrder)-1]]
	return &cp, nil
}

func (s *memStore) History(ctx context.Context, limit int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Job, 0, limit)
	for i := len(s.jobOrder) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *s.jobs[s.jobOrder[i]])
	}
	return out, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(ticker string) (edgar.Filing10K, error)
}

func (f *fakeFetcher) FetchLatest10K(ctx context.Context, ticker string) (edgar.Filing10K, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(ticker)
}

type fakeAnalyzer struct {
	fn func(req providers.AnalyzeRequest) (providers.Analysis, error)
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, req providers.AnalyzeRequest) (providers.Analysis, providers.ProviderInfo, error) {
	got, err := a.fn(req)
	return got, providers.ProviderInfo{Name: "fake"}, err
}

func goodAnalysis() providers.Analysis {
	risk := make(map[string]providers.CategoryAssessment)
	for _, cat := range []string{"operational", "financial", "regulatory", "strategic", "reputational"} {
		risk[cat] = providers.CategoryAssessment{Score: 5, Risks: []string{"some risk"}}
	}
	return providers.Analysis{Summary: "flat profile", Risk: risk}
}

func filing10K(ticker string) edgar.Filing10K {
	return edgar.Filing10K{
		CIK:             "0000000001",
		CompanyName:     ticker + " Corp",
		Sector:          "Testing",
		AccessionNumber: "0000000001-24-" + ticker,
		Sections:        edgar.Sections{RiskFactors: "risks for " + ticker, MDA: "mda for " + ticker},
	}
}

func newTestRunner(store *memStore, fetcher Fetcher, analyzer providers.Analyzer) *Runner {
	cfg := config.Config{
		SECRatePerSec:         1000,
		LLMRPM:                600000,
		MaxAttempts:           3,
		RetryBaseDelaySecs:    1,
		RetryMaxDelaySecs:     60,
		RateLimitCooldownSecs: 60,
	}
	r := NewRunner(zerolog.Nop(), cfg, store, store, store, store, fetcher, analyzer)
	r.policy.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return r
}

func companies(tickers ...string) []models.Company {
	out := make([]models.Company, 0, len(tickers))
	for i, tk := range tickers {
		out = append(out, models.Company{ID: int64(i + 1), Ticker: tk, Name: tk + " Corp"})
	}
	return out
}

func TestFetchAllSkipsUnfetchableCompany(t *testing.T) {
	store := newMemStore(companies("AAA", "BBB", "CCC")...)
	fetcher := &fakeFetcher{fn: func(ticker string) (edgar.Filing10K, error) {
		if ticker == "BBB" {
			return edgar.Filing10K{}, fmt.Errorf("no 10-K on file for BBB: %w", util.ErrNotFound)
		}
		return filing10K(ticker), nil
	}}
	r := newTestRunner(store, fetcher, &fakeAnalyzer{})

	job, err := store.StartRunning(context.Background(), models.JobFetch)
	require.NoError(t, err)
	r.runFetch(context.Background(), job)

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	// One unfetchable company does not fail the batch: the job completes
	// with every item accounted for.
	require.Equal(t, models.JobCompleted, got.Status)
	require.Equal(t, 3, got.TotalItems)
	require.Equal(t, 3, got.CompletedItems)
	require.Len(t, store.filings, 2)
}

func TestFetchAllIsIdempotent(t *testing.T) {
	store := newMemStore(companies("AAA", "BBB")...)
	fetcher := &fakeFetcher{fn: func(ticker string) (edgar.Filing10K, error) {
		return filing10K(ticker), nil
	}}
	r := newTestRunner(store, fetcher, &fakeAnalyzer{})

	job1, err := store.StartRunning(context.Background(), models.JobFetch)
	require.NoError(t, err)
	r.runFetch(context.Background(), job1)
	require.Len(t, store.filings, 2)
	require.Equal(t, 2, fetcher.calls)

	job2, err := store.StartRunning(context.Background(), models.JobFetch)
	require.NoError(t, err)
	r.runFetch(context.Background(), job2)

	got, err := store.Get(context.Background(), job2.ID)
	require.NoError(t, err)
	// Companies with a stored 10-K are skipped without touching EDGAR,
	// but still count as processed.
	require.Equal(t, models.JobCompleted, got.Status)
	require.Equal(t, 2, got.CompletedItems)
	require.Len(t, store.filings, 2)
	require.Equal(t, 2, fetcher.calls)
}

func TestFetchAllBackfillsIdentity(t *testing.T) {
	store := newMemStore(companies("AAA")...)
	fetcher := &fakeFetcher{fn: func(ticker string) (edgar.Filing10K, error) {
		return filing10K(ticker), nil
	}}
	r := newTestRunner(store, fetcher, &fakeAnalyzer{})

	job, err := store.StartRunning(context.Background(), models.JobFetch)
	require.NoError(t, err)
	r.runFetch(context.Background(), job)

	require.Equal(t, "0000000001", store.companies[0].CIK)
	require.Equal(t, "Testing", store.companies[0].Sector)
}

func TestFetchAllAbortsWhenRateLimitPersists(t *testing.T) {
	store := newMemStore(companies("AAA", "BBB", "CCC")...)
	fetcher := &fakeFetcher{fn: func(ticker string) (edgar.Filing10K, error) {
		if ticker == "BBB" {
			return edgar.Filing10K{}, fmt.Errorf("status 429: %w", util.ErrRateLimited)
		}
		return filing10K(ticker), nil
	}}
	r := newTestRunner(store, fetcher, &fakeAnalyzer{})

	job, err := store.StartRunning(context.Background(), models.JobFetch)
	require.NoError(t, err)
	r.runFetch(context.Background(), job)

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobFailed, got.Status)
	require.Contains(t, got.ErrorMessage, "BBB")
	// Only the item processed before the wall counts.
	require.Equal(t, 1, got.CompletedItems)
	require.Len(t, store.filings, 1)
}

func TestAnalyzeAllCompletesPendingFilings(t *testing.T) {
	store := newMemStore(companies("AAA", "BBB")...)
	for i := int64(1); i <= 2; i++ {
		require.NoError(t, store.Insert(context.Background(), &models.Filing{
			CompanyID: i, FilingType: models.FilingType10K, Status: models.FilingPending,
			RiskFactors: "risks", MDA: "mda",
		}))
	}
	analyzer := &fakeAnalyzer{fn: func(req providers.AnalyzeRequest) (providers.Analysis, error) {
		return goodAnalysis(), nil
	}}
	r := newTestRunner(store, &fakeFetcher{}, analyzer)

	job, err := store.StartRunning(context.Background(), models.JobAnalyze)
	require.NoError(t, err)
	r.runAnalyze(context.Background(), job)

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobCompleted, got.Status)
	require.Equal(t, 2, got.CompletedItems)
	for _, f := range store.filings {
		require.Equal(t, models.FilingCompleted, f.Status)
	}
	require.Equal(t, "flat profile", store.summaries[1])
}

func TestAnalyzeAllRateLimitAbortRestoresInFlightFiling(t *testing.T) {
	tickers := []string{"T01", "T02", "T03", "T04", "T05", "T06", "T07", "T08", "T09", "T10"}
	store := newMemStore(companies(tickers...)...)
	for i := int64(1); i <= 10; i++ {
		require.NoError(t, store.Insert(context.Background(), &models.Filing{
			CompanyID: i, FilingType: models.FilingType10K, Status: models.FilingPending,
		}))
	}
	analyzer := &fakeAnalyzer{fn: func(req providers.AnalyzeRequest) (providers.Analysis, error) {
		if req.Ticker == "T05" {
			return providers.Analysis{}, fmt.Errorf("status 429: %w", util.ErrRateLimited)
		}
		return goodAnalysis(), nil
	}}
	r := newTestRunner(store, &fakeFetcher{}, analyzer)

	job, err := store.StartRunning(context.Background(), models.JobAnalyze)
	require.NoError(t, err)
	r.runAnalyze(context.Background(), job)

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobFailed, got.Status)
	require.Equal(t, 10, got.TotalItems)
	require.Equal(t, 4, got.CompletedItems)

	// The aborted item goes back to pending; nothing is stranded in
	// processing, and the untouched tail stays pending for the next run.
	byStatus := map[models.FilingStatus]int{}
	for _, f := range store.filings {
		byStatus[f.Status]++
	}
	require.Equal(t, 4, byStatus[models.FilingCompleted])
	require.Equal(t, 6, byStatus[models.FilingPending])
	require.Zero(t, byStatus[models.FilingProcessing])
}

func TestAnalyzeAllMarksBadResponsesAndContinues(t *testing.T) {
	store := newMemStore(companies("AAA", "BBB")...)
	for i := int64(1); i <= 2; i++ {
		require.NoError(t, store.Insert(context.Background(), &models.Filing{
			CompanyID: i, FilingType: models.FilingType10K, Status: models.FilingPending,
		}))
	}
	analyzer := &fakeAnalyzer{fn: func(req providers.AnalyzeRequest) (providers.Analysis, error) {
		if req.Ticker == "AAA" {
			return providers.Analysis{}, fmt.Errorf("bad json: %w", util.ErrMalformedResponse)
		}
		return goodAnalysis(), nil
	}}
	r := newTestRunner(store, &fakeFetcher{}, analyzer)

	job, err := store.StartRunning(context.Background(), models.JobAnalyze)
	require.NoError(t, err)
	r.runAnalyze(context.Background(), job)

	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobCompleted, got.Status)
	require.Equal(t, 2, got.CompletedItems)
	require.Equal(t, models.FilingError, store.filings[1].Status)
	require.Contains(t, store.filings[1].ErrorMessage, "bad json")
	require.Equal(t, models.FilingCompleted, store.filings[2].Status)
}

func TestExecuteFailsJobOnPanic(t *testing.T) {
	store := newMemStore(companies("AAA")...)
	fetcher := &fakeFetcher{fn: func(ticker string) (edgar.Filing10K, error) {
		panic("boom")
	}}
	r := newTestRunner(store, fetcher, &fakeAnalyzer{})

	job, err := store.StartRunning(context.Background(), models.JobFetch)
	require.NoError(t, err)
	require.NotPanics(t, func() {
		r.execute(context.Background(), job, r.runFetch)
	})

	// The job must end up failed so the singleton slot is free again.
	got, err := store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobFailed, got.Status)
	require.Contains(t, got.ErrorMessage, "internal error")

	_, err = store.StartRunning(context.Background(), models.JobFetch)
	require.NoError(t, err)
}

func TestStartRejectsSecondJob(t *testing.T) {
	store := newMemStore(companies("AAA")...)
	r := newTestRunner(store, &fakeFetcher{}, &fakeAnalyzer{})

	running, err := store.StartRunning(context.Background(), models.JobFetch)
	require.NoError(t, err)

	_, err = r.StartAnalyzeAll(context.Background())
	require.ErrorIs(t, err, util.ErrJobAlreadyRunning)
	_, err = r.StartFetchAll(context.Background())
	require.ErrorIs(t, err, util.ErrJobAlreadyRunning)

	// The running job is untouched by the rejected starts.
	got, err := store.Get(context.Background(), running.ID)
	require.NoError(t, err)
	require.Equal(t, models.JobRunning, got.Status)
	require.Zero(t, got.CompletedItems)
}
