package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"riskradar/internal/config"
	"riskradar/internal/jobs"
	"riskradar/internal/models"
)

// stubJobs is an empty job store: no job has ever run.
type stubJobs struct{}

func (stubJobs) StartRunning(ctx context.Context, kind models.JobKind) (models.Job, error) {
	return models.Job{}, nil
}
func (stubJobs) SetTotal(ctx context.Context, id string, total int) error { return nil }

func (stubJobs) IncrementCompleted(ctx context.Context, id string) error { return nil }

func (stubJobs) Finish(ctx context.Context, id string, status models.JobStatus, errMsg string) error {
	return nil
}

func (stubJobs) Get(ctx context.Context, id string) (*models.Job, error) { return nil, nil }

func (stubJobs) Latest(ctx context.Context) (*models.Job, error) { return nil, nil }

func (stubJobs) History(ctx context.Context, limit int) ([]models.Job, error) { return nil, nil }

func statusServer() *Server {
	runner := jobs.NewRunner(zerolog.Nop(), config.Config{}, nil, nil, nil, stubJobs{}, nil, nil)
	return &Server{log: zerolog.Nop(), runner: runner}
}

func TestJobStatusNullBeforeFirstJob(t *testing.T) {
	s := statusServer()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/status", nil)
	rec := httptest.NewRecorder()
	s.handleJobStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestJobStatusUnknownIDIs404(t *testing.T) {
	s := statusServer()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/status?job_id=nope", nil)
	rec := httptest.NewRecorder()
	s.handleJobStatus(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "RR-API-4004")
}
