package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToAPIError(t *testing.T) {
	cases := []struct {
		name   string
		status int
		err    error
		code   string
	}{
		{"internal", http.StatusInternalServerError, errors.New("boom"), "RR-API-5000"},
		{"missing schema", http.StatusInternalServerError, errors.New(`relation "jobs" does not exist`), "RR-DB-5001"},
		{"db down", http.StatusInternalServerError, errors.New("dial tcp 127.0.0.1:5432: connection refused"), "RR-DB-5002"},
		{"job conflict", http.StatusConflict, errors.New("a job is already running"), "RR-JOB-4009"},
		{"state conflict", http.StatusConflict, errors.New("filing 3 is completed"), "RR-API-4009"},
		{"not found", http.StatusNotFound, errors.New("filing 9 not found"), "RR-API-4004"},
		{"bad request", http.StatusBadRequest, errors.New("invalid filing id"), "RR-API-4001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := toAPIError(tc.status, tc.err)
			require.Equal(t, tc.code, got.Code)
			require.NotEmpty(t, got.Message)
			// Raw error text stays out of client responses.
			require.NotContains(t, got.Message, "boom")
			require.NotContains(t, got.Message, "127.0.0.1")
		})
	}
}
