package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

// toAPIError maps an outcome onto a stable error code and a user-safe
// message. Raw error text never reaches clients; it goes to the logs.
func toAPIError(status int, err error) apiError {
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "RR-DB-5001",
				Message: "Database schema is not initialized. Run migrations and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "RR-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "RR-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusConflict:
		if strings.Contains(raw, "job") {
			return apiError{
				Code:    "RR-JOB-4009",
				Message: "A job is already running. Wait for it to finish and retry.",
			}
		}
		return apiError{
			Code:    "RR-API-4009",
			Message: "Operation conflicts with current state. Check status and retry.",
		}
	case status == http.StatusNotFound:
		return apiError{
			Code:    "RR-API-4004",
			Message: "Requested resource was not found.",
		}
	case status == http.StatusBadRequest:
		msg := "Invalid request. Check inputs and retry."
		switch {
		case strings.Contains(raw, "invalid filing id"):
			msg = "Filing id must be a positive integer."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		}
		return apiError{Code: "RR-API-4001", Message: msg}
	}
	return apiError{Code: "RR-API-4000", Message: "Request failed."}
}
