package aiforecast

import (
	"fmt"

	"github.com/irfndi/costcast/internal/models"
)

// ForecastResponse is returned by POST /v1/forecast
type ForecastResponse struct {
	Predictions []models.AIPrediction `json:"predictions"`
	Model       string                `json:"model,omitempty"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse is the error body used by the AI service
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// StatusError reports a non-2xx answer from the AI service
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("AI service error (%d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the same request may succeed later
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
