package aiforecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/irfndi/costcast/internal/config"
	"github.com/irfndi/costcast/internal/models"
)

const maxResponseBytes = 4 << 20

// ErrRateLimited is returned when the local request budget cannot be met before the context ends
var ErrRateLimited = errors.New("AI service request rate exceeded")

// Client is the HTTP client of the external AI forecasting service
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewClient creates a client from the ai configuration section. A
// non-positive RequestsPerSecond disables client-side rate limiting.
func NewClient(cfg config.AIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    strings.TrimSuffix(cfg.ServiceURL, "/"),
		apiKey:     cfg.APIKey,
		limiter:    limiter,
	}
}

// Forecast asks the service for req.Horizon daily predictions
func (c *Client) Forecast(ctx context.Context, req models.AIForecastRequest) ([]models.AIPrediction, error) {
	var response ForecastResponse
	if err := c.makeRequest(ctx, http.MethodPost, "/v1/forecast", req, &response); err != nil {
		return nil, err
	}
	return response.Predictions, nil
}

// HealthCheck checks if the AI service is healthy
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var response HealthResponse
	if err := c.makeRequest(ctx, http.MethodGet, "/health", nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Ping reports only whether the service answered /health successfully
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.HealthCheck(ctx)
	return err
}

func (c *Client) makeRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrRateLimited, ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "costcast/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errorResp ErrorResponse
		msg := strings.TrimSpace(string(respBody))
		if err := json.Unmarshal(respBody, &errorResp); err == nil && errorResp.Error != "" {
			msg = errorResp.Error
			if errorResp.Message != "" {
				msg += ": " + errorResp.Message
			}
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
