// Package supabase implements the store ports on Supabase's PostgREST API.
// Conditional writes use PostgREST filters on the PATCH itself; the contact log
// goes through the log_lead_contact RPC so both effects commit together.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/boddenberg/leadflow-go/internal/domain"
	"github.com/boddenberg/leadflow-go/internal/infra/resilience"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	bulkhead       *resilience.Bulkhead
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		bulkhead:       resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:            cfg,
		logger:         logger,
	}
}

// apiError is a non-2xx PostgREST response. Code carries the SQLSTATE when present.
type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Body    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("supabase returned status %d (%s): %s", e.Status, e.Code, e.Body)
}

// transient reports whether err is worth retrying: transport failures and 5xx.
func transient(err error) bool {
	if domain.ErrorKind(err) != "internal" {
		return false
	}
	var api *apiError
	if errors.As(err, &api) {
		return api.Status >= 500
	}
	return true
}

// doRequest executes an authenticated request to Supabase PostgREST.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any, prefer string) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(respBody)),
		)
		apiErr := &apiError{Status: resp.StatusCode, Body: string(respBody)}
		_ = json.Unmarshal(respBody, apiErr)
		return nil, apiErr
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)

	return respBody, nil
}

// call runs fn behind the bulkhead, the circuit breaker and transient-error retries.
// Domain errors pass through untouched; anything else is reported as an external failure.
func call[T any](ctx context.Context, c *Client, service string, fn func() (T, error)) (T, error) {
	var zero T
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return zero, err
	}
	defer c.bulkhead.Release()

	out, err := resilience.Execute(c.cb, func() (T, error) {
		var result T
		err := resilience.RetryIf(ctx, c.cfg, transient, func() error {
			var err error
			result, err = fn()
			return err
		})
		return result, err
	})
	if err != nil {
		if domain.ErrorKind(err) != "internal" {
			return zero, err
		}
		return zero, &domain.ErrExternalService{Service: service, Err: err}
	}
	return out, nil
}
