// Package providers holds the clients for third-party data sources: grid
// carbon intensity, air quality, news and a chat completion model. Each
// client returns a value or an error; callers decide the fallback.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// ErrBadResponse is returned for unusable provider payloads
var ErrBadResponse = errors.New("providers: bad response")

// BreakerConfig controls when a provider is considered down
type BreakerConfig struct {
	MaxFailures  int
	ResetTimeout time.Duration
}

// HTTPClient performs JSON requests behind a circuit breaker
type HTTPClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewHTTPClient creates a client named name. A nil httpClient gets a
// client with timeout.
func NewHTTPClient(name string, httpClient *http.Client, timeout time.Duration, cfg BreakerConfig, logger *slog.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("breaker_state_change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &HTTPClient{client: httpClient, breaker: breaker, logger: logger}
}

// Do sends req and decodes a 2xx JSON body into out
func (h *HTTPClient) Do(req *http.Request, out any) error {
	_, err := h.breaker.Execute(func() (interface{}, error) {
		resp, err := h.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<10))
			return nil, fmt.Errorf("%w: status %d from %s", ErrBadResponse, resp.StatusCode, req.URL.Host)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
		}
		return nil, nil
	})
	return err
}

// GetJSON issues a GET request with optional headers
func (h *HTTPClient) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return h.Do(req, out)
}
