package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RemoteConfig configures the client for a remote capability gateway.
type RemoteConfig struct {
	BaseURL string
	// RPS caps requests per second across all capabilities; 0 disables the limit.
	RPS float64
	// Breaker settings, applied per capability.
	MinRequests      uint32
	FailureThreshold float64
	OpenTimeout      time.Duration
}

// DefaultRemoteConfig returns the settings used by the server.
func DefaultRemoteConfig(baseURL string) RemoteConfig {
	return RemoteConfig{
		BaseURL:          baseURL,
		RPS:              10,
		MinRequests:      5,
		FailureThreshold: 0.8,
		OpenTimeout:      30 * time.Second,
	}
}

// RemoteClient calls capabilities over HTTP: POST {base}/capabilities/{name}.
type RemoteClient struct {
	cfg        RemoteConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewRemoteClient creates a remote capability client.
func NewRemoteClient(cfg RemoteConfig, logger *zap.Logger) *RemoteClient {
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &RemoteClient{
		cfg: cfg,
		// Per-call deadlines come from the caller's context.
		httpClient: &http.Client{},
		limiter:    limiter,
		logger:     logger.Named("remote_tools"),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
	}
}

// errRejected marks a 4xx answer: the capability refused the input. It does not
// count against the breaker.
type errRejected struct {
	status int
	body   string
}

func (e *errRejected) Error() string {
	return fmt.Sprintf("capability rejected request with status %d: %s", e.status, e.body)
}

func (c *RemoteClient) breaker(toolName string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[toolName]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        toolName,
		MaxRequests: 1,
		Timeout:     c.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < c.cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= c.cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				zap.String("tool", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			var rejected *errRejected
			return err == nil || errors.As(err, &rejected) || errors.Is(err, context.Canceled)
		},
	})
	c.breakers[toolName] = cb
	return cb
}

// Execute implements Executor.
func (c *RemoteClient) Execute(ctx context.Context, toolName string, args json.RawMessage) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limit wait: %v", ErrUnavailable, err)
		}
	}

	out, err := c.breaker(toolName).Execute(func() (any, error) {
		return c.post(ctx, toolName, args)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, toolName, err)
		}
		return nil, err
	}
	return out.(json.RawMessage), nil
}

func (c *RemoteClient) post(ctx context.Context, toolName string, args json.RawMessage) (json.RawMessage, error) {
	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/capabilities/" + toolName
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(args))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("capability returned status %d: %s", resp.StatusCode, string(body))
	case resp.StatusCode >= 400:
		return nil, &errRejected{status: resp.StatusCode, body: string(body)}
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("capability returned invalid JSON")
	}
	return json.RawMessage(body), nil
}

// Bind returns an executor that always calls the named capability.
func (c *RemoteClient) Bind(toolName string) ExecutorFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return c.Execute(ctx, toolName, args)
	}
}
