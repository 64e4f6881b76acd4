// Package fetch retrieves the raw configuration document.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/whit3rabbit/siterelay/internal/config"
)

var (
	// ErrStatus reports a non-2xx response.
	ErrStatus = errors.New("unexpected response status")
	// ErrEmptyBody reports a 2xx response without content.
	ErrEmptyBody = errors.New("empty response body")
)

// Client fetches documents over HTTP with retries and rate limiting.
type Client struct {
	resty   *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	mu      sync.RWMutex
}

// NewClient creates an HTTP client from the http section of the config.
func NewClient(cfg config.HTTPConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	// resty owns retries; retryablehttp only supplies its pooled transport.
	transport := retryablehttp.NewClient().HTTPClient.Transport

	restyClient := resty.New()
	restyClient.
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryMax).
		SetRetryWaitTime(cfg.RetryWaitMin).
		SetRetryMaxWaitTime(cfg.RetryWaitMax).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.UserAgent != "" {
		restyClient.SetHeader("User-Agent", cfg.UserAgent)
	}
	restyClient.SetTransport(transport)

	c := &Client{resty: restyClient, logger: logger}
	c.SetRateLimit(cfg.RateLimit)
	return c
}

// SetRateLimit configures rate limiting in requests per second. Zero or a
// negative value disables it.
func (c *Client) SetRateLimit(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rps <= 0 {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	} else {
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// SetHeader adds a default header to every request.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resty.SetHeader(key, value)
}

func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()

	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resty.R().SetContext(ctx), nil
}

// Fetch performs a GET on url and returns the body as text.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}

	resp, err := req.Get(url)
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", url, err)
	}
	c.logger.Debug("config fetched",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode()),
		zap.Int("bytes", len(resp.Body())),
		zap.Duration("elapsed", resp.Time()))

	if !resp.IsSuccess() {
		return "", fmt.Errorf("%w: GET %s: %s", ErrStatus, url, resp.Status())
	}
	body := resp.String()
	if strings.TrimSpace(body) == "" {
		return "", fmt.Errorf("%w: GET %s", ErrEmptyBody, url)
	}
	return body, nil
}
