package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/axonlab/mirador/internal/common/config"
	"github.com/axonlab/mirador/internal/common/errorx"
)

// HTTPClient implements Client on top of net/http. GET requests are retried
// with exponential backoff up to the configured budget; POST requests are not
// retried as they are not guaranteed idempotent.
type HTTPClient struct {
	logger *zap.Logger
	client *http.Client

	maxRetries    uint64
	retryInterval time.Duration
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a new HTTP transport from configuration.
func NewHTTPClient(logger *zap.Logger, cfg *config.TransportConfig) *HTTPClient {
	return &HTTPClient{
		logger:        logger.Named("transport.http"),
		client:        &http.Client{Timeout: cfg.Timeout},
		maxRetries:    cfg.MaxRetries,
		retryInterval: cfg.RetryInterval,
	}
}

// Get implements Client.Get
func (c *HTTPClient) Get(ctx context.Context, rawURL string, params url.Values, token string) ([]byte, error) {
	target := rawURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(rawURL, "?") {
			sep = "&"
		}
		target = rawURL + sep + params.Encode()
	}

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		body, err = c.do(req, token)
		if err != nil {
			// Only plain network failures are worth retrying; auth and
			// protocol errors will not improve on a second attempt.
			if errors.Is(err, errorx.ErrUnreachableServer) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(c.retryInterval),
		), c.maxRetries),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return body, nil
}

// PostForm implements Client.PostForm
func (c *HTTPClient) PostForm(ctx context.Context, rawURL string, form url.Values, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, token)
}

func (c *HTTPClient) do(req *http.Request, token string) ([]byte, error) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.String("request_id", reqID),
			zap.Error(err))
		return nil, errors.Join(errorx.ErrUnreachableServer, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Join(errorx.ErrUnreachableServer, err)
	}

	c.logger.Debug("request completed",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.String("request_id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errorx.ErrSessionTokenInvalid
	default:
		return nil, &StatusError{Code: resp.StatusCode, Body: body}
	}
}
