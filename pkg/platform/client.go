package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPClient fetches documents with bounded retries and exponential backoff.
type HTTPClient struct {
	Client  *http.Client
	Retries int
	Timeout time.Duration
	Backoff time.Duration
	Logger  zerolog.Logger
}

func NewHTTPClient(retries int, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		Client: &http.Client{
			Timeout: timeout,
		},
		Retries: retries,
		Timeout: timeout,
		Backoff: 200 * time.Millisecond,
		Logger:  zerolog.Nop(),
	}
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Get fetches url and returns the body. 5xx responses and transport errors
// are retried; 4xx responses are returned immediately.
func (c *HTTPClient) Get(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	var lastErr error

	for i := 0; i <= c.Retries; i++ {
		body, retry, err := c.getOnce(ctx, url, maxBytes)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retry || i == c.Retries {
			break
		}

		c.Logger.Warn().Err(err).Str("url", url).Int("attempt", i+1).Msg("HTTP request failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(1<<i) * c.Backoff):
		}
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.Retries, lastErr)
}

func (c *HTTPClient) getOnce(ctx context.Context, url string, maxBytes int64) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json, application/yaml")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, true, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, true, err
	}
	if int64(len(body)) > maxBytes {
		return nil, false, fmt.Errorf("GET %s: body exceeds %d bytes", url, maxBytes)
	}
	return body, false, nil
}
