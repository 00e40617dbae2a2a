package tilecache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Transport fetches raw tile bytes
type Transport interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// TransportFunc adapts a function to Transport
type TransportFunc func(ctx context.Context, url string) ([]byte, error)

func (f TransportFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.Code)
}

// IsStatus reports whether err carries the given HTTP status
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// maxTileBytes bounds a response body
const maxTileBytes = 16 << 20

// HTTPTransport fetches tiles over HTTP
type HTTPTransport struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPTransport creates a transport. maxRetries 0 means a single attempt;
// a failed tile is otherwise retried by the next FetchTile call.
func NewHTTPTransport(timeout time.Duration, maxRetries int) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &HTTPTransport{
		client:     &http.Client{Timeout: timeout},
		userAgent:  "tileworld-go/1.0",
		maxRetries: maxRetries,
		retryDelay: time.Second,
	}
}

// Fetch performs a GET, retrying transport errors and 5xx up to maxRetries
func (t *HTTPTransport) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(t.retryDelay):
			}
		}

		body, err := t.get(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if t.maxRetries > 0 {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}
	return nil, lastErr
}

func (t *HTTPTransport) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Accept", "application/vnd.mapbox-vector-tile, application/x-protobuf")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read tile body: %w", err)
	}
	return body, nil
}
