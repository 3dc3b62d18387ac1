package streaming

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbridge/proxy/pkg/cwerr"
	"github.com/cwbridge/proxy/pkg/internal/retry"
)

// Transport is the shared upstream HTTP client. Its *http.Transport is
// replaced wholesale (under an exclusive lock) on a socket-class error,
// per the orchestrator's connection-pool-replacement contract; individual
// requests otherwise share one connection pool with keep-alive.
type Transport struct {
	mu     sync.RWMutex
	client *http.Client
}

// NewTransport builds a Transport with a 30s keep-alive, up to 100 idle
// sockets per host, and LIFO reuse (Go's default transport already serves
// the most-recently-idle connection first).
func NewTransport() *Transport {
	return &Transport{client: &http.Client{Transport: buildRoundTripper()}}
}

func buildRoundTripper() http.RoundTripper {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}

func (t *Transport) httpClient() *http.Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client
}

// Rebuild destroys the current connection pool and starts a fresh one,
// called after a socket-class error.
func (t *Transport) Rebuild() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.client.Transport.(*http.Transport); ok {
		old.CloseIdleConnections()
	}
	t.client = &http.Client{Transport: buildRoundTripper()}
}

// PostEventStreamFunc issues the streaming POST. Separated from the retry
// wrapper so orchestrator tests can substitute an httptest.Server URL.
type PostEventStreamFunc func(ctx context.Context, url string, body []byte, accessToken string) (*http.Response, error)

// PostEventStream opens the upstream streaming call with a fresh
// amz-sdk-invocation-id. The caller owns closing the returned response
// body.
func (t *Transport) PostEventStream(ctx context.Context, url string, body []byte, accessToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("amz-sdk-invocation-id", uuid.New().String())

	resp, err := t.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// RetryConfig builds the upstream retry policy: up to maxRetries retries
// after the first attempt, with a 1s base backoff, only for socket-class
// transport errors.
func RetryConfig(maxRetries int) retry.Config {
	return retry.Config{
		MaxRetries:   maxRetries,
		InitialDelay: 1 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		ShouldRetry: func(err error) bool {
			return cwerr.IsSocketClassError(err)
		},
	}
}

// StreamWithRetry opens the upstream call, rebuilding the connection pool
// and retrying on socket-class errors.
func StreamWithRetry(ctx context.Context, t *Transport, post PostEventStreamFunc, url string, body []byte, accessToken string, maxRetries int) (*http.Response, error) {
	var resp *http.Response
	err := retry.Do(ctx, RetryConfig(maxRetries), func(ctx context.Context) error {
		r, err := post(ctx, url, body, accessToken)
		if err != nil {
			if cwerr.IsSocketClassError(err) {
				t.Rebuild()
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("streaming request failed: %w", err)
	}
	return resp, nil
}
