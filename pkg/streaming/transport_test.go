package streaming

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportPostEventStreamSendsAuthAndInvocationID(t *testing.T) {
	var gotAuth, gotInvocationID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotInvocationID = r.Header.Get("amz-sdk-invocation-id")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	tr := NewTransport()
	resp, err := tr.PostEventStream(context.Background(), server.URL, []byte(`{}`), "tok_123")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "Bearer tok_123", gotAuth)
	assert.NotEmpty(t, gotInvocationID)
}

func TestStreamWithRetryRebuildsPoolOnSocketError(t *testing.T) {
	attempts := 0
	post := func(ctx context.Context, url string, body []byte, token string) (*http.Response, error) {
		attempts++
		if attempts < 2 {
			return nil, errConnReset{}
		}
		return &http.Response{StatusCode: 200, Body: io.NopCloser(nil)}, nil
	}

	tr := NewTransport()
	resp, err := StreamWithRetry(context.Background(), tr, post, "http://example.invalid", []byte(`{}`), "tok", 3)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 2, attempts)
}

type errConnReset struct{}

func (errConnReset) Error() string { return "read: connection reset by peer" }
