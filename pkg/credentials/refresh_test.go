package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalhttp "github.com/cwbridge/proxy/pkg/internal/http"
)

func TestEnsureFreshIsNoopWellBeforeExpiry(t *testing.T) {
	r := NewRefresher(NewFileStore(), internalhttp.NewClient(internalhttp.Config{}))
	bundle := TokenBundle{
		AccessToken:  "at_1",
		RefreshToken: "rt_1",
		ExpiresAt:    time.Now().Add(30 * time.Minute),
	}

	out, err := r.EnsureFresh(context.Background(), filepath.Join(t.TempDir(), "cred.json"), bundle)
	require.NoError(t, err)
	assert.Equal(t, "at_1", out.AccessToken)
}

func TestEnsureFreshConcurrentCallsShareOneNetworkCall(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"accessToken":"at_new","refreshToken":"rt_1","expiresIn":3600}`))
	}))
	defer server.Close()

	client := internalhttp.NewClient(internalhttp.Config{})
	path := filepath.Join(t.TempDir(), "cred.json")
	r := NewRefresher(NewFileStore(), client)
	r.refreshURL = func(AuthMethod, string) string { return server.URL }

	bundle := TokenBundle{
		AccessToken:  "at_old",
		RefreshToken: "rt_1",
		ExpiresAt:    time.Now().Add(-10 * time.Second),
		AuthMethod:   AuthMethodSocial,
		Region:       "us-east-1",
	}

	var wg sync.WaitGroup
	results := make([]TokenBundle, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = r.EnsureFresh(context.Background(), path, bundle)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, "at_new", results[0].AccessToken)
	assert.Equal(t, "at_new", results[1].AccessToken)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "two concurrent refreshes for the same refreshToken must share one network call")
}
