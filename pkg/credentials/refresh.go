package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cwbridge/proxy/pkg/cwerr"
	internalhttp "github.com/cwbridge/proxy/pkg/internal/http"
)

// ExpireWindow is how far in advance of actual expiry EnsureFresh treats a
// token as due for refresh.
const ExpireWindow = 5 * time.Minute

// RefreshDebounce is the minimum interval between two refresh attempts for
// the same refreshToken.
const RefreshDebounce = 30 * time.Second

const (
	socialRefreshURLTemplate = "https://prod.%s.auth.desktop.kiro.dev/refreshToken"
	oidcTokenURLTemplate     = "https://oidc.%s.amazonaws.com/token"
)

// Refresher ensures a TokenBundle's access token is fresh, serializing
// concurrent refresh attempts per distinct refreshToken value and
// debouncing repeat attempts within RefreshDebounce.
type Refresher struct {
	store  *FileStore
	client *internalhttp.Client

	mu          sync.Mutex
	inFlight    map[string]*refreshCall
	lastAttempt map[string]time.Time

	// refreshURL resolves the auth-method-specific endpoint for a given
	// region; overridden in tests to point at a local server.
	refreshURL func(method AuthMethod, region string) string
}

// refreshCall lets concurrent callers sharing a refreshToken await one
// in-flight HTTP round trip instead of issuing their own.
type refreshCall struct {
	done   chan struct{}
	result TokenBundle
	err    error
}

func NewRefresher(store *FileStore, client *internalhttp.Client) *Refresher {
	if client == nil {
		client = internalhttp.NewClient(internalhttp.Config{})
	}
	return &Refresher{
		store:       store,
		client:      client,
		inFlight:    map[string]*refreshCall{},
		lastAttempt: map[string]time.Time{},
		refreshURL:  defaultRefreshURL,
	}
}

func defaultRefreshURL(method AuthMethod, region string) string {
	if method == AuthMethodIdC {
		return fmt.Sprintf(oidcTokenURLTemplate, region)
	}
	return fmt.Sprintf(socialRefreshURLTemplate, region)
}

// EnsureFresh is a no-op if bundle.ExpiresAt is more than ExpireWindow in
// the future. Otherwise it refreshes under a per-refreshToken lock, debounced
// to one attempt per RefreshDebounce, persisting the result to path.
func (r *Refresher) EnsureFresh(ctx context.Context, path string, bundle TokenBundle) (TokenBundle, error) {
	now := time.Now()
	if !bundle.ExpiresWithin(ExpireWindow, now) {
		return bundle, nil
	}

	call, started := r.joinOrStart(bundle)
	if !started {
		<-call.done
		return call.result, call.err
	}

	result, err := r.doRefresh(ctx, bundle)
	if err == nil {
		if saveErr := r.store.Save(path, result); saveErr != nil {
			err = saveErr
		}
	}
	call.result, call.err = result, err
	close(call.done)

	r.mu.Lock()
	delete(r.inFlight, bundle.RefreshToken)
	r.mu.Unlock()

	return result, err
}

// joinOrStart registers this call as the in-flight refresh for
// bundle.RefreshToken, or returns the existing one if another goroutine
// already started it. When none is in flight but the debounce window has
// not elapsed, it synthesizes a result without a network call: the
// already-current bundle if still valid, or a TokenExpired error if not.
func (r *Refresher) joinOrStart(bundle TokenBundle) (*refreshCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if call, ok := r.inFlight[bundle.RefreshToken]; ok {
		return call, false
	}

	if last, ok := r.lastAttempt[bundle.RefreshToken]; ok && time.Since(last) < RefreshDebounce {
		call := &refreshCall{done: make(chan struct{})}
		if time.Now().After(bundle.ExpiresAt) {
			call.err = cwerr.New(cwerr.KindAuthExpired, 0, "token expired and refresh is debounced", nil)
		} else {
			call.result = bundle
		}
		close(call.done)
		return call, false
	}

	r.lastAttempt[bundle.RefreshToken] = time.Now()
	call := &refreshCall{done: make(chan struct{})}
	r.inFlight[bundle.RefreshToken] = call
	return call, true
}

func (r *Refresher) doRefresh(ctx context.Context, bundle TokenBundle) (TokenBundle, error) {
	region := bundle.Region
	if region == "" {
		region = "us-east-1"
	}

	url := r.refreshURL(bundle.AuthMethod, region)

	var resp tokenRefreshResponse
	var err error
	switch bundle.AuthMethod {
	case AuthMethodIdC:
		err = r.client.PostJSON(ctx, url, map[string]string{
			"refreshToken": bundle.RefreshToken,
			"clientId":     bundle.ClientID,
			"clientSecret": bundle.ClientSecret,
			"grantType":    "refresh_token",
		}, &resp)
	default:
		err = r.client.PostJSON(ctx, url, map[string]string{
			"refreshToken": bundle.RefreshToken,
		}, &resp)
	}

	if err != nil {
		return TokenBundle{}, cwerr.New(cwerr.KindAuthExpired, 0, "refresh request failed", err)
	}
	if resp.AccessToken == "" {
		return TokenBundle{}, cwerr.New(cwerr.KindAuthExpired, 0, "refresh response missing accessToken", nil)
	}

	out := bundle
	out.AccessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		out.RefreshToken = resp.RefreshToken
	}
	if resp.ProfileArn != "" {
		out.ProfileArn = resp.ProfileArn
	}
	out.ExpiresAt = computeExpiresAt(resp)
	return out, nil
}

type tokenRefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ProfileArn   string `json:"profileArn,omitempty"`
	ExpiresIn    int    `json:"expiresIn,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

func computeExpiresAt(resp tokenRefreshResponse) time.Time {
	if resp.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if resp.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, resp.ExpiresAt); err == nil {
			return t
		}
	}
	return time.Now().Add(1 * time.Hour)
}
