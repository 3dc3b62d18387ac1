package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbridge/proxy/pkg/accountpool"
	"github.com/cwbridge/proxy/pkg/anthropic"
	"github.com/cwbridge/proxy/pkg/credentials"
	"github.com/cwbridge/proxy/pkg/eventstream"
	"github.com/cwbridge/proxy/pkg/streaming"
	"github.com/cwbridge/proxy/pkg/toolregistry"
)

func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func contentFrame(text string) eventstream.Frame {
	return eventstream.Frame{EventType: "assistantResponseEvent", Payload: []byte(`{"content":` + quoteJSON(text) + `}`)}
}

// writeCredential seeds a valid, non-expiring credential file and returns
// its path.
func writeCredential(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	bundle := credentials.TokenBundle{
		AccessToken:  "access-" + name,
		RefreshToken: "refresh-" + name,
		ExpiresAt:    time.Now().Add(1 * time.Hour),
		AuthMethod:   credentials.AuthMethodSocial,
		Region:       "us-east-1",
	}
	data, err := json.Marshal(bundle)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func newTestOrchestrator(t *testing.T, accounts []*accountpool.Account, upstreamURL string) *Orchestrator {
	t.Helper()
	pool := accountpool.NewPool(nil, accounts)
	registry := toolregistry.New(nil)
	store := credentials.NewFileStore()
	refresher := credentials.NewRefresher(store, nil)

	o := New(pool, registry, refresher, store, Config{
		CredentialsDir: filepath.Dir(accounts[0].CredentialRef),
		MaxRetries:     1,
	})
	o.upstreamURL = func(region string) string { return upstreamURL }
	return o
}

func TestDispatchStreamingTextEcho(t *testing.T) {
	dir := t.TempDir()
	credPath := writeCredential(t, dir, "a.json")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		frames := []eventstream.Frame{contentFrame("po"), contentFrame("ng")}
		w.WriteHeader(http.StatusOK)
		w.Write(eventstream.Encode(frames))
	}))
	defer server.Close()

	account := &accountpool.Account{UUID: "a", CredentialRef: credPath, IsHealthy: true}
	o := newTestOrchestrator(t, []*accountpool.Account{account}, server.URL)

	req := anthropic.Request{
		Model:     "claude-sonnet-4-20250514",
		Stream:    true,
		MaxTokens: 1024,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.ContentPart{&anthropic.TextPart{Text: "ping"}}},
		},
	}
	emitter := &recordingEmitter{}
	err := o.Dispatch(context.Background(), req, emitter)
	require.NoError(t, err)

	var deltas []string
	for _, ev := range emitter.events {
		if d, ok := ev.(anthropic.ContentBlockDelta); ok && d.Delta.Type == "text_delta" {
			deltas = append(deltas, d.Delta.Text)
		}
	}
	assert.Equal(t, []string{"po", "ng"}, deltas)
}

func TestDispatchMarksAccountUnhealthyOnFatalThenUsesSecondAccount(t *testing.T) {
	dir := t.TempDir()
	credA := writeCredential(t, dir, "a.json")
	credB := writeCredential(t, dir, "b.json")

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"account suspended"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write(eventstream.Encode([]eventstream.Frame{contentFrame("ok")}))
	}))
	defer server.Close()

	accountA := &accountpool.Account{UUID: "a", CredentialRef: credA, IsHealthy: true}
	accountB := &accountpool.Account{UUID: "b", CredentialRef: credB, IsHealthy: true}
	o := newTestOrchestrator(t, []*accountpool.Account{accountA, accountB}, server.URL)

	req := anthropic.Request{
		Model:     "claude-sonnet-4-20250514",
		Stream:    true,
		MaxTokens: 1024,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.ContentPart{&anthropic.TextPart{Text: "hi"}}},
		},
	}

	first := &recordingEmitter{}
	err := o.Dispatch(context.Background(), req, first)
	require.Error(t, err)
	assert.False(t, accountA.IsHealthy)
	assert.GreaterOrEqual(t, accountA.ErrorCount, 1)

	second := &recordingEmitter{}
	err = o.Dispatch(context.Background(), req, second)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

// recordingEmitter captures every emitted event in order for assertions.
type recordingEmitter struct {
	events []anthropic.Event
}

func (e *recordingEmitter) Emit(ev anthropic.Event) error {
	e.events = append(e.events, ev)
	return nil
}

var _ streaming.Emitter = (*recordingEmitter)(nil)
