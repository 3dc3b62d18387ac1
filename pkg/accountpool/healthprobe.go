package accountpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cwbridge/proxy/pkg/cwerr"
)

// DefaultProbeModel is the model used for the minimal health-check request
// when no probe model is configured.
const DefaultProbeModel = "claude-sonnet-4-20250514"

// Prober issues a minimal one-token completion against an account's bound
// endpoint to verify it can still serve requests.
type Prober struct {
	Client     *http.Client
	Endpoint   string // full /v1/messages URL of this proxy, or the upstream's
	APIKey     string
	ProbeModel string
}

func NewProber(endpoint, apiKey string) *Prober {
	return &Prober{
		Client:     &http.Client{Timeout: 15 * time.Second},
		Endpoint:   endpoint,
		APIKey:     apiKey,
		ProbeModel: DefaultProbeModel,
	}
}

type probeRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	Messages  []probeMessage `json:"messages"`
}

type probeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Probe sends `{role:user, content:"Hi"}` against the configured probe
// model and reports whether the account should be considered healthy.
func (p *Prober) Probe(ctx context.Context, accountUUID string) error {
	model := p.ProbeModel
	if model == "" {
		model = DefaultProbeModel
	}
	body, err := json.Marshal(probeRequest{
		Model:     model,
		MaxTokens: 1,
		Messages:  []probeMessage{{Role: "user", Content: "Hi"}},
	})
	if err != nil {
		return fmt.Errorf("marshal probe request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.APIKey)
	req.Header.Set("x-account-uuid", accountUUID)

	resp, err := p.Client.Do(req)
	if err != nil {
		return fmt.Errorf("probe request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("probe returned %d: %s", resp.StatusCode, string(errBody))
	}
	return nil
}

// RunProbe probes the account and updates its health accordingly.
func (p *Pool) RunProbe(ctx context.Context, prober *Prober, uuid string) error {
	err := prober.Probe(ctx, uuid)
	if err != nil {
		p.MarkError(uuid, cwerr.KindTransientTransport, err.Error())
		return err
	}
	p.MarkHealthy(uuid, prober.ProbeModel)
	return nil
}
