// Package orchestrator wires together the whole request pipeline: account
// selection, credential refresh, sanitization, pruning, tool mapping,
// request building, upstream streaming, and event translation. It binds
// no HTTP framework itself; cmd/cwproxy and its secondary-transport
// siblings drive it over gin/chi/fiber/echo.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cwbridge/proxy/pkg/accountpool"
	"github.com/cwbridge/proxy/pkg/anthropic"
	"github.com/cwbridge/proxy/pkg/credentials"
	"github.com/cwbridge/proxy/pkg/cwerr"
	"github.com/cwbridge/proxy/pkg/pruner"
	"github.com/cwbridge/proxy/pkg/requestbuilder"
	"github.com/cwbridge/proxy/pkg/sanitizer"
	"github.com/cwbridge/proxy/pkg/streaming"
	"github.com/cwbridge/proxy/pkg/telemetry"
	"github.com/cwbridge/proxy/pkg/toolregistry"
	"github.com/cwbridge/proxy/pkg/upstream"
)

// Config holds the runtime knobs read from environment/config at startup.
type Config struct {
	RequiredAPIKey          string
	Region                  string
	MaxRetries              int
	RequestBaseDelay        time.Duration
	MaxErrorCount           int
	EnableThinkingByDefault bool
	CredentialsDir          string
	RequestTimeout          time.Duration
	EnableTelemetry         bool
}

// Orchestrator is the shared, framework-agnostic request pipeline.
type Orchestrator struct {
	Pool        *accountpool.Pool
	Registry    *toolregistry.Registry
	Refresher   *credentials.Refresher
	Store       *credentials.FileStore
	Transport   *streaming.Transport
	Config      Config
	TokenBudget int // default max_tokens when the client omits one

	usage       *usageCache
	upstreamURL func(region string) string
	telemetry   *telemetry.Settings
}

func New(pool *accountpool.Pool, registry *toolregistry.Registry, refresher *credentials.Refresher, store *credentials.FileStore, cfg Config) *Orchestrator {
	return &Orchestrator{
		Pool:        pool,
		Registry:    registry,
		Refresher:   refresher,
		Store:       store,
		Transport:   streaming.NewTransport(),
		Config:      cfg,
		TokenBudget: 4096,
		usage:       &usageCache{},
		telemetry:   telemetry.DefaultSettings().WithEnabled(cfg.EnableTelemetry),
	}
}

// tracer returns the configured OpenTelemetry tracer, or a no-op tracer
// when telemetry is disabled.
func (o *Orchestrator) tracer() trace.Tracer {
	return telemetry.GetTracer(o.telemetry)
}

// Authenticate checks the bearer credential against the configured API
// key. Accepts either `x-api-key` or `Authorization: Bearer ...`.
func (o *Orchestrator) Authenticate(r *http.Request) bool {
	if o.Config.RequiredAPIKey == "" {
		return true
	}
	if key := r.Header.Get("x-api-key"); key == o.Config.RequiredAPIKey {
		return true
	}
	auth := r.Header.Get("Authorization")
	return auth == "Bearer "+o.Config.RequiredAPIKey
}

// HandleMessages implements POST /v1/messages end to end: it reads and
// authenticates the request, runs the translation pipeline, and writes
// either a buffered Anthropic response or an Anthropic SSE stream.
func (o *Orchestrator) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if !o.Authenticate(r) {
		writeError(w, http.StatusUnauthorized, anthropic.NewErrorBody("authentication_error", "invalid API key"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, anthropic.NewErrorBody("invalid_request_error", "failed to read request body"))
		return
	}

	var req anthropic.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, anthropic.NewErrorBody("invalid_request_error", "malformed JSON body"))
		return
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = o.TokenBudget
	}

	requestID := newRequestID()
	logger := slog.With("request_id", requestID, "model", req.Model, "stream", req.Stream)
	logger.Info("dispatching /v1/messages")

	ctx, cancel := context.WithTimeout(r.Context(), o.requestTimeout())
	defer cancel()

	if req.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		emitter := streaming.NewSSEEmitter(w)
		if err := o.Dispatch(ctx, req, emitter); err != nil {
			logger.Error("stream dispatch failed", "error", err)
			o.emitStreamError(emitter, err)
			return
		}
		logger.Info("stream dispatch completed")
		return
	}

	emitter := &streaming.BufferedEmitter{}
	if err := o.Dispatch(ctx, req, emitter); err != nil {
		logger.Error("buffered dispatch failed", "error", err)
		status, body := anthropicErrorResponse(err)
		writeError(w, status, body)
		return
	}
	logger.Info("buffered dispatch completed", "stop_reason", emitter.Message.StopReason)
	writeJSON(w, http.StatusOK, emitter.Message)
}

// requestTimeout applies the configured budget, defaulting to the upstream
// streaming idle cap from the concurrency model.
func (o *Orchestrator) requestTimeout() time.Duration {
	if o.Config.RequestTimeout > 0 {
		return o.Config.RequestTimeout
	}
	return 120 * time.Second
}

// Dispatch runs the full pipeline for one request and emits Anthropic
// events through emit: select an account, ensure its token is fresh,
// sanitize and prune the conversation, map tools, build the upstream
// request, stream the upstream response, and re-emit it. Within ctx, a
// rate-limited failure is retried on the same account after a backoff and
// a transient transport failure is retried on a reselected account.
func (o *Orchestrator) Dispatch(ctx context.Context, req anthropic.Request, emit streaming.Emitter) error {
	maxAttempts := o.Config.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	baseDelay := o.Config.RequestBaseDelay
	if baseDelay <= 0 {
		baseDelay = 1 * time.Second
	}

	account, err := o.Pool.Select(req.Model)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		stopReason, dispatchErr := o.dispatchOnce(ctx, req, account, emit)
		if dispatchErr == nil {
			_ = stopReason
			return nil
		}
		lastErr = dispatchErr

		pe, ok := cwerr.AsProxyError(dispatchErr)
		if !ok {
			return dispatchErr
		}

		switch pe.Kind {
		case cwerr.KindRateLimited:
			// Same account, exponential backoff; exhausting the budget
			// surfaces the error without touching health state.
			if attempt == maxAttempts {
				return dispatchErr
			}
			if err := sleepOrDone(ctx, backoffDelay(baseDelay, attempt)); err != nil {
				return err
			}
			continue

		case cwerr.KindTransientTransport:
			o.Pool.MarkError(account.UUID, pe.Kind, pe.Message)
			if attempt == maxAttempts {
				return dispatchErr
			}
			next, selErr := o.Pool.Select(req.Model)
			if selErr != nil {
				return dispatchErr
			}
			account = next
			slog.Warn("upstream transient failure, retrying with another account",
				"account", account.UUID, "attempt", attempt)
			continue

		default:
			// ClientFault, AuthExpired, Fatal, CodecError,
			// InternalInvariantViolation: surface immediately, after the
			// MarkError call below applies the kind's health-state effect.
			o.Pool.MarkError(account.UUID, pe.Kind, pe.Message)
			return dispatchErr
		}
	}
	return lastErr
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// dispatchOnce performs one full pipeline pass against a single account:
// no internal retry, so the caller's Dispatch loop owns reselection.
func (o *Orchestrator) dispatchOnce(ctx context.Context, req anthropic.Request, account *accountpool.Account, emit streaming.Emitter) (string, error) {
	return telemetry.RecordSpan(ctx, o.tracer(), telemetry.SpanOptions{
		Name: "cwproxy.dispatch",
		Attributes: []attribute.KeyValue{
			attribute.String("cwproxy.model", req.Model),
			attribute.String("cwproxy.account", account.UUID),
		},
		EndWhenDone: true,
	}, func(ctx context.Context, _ trace.Span) (string, error) {
		return o.runPipeline(ctx, req, account, emit)
	})
}

func (o *Orchestrator) runPipeline(ctx context.Context, req anthropic.Request, account *accountpool.Account, emit streaming.Emitter) (string, error) {
	bundle, err := o.ensureFreshCredential(ctx, account)
	if err != nil {
		return "", err
	}

	messages := sanitizer.Sanitize(req.Messages)
	filtered := o.Registry.Filter(req.Tools)

	reserved := pruner.ReservedTokens(req.System, filtered.Kept)
	messages = pruner.Prune(ctx, messages, pruner.Options{
		Budget:   pruner.AutoPruneThreshold, // in estimator tokens, like Reserved
		Reserved: reserved,
	})

	thinkingEnabled := o.Config.EnableThinkingByDefault
	if req.Thinking != nil {
		thinkingEnabled = req.Thinking.Type == "enabled"
	}

	cs := requestbuilder.Build(requestbuilder.Input{
		Messages:        messages,
		Tools:           req.Tools, // raw, pre-filter: Build applies the registry filter itself
		System:          req.System,
		ModelID:         req.Model,
		ThinkingEnabled: thinkingEnabled,
		Registry:        o.Registry,
	})

	upstreamReq := upstream.Request{ConversationState: cs, ProfileArn: bundle.ProfileArn}
	payload, err := json.Marshal(upstreamReq)
	if err != nil {
		return "", cwerr.New(cwerr.KindInternalInvariantViolation, 0, "marshal upstream request failed", err)
	}

	resp, err := telemetry.RecordSpan(ctx, o.tracer(), telemetry.SpanOptions{
		Name:        "cwproxy.upstream_call",
		Attributes:  []attribute.KeyValue{attribute.String("cwproxy.region", o.regionFor(bundle))},
		EndWhenDone: true,
	}, func(ctx context.Context, _ trace.Span) (*http.Response, error) {
		url := o.generateAssistantResponseURL(bundle)
		resp, err := streaming.StreamWithRetry(ctx, o.Transport, o.Transport.PostEventStream, url, payload, bundle.AccessToken, maxTransportRetries(o.Config.MaxRetries))
		if err != nil {
			return nil, cwerr.New(cwerr.KindTransientTransport, 0, "upstream stream request failed", err)
		}
		if resp.StatusCode >= 400 {
			errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, cwerr.ClassifyHTTP(resp.StatusCode, string(errBody))
		}
		return resp, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return telemetry.RecordSpan(ctx, o.tracer(), telemetry.SpanOptions{
		Name:        "cwproxy.stream_decode",
		EndWhenDone: true,
	}, func(ctx context.Context, _ trace.Span) (string, error) {
		stopReason, err := streaming.Run(ctx, resp.Body, emit, streaming.Options{
			Model:              req.Model,
			Registry:           o.Registry,
			ThinkingInjected:   thinkingEnabled,
			DiscardUnparseable: false,
		})
		if err != nil {
			return "", cwerr.New(cwerr.KindCodecError, 0, "failed decoding upstream stream", err)
		}
		return stopReason, nil
	})
}

// generateAssistantResponseURL builds the upstream streaming endpoint for
// bundle's region. Tests substitute upstreamURL to point at a fake server.
func (o *Orchestrator) generateAssistantResponseURL(bundle credentials.TokenBundle) string {
	if o.upstreamURL != nil {
		return o.upstreamURL(o.regionFor(bundle))
	}
	return fmt.Sprintf("https://codewhisperer.%s.amazonaws.com/generateAssistantResponse", o.regionFor(bundle))
}

func (o *Orchestrator) regionFor(bundle credentials.TokenBundle) string {
	if bundle.Region != "" {
		return bundle.Region
	}
	if o.Config.Region != "" {
		return o.Config.Region
	}
	return "us-east-1"
}

func (o *Orchestrator) ensureFreshCredential(ctx context.Context, account *accountpool.Account) (credentials.TokenBundle, error) {
	path := o.credentialPath(account.CredentialRef)
	bundle, _, err := o.Store.Load(path)
	if err != nil {
		return credentials.TokenBundle{}, cwerr.New(cwerr.KindAuthExpired, 0, "failed to load credential", err)
	}
	fresh, err := o.Refresher.EnsureFresh(ctx, path, bundle)
	if err != nil {
		return credentials.TokenBundle{}, cwerr.New(cwerr.KindAuthExpired, 0, "token refresh failed", err)
	}
	return fresh, nil
}

func (o *Orchestrator) credentialPath(ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(o.Config.CredentialsDir, ref)
}

func maxTransportRetries(configured int) int {
	if configured <= 0 {
		return 3
	}
	return configured
}

func (o *Orchestrator) emitStreamError(emit streaming.Emitter, err error) {
	anthropicType, message := classifyForClient(err)
	_ = emit.Emit(anthropic.NewErrorEvent(anthropicType, message))
	_ = emit.Emit(anthropic.MessageStop{})
}

func anthropicErrorResponse(err error) (int, anthropic.ErrorBody) {
	anthropicType, message := classifyForClient(err)
	status := http.StatusInternalServerError
	if pe, ok := cwerr.AsProxyError(err); ok {
		switch pe.Kind {
		case cwerr.KindClientFault:
			status = http.StatusBadRequest
		case cwerr.KindAuthExpired:
			status = http.StatusUnauthorized
		case cwerr.KindRateLimited:
			status = http.StatusTooManyRequests
		case cwerr.KindFatal:
			status = http.StatusForbidden
		}
	}
	return status, anthropic.NewErrorBody(anthropicType, message)
}

func classifyForClient(err error) (string, string) {
	pe, ok := cwerr.AsProxyError(err)
	if !ok {
		return "api_error", err.Error()
	}
	return pe.Kind.AnthropicType(), pe.Message
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, body anthropic.ErrorBody) {
	writeJSON(w, status, body)
}

// newRequestID produces an opaque debug id for request-scoped logging.
func newRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
