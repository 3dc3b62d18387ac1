// Package bootstrap assembles an Orchestrator from Config: it loads or
// seeds the account pool and credential store, the shared pieces every
// cmd/cwproxy* transport binary wires up identically.
package bootstrap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cwbridge/proxy/pkg/accountpool"
	"github.com/cwbridge/proxy/pkg/config"
	"github.com/cwbridge/proxy/pkg/credentials"
	"github.com/cwbridge/proxy/pkg/orchestrator"
	"github.com/cwbridge/proxy/pkg/telemetry"
	"github.com/cwbridge/proxy/pkg/toolregistry"
)

// CredentialsDir is where bootstrapped and refreshed TokenBundle files
// live, one JSON file per pool account.
const CredentialsDir = "configs/kiro"

// Build wires a ready-to-serve Orchestrator from cfg: loads the account
// pool from disk (or seeds a single account from the configured
// single-credential bootstrap source), constructs the credential store,
// refresher, and tool registry, and installs the OTLP span exporter when
// telemetry is enabled and an endpoint is configured. The returned
// Exporter is nil when telemetry stays local (no-op tracer only); callers
// should defer its Shutdown when non-nil.
func Build(ctx context.Context, cfg *config.Config) (*orchestrator.Orchestrator, *telemetry.Exporter, error) {
	if err := os.MkdirAll(CredentialsDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create credentials dir: %w", err)
	}

	repo := accountpool.NewFileRepository(cfg.AccountPoolFilePath)
	accounts, err := repo.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load account pool: %w", err)
	}

	if len(accounts) == 0 {
		account, err := bootstrapSingleAccount(cfg)
		if err != nil {
			return nil, nil, err
		}
		if account != nil {
			accounts = []*accountpool.Account{account}
		}
	}
	if len(accounts) == 0 {
		slog.Warn("account pool starting empty; /v1/messages will return no-healthy-account until an account is added")
	}

	pool := accountpool.NewPool(repo, accounts)
	pool.MaxErrorCount = cfg.MaxErrorCount

	registry := toolregistry.New(toolregistry.DefaultTable())
	store := credentials.NewFileStore()
	refresher := credentials.NewRefresher(store, nil)

	var exporter *telemetry.Exporter
	if cfg.EnableTelemetry && cfg.OTLPEndpoint != "" {
		exporter, err = telemetry.Install(ctx, telemetry.ExporterConfig{
			Endpoint:    cfg.OTLPEndpoint,
			ServiceName: "cwproxy",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("install telemetry exporter: %w", err)
		}
	}

	orch := orchestrator.New(pool, registry, refresher, store, orchestrator.Config{
		RequiredAPIKey:          cfg.RequiredAPIKey,
		MaxRetries:              cfg.RequestMaxRetries,
		RequestBaseDelay:        cfg.RequestBaseDelay,
		MaxErrorCount:           cfg.MaxErrorCount,
		EnableThinkingByDefault: cfg.EnableThinkingByDefault,
		CredentialsDir:          CredentialsDir,
		EnableTelemetry:         cfg.EnableTelemetry,
	})
	return orch, exporter, nil
}

// bootstrapSingleAccount materializes one TokenBundle from
// KIRO_OAUTH_CREDS_FILE_PATH or KIRO_OAUTH_CREDS_BASE64 into
// CredentialsDir and returns the pool account pointing at it. Returns
// (nil, nil) if neither source is configured.
func bootstrapSingleAccount(cfg *config.Config) (*accountpool.Account, error) {
	var raw []byte
	switch {
	case cfg.KiroOAuthCredsFilePath != "":
		data, err := os.ReadFile(cfg.KiroOAuthCredsFilePath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", cfg.KiroOAuthCredsFilePath, err)
		}
		raw = data
	case cfg.KiroOAuthCredsBase64 != "":
		data, err := base64.StdEncoding.DecodeString(cfg.KiroOAuthCredsBase64)
		if err != nil {
			return nil, fmt.Errorf("decode KIRO_OAUTH_CREDS_BASE64: %w", err)
		}
		raw = data
	default:
		return nil, nil
	}

	var bundle credentials.TokenBundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("parse bootstrap credential: %w", err)
	}

	path := filepath.Join(CredentialsDir, "default.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("write bootstrap credential: %w", err)
	}

	return &accountpool.Account{
		UUID:          "default",
		CredentialRef: "default.json",
		IsHealthy:     true,
	}, nil
}
