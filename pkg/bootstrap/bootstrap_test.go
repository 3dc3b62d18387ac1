package bootstrap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbridge/proxy/pkg/config"
	"github.com/cwbridge/proxy/pkg/credentials"
)

func TestBuildBootstrapsSingleAccountFromBase64(t *testing.T) {
	t.Chdir(t.TempDir())

	bundle := credentials.TokenBundle{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    time.Now().Add(time.Hour),
		AuthMethod:   credentials.AuthMethodSocial,
		Region:       "us-east-1",
	}
	raw, err := json.Marshal(bundle)
	require.NoError(t, err)

	cfg := &config.Config{
		AccountPoolFilePath:  "accounts.json",
		KiroOAuthCredsBase64: base64.StdEncoding.EncodeToString(raw),
		MaxErrorCount:        3,
	}

	orch, exporter, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, exporter, "expected nil exporter when telemetry is disabled")

	accounts := orch.Pool.Snapshot()
	require.Len(t, accounts, 1)
	assert.Equal(t, "default", accounts[0].UUID)
	assert.Equal(t, "default.json", accounts[0].CredentialRef)
}

func TestBuildWithNoCredentialSourceStartsEmpty(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg := &config.Config{
		AccountPoolFilePath: "accounts.json",
		MaxErrorCount:       3,
	}

	orch, exporter, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, exporter, "expected nil exporter when telemetry is disabled")
	assert.Empty(t, orch.Pool.Snapshot())
}
