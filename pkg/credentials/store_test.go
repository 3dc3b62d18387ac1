package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "cred.json")

	store := NewFileStore()
	bundle := TokenBundle{
		AccessToken:  "at_1",
		RefreshToken: "rt_1",
		ExpiresAt:    time.Now().Add(time.Hour).UTC(),
		AuthMethod:   AuthMethodIdC,
		Region:       "us-east-1",
	}
	require.NoError(t, store.Save(path, bundle))

	loaded, ok, err := store.Load(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "at_1", loaded.AccessToken)
	assert.Equal(t, "rt_1", loaded.RefreshToken)
}

func TestFileStoreSaveMergesDeltaOverExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cred.json")
	store := NewFileStore()

	require.NoError(t, store.Save(path, TokenBundle{
		AccessToken:  "at_old",
		RefreshToken: "rt_stable",
		ClientID:     "client_1",
		AuthMethod:   AuthMethodSocial,
	}))

	require.NoError(t, store.Save(path, TokenBundle{AccessToken: "at_new"}))

	loaded, ok, err := store.Load(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "at_new", loaded.AccessToken)
	assert.Equal(t, "rt_stable", loaded.RefreshToken, "unset delta fields must not clobber existing values")
	assert.Equal(t, "client_1", loaded.ClientID)
}

func TestFileStoreLoadMissingFileIsAbsentNotError(t *testing.T) {
	store := NewFileStore()
	_, ok, err := store.Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoreLoadCorruptFileIsAbsentNotError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cred.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	store := NewFileStore()
	_, ok, err := store.Load(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTokenBundleExpiresWithin(t *testing.T) {
	now := time.Now()
	fresh := TokenBundle{ExpiresAt: now.Add(10 * time.Minute)}
	soon := TokenBundle{ExpiresAt: now.Add(1 * time.Minute)}

	assert.False(t, fresh.ExpiresWithin(5*time.Minute, now))
	assert.True(t, soon.ExpiresWithin(5*time.Minute, now))
}
