package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists one TokenBundle per JSON file, read-modify-write.
// One writer at a time per path; readers tolerate a missing or corrupt
// file by treating it as absent rather than failing the caller.
type FileStore struct {
	paths sync.Map // path -> *sync.Mutex, one per file for fine-grained locking
}

func NewFileStore() *FileStore {
	return &FileStore{}
}

func (s *FileStore) lockFor(path string) *sync.Mutex {
	v, _ := s.paths.LoadOrStore(path, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Load reads a credential file. A missing file or a parse failure both
// return (TokenBundle{}, false, nil): absent, not an error, so callers
// can fall back to bootstrapping a new bundle.
func (s *FileStore) Load(path string) (TokenBundle, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return TokenBundle{}, false, nil
		}
		return TokenBundle{}, false, fmt.Errorf("read credential file %s: %w", path, err)
	}
	var bundle TokenBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return TokenBundle{}, false, nil // treat as absent; caller warns
	}
	return bundle, true, nil
}

// Save merges the delta into whatever is currently on disk (an in-memory
// overlay over file contents) and writes the result back, JSON-pretty.
// A missing file is created.
func (s *FileStore) Save(path string, delta TokenBundle) error {
	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	existing, _, err := s.Load(path)
	if err != nil {
		return err
	}
	merged := mergeBundle(existing, delta)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create credential directory %s: %w", dir, err)
		}
	}

	encoded, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential bundle: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return fmt.Errorf("write credential file %s: %w", path, err)
	}
	return nil
}

// mergeBundle overlays non-zero delta fields onto existing.
func mergeBundle(existing, delta TokenBundle) TokenBundle {
	out := existing
	if delta.AccessToken != "" {
		out.AccessToken = delta.AccessToken
	}
	if delta.RefreshToken != "" {
		out.RefreshToken = delta.RefreshToken
	}
	if !delta.ExpiresAt.IsZero() {
		out.ExpiresAt = delta.ExpiresAt
	}
	if delta.ClientID != "" {
		out.ClientID = delta.ClientID
	}
	if delta.ClientSecret != "" {
		out.ClientSecret = delta.ClientSecret
	}
	if delta.AuthMethod != "" {
		out.AuthMethod = delta.AuthMethod
	}
	if delta.ProfileArn != "" {
		out.ProfileArn = delta.ProfileArn
	}
	if delta.Region != "" {
		out.Region = delta.Region
	}
	return out
}
