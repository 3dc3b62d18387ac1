package accountpool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileRepository persists the whole account pool as one JSON array in a
// single file, matching the credential store's JSON-file, whole-state
// write layout.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

func (r *FileRepository) Load(ctx context.Context) ([]*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read account pool file %s: %w", r.path, err)
	}
	var accounts []*Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parse account pool file %s: %w", r.path, err)
	}
	return accounts, nil
}

func (r *FileRepository) Save(ctx context.Context, accounts []*Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create account pool directory %s: %w", dir, err)
		}
	}
	encoded, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal account pool: %w", err)
	}

	// Write to a temp file and rename so a crash mid-write never leaves a
	// half-written pool file behind.
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o600); err != nil {
		return fmt.Errorf("write account pool temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("rename account pool file %s: %w", r.path, err)
	}
	return nil
}
