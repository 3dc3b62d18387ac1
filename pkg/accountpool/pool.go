package accountpool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbridge/proxy/pkg/cwerr"
)

// DefaultMaxErrorCount is the errorCount threshold that flips isHealthy to
// false, overridable via Pool.MaxErrorCount.
const DefaultMaxErrorCount = 3

// DefaultPersistDebounce is how long Pool batches mutations before writing
// the whole pool back to its Repository.
const DefaultPersistDebounce = 1 * time.Second

// Repository persists the pool's account list. Implementations must make
// writes atomic; the pool's own debouncing guarantees at most one Save
// call per DefaultPersistDebounce window regardless of mutation volume.
type Repository interface {
	Load(ctx context.Context) ([]*Account, error)
	Save(ctx context.Context, accounts []*Account) error
}

// Pool holds the in-memory account set plus a round-robin cursor per
// requested-model bucket, guarded by a single coarse mutex; selection and
// mark-unhealthy both take it, since pool sizes stay small enough that
// lock contention is never the bottleneck.
type Pool struct {
	mu       sync.Mutex
	accounts []*Account
	byUUID   map[string]*Account
	cursor   map[string]int // bucket (model or "default") -> next index

	repo          Repository
	persistDelay  time.Duration
	MaxErrorCount int

	dirty      bool
	flushTimer *time.Timer
}

func NewPool(repo Repository, accounts []*Account) *Pool {
	p := &Pool{
		accounts:      accounts,
		byUUID:        make(map[string]*Account, len(accounts)),
		cursor:        make(map[string]int),
		repo:          repo,
		persistDelay:  DefaultPersistDebounce,
		MaxErrorCount: DefaultMaxErrorCount,
	}
	for _, a := range accounts {
		p.byUUID[a.UUID] = a
	}
	return p
}

// Load replaces the pool's contents from its Repository.
func (p *Pool) Load(ctx context.Context) error {
	accounts, err := p.repo.Load(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts = accounts
	p.byUUID = make(map[string]*Account, len(accounts))
	for _, a := range accounts {
		p.byUUID[a.UUID] = a
	}
	return nil
}

// ErrNoHealthyAccount signals the caller should fall back to the globally
// configured credential.
var ErrNoHealthyAccount = cwerr.New(cwerr.KindInternalInvariantViolation, 0, "no healthy account for requested model", nil)

// Select picks the next eligible account for requestedModel round-robin,
// bumps its usage counters, and schedules a debounced persist. The bucket
// key is requestedModel, or "default" when empty.
func (p *Pool) Select(requestedModel string) (*Account, error) {
	bucket := requestedModel
	if bucket == "" {
		bucket = "default"
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.accounts)
	if n == 0 {
		return nil, ErrNoHealthyAccount
	}

	start := p.cursor[bucket] % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		a := p.accounts[idx]
		if a.Eligible(requestedModel) {
			p.cursor[bucket] = (idx + 1) % n
			a.MarkUsed(time.Now())
			p.markDirtyLocked()
			return a, nil
		}
	}
	return nil, ErrNoHealthyAccount
}

// MarkError applies an error-classification-driven health mutation to the
// account identified by uuid: fatal kinds ban immediately, everything else
// increments the counter toward MaxErrorCount.
func (p *Pool) MarkError(uuid string, kind cwerr.Kind, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.byUUID[uuid]
	if !ok {
		return
	}
	now := time.Now()
	if kind == cwerr.KindFatal {
		a.MarkUnhealthy(now, message)
	} else if kind != cwerr.KindClientFault && kind != cwerr.KindRateLimited {
		a.MarkError(now, message, p.MaxErrorCount)
	}
	p.markDirtyLocked()
}

// MarkHealthy resets an account's error state, typically after a
// successful health probe.
func (p *Pool) MarkHealthy(uuid string, checkModel string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.byUUID[uuid]
	if !ok {
		return
	}
	a.MarkHealthy(time.Now(), checkModel)
	p.markDirtyLocked()
}

// Snapshot returns a copy of the account slice for diagnostics (/stats).
func (p *Pool) Snapshot() []*Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Account, len(p.accounts))
	copy(out, p.accounts)
	return out
}

// markDirtyLocked schedules a debounced persist. Caller must hold p.mu.
func (p *Pool) markDirtyLocked() {
	p.dirty = true
	if p.flushTimer != nil {
		return
	}
	p.flushTimer = time.AfterFunc(p.persistDelay, p.flush)
}

func (p *Pool) flush() {
	p.mu.Lock()
	if !p.dirty {
		p.flushTimer = nil
		p.mu.Unlock()
		return
	}
	p.dirty = false
	p.flushTimer = nil
	snapshot := make([]*Account, len(p.accounts))
	copy(snapshot, p.accounts)
	p.mu.Unlock()

	if p.repo == nil {
		return
	}
	if err := p.repo.Save(context.Background(), snapshot); err != nil {
		slog.Error("account pool persist failed", "error", err)
	}
}
