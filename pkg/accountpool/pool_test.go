package accountpool

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cwbridge/proxy/pkg/cwerr"
)

func newTestAccount(uuid string) *Account {
	return &Account{UUID: uuid, CredentialRef: uuid + ".json", IsHealthy: true}
}

func TestPoolSelectRoundRobinsAcrossHealthyAccounts(t *testing.T) {
	a, b := newTestAccount("a"), newTestAccount("b")
	p := NewPool(nil, []*Account{a, b})

	first, err := p.Select("claude-sonnet-4-20250514")
	assert.NoError(t, err)
	second, err := p.Select("claude-sonnet-4-20250514")
	assert.NoError(t, err)
	third, err := p.Select("claude-sonnet-4-20250514")
	assert.NoError(t, err)

	assert.NotEqual(t, first.UUID, second.UUID)
	assert.Equal(t, first.UUID, third.UUID)
	assert.Equal(t, 2, first.UsageCount)
	assert.Equal(t, 1, second.UsageCount)
}

func TestPoolSelectSkipsBannedAndUnsupportedAccounts(t *testing.T) {
	banned := newTestAccount("banned")
	banned.IsHealthy = false
	unsupported := newTestAccount("unsupported")
	unsupported.NotSupportedModels = map[string]struct{}{"claude-opus-4": {}}
	ok := newTestAccount("ok")

	p := NewPool(nil, []*Account{banned, unsupported, ok})

	selected, err := p.Select("claude-opus-4")
	assert.NoError(t, err)
	assert.Equal(t, "ok", selected.UUID)
}

func TestPoolSelectReturnsErrWhenNoneEligible(t *testing.T) {
	a := newTestAccount("a")
	a.IsHealthy = false
	p := NewPool(nil, []*Account{a})

	_, err := p.Select("claude-sonnet-4-20250514")
	assert.ErrorIs(t, err, ErrNoHealthyAccount)
}

func TestPoolMarkErrorFlipsUnhealthyAtThreshold(t *testing.T) {
	a := newTestAccount("a")
	p := NewPool(nil, []*Account{a})
	p.MaxErrorCount = 2

	p.MarkError("a", cwerr.KindTransientTransport, "boom 1")
	assert.True(t, a.IsHealthy)
	assert.Equal(t, 1, a.ErrorCount)

	p.MarkError("a", cwerr.KindTransientTransport, "boom 2")
	assert.False(t, a.IsHealthy)
	assert.Equal(t, 2, a.ErrorCount)
}

func TestPoolMarkErrorFatalBansImmediately(t *testing.T) {
	a := newTestAccount("a")
	p := NewPool(nil, []*Account{a})

	p.MarkError("a", cwerr.KindFatal, "suspended")
	assert.False(t, a.IsHealthy)
}

func TestPoolMarkErrorClientFaultAndRateLimitedDoNotMutateHealth(t *testing.T) {
	a := newTestAccount("a")
	p := NewPool(nil, []*Account{a})

	p.MarkError("a", cwerr.KindClientFault, "bad request")
	p.MarkError("a", cwerr.KindRateLimited, "429")

	assert.True(t, a.IsHealthy)
	assert.Equal(t, 0, a.ErrorCount)
}

func TestPoolMarkHealthyResetsErrorCountToZero(t *testing.T) {
	a := newTestAccount("a")
	p := NewPool(nil, []*Account{a})
	p.MaxErrorCount = 1
	p.MarkError("a", cwerr.KindTransientTransport, "boom")
	assert.False(t, a.IsHealthy)

	p.MarkHealthy("a", "claude-sonnet-4-20250514")
	assert.True(t, a.IsHealthy)
	assert.Equal(t, 0, a.ErrorCount)
	assert.Equal(t, "claude-sonnet-4-20250514", a.LastHealthCheckModel)
}
