package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cwbridge/proxy/pkg/credentials"
	internalhttp "github.com/cwbridge/proxy/pkg/internal/http"
)

// usageCacheTTL bounds how long a cached getUsageLimits response is
// served before the next /usage call refetches it.
const usageCacheTTL = 5 * time.Minute

// UsageLimits mirrors the upstream getUsageLimits response shape closely
// enough for diagnostic display; fields this proxy doesn't use are
// dropped rather than round-tripped.
type UsageLimits struct {
	UsageBreakdownList []UsageBreakdown `json:"usageBreakdownList"`
	DaysUntilReset     int              `json:"daysUntilReset"`
}

type UsageBreakdown struct {
	ResourceType  string `json:"resourceType"`
	UsageLimit    int    `json:"usageLimitWithPrecision"`
	CurrentUsage  int    `json:"currentUsageWithPrecision"`
	FreeTrialInfo bool   `json:"freeTrialInfo,omitempty"`
}

type usageCache struct {
	mu      sync.Mutex
	fetched time.Time
	limits  map[string]UsageLimits
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	HealthyCount int    `json:"healthyAccounts"`
	TotalCount   int    `json:"totalAccounts"`
}

// HandleHealth reports whether at least one account in the pool is
// eligible for selection.
func (o *Orchestrator) HandleHealth(w http.ResponseWriter, r *http.Request) {
	accounts := o.Pool.Snapshot()
	healthy := 0
	for _, a := range accounts {
		if a.IsHealthy && !a.IsDisabled {
			healthy++
		}
	}
	status := "ok"
	if healthy == 0 {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       status,
		HealthyCount: healthy,
		TotalCount:   len(accounts),
	})
}

// HandleStats exposes the pool's current snapshot for operator visibility.
func (o *Orchestrator) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": o.Pool.Snapshot(),
	})
}

// HandleUsage serves cached getUsageLimits results per account,
// refetching on expiry or when `?refresh=true` is passed.
func (o *Orchestrator) HandleUsage(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"

	o.usage.mu.Lock()
	stale := force || o.usage.limits == nil || time.Since(o.usage.fetched) > usageCacheTTL
	if !stale {
		limits := o.usage.limits
		o.usage.mu.Unlock()
		writeJSON(w, http.StatusOK, limits)
		return
	}
	o.usage.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	limits := make(map[string]UsageLimits)
	for _, account := range o.Pool.Snapshot() {
		bundle, err := o.ensureFreshCredential(ctx, account)
		if err != nil {
			continue
		}
		usage, err := o.fetchUsageLimits(ctx, bundle)
		if err != nil {
			continue
		}
		limits[account.UUID] = usage
	}

	o.usage.mu.Lock()
	o.usage.limits = limits
	o.usage.fetched = time.Now()
	o.usage.mu.Unlock()

	writeJSON(w, http.StatusOK, limits)
}

func (o *Orchestrator) fetchUsageLimits(ctx context.Context, bundle credentials.TokenBundle) (UsageLimits, error) {
	client := internalhttp.NewClient(internalhttp.Config{
		BaseURL: fmt.Sprintf("https://q.%s.amazonaws.com", o.regionFor(bundle)),
		Headers: map[string]string{"Authorization": "Bearer " + bundle.AccessToken},
	})
	query := map[string]string{
		"isEmailRequired": "true",
		"origin":          "AI_EDITOR",
		"resourceType":    "AGENTIC_REQUEST",
	}
	if bundle.ProfileArn != "" {
		query["profileArn"] = bundle.ProfileArn
	}

	var limits UsageLimits
	err := client.DoJSON(ctx, internalhttp.Request{
		Method: http.MethodGet,
		Path:   "/getUsageLimits",
		Query:  query,
	}, &limits)
	return limits, err
}
