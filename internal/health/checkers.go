package health

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// pollSource keeps the checker decoupled from the concrete manager type.
type pollSource struct {
	ready       func() bool
	ucrs        func() []int
	lastSuccess func(ucrID int) time.Time
}

// PollChecker reports unhealthy until every configured unit has one
// successful pull, and degraded when the freshest data is stale.
type PollChecker struct {
	src      pollSource
	maxStale time.Duration
	now      func() time.Time
}

// NewPollChecker wires a poll manager into the readiness probe. maxStale
// should be a small multiple of the scan interval.
func NewPollChecker(ready func() bool, ucrs func() []int, lastSuccess func(ucrID int) time.Time, maxStale time.Duration) *PollChecker {
	return &PollChecker{
		src:      pollSource{ready: ready, ucrs: ucrs, lastSuccess: lastSuccess},
		maxStale: maxStale,
		now:      time.Now,
	}
}

func (c *PollChecker) Name() string {
	return "poll"
}

func (c *PollChecker) Check(_ context.Context) CheckResult {
	if !c.src.ready() {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  "not all units pulled yet",
		}
	}

	var oldest time.Time
	for _, id := range c.src.ucrs() {
		last := c.src.lastSuccess(id)
		if oldest.IsZero() || last.Before(oldest) {
			oldest = last
		}
	}
	if age := c.now().Sub(oldest); c.maxStale > 0 && age > c.maxStale {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("stale for %s", age.Round(time.Second)),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d unit(s) fresh", len(c.src.ucrs())),
	}
}

// Pinger is satisfied by the archive store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// integrityVerifier is implemented by stores that can run a structural
// self-check. The quick_check pragma is read-only and cheap.
type integrityVerifier interface {
	Verify(ctx context.Context) ([]string, error)
}

// StoreChecker probes the archive database.
type StoreChecker struct {
	store Pinger
}

func NewStoreChecker(store Pinger) *StoreChecker {
	return &StoreChecker{store: store}
}

func (c *StoreChecker) Name() string {
	return "store"
}

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	if c.store == nil {
		return CheckResult{
			Status:  StatusHealthy,
			Message: "not configured (optional)",
		}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.store.Ping(ctx); err != nil {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}

	// Reachable but structurally damaged is worth surfacing without
	// pulling the daemon out of rotation; live state does not depend on
	// the archive.
	if v, ok := c.store.(integrityVerifier); ok {
		problems, err := v.Verify(ctx)
		if err != nil {
			return CheckResult{
				Status:  StatusDegraded,
				Message: "integrity check failed to run",
				Error:   err.Error(),
			}
		}
		if len(problems) > 0 {
			return CheckResult{
				Status:  StatusDegraded,
				Message: strings.Join(problems, "; "),
			}
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "archive reachable",
	}
}
