package poll

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/N1c093/diverad/internal/divera"
	"github.com/N1c093/diverad/internal/log"
	"golang.org/x/sync/errgroup"
)

// ClientFactory builds a Divera client pinned to one UCR.
type ClientFactory func(ucrID int) Client

// Manager owns one coordinator per configured unit and runs them together.
type Manager struct {
	coordinators map[int]*Coordinator
	order        []int
}

// NewManager creates coordinators for the given UCR ids.
func NewManager(ucrIDs []int, factory ClientFactory, interval time.Duration, opts ...Option) *Manager {
	m := &Manager{coordinators: make(map[int]*Coordinator, len(ucrIDs))}
	for _, id := range ucrIDs {
		m.coordinators[id] = NewCoordinator(id, factory(id), interval, opts...)
		m.order = append(m.order, id)
	}
	sort.Ints(m.order)
	return m
}

// Run starts every coordinator and blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range m.coordinators {
		c := c
		g.Go(func() error { return c.Run(ctx) })
	}
	return g.Wait()
}

// Coordinator returns the coordinator for a UCR, or nil.
func (m *Manager) Coordinator(ucrID int) *Coordinator {
	return m.coordinators[ucrID]
}

// UCRs returns the managed unit ids in stable order.
func (m *Manager) UCRs() []int {
	return m.order
}

// SetInterval propagates a new base poll interval to every coordinator.
func (m *Manager) SetInterval(d time.Duration) {
	for _, c := range m.coordinators {
		c.SetInterval(d)
	}
}

// Ready reports whether every unit has at least one successful poll.
func (m *Manager) Ready() bool {
	for _, c := range m.coordinators {
		if !c.Ready() {
			return false
		}
	}
	return true
}

// ForceRefreshAll triggers an immediate poll on every coordinator and
// returns the first error.
func (m *Manager) ForceRefreshAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range m.coordinators {
		c := c
		g.Go(func() error { return c.ForceRefresh(ctx) })
	}
	return g.Wait()
}

// DiscoverUCRs pulls once with an unpinned client and returns the account's
// active UCR. Used when no units are configured explicitly.
func DiscoverUCRs(ctx context.Context, client Client) ([]int, error) {
	logger := log.WithComponent("poll")

	snap, err := client.PullAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover units: %w", err)
	}
	if !snap.UsergroupSupported() {
		return nil, fmt.Errorf("discover units: unsupported usergroup for %s", snap.Email())
	}

	logger.Info().
		Int("ucr", snap.UCRActive).
		Str("unit", snap.UCRName(snap.UCRActive)).
		Int("available", snap.UCRCount()).
		Msg("discovered active unit")
	return []int{snap.UCRActive}, nil
}

// interface guard
var _ Client = (*divera.Client)(nil)
