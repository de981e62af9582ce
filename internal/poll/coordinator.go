// Package poll keeps per-unit snapshots of the Divera account state fresh.
package poll

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/N1c093/diverad/internal/divera"
	"github.com/N1c093/diverad/internal/log"
	"github.com/N1c093/diverad/internal/metrics"
	"github.com/rs/zerolog"
)

// Client is the slice of the Divera client a coordinator needs.
type Client interface {
	PullAll(ctx context.Context) (*divera.Snapshot, error)
	SetStatusByID(ctx context.Context, statusID int) error
}

// Archiver persists state changes discovered during polling.
type Archiver interface {
	UpsertAlarm(ctx context.Context, ucrID int, d divera.AlarmDetails) error
	UpsertNews(ctx context.Context, ucrID int, d divera.NewsDetails) error
	AppendStatus(ctx context.Context, ucrID int, d divera.UserStatusDetails) error
}

// MonitorWriter exports the latest unit state after a change.
type MonitorWriter interface {
	Write(ucrID int, snap *divera.Snapshot) error
}

// Coordinator polls one user-cluster relation on a fixed interval, with
// capped exponential backoff while upstream is failing. The last good
// snapshot is never cleared by a failed poll.
type Coordinator struct {
	ucrID  int
	client Client
	cb     *divera.CircuitBreaker
	logger zerolog.Logger

	archive Archiver      // optional
	monitor MonitorWriter // optional

	snap        atomic.Pointer[divera.Snapshot]
	lastSuccess atomic.Int64 // unix seconds, 0 = never

	refreshCh chan chan error

	// interval and change tracking, guarded by mu
	mu           sync.Mutex
	interval     time.Duration
	failures     int
	prevStatusID int
	prevAlarmID  int
	prevNewsID   int
	seeded       bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithArchiver attaches a history archive.
func WithArchiver(a Archiver) Option {
	return func(c *Coordinator) { c.archive = a }
}

// WithMonitorWriter attaches a monitor file exporter.
func WithMonitorWriter(w MonitorWriter) Option {
	return func(c *Coordinator) { c.monitor = w }
}

// NewCoordinator creates a coordinator for one UCR.
func NewCoordinator(ucrID int, client Client, interval time.Duration, opts ...Option) *Coordinator {
	c := &Coordinator{
		ucrID:     ucrID,
		client:    client,
		cb:        divera.NewCircuitBreaker(5, 2*interval),
		interval:  interval,
		logger:    log.WithComponent("poll").With().Int(log.FieldUCR, ucrID).Logger(),
		refreshCh: make(chan chan error),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetInterval changes the base poll interval. Takes effect when the
// current timer fires; used by config hot reload.
func (c *Coordinator) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.interval = d
	c.mu.Unlock()
}

// UCR returns the unit this coordinator polls.
func (c *Coordinator) UCR() int {
	return c.ucrID
}

// Snapshot returns the last good snapshot, or nil before the first success.
func (c *Coordinator) Snapshot() *divera.Snapshot {
	return c.snap.Load()
}

// LastSuccess returns the time of the last successful poll, or zero.
func (c *Coordinator) LastSuccess() time.Time {
	s := c.lastSuccess.Load()
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(s, 0)
}

// Ready reports whether this unit has been pulled successfully at least once.
func (c *Coordinator) Ready() bool {
	return c.lastSuccess.Load() > 0
}

// SetStatus writes the user's availability upstream and refreshes the
// snapshot on success. A failed write never mutates local state.
func (c *Coordinator) SetStatus(ctx context.Context, statusID int) error {
	ucr := strconv.Itoa(c.ucrID)
	if err := c.client.SetStatusByID(ctx, statusID); err != nil {
		metrics.IncStatusWrite(ucr, "failure")
		return err
	}
	metrics.IncStatusWrite(ucr, "success")

	if err := c.refreshOnce(ctx); err != nil {
		// The write went through; a stale snapshot corrects itself on the
		// next tick.
		c.logger.Warn().Err(err).Msg("refresh after status write failed")
	}
	return nil
}

// ForceRefresh triggers an immediate poll from the running loop and waits
// for its result.
func (c *Coordinator) ForceRefresh(ctx context.Context) error {
	done := make(chan error, 1)
	select {
	case c.refreshCh <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.refreshOnce(ctx); err != nil {
		c.logger.Error().Err(err).Str(log.FieldEvent, "poll.initial_failed").Msg("initial poll failed")
	}

	timer := time.NewTimer(c.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case done := <-c.refreshCh:
			done <- c.refreshOnce(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(c.nextInterval())
		case <-timer.C:
			if err := c.refreshOnce(ctx); err != nil {
				c.logger.Warn().Err(err).Str(log.FieldEvent, "poll.failed").Msg("poll failed")
			}
			timer.Reset(c.nextInterval())
		}
	}
}

// nextInterval doubles the base interval per consecutive failure, capped at
// ten times the base.
func (c *Coordinator) nextInterval() time.Duration {
	c.mu.Lock()
	failures := c.failures
	base := c.interval
	c.mu.Unlock()

	next := base
	for i := 0; i < failures && next < 10*base; i++ {
		next *= 2
	}
	if next > 10*base {
		next = 10 * base
	}
	return next
}

func (c *Coordinator) refreshOnce(ctx context.Context) error {
	ucr := strconv.Itoa(c.ucrID)
	start := time.Now()

	var snap *divera.Snapshot
	err := c.cb.Execute(func() error {
		var pullErr error
		snap, pullErr = c.client.PullAll(ctx)
		return pullErr
	})
	metrics.RecordPoll(ucr, outcome(err), time.Since(start))

	if err != nil {
		metrics.IncPollFailure(ucr, failureReason(err))
		c.mu.Lock()
		c.failures++
		c.mu.Unlock()
		return err
	}

	c.snap.Store(snap)
	now := time.Now()
	c.lastSuccess.Store(now.Unix())
	metrics.SetLastSuccess(ucr, now)
	metrics.SetOpenAlarms(ucr, snap.HasOpenAlarms())
	metrics.SetUserStatus(ucr, snap.Status.StatusID)

	c.mu.Lock()
	c.failures = 0
	changed := c.detectChanges(ctx, snap)
	c.mu.Unlock()

	if changed && c.monitor != nil {
		if err := c.monitor.Write(c.ucrID, snap); err != nil {
			c.logger.Warn().Err(err).Msg("monitor export failed")
		}
	}

	c.logger.Debug().
		Str(log.FieldEvent, "poll.success").
		Dur("duration", time.Since(start)).
		Bool("changed", changed).
		Msg("poll completed")
	return nil
}

// detectChanges archives new alarms, news and status transitions. Returns
// whether anything relevant changed since the previous poll. Caller holds mu.
func (c *Coordinator) detectChanges(ctx context.Context, snap *divera.Snapshot) bool {
	changed := !c.seeded

	statusID := snap.Status.StatusID
	if statusID != c.prevStatusID {
		changed = true
		if c.archive != nil && c.seeded {
			if err := c.archive.AppendStatus(ctx, c.ucrID, snap.UserStatusDetails()); err != nil {
				metrics.IncArchiveError()
				c.logger.Warn().Err(err).Msg("archive status failed")
			}
		}
		c.prevStatusID = statusID
	}

	if alarm := snap.LastAlarmDetails(); alarm != nil && alarm.ID != c.prevAlarmID {
		changed = true
		c.prevAlarmID = alarm.ID
		c.logger.Info().
			Str(log.FieldEvent, "alarm.new").
			Int(log.FieldAlarmID, alarm.ID).
			Str("title", alarm.Title).
			Msg("new alarm")
	}
	if c.archive != nil {
		for _, a := range snap.AllAlarmDetails() {
			if err := c.archive.UpsertAlarm(ctx, c.ucrID, a); err != nil {
				metrics.IncArchiveError()
				c.logger.Warn().Err(err).Int(log.FieldAlarmID, a.ID).Msg("archive alarm failed")
			}
		}
	}

	if news := snap.LastNewsDetails(); news != nil && news.ID != c.prevNewsID {
		changed = true
		c.prevNewsID = news.ID
		if c.archive != nil {
			if err := c.archive.UpsertNews(ctx, c.ucrID, *news); err != nil {
				metrics.IncArchiveError()
				c.logger.Warn().Err(err).Int(log.FieldNewsID, news.ID).Msg("archive news failed")
			}
		}
	}

	c.seeded = true
	return changed
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, divera.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, divera.ErrAuth):
		return "auth"
	case errors.Is(err, divera.ErrBadResponse):
		return "bad_response"
	case errors.Is(err, divera.ErrConnection):
		return "connection"
	case errors.Is(err, divera.ErrUpstream):
		return "upstream"
	default:
		return "unknown"
	}
}
