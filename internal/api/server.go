// Package api serves the daemon's HTTP surface: unit state, history,
// availability writes and operational probes.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/N1c093/diverad/internal/cache"
	"github.com/N1c093/diverad/internal/config"
	"github.com/N1c093/diverad/internal/divera"
	"github.com/N1c093/diverad/internal/health"
	"github.com/N1c093/diverad/internal/log"
	"github.com/N1c093/diverad/internal/poll"
	"github.com/N1c093/diverad/internal/store"
)

// ConfigSource yields the live configuration so reloads take effect
// without restarting the server. Implemented by config.Holder.
type ConfigSource interface {
	Current() config.AppConfig
}

// staticConfig adapts a fixed AppConfig for tests and simple setups.
type staticConfig struct{ cfg config.AppConfig }

func (s staticConfig) Current() config.AppConfig { return s.cfg }

// StaticConfig wraps a fixed configuration as a ConfigSource.
func StaticConfig(cfg config.AppConfig) ConfigSource {
	return staticConfig{cfg: cfg}
}

// Units is the slice of the poll manager the server consumes.
type Units interface {
	Coordinator(ucrID int) *poll.Coordinator
	UCRs() []int
	Ready() bool
	ForceRefreshAll(ctx context.Context) error
}

// History reads archived state. Satisfied by store.Archive.
type History interface {
	RecentAlarms(ctx context.Context, ucrID, limit int) ([]store.ArchivedAlarm, error)
	StatusHistory(ctx context.Context, ucrID, limit int) ([]store.StatusLogEntry, error)
}

// Server wires handlers, middleware and probes into one router.
type Server struct {
	cfgSource ConfigSource
	units     Units
	history   History
	cache     cache.Cache
	health    *health.Manager
	logger    zerolog.Logger

	// stateTTL bounds how stale a cached state response may be.
	stateTTL time.Duration
}

// Option configures the server.
type Option func(*Server)

// WithHistory attaches the archive for history endpoints.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithCache attaches a response cache for derived unit state.
func WithCache(c cache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// WithHealthManager attaches the probe manager.
func WithHealthManager(m *health.Manager) Option {
	return func(s *Server) { s.health = m }
}

// WithStateTTL overrides the state response cache lifetime.
func WithStateTTL(ttl time.Duration) Option {
	return func(s *Server) { s.stateTTL = ttl }
}

// New creates the API server.
func New(cfgSource ConfigSource, units Units, opts ...Option) *Server {
	s := &Server{
		cfgSource: cfgSource,
		units:     units,
		logger:    log.WithComponent("api"),
		stateTTL:  5 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.NewManager("")
	}
	return s
}

func (s *Server) apiToken() string {
	return s.cfgSource.Current().APIToken
}

// Router builds the chi handler. includeMetrics controls whether /metrics
// is served here or left to a dedicated listener.
func (s *Server) Router(includeMetrics bool) http.Handler {
	cfg := s.cfgSource.Current()

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(securityHeaders)
	r.Use(accessLog)
	r.Use(rateLimit("api", cfg.RateLimitRPM))

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	if includeMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/units", s.handleUnits)

		r.Route("/units/{ucr}", func(r chi.Router) {
			r.Get("/state", s.handleUnitState)
			r.Get("/alarms", s.handleAlarms)
			r.Get("/alarms/last", s.handleLastAlarm)
			r.Get("/news/last", s.handleLastNews)
			r.Get("/events", s.handleEvents)
			r.Get("/vehicles", s.handleVehicles)
			r.Get("/vehicles/{id}", s.handleVehicle)
			r.Get("/status", s.handleStatus)
			r.Get("/status/history", s.handleStatusHistory)
			r.With(s.requireToken).Put("/status", s.handleSetStatus)
		})

		r.With(s.requireToken, rateLimit("refresh", 10)).Post("/refresh", s.handleRefresh)
	})

	return r
}

// coordinatorFor resolves the {ucr} path parameter. Writes the error
// response itself when resolution fails.
func (s *Server) coordinatorFor(w http.ResponseWriter, r *http.Request) (*poll.Coordinator, *divera.Snapshot, bool) {
	id, err := ucrParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_unit", "unit id must be a positive integer")
		return nil, nil, false
	}
	c := s.units.Coordinator(id)
	if c == nil {
		respondUnknownUnit(w)
		return nil, nil, false
	}
	snap := c.Snapshot()
	if snap == nil {
		respondNotReady(w)
		return nil, nil, false
	}
	return c, snap, true
}
