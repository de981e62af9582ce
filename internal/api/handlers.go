package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/N1c093/diverad/internal/divera"
	"github.com/N1c093/diverad/internal/log"
)

func ucrParam(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "ucr")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid unit id %q", raw)
	}
	return id, nil
}

type unitSummary struct {
	UCR         int       `json:"ucr"`
	Name        string    `json:"name"`
	Cluster     string    `json:"cluster"`
	Version     string    `json:"version"`
	Ready       bool      `json:"ready"`
	LastSuccess time.Time `json:"last_success,omitempty"`
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	out := make([]unitSummary, 0, len(s.units.UCRs()))
	for _, id := range s.units.UCRs() {
		c := s.units.Coordinator(id)
		u := unitSummary{UCR: id, Ready: c.Ready()}
		if snap := c.Snapshot(); snap != nil {
			u.Name = snap.UCRName(id)
			u.Cluster = snap.Cluster.Name
			u.Version = snap.ClusterVersion()
			u.LastSuccess = c.LastSuccess()
		}
		out = append(out, u)
	}
	writeJSON(w, http.StatusOK, out)
}

// unitState is the full derived view of one unit, the shape monitor
// dashboards consume.
type unitState struct {
	UCR         int                      `json:"ucr"`
	Unit        string                   `json:"unit"`
	Cluster     string                   `json:"cluster"`
	Version     string                   `json:"version"`
	User        string                   `json:"user"`
	Status      divera.UserStatusDetails `json:"status"`
	OpenAlarm   bool                     `json:"open_alarm"`
	LastAlarm   *divera.AlarmDetails     `json:"last_alarm,omitempty"`
	LastNews    *divera.NewsDetails      `json:"last_news,omitempty"`
	LastEvent   *divera.CalendarEvent    `json:"last_event,omitempty"`
	Vehicles    []divera.VehicleDetails  `json:"vehicles"`
	LastSuccess time.Time                `json:"last_success"`
}

func (s *Server) handleUnitState(w http.ResponseWriter, r *http.Request) {
	c, snap, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}

	cacheKey := "state:" + strconv.Itoa(c.UCR())
	if s.cache != nil {
		if body, hit := s.cache.Get(cacheKey); hit {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
	}

	state := unitState{
		UCR:         c.UCR(),
		Unit:        snap.UCRName(c.UCR()),
		Cluster:     snap.Cluster.Name,
		Version:     snap.ClusterVersion(),
		User:        snap.FullName(),
		Status:      snap.UserStatusDetails(),
		OpenAlarm:   snap.HasOpenAlarms(),
		LastAlarm:   snap.LastAlarmDetails(),
		LastNews:    snap.LastNewsDetails(),
		LastEvent:   snap.LastEvent(),
		LastSuccess: c.LastSuccess(),
	}
	state.Vehicles = make([]divera.VehicleDetails, 0, len(snap.VehicleIDs()))
	for _, id := range snap.VehicleIDs() {
		if v, err := snap.VehicleDetails(id); err == nil {
			state.Vehicles = append(state.Vehicles, *v)
		}
	}

	if s.cache != nil {
		if body, err := json.Marshal(state); err == nil {
			s.cache.Set(cacheKey, body, s.stateTTL)
		}
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	c, _, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		respondError(w, http.StatusNotImplemented, "no_archive", "history archive not configured")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	alarms, err := s.history.RecentAlarms(r.Context(), c.UCR(), limit)
	if err != nil {
		l := log.WithComponentFromContext(r.Context(), "api")
		l.Error().Err(err).Msg("alarm history query failed")
		respondError(w, http.StatusInternalServerError, "archive_error", "could not read alarm history")
		return
	}
	writeJSON(w, http.StatusOK, alarms)
}

func (s *Server) handleLastAlarm(w http.ResponseWriter, r *http.Request) {
	_, snap, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}
	alarm := snap.LastAlarmDetails()
	if alarm == nil {
		respondError(w, http.StatusNotFound, "no_alarms", "unit has no alarms")
		return
	}
	writeJSON(w, http.StatusOK, alarm)
}

func (s *Server) handleLastNews(w http.ResponseWriter, r *http.Request) {
	_, snap, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}
	news := snap.LastNewsDetails()
	if news == nil {
		respondError(w, http.StatusNotFound, "no_news", "unit has no news")
		return
	}
	writeJSON(w, http.StatusOK, news)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	_, snap, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}

	start, err := parseTimeParam(r, "start", time.Time{})
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_range", err.Error())
		return
	}
	end, err := parseTimeParam(r, "end", start.AddDate(1, 0, 0))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_range", err.Error())
		return
	}
	if !end.After(start) {
		respondError(w, http.StatusBadRequest, "invalid_range", "end must be after start")
		return
	}

	writeJSON(w, http.StatusOK, snap.EventsBetween(start, end))
}

// parseTimeParam accepts RFC3339 or a unix timestamp.
func parseTimeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(ts, 0), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC3339 or a unix timestamp", name)
	}
	return t, nil
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	_, snap, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}
	out := make([]divera.VehicleDetails, 0, len(snap.VehicleIDs()))
	for _, id := range snap.VehicleIDs() {
		if v, err := snap.VehicleDetails(id); err == nil {
			out = append(out, *v)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	_, snap, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}
	v, err := snap.VehicleDetails(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_vehicle", "no such vehicle")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type statusView struct {
	Current divera.UserStatusDetails `json:"current"`
	Options []string                 `json:"options"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	_, snap, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusView{
		Current: snap.UserStatusDetails(),
		Options: snap.StatusNames(),
	})
}

func (s *Server) handleStatusHistory(w http.ResponseWriter, r *http.Request) {
	c, _, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		respondError(w, http.StatusNotImplemented, "no_archive", "history archive not configured")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.history.StatusHistory(r.Context(), c.UCR(), limit)
	if err != nil {
		l := log.WithComponentFromContext(r.Context(), "api")
		l.Error().Err(err).Msg("status history query failed")
		respondError(w, http.StatusInternalServerError, "archive_error", "could not read status history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type setStatusRequest struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	c, snap, ok := s.coordinatorFor(w, r)
	if !ok {
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "body must be JSON with id or name")
		return
	}

	id := req.ID
	if id == 0 {
		if req.Name == "" {
			respondError(w, http.StatusBadRequest, "invalid_body", "either id or name is required")
			return
		}
		var err error
		id, err = snap.StatusIDByName(req.Name)
		if err != nil {
			respondUpstreamError(w, err)
			return
		}
	} else if snap.StatusNameByID(id) == divera.StateUnknown {
		respondError(w, http.StatusUnprocessableEntity, "unknown_status", fmt.Sprintf("status id %d not in the unit's status plan", id))
		return
	}

	if err := c.SetStatus(r.Context(), id); err != nil {
		respondUpstreamError(w, err)
		return
	}
	if s.cache != nil {
		s.cache.Delete("state:" + strconv.Itoa(c.UCR()))
	}

	// Re-read: the post-write refresh may already reflect the change.
	current := snap.UserStatusDetails()
	if fresh := c.Snapshot(); fresh != nil {
		current = fresh.UserStatusDetails()
	}
	writeJSON(w, http.StatusOK, current)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.units.ForceRefreshAll(r.Context()); err != nil {
		if errors.Is(err, r.Context().Err()) {
			respondError(w, http.StatusServiceUnavailable, "refresh_timeout", "refresh did not complete in time")
			return
		}
		respondUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "refreshed"})
}
