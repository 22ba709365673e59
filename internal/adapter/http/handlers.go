package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/weathervane/weathervane/internal/config"
	"github.com/weathervane/weathervane/internal/domain/cache"
	"github.com/weathervane/weathervane/internal/service"
)

// Handlers bundles the HTTP handlers and their dependencies.
type Handlers struct {
	weather *service.WeatherService
	janitor *service.JanitorService
	hub     WSHub
	cfg     config.Config
	started time.Time
}

// WSHub is the subset of the WebSocket hub the HTTP layer needs.
type WSHub interface {
	HandleWS(w http.ResponseWriter, r *http.Request)
	ConnectionCount() int
}

// NewHandlers creates the handler set.
func NewHandlers(weather *service.WeatherService, janitor *service.JanitorService, hub WSHub, cfg config.Config) *Handlers {
	return &Handlers{
		weather: weather,
		janitor: janitor,
		hub:     hub,
		cfg:     cfg,
		started: time.Now(),
	}
}

// GetWeather serves the current forecast. ?force=true bypasses the cache.
func (h *Handlers) GetWeather(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	res, err := h.weather.Get(r.Context(), force)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if res.Stale {
		w.Header().Set("Warning", `110 - "Response is Stale"`)
	}
	writeJSON(w, http.StatusOK, res)
}

type statsResponse struct {
	cache.Stats
	HitRate       float64   `json:"hit_rate"`
	Entries       int64     `json:"entries"`
	WSConnections int       `json:"ws_connections"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	Now           time.Time `json:"now"`
}

// GetCacheStats serves the hit/miss snapshot and durable entry count.
func (h *Handlers) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.weather.Stats()

	entries, err := h.weather.EntryCount(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Stats:         stats,
		HitRate:       stats.HitRate(),
		Entries:       entries,
		WSConnections: h.hub.ConnectionCount(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Now:           time.Now().UTC(),
	})
}

// InvalidateCache wipes every tier. Guarded by the admin token middleware.
func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := h.weather.InvalidateAll(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// ListSweeps serves recent janitor run summaries, newest first.
func (h *Handlers) ListSweeps(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}

	sweeps, err := h.janitor.History(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if sweeps == nil {
		sweeps = []cache.SweepSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sweeps": sweeps})
}

// RunSweep triggers a janitor sweep immediately. Guarded by the admin token
// middleware.
func (h *Handlers) RunSweep(w http.ResponseWriter, r *http.Request) {
	summary, err := h.janitor.Sweep(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Health reports liveness plus a shallow durable tier check.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	code := http.StatusOK
	status := "ok"
	durable := "ok"
	if _, err := h.weather.EntryCount(ctx); err != nil {
		code = http.StatusServiceUnavailable
		status = "degraded"
		durable = "unreachable"
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"durable_tier":   durable,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// HandleWS upgrades to the event stream.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.hub.HandleWS(w, r)
}
