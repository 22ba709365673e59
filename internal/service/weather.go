// Package service contains application services.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weathervane/weathervane/internal/adapter/otel"
	"github.com/weathervane/weathervane/internal/adapter/ws"
	"github.com/weathervane/weathervane/internal/config"
	"github.com/weathervane/weathervane/internal/domain"
	"github.com/weathervane/weathervane/internal/domain/cache"
	"github.com/weathervane/weathervane/internal/domain/weather"
	"github.com/weathervane/weathervane/internal/port/broadcast"
	"github.com/weathervane/weathervane/internal/port/fetcher"
	"github.com/weathervane/weathervane/internal/port/store"
)

// KindForecast is the cache key kind for the day forecast package.
const KindForecast = "basic-day"

// CacheChain is the tiered read-through chain the coordinator uses.
// Satisfied by chain.Chain.
type CacheChain interface {
	Get(ctx context.Context, key string) (data []byte, tier string, ok bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Flush(ctx context.Context)
}

// WeatherResult is one resolved forecast read.
type WeatherResult struct {
	Payload   *weather.Payload `json:"payload"`
	Raw       json.RawMessage  `json:"-"`
	Key       cache.Key        `json:"key"`
	Source    string           `json:"source"`
	Stale     bool             `json:"stale"`
	FetchedAt time.Time        `json:"fetched_at"`
	City      string           `json:"city,omitempty"`
}

// WeatherService coordinates the read path: cache chain first, upstream on
// miss, durable fallback when upstream fails. All cache writes and statistics
// flow through here.
type WeatherService struct {
	cfg     config.Config
	chain   CacheChain
	durable store.Durable
	ledger  store.StatsLedger
	fetcher fetcher.Fetcher
	deriver *cache.KeyDeriver
	policy  cache.TTLPolicy
	hub     broadcast.Broadcaster
	metrics *otel.Metrics
	group   singleflight.Group
	now     func() time.Time

	mu    sync.Mutex
	stats cache.Stats
}

// NewWeatherService creates the coordinator. The in-memory statistics snapshot
// is seeded from the persisted ledger so restarts keep operator-visible
// history; a ledger read failure starts from zero.
func NewWeatherService(
	cfg config.Config,
	chain CacheChain,
	durable store.Durable,
	ledger store.StatsLedger,
	f fetcher.Fetcher,
	deriver *cache.KeyDeriver,
	hub broadcast.Broadcaster,
	metrics *otel.Metrics,
) *WeatherService {
	s := &WeatherService{
		cfg:     cfg,
		chain:   chain,
		durable: durable,
		ledger:  ledger,
		fetcher: f,
		deriver: deriver,
		hub:     hub,
		metrics: metrics,
		now:     time.Now,
	}

	switch cfg.Cache.Strategy {
	case config.StrategyAggressive, config.StrategyConservative:
		slog.Info("cache strategy currently behaves as intelligent", "strategy", cfg.Cache.Strategy)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if st, err := ledger.LoadStats(ctx); err != nil {
		slog.Warn("load persisted cache stats failed", "error", err)
		s.stats = cache.Stats{HitsByTier: make(map[string]int64)}
	} else {
		if st.HitsByTier == nil {
			st.HitsByTier = make(map[string]int64)
		}
		s.stats = st
	}
	return s
}

// Get resolves the forecast for the configured location. When force is true
// the cache chain is skipped and upstream is queried directly; the result is
// still written through so subsequent reads hit.
func (s *WeatherService) Get(ctx context.Context, force bool) (*WeatherResult, error) {
	if err := s.checkConfig(); err != nil {
		return nil, err
	}

	lat, lon := s.cfg.Weather.Latitude, s.cfg.Weather.Longitude
	fp := cache.FingerprintLocation(lat, lon)
	key := s.deriver.Derive(KindForecast, fp, nil)

	if s.cfg.Cache.Strategy == config.StrategyDisabled {
		return s.fetchDirect(ctx, lat, lon, key)
	}

	if !force {
		if res, ok := s.readChain(ctx, key); ok {
			return res, nil
		}
		// The fast tiers may have evaporated (restart, KV expiry) while the
		// durable record is still fresh.
		if res, ok := s.readDurable(ctx, key); ok {
			return res, nil
		}
		s.recordMiss(ctx)
	}

	// Collapse concurrent misses for the same key into one upstream call.
	v, err, _ := s.group.Do(string(key), func() (any, error) {
		return s.fetchAndStore(ctx, lat, lon, fp, key, force)
	})
	if err != nil {
		return nil, err
	}
	return v.(*WeatherResult), nil
}

// Stats returns the current hit/miss snapshot.
func (s *WeatherService) Stats() cache.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := cache.Stats{
		TotalHits:   s.stats.TotalHits,
		TotalMisses: s.stats.TotalMisses,
		HitsByTier:  make(map[string]int64, len(s.stats.HitsByTier)),
	}
	for k, v := range s.stats.HitsByTier {
		out.HitsByTier[k] = v
	}
	return out
}

// EntryCount reports the durable tier's entry count.
func (s *WeatherService) EntryCount(ctx context.Context) (int64, error) {
	return s.durable.EntryCount(ctx)
}

// InvalidateAll wipes every cache tier, the durable records, and the
// statistics ledger, then notifies connected clients.
func (s *WeatherService) InvalidateAll(ctx context.Context) error {
	s.chain.Flush(ctx)

	if err := s.durable.Truncate(ctx); err != nil {
		return fmt.Errorf("truncate durable tier: %w", err)
	}
	if err := s.ledger.ResetStats(ctx); err != nil {
		slog.Warn("reset persisted stats failed", "error", err)
	}

	s.mu.Lock()
	s.stats = cache.Stats{HitsByTier: make(map[string]int64)}
	s.mu.Unlock()

	slog.Info("cache invalidated")
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventCacheInvalidated, ws.CacheInvalidatedEvent{At: s.now()})
	}
	return nil
}

func (s *WeatherService) checkConfig() error {
	w := s.cfg.Weather
	if w.APIKey == "" || (w.Latitude == 0 && w.Longitude == 0) {
		return fmt.Errorf("weather provider not configured: %w", domain.ErrConfigIncomplete)
	}
	return nil
}

// readChain queries the tier chain and accounts the hit if one is found.
func (s *WeatherService) readChain(ctx context.Context, key cache.Key) (*WeatherResult, bool) {
	data, tier, ok := s.chain.Get(ctx, string(key))
	if !ok {
		return nil, false
	}

	var p weather.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		// Corrupt cached bytes. Drop the entry and fall through to a miss.
		slog.Warn("corrupt cache entry, evicting", "key", key, "tier", tier, "error", err)
		s.chain.Delete(ctx, string(key))
		return nil, false
	}

	s.recordHit(ctx, key, tier)
	return &WeatherResult{
		Payload:   &p,
		Raw:       data,
		Key:       key,
		Source:    tier,
		FetchedAt: s.now(),
		City:      s.cfg.Weather.CityName,
	}, true
}

// readDurable serves a fresh durable record and promotes it into the faster
// tiers for its remaining lifetime.
func (s *WeatherService) readDurable(ctx context.Context, key cache.Key) (*WeatherResult, bool) {
	entry, err := s.durable.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("durable tier get failed", "key", key, "error", err)
		}
		return nil, false
	}

	var p weather.Payload
	if err := json.Unmarshal(entry.Value, &p); err != nil {
		slog.Warn("corrupt durable entry", "key", key, "error", err)
		return nil, false
	}

	if remaining := time.Until(entry.ExpiresAt); remaining > 0 {
		s.chain.Set(ctx, string(key), entry.Value, remaining)
	}

	s.recordHit(ctx, key, cache.SourceDurable)
	return &WeatherResult{
		Payload:   &p,
		Raw:       entry.Value,
		Key:       key,
		Source:    cache.SourceDurable,
		FetchedAt: entry.CreatedAt,
		City:      s.cfg.Weather.CityName,
	}, true
}

// fetchDirect serves the disabled-cache strategy: straight to upstream,
// nothing written, no fallback.
func (s *WeatherService) fetchDirect(ctx context.Context, lat, lon float64, key cache.Key) (*WeatherResult, error) {
	p, raw, err := s.fetcher.Fetch(ctx, lat, lon)
	if err != nil {
		return nil, err
	}
	return &WeatherResult{
		Payload:   p,
		Raw:       raw,
		Key:       key,
		Source:    cache.SourceUpstream,
		FetchedAt: s.now(),
		City:      s.cfg.Weather.CityName,
	}, nil
}

// fetchAndStore fetches from upstream and writes through every tier. On
// upstream failure it falls back to the durable tier within the configured
// staleness window before giving up.
func (s *WeatherService) fetchAndStore(ctx context.Context, lat, lon float64, fp cache.LocationFingerprint, key cache.Key, forced bool) (*WeatherResult, error) {
	ctx, span := otel.StartFetchSpan(ctx, lat, lon, forced)
	defer span.End()

	start := s.now()
	p, raw, err := s.fetcher.Fetch(ctx, lat, lon)
	elapsed := s.now().Sub(start).Seconds()
	if err != nil {
		s.metrics.RecordFetch(ctx, "error", elapsed)
		slog.Warn("upstream fetch failed, trying durable fallback", "key", key, "error", err)
		return s.fallback(ctx, fp, key, err)
	}
	s.metrics.RecordFetch(ctx, "success", elapsed)

	decision := s.policy.Compute(s.cfg.Cache.UpdateIntervalHrs, p)
	now := s.now()

	s.chain.Set(ctx, string(key), raw, decision.TTL())

	entry := &cache.Entry{
		Key:            key,
		Value:          raw,
		Location:       fp,
		SourceTag:      cache.SourceUpstream,
		SizeBytes:      len(raw),
		CreatedAt:      now,
		ExpiresAt:      now.Add(decision.TTL()),
		LastAccessedAt: now,
	}
	if err := s.durable.Upsert(ctx, entry); err != nil {
		slog.Warn("durable tier upsert failed", "key", key, "error", err)
	}
	if err := s.ledger.SetLastRefresh(ctx, now); err != nil {
		slog.Warn("record refresh checkpoint failed", "error", err)
	}

	slog.Info("forecast refreshed",
		"key", key,
		"ttl_seconds", decision.FinalSeconds,
		"modifier", decision.Modifier,
		"bytes", len(raw),
	)
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventWeatherRefreshed, ws.WeatherRefreshedEvent{
			Key:        string(key),
			TTLSeconds: decision.FinalSeconds,
			FetchedAt:  now,
		})
	}

	return &WeatherResult{
		Payload:   p,
		Raw:       raw,
		Key:       key,
		Source:    cache.SourceUpstream,
		FetchedAt: now,
		City:      s.cfg.Weather.CityName,
	}, nil
}

// fallback serves the newest durable entry within the staleness window after
// an upstream failure. fetchErr is returned when nothing usable remains.
func (s *WeatherService) fallback(ctx context.Context, fp cache.LocationFingerprint, key cache.Key, fetchErr error) (*WeatherResult, error) {
	window := time.Duration(s.cfg.Cache.FallbackHours) * time.Hour

	entry, err := s.durable.GetStale(ctx, key, window)
	if errors.Is(err, domain.ErrNotFound) {
		// The hour bucket rotated since the last successful fetch; any entry
		// for this location inside the window still beats an error page.
		entry, err = s.durable.LatestForLocation(ctx, fp, window)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fetchErr
		}
		slog.Warn("durable fallback read failed", "key", key, "error", err)
		return nil, fetchErr
	}

	var p weather.Payload
	if err := json.Unmarshal(entry.Value, &p); err != nil {
		slog.Warn("corrupt durable fallback entry", "key", entry.Key, "error", err)
		return nil, fetchErr
	}

	now := s.now()
	stale := entry.Expired(now)
	source := cache.SourceDurable
	if stale {
		source = cache.SourceDurableStale
	}
	s.recordHit(ctx, entry.Key, source)

	slog.Info("serving durable fallback", "key", entry.Key, "stale", stale, "age", entry.Age(now).Round(time.Second))
	return &WeatherResult{
		Payload:   &p,
		Raw:       entry.Value,
		Key:       entry.Key,
		Source:    source,
		Stale:     stale,
		FetchedAt: entry.CreatedAt,
		City:      s.cfg.Weather.CityName,
	}, nil
}

// recordHit updates the in-memory snapshot, the persisted ledger, the durable
// entry's usage columns, and the hit metric. Ledger failures only log.
func (s *WeatherService) recordHit(ctx context.Context, key cache.Key, tier string) {
	s.mu.Lock()
	s.stats.TotalHits++
	s.stats.HitsByTier[tier]++
	s.mu.Unlock()

	if err := s.durable.RecordHit(ctx, key); err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.Debug("record durable hit failed", "key", key, "error", err)
	}
	if err := s.ledger.IncrCounter(ctx, store.CounterHits, 1); err != nil {
		slog.Debug("persist hit counter failed", "error", err)
	}
	if err := s.ledger.IncrCounter(ctx, store.CounterTierPrefix+tier, 1); err != nil {
		slog.Debug("persist tier counter failed", "tier", tier, "error", err)
	}
	s.metrics.RecordHit(ctx, tier)
}

func (s *WeatherService) recordMiss(ctx context.Context) {
	s.mu.Lock()
	s.stats.TotalMisses++
	s.mu.Unlock()

	if err := s.ledger.IncrCounter(ctx, store.CounterMisses, 1); err != nil {
		slog.Debug("persist miss counter failed", "error", err)
	}
	s.metrics.RecordMiss(ctx)
}
