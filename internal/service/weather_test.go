package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/weathervane/weathervane/internal/config"
	"github.com/weathervane/weathervane/internal/domain"
	"github.com/weathervane/weathervane/internal/domain/cache"
	"github.com/weathervane/weathervane/internal/domain/weather"
)

// fakeChain implements CacheChain over a plain map.
type fakeChain struct {
	mu      sync.Mutex
	data    map[string][]byte
	tier    string
	sets    int
	flushes int
}

func newFakeChain() *fakeChain {
	return &fakeChain{data: make(map[string][]byte), tier: "memory"}
}

func (f *fakeChain) Get(_ context.Context, key string) ([]byte, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, "", false
	}
	return v, f.tier, true
}

func (f *fakeChain) Set(_ context.Context, key string, value []byte, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	f.data[key] = value
}

func (f *fakeChain) Delete(_ context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
}

func (f *fakeChain) Flush(_ context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	f.data = make(map[string][]byte)
}

// fakeDurable implements store.Durable and store.StatsLedger in memory.
type fakeDurable struct {
	mu          sync.Mutex
	entries     map[cache.Key]*cache.Entry
	counters    map[string]int64
	lastRefresh time.Time
	hits        map[cache.Key]int
	truncated   bool
	statsReset  bool
	failStale   bool
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{
		entries:  make(map[cache.Key]*cache.Entry),
		counters: make(map[string]int64),
		hits:     make(map[cache.Key]int),
	}
}

func (f *fakeDurable) Upsert(_ context.Context, e *cache.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[e.Key] = e
	return nil
}

func (f *fakeDurable) Get(_ context.Context, key cache.Key) (*cache.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[key]
	if !ok || e.Expired(time.Now()) {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (f *fakeDurable) GetStale(_ context.Context, key cache.Key, maxAge time.Duration) (*cache.Entry, error) {
	if f.failStale {
		return nil, errors.New("durable down")
	}
	e, ok := f.entries[key]
	if !ok || time.Since(e.CreatedAt) > maxAge {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (f *fakeDurable) LatestForLocation(_ context.Context, fp cache.LocationFingerprint, maxAge time.Duration) (*cache.Entry, error) {
	var newest *cache.Entry
	for _, e := range f.entries {
		if e.Location != fp || time.Since(e.CreatedAt) > maxAge {
			continue
		}
		if newest == nil || e.CreatedAt.After(newest.CreatedAt) {
			newest = e
		}
	}
	if newest == nil {
		return nil, domain.ErrNotFound
	}
	return newest, nil
}

func (f *fakeDurable) RecordHit(_ context.Context, key cache.Key) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[key]++
	return nil
}

func (f *fakeDurable) Truncate(_ context.Context) error {
	f.truncated = true
	f.entries = make(map[cache.Key]*cache.Entry)
	return nil
}

func (f *fakeDurable) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for k, e := range f.entries {
		if e.Expired(now) {
			delete(f.entries, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeDurable) DeleteStaleCold(_ context.Context, olderThan time.Time, maxHits int) (int64, error) {
	var n int64
	for k, e := range f.entries {
		if e.CreatedAt.Before(olderThan) && e.HitCount < maxHits {
			delete(f.entries, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeDurable) CapEntries(_ context.Context, keep int) (int64, error) {
	if len(f.entries) <= keep {
		return 0, nil
	}
	var n int64
	for k := range f.entries {
		if len(f.entries) <= keep {
			break
		}
		delete(f.entries, k)
		n++
	}
	return n, nil
}

func (f *fakeDurable) EntryCount(_ context.Context) (int64, error) {
	return int64(len(f.entries)), nil
}

func (f *fakeDurable) IncrCounter(_ context.Context, name string, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[name] += delta
	return nil
}

func (f *fakeDurable) LoadStats(_ context.Context) (cache.Stats, error) {
	return cache.Stats{HitsByTier: make(map[string]int64)}, nil
}

func (f *fakeDurable) ResetStats(_ context.Context) error {
	f.statsReset = true
	f.counters = make(map[string]int64)
	return nil
}

func (f *fakeDurable) LastRefresh(_ context.Context) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRefresh, nil
}

func (f *fakeDurable) SetLastRefresh(_ context.Context, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRefresh = t
	return nil
}

// fakeFetcher implements fetcher.Fetcher. When gate is set, Fetch blocks
// until the channel is closed.
type fakeFetcher struct {
	mu      sync.Mutex
	payload *weather.Payload
	err     error
	calls   int
	gate    chan struct{}
}

func (f *fakeFetcher) Fetch(_ context.Context, _, _ float64) (*weather.Payload, []byte, error) {
	f.mu.Lock()
	f.calls++
	payload, err := f.payload, f.err
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	if err != nil {
		return nil, nil, err
	}
	raw, _ := json.Marshal(payload)
	return payload, raw, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testPayload() *weather.Payload {
	return &weather.Payload{
		DataDay: weather.DataDay{
			Time:                     []string{"2026-08-28"},
			Pictocode:                []int{2},
			TemperatureMax:           []float64{24.5},
			TemperatureMin:           []float64{15.1},
			Precipitation:            []float64{0},
			PrecipitationProbability: []int{10},
			Predictability:           []int{60},
		},
	}
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Weather.APIKey = "test-key"
	cfg.Weather.Latitude = 48.2082
	cfg.Weather.Longitude = 16.3738
	return cfg
}

func newTestService(cfg config.Config, ch *fakeChain, db *fakeDurable, f *fakeFetcher) *WeatherService {
	deriver := cache.NewKeyDeriver(time.UTC)
	return NewWeatherService(cfg, ch, db, db, f, deriver, nil, nil)
}

func TestWeatherService_ConfigIncomplete(t *testing.T) {
	cfg := testConfig()
	cfg.Weather.APIKey = ""
	svc := newTestService(cfg, newFakeChain(), newFakeDurable(), &fakeFetcher{})

	_, err := svc.Get(context.Background(), false)
	if !errors.Is(err, domain.ErrConfigIncomplete) {
		t.Fatalf("expected ErrConfigIncomplete, got %v", err)
	}
}

func TestWeatherService_MissFetchesAndStores(t *testing.T) {
	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{payload: testPayload()}
	svc := newTestService(testConfig(), ch, db, f)

	res, err := svc.Get(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != cache.SourceUpstream {
		t.Errorf("expected source %q, got %q", cache.SourceUpstream, res.Source)
	}
	if res.Stale {
		t.Error("fresh fetch should not be stale")
	}
	if f.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", f.calls)
	}
	if ch.sets != 1 {
		t.Errorf("expected 1 chain write, got %d", ch.sets)
	}
	if len(db.entries) != 1 {
		t.Errorf("expected 1 durable entry, got %d", len(db.entries))
	}
	if db.lastRefresh.IsZero() {
		t.Error("expected refresh checkpoint to be recorded")
	}

	stats := svc.Stats()
	if stats.TotalMisses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.TotalMisses)
	}
}

func TestWeatherService_HitServedFromChain(t *testing.T) {
	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{payload: testPayload()}
	svc := newTestService(testConfig(), ch, db, f)

	if _, err := svc.Get(context.Background(), false); err != nil {
		t.Fatalf("prime: %v", err)
	}

	res, err := svc.Get(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != "memory" {
		t.Errorf("expected memory tier hit, got %q", res.Source)
	}
	if f.calls != 1 {
		t.Errorf("hit should not call upstream again, got %d calls", f.calls)
	}

	stats := svc.Stats()
	if stats.TotalHits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.TotalHits)
	}
	if stats.HitsByTier["memory"] != 1 {
		t.Errorf("expected 1 memory hit, got %d", stats.HitsByTier["memory"])
	}
	if len(db.hits) != 1 {
		t.Error("expected hit recorded on the durable entry")
	}
}

func TestWeatherService_ForceBypassesChain(t *testing.T) {
	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{payload: testPayload()}
	svc := newTestService(testConfig(), ch, db, f)

	if _, err := svc.Get(context.Background(), false); err != nil {
		t.Fatalf("prime: %v", err)
	}
	res, err := svc.Get(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != cache.SourceUpstream {
		t.Errorf("forced read should hit upstream, got %q", res.Source)
	}
	if f.calls != 2 {
		t.Errorf("expected 2 upstream calls, got %d", f.calls)
	}
}

func TestWeatherService_DurableServesAfterChainFlush(t *testing.T) {
	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{payload: testPayload()}
	svc := newTestService(testConfig(), ch, db, f)

	if _, err := svc.Get(context.Background(), false); err != nil {
		t.Fatalf("prime: %v", err)
	}

	// The fast tiers empty out; the fresh durable record must be served and
	// promoted back without touching upstream.
	ch.Flush(context.Background())

	res, err := svc.Get(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != cache.SourceDurable {
		t.Errorf("expected source %q, got %q", cache.SourceDurable, res.Source)
	}
	if res.Stale {
		t.Error("entry within TTL should not be marked stale")
	}
	if f.calls != 1 {
		t.Errorf("durable hit should not call upstream, got %d calls", f.calls)
	}
	if len(ch.data) != 1 {
		t.Error("durable hit should promote the entry into the chain")
	}
}

func TestWeatherService_ForcedFetchFallsBackFresh(t *testing.T) {
	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{payload: testPayload()}
	svc := newTestService(testConfig(), ch, db, f)

	if _, err := svc.Get(context.Background(), false); err != nil {
		t.Fatalf("prime: %v", err)
	}

	// A forced refresh skips every tier; when upstream is down the durable
	// entry inside its TTL still comes back unmarked.
	f.err = domain.ErrUnavailable

	res, err := svc.Get(context.Background(), true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != cache.SourceDurable {
		t.Errorf("expected source %q, got %q", cache.SourceDurable, res.Source)
	}
	if res.Stale {
		t.Error("entry within TTL should not be marked stale")
	}
}

func TestWeatherService_ConcurrentMissesSingleFetch(t *testing.T) {
	const callers = 8

	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{payload: testPayload(), gate: make(chan struct{})}
	svc := newTestService(testConfig(), ch, db, f)

	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	results := make([]*WeatherResult, callers)
	errs := make([]error, callers)
	for i := range callers {
		go func() {
			defer done.Done()
			started.Done()
			results[i], errs[i] = svc.Get(context.Background(), false)
		}()
	}

	// Hold the upstream response until every caller is running. Callers that
	// arrive while the fetch is in flight share it; any straggler that misses
	// the flight finds the entry already cached.
	started.Wait()
	close(f.gate)
	done.Wait()

	if n := f.callCount(); n != 1 {
		t.Fatalf("expected 1 upstream call for the same key, got %d", n)
	}
	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error: %v", i, errs[i])
		}
		if results[i] == nil || results[i].Payload == nil {
			t.Fatalf("caller %d: missing payload", i)
		}
		if got := results[i].Payload.DataDay.TemperatureMax[0]; got != 24.5 {
			t.Errorf("caller %d: temperature = %v, want 24.5", i, got)
		}
	}
}

func TestWeatherService_FallbackStale(t *testing.T) {
	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{err: domain.ErrUnavailable}
	svc := newTestService(testConfig(), ch, db, f)

	fp := cache.FingerprintLocation(48.2082, 16.3738)
	raw, _ := json.Marshal(testPayload())
	// An entry from a previous hour bucket, past its TTL but inside the
	// 24 h fallback window.
	db.entries["wx:basic-day:old"] = &cache.Entry{
		Key:       "wx:basic-day:old",
		Value:     raw,
		Location:  fp,
		CreatedAt: time.Now().Add(-5 * time.Hour),
		ExpiresAt: time.Now().Add(-2 * time.Hour),
	}

	res, err := svc.Get(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != cache.SourceDurableStale {
		t.Errorf("expected source %q, got %q", cache.SourceDurableStale, res.Source)
	}
	if !res.Stale {
		t.Error("expired fallback entry should be marked stale")
	}
}

func TestWeatherService_FallbackExhausted(t *testing.T) {
	f := &fakeFetcher{err: domain.ErrUnavailable}
	svc := newTestService(testConfig(), newFakeChain(), newFakeDurable(), f)

	_, err := svc.Get(context.Background(), false)
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestWeatherService_DisabledStrategyBypassesCache(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Strategy = config.StrategyDisabled
	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{payload: testPayload()}
	svc := newTestService(cfg, ch, db, f)

	for range 2 {
		if _, err := svc.Get(context.Background(), false); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if f.calls != 2 {
		t.Errorf("disabled strategy should skip the cache, got %d upstream calls", f.calls)
	}
	if ch.sets != 0 {
		t.Errorf("disabled strategy should not write the chain, got %d writes", ch.sets)
	}
	if len(db.entries) != 0 {
		t.Errorf("disabled strategy should not write durable entries, got %d", len(db.entries))
	}
}

func TestWeatherService_CorruptChainEntryEvicted(t *testing.T) {
	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{payload: testPayload()}
	svc := newTestService(testConfig(), ch, db, f)

	fp := cache.FingerprintLocation(48.2082, 16.3738)
	key := cache.NewKeyDeriver(time.UTC).Derive(KindForecast, fp, nil)
	ch.data[string(key)] = []byte("{not json")

	res, err := svc.Get(context.Background(), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Source != cache.SourceUpstream {
		t.Errorf("corrupt entry should fall through to upstream, got %q", res.Source)
	}
	if string(ch.data[string(key)]) == "{not json" {
		t.Error("corrupt entry should have been replaced")
	}
}

func TestWeatherService_InvalidateAll(t *testing.T) {
	ch := newFakeChain()
	db := newFakeDurable()
	f := &fakeFetcher{payload: testPayload()}
	svc := newTestService(testConfig(), ch, db, f)

	if _, err := svc.Get(context.Background(), false); err != nil {
		t.Fatalf("prime: %v", err)
	}
	if err := svc.InvalidateAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ch.flushes == 0 {
		t.Error("expected chain flush")
	}
	if !db.truncated {
		t.Error("expected durable truncate")
	}
	if !db.statsReset {
		t.Error("expected stats reset")
	}

	stats := svc.Stats()
	if stats.TotalHits != 0 || stats.TotalMisses != 0 {
		t.Errorf("expected zeroed stats, got %+v", stats)
	}
}

func TestWeatherService_StatsSnapshotIsolated(t *testing.T) {
	svc := newTestService(testConfig(), newFakeChain(), newFakeDurable(), &fakeFetcher{payload: testPayload()})

	stats := svc.Stats()
	stats.HitsByTier["memory"] = 999

	if svc.Stats().HitsByTier["memory"] != 0 {
		t.Error("Stats must return a copy, not the internal map")
	}
}
