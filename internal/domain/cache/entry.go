package cache

import "time"

// Source tags recorded on entries and hits.
const (
	SourceMemory       = "memory"
	SourceKV           = "kv"
	SourceDurable      = "durable"
	SourceDurableStale = "durable_stale"
	SourceUpstream     = "upstream"
)

// Entry is a durable-tier cache record.
type Entry struct {
	Key            Key
	Value          []byte
	Location       LocationFingerprint
	SourceTag      string
	SizeBytes      int
	HitCount       int
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
}

// Expired reports whether the entry's nominal TTL has passed.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Age returns how long ago the entry was created.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Stats is a snapshot of hit/miss accounting. Counters are monotonically
// non-decreasing for the process lifetime and persisted best-effort so a
// restart does not reset operator-visible history.
type Stats struct {
	TotalHits   int64            `json:"total_hits"`
	TotalMisses int64            `json:"total_misses"`
	HitsByTier  map[string]int64 `json:"hits_by_tier"`
}

// HitRate returns hits / (hits + misses), or 0 when no lookups were recorded.
func (s Stats) HitRate() float64 {
	total := s.TotalHits + s.TotalMisses
	if total == 0 {
		return 0
	}
	return float64(s.TotalHits) / float64(total)
}

// SweepSummary is one janitor run's record in the bounded sweep log.
type SweepSummary struct {
	ID           string    `json:"id"`
	RunAt        time.Time `json:"run_at"`
	DeletedCount int       `json:"deleted_count"`
}
