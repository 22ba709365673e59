// Package cache holds the cache domain model: key derivation, the adaptive
// TTL policy, entry and statistics records, and the janitor schedule.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Namespace prefixes every derived key so shared backends can be wiped
// without touching foreign entries.
const Namespace = "wx:"

// Key is a deterministic cache key.
type Key string

// LocationFingerprint identifies a physical location. Coordinates are rounded
// to four decimal places (~11 m) before hashing so equal locations always
// collide and distinct ones never do.
type LocationFingerprint string

// FingerprintLocation derives a fingerprint from decimal-degree coordinates.
func FingerprintLocation(lat, lon float64) LocationFingerprint {
	sum := sha256.Sum256(fmt.Appendf(nil, "%.4f,%.4f", lat, lon))
	return LocationFingerprint(hex.EncodeToString(sum[:8]))
}

// KeyDeriver builds cache keys bucketed to the clock hour. The zone is fixed
// at construction because it controls cache churn: two requests in the same
// clock hour of that zone share a key, requests across an hour boundary do
// not.
type KeyDeriver struct {
	zone *time.Location
	now  func() time.Time
}

// NewKeyDeriver creates a deriver bucketing hours in the given zone.
// A nil zone means UTC.
func NewKeyDeriver(zone *time.Location) *KeyDeriver {
	if zone == nil {
		zone = time.UTC
	}
	return &KeyDeriver{zone: zone, now: time.Now}
}

// Derive builds the key for (kind, location, current hour, extra params).
// It is a pure function of its inputs and the current hour and never fails.
func (d *KeyDeriver) Derive(kind string, fp LocationFingerprint, extra map[string]string) Key {
	bucket := d.now().In(d.zone).Format("2006010215")

	var b strings.Builder
	b.WriteString(Namespace)
	b.WriteString(kind)
	b.WriteByte(':')
	b.WriteString(string(fp))
	b.WriteByte(':')
	b.WriteString(bucket)

	if len(extra) > 0 {
		b.WriteByte(':')
		b.WriteString(hashParams(extra))
	}
	return Key(b.String())
}

// hashParams folds extra parameters into a short digest using a canonical
// (key-sorted) serialization.
func hashParams(extra map[string]string) string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(extra[k])
		b.WriteByte('&')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:6])
}
