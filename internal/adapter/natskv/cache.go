// Package natskv implements the ephemeral keyed store tier using NATS
// JetStream KV.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/weathervane/weathervane/internal/domain/cache"
)

// BucketName is the KV bucket holding cached weather payloads.
const BucketName = "WEATHERVANE_CACHE"

// envelope wraps stored values with their expiry. JetStream KV only supports
// bucket-level TTL, so per-entry expiry is enforced on read.
type envelope struct {
	ExpiresAt int64  `json:"expires_at"`
	Value     []byte `json:"value"`
}

// Cache wraps a NATS JetStream KeyValue bucket as the second tier.
type Cache struct {
	kv  jetstream.KeyValue
	now func() time.Time
}

// New creates a NATS KV-backed tier.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv, now: time.Now}
}

// EnsureBucket creates or binds the cache bucket. maxAge bounds entry
// lifetime at the bucket level as a backstop behind per-entry expiry.
func EnsureBucket(ctx context.Context, js jetstream.JetStream, maxAge time.Duration) (jetstream.KeyValue, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: BucketName,
		TTL:    maxAge,
	})
	if err != nil {
		return nil, fmt.Errorf("kv bucket %s: %w", BucketName, err)
	}
	return kv, nil
}

// Name identifies this tier in hit statistics.
func (c *Cache) Name() string { return "kv" }

// Get retrieves a payload, treating entries past their expiry as misses.
// Expired entries are deleted best-effort.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, remaining time.Duration, ok bool, err error) {
	entry, err := c.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, false, nil
		}
		return nil, 0, false, fmt.Errorf("kv get: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil {
		return nil, 0, false, fmt.Errorf("kv envelope decode: %w", err)
	}
	now := c.now()
	if now.Unix() >= env.ExpiresAt {
		_ = c.kv.Delete(ctx, encodeKey(key))
		return nil, 0, false, nil
	}
	return env.Value, time.Unix(env.ExpiresAt, 0).Sub(now), true, nil
}

// Set stores a payload with its expiry folded into the stored envelope.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	env := envelope{
		ExpiresAt: c.now().Add(ttl).Unix(),
		Value:     value,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kv envelope encode: %w", err)
	}
	if _, err := c.kv.Put(ctx, encodeKey(key), data); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

// Delete removes a payload from the bucket.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Flush deletes every key under this service's namespace.
func (c *Cache) Flush(ctx context.Context) error {
	lister, err := c.kv.ListKeys(ctx)
	if err != nil {
		return fmt.Errorf("kv list keys: %w", err)
	}
	prefix := encodeKey(cache.Namespace)
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if err := c.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("kv flush %s: %w", key, err)
		}
	}
	return nil
}

// encodeKey maps cache keys onto the KV key alphabet. Colons are not valid
// in JetStream KV keys; dots are.
func encodeKey(key string) string {
	return strings.ReplaceAll(key, ":", ".")
}
