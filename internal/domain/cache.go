package domain

import (
	"context"
	"time"
)

// NameKey identifies one standardization lookup: the lower-cased reported name
// and the event's two team names in sorted order.
type NameKey struct {
	Input string
	TeamA string
	TeamB string
}

// NameCache memoizes fuzzy team-name matches. Implementations must be safe
// for concurrent use by several scan workers.
type NameCache interface {
	Get(key NameKey) (string, bool)
	Put(key NameKey, canonical string)
}

// NameCacheStore persists name matches between runs.
type NameCacheStore interface {
	Load(ctx context.Context) (map[NameKey]string, error)
	Save(ctx context.Context, entries map[NameKey]string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	// StreamRecent returns the newest count entries, oldest first.
	StreamRecent(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}

// Bus channels and streams.
const (
	ChannelArb  = "ch:arb"
	ChannelScan = "ch:scan"
	StreamArb   = "stream:arb"
)
