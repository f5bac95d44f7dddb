package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// nameFieldSep separates the parts of a NameKey inside a hash field. Team
// names never contain the ASCII unit separator.
const nameFieldSep = "\x1f"

// NameCacheStore persists team-name matches in a Redis hash so fuzzy matching
// work survives restarts and is shared between processes.
type NameCacheStore struct {
	c *Client
}

// NewNameCacheStore creates a NameCacheStore backed by the given Client.
func NewNameCacheStore(c *Client) *NameCacheStore {
	return &NameCacheStore{c: c}
}

var _ domain.NameCacheStore = (*NameCacheStore)(nil)

func (s *NameCacheStore) hashKey() string {
	return s.c.key("names")
}

// Load returns every stored match. Fields that do not decode are ignored.
func (s *NameCacheStore) Load(ctx context.Context) (map[domain.NameKey]string, error) {
	raw, err := s.c.rdb.HGetAll(ctx, s.hashKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load name cache: %w", err)
	}
	out := make(map[domain.NameKey]string, len(raw))
	for field, canonical := range raw {
		if key, ok := decodeNameField(field); ok {
			out[key] = canonical
		}
	}
	return out, nil
}

// Save writes entries into the hash, keeping entries already stored.
func (s *NameCacheStore) Save(ctx context.Context, entries map[domain.NameKey]string) error {
	if len(entries) == 0 {
		return nil
	}
	values := make(map[string]any, len(entries))
	for k, v := range entries {
		values[encodeNameField(k)] = v
	}
	if err := s.c.rdb.HSet(ctx, s.hashKey(), values).Err(); err != nil {
		return fmt.Errorf("redis: save name cache: %w", err)
	}
	return nil
}

func encodeNameField(k domain.NameKey) string {
	return k.Input + nameFieldSep + k.TeamA + nameFieldSep + k.TeamB
}

func decodeNameField(field string) (domain.NameKey, bool) {
	parts := strings.Split(field, nameFieldSep)
	if len(parts) != 3 {
		return domain.NameKey{}, false
	}
	return domain.NameKey{Input: parts[0], TeamA: parts[1], TeamB: parts[2]}, true
}
