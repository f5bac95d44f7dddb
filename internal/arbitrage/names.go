package arbitrage

import (
	"sort"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/alanyoungcy/arbfinder/internal/domain"
)

// DefaultNameCutoff is the minimum similarity ratio for a reported team name
// to be mapped onto one of the event's teams.
const DefaultNameCutoff = 0.6

// NameMatcher finds the closest candidate to a word using difflib's
// SequenceMatcher ratio on characters, keeping only candidates whose ratio
// reaches the cutoff.
type NameMatcher struct {
	Cutoff float64
}

// Closest returns the best scoring candidate and its ratio. Ties go to the
// lexicographically greater candidate, as in difflib.get_close_matches.
func (m NameMatcher) Closest(word string, candidates []string) (string, float64, bool) {
	cutoff := m.Cutoff
	if cutoff <= 0 {
		cutoff = DefaultNameCutoff
	}

	sm := difflib.NewMatcher(nil, nil)
	sm.SetSeq2(chars(word))

	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, c := range candidates {
		sm.SetSeq1(chars(c))
		if sm.RealQuickRatio() < cutoff || sm.QuickRatio() < cutoff {
			continue
		}
		score := sm.Ratio()
		if score < cutoff {
			continue
		}
		if !found || score > bestScore || (score == bestScore && c > best) {
			best, bestScore, found = c, score, true
		}
	}
	return best, bestScore, found
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// NewNameKey builds the cache key for a reported name within an event.
func NewNameKey(reported string, teams [2]string) domain.NameKey {
	pair := []string{teams[0], teams[1]}
	sort.Strings(pair)
	return domain.NameKey{
		Input: strings.ToLower(reported),
		TeamA: pair[0],
		TeamB: pair[1],
	}
}

// MemoryNameCache is an in-process domain.NameCache. Reads do not take a lock;
// writes are synchronized by sync.Map.
type MemoryNameCache struct {
	entries sync.Map // domain.NameKey -> string
}

// NewMemoryNameCache returns an empty cache.
func NewMemoryNameCache() *MemoryNameCache {
	return &MemoryNameCache{}
}

func (c *MemoryNameCache) Get(key domain.NameKey) (string, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (c *MemoryNameCache) Put(key domain.NameKey, canonical string) {
	c.entries.Store(key, canonical)
}

// Warm loads previously persisted matches.
func (c *MemoryNameCache) Warm(entries map[domain.NameKey]string) {
	for k, v := range entries {
		c.entries.Store(k, v)
	}
}

// Snapshot copies the current entries.
func (c *MemoryNameCache) Snapshot() map[domain.NameKey]string {
	out := make(map[domain.NameKey]string)
	c.entries.Range(func(k, v any) bool {
		out[k.(domain.NameKey)] = v.(string)
		return true
	})
	return out
}

// Len returns the number of cached matches.
func (c *MemoryNameCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

var _ domain.NameCache = (*MemoryNameCache)(nil)
