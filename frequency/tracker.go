// Package frequency counts topic keyword occurrences for a session.
package frequency

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"

	"reel-scout/models"
)

// Store persists frequency stats, upserting by session.
type Store interface {
	SaveFrequency(ctx context.Context, stats models.FrequencyStats) error
}

// Seed returns stats with a zero count and weight for every keyword.
func Seed(sessionID string, keywords []string) models.FrequencyStats {
	stats := models.FrequencyStats{
		SessionID: sessionID,
		Freq:      make(map[string]int, len(keywords)),
		Priority:  make(map[string]int, len(keywords)),
	}
	for _, k := range normalize(keywords) {
		stats.Freq[k] = 0
		stats.Priority[k] = 0
	}
	return stats
}

// Tracker is owned by one orchestrator and is not safe for concurrent use.
type Tracker struct {
	store    Store
	keywords []string
	stats    models.FrequencyStats
}

// New resumes from existing stats when present. Keywords missing from
// existing are seeded at zero; existing counts are kept.
func New(sessionID string, keywords []string, existing *models.FrequencyStats, store Store) *Tracker {
	stats := Seed(sessionID, keywords)
	if existing != nil {
		for k, v := range existing.Freq {
			stats.Freq[k] = v
		}
		for k, v := range existing.Priority {
			stats.Priority[k] = v
		}
	}
	return &Tracker{
		store:    store,
		keywords: normalize(keywords),
		stats:    stats,
	}
}

// Observe counts every keyword contained in text, case-insensitively, and
// bumps the priority weight of each when relevant is true. Counts are
// written through to the store before returning.
func (t *Tracker) Observe(ctx context.Context, text string, relevant bool) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	lower := strings.ToLower(text)

	var hits []string
	for _, k := range t.keywords {
		if strings.Contains(lower, k) {
			t.stats.Freq[k]++
			if relevant {
				t.stats.Priority[k]++
			}
			hits = append(hits, k)
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}
	if err := t.store.SaveFrequency(ctx, t.Snapshot()); err != nil {
		return hits, fmt.Errorf("save frequency: %w", err)
	}
	return hits, nil
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() models.FrequencyStats {
	return models.FrequencyStats{
		SessionID: t.stats.SessionID,
		Freq:      maps.Clone(t.stats.Freq),
		Priority:  maps.Clone(t.stats.Priority),
	}
}

// Ranked orders keywords by priority weight, then count, then name.
func (t *Tracker) Ranked() []string {
	out := append([]string(nil), t.keywords...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if t.stats.Priority[a] != t.stats.Priority[b] {
			return t.stats.Priority[a] > t.stats.Priority[b]
		}
		if t.stats.Freq[a] != t.stats.Freq[b] {
			return t.stats.Freq[a] > t.stats.Freq[b]
		}
		return a < b
	})
	return out
}

func normalize(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
