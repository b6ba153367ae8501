package cache

import (
	"context"
	"sort"

	"listing-discovery/internal/domain"

	"go.uber.org/zap"
)

// PopularityTracker ranked search counter per place id (sorted set, score =
// search count). Counts never expire.
type PopularityTracker struct {
	backend Backend
	key     string
	guard   guard
}

func NewPopularityTracker(backend Backend, cfg Config, logger *zap.Logger) *PopularityTracker {
	return &PopularityTracker{
		backend: backend,
		key:     keySpace{prefix: cfg.KeyPrefix}.popularity(),
		guard:   guard{opTimeout: cfg.OpTimeout, logger: logger},
	}
}

// RecordSearch increments placeID's count; failures are logged only
func (p *PopularityTracker) RecordSearch(ctx context.Context, placeID string) {
	if placeID == "" {
		return
	}
	opCtx, cancel := p.guard.ctx(ctx)
	defer cancel()
	if _, err := p.backend.ZIncrBy(opCtx, p.key, 1, placeID); err != nil {
		p.guard.swallow("record_search", err, zap.String("place_id", placeID))
	}
}

// TopN highest counts first, ties by place id ascending. Empty on failure.
func (p *PopularityTracker) TopN(ctx context.Context, n int) []domain.PopularityEntry {
	if n <= 0 {
		return []domain.PopularityEntry{}
	}
	opCtx, cancel := p.guard.ctx(ctx)
	defer cancel()

	top, err := p.backend.ZRevRangeWithScores(opCtx, p.key, 0, int64(n-1))
	if err != nil {
		p.guard.swallow("top_n", err)
		return []domain.PopularityEntry{}
	}

	// members tied with the last one may sit outside the window
	if len(top) == n {
		boundary := top[n-1].Score
		ties, err := p.backend.ZRangeByScore(opCtx, p.key, boundary, boundary)
		if err != nil {
			p.guard.swallow("top_n_ties", err)
		} else {
			kept := top[:0]
			for _, m := range top {
				if m.Score != boundary {
					kept = append(kept, m)
				}
			}
			top = append(kept, ties...)
		}
	}

	sort.SliceStable(top, func(i, j int) bool {
		if top[i].Score != top[j].Score {
			return top[i].Score > top[j].Score
		}
		return top[i].Member < top[j].Member
	})
	if len(top) > n {
		top = top[:n]
	}

	entries := make([]domain.PopularityEntry, len(top))
	for i, m := range top {
		entries[i] = domain.PopularityEntry{PlaceID: m.Member, Count: int64(m.Score)}
	}
	return entries
}
