// Package ranking keeps the global leaderboard consistent between the
// durable store and the coordination-store cache. The durable store is the
// single source of truth; the cache is best-effort and self-repairing.
package ranking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pitchside/pitchside/internal/store"
)

// ComposeScore folds a stats row into one sortable number: wins dominate,
// then goal difference, then raw goals.
func ComposeScore(st store.UserStats) float64 {
	return float64(st.Wins)*1e9 + float64(st.GoalsDifference)*1e4 + float64(st.TotalGoalsScored)
}

// DurableStats is the durable-store surface the service needs.
type DurableStats interface {
	ApplyMatchResult(ctx context.Context, userID int64, goalsScored, goalsConceded int, result store.MatchResult) (*store.UserStats, error)
	TopStats(ctx context.Context, limit int) ([]store.UserStats, error)
}

// Cache is the coordination-store surface: a sorted set for ordering plus a
// per-user record to avoid secondary durable lookups when rendering.
type Cache interface {
	// SetEntries writes score and record for each stats row in one batch.
	SetEntries(ctx context.Context, stats []store.UserStats) error
	// TopEntries returns up to limit cached rows in rank order. A row that
	// exists in the sorted set but lacks a complete record comes back with
	// an empty Username.
	TopEntries(ctx context.Context, limit int) ([]store.UserStats, error)
}

type Service struct {
	durable DurableStats
	cache   Cache
	logger  *slog.Logger
}

func NewService(durable DurableStats, cache Cache, logger *slog.Logger) *Service {
	return &Service{durable: durable, cache: cache, logger: logger}
}

// UpdateStats records a completed match for one user: durable transaction
// first, cache write only after commit. A failed commit writes nothing to
// the cache; a failed cache write after commit is tolerated, the next
// ranking read repairs it.
func (s *Service) UpdateStats(ctx context.Context, userID int64, goalsScored, goalsConceded int, result store.MatchResult) error {
	updated, err := s.durable.ApplyMatchResult(ctx, userID, goalsScored, goalsConceded, result)
	if err != nil {
		return fmt.Errorf("apply match result: %w", err)
	}

	if err := s.cache.SetEntries(ctx, []store.UserStats{*updated}); err != nil {
		s.logger.Warn("ranking cache write failed, cache will self-heal", "user", userID, "err", err)
	}
	return nil
}

// GlobalRanking returns the top entries, cache-aside: cached rows are used
// only when every record is complete; otherwise the durable store is queried
// and the cache repopulated best-effort.
func (s *Service) GlobalRanking(ctx context.Context, limit int) ([]store.UserStats, error) {
	cached, err := s.cache.TopEntries(ctx, limit)
	if err != nil {
		s.logger.Warn("ranking cache read failed, falling back to durable store", "err", err)
		return s.durable.TopStats(ctx, limit)
	}

	if len(cached) > 0 && complete(cached) {
		return cached, nil
	}

	rows, err := s.durable.TopStats(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("top stats: %w", err)
	}
	if len(rows) > 0 {
		if err := s.cache.SetEntries(ctx, rows); err != nil {
			s.logger.Warn("ranking cache repopulate failed", "err", err)
		}
	}
	return rows, nil
}

func complete(rows []store.UserStats) bool {
	for _, r := range rows {
		if r.Username == "" {
			return false
		}
	}
	return true
}
