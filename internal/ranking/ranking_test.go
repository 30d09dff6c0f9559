package ranking

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitchside/pitchside/internal/store"
)

type fakeDurable struct {
	rows    map[int64]*store.UserStats
	applies int
	fail    bool
}

func (f *fakeDurable) ApplyMatchResult(_ context.Context, userID int64, gs, gc int, result store.MatchResult) (*store.UserStats, error) {
	if f.fail {
		return nil, errors.New("db down")
	}
	f.applies++
	st, ok := f.rows[userID]
	if !ok {
		st = &store.UserStats{UserID: userID, Username: "u"}
		f.rows[userID] = st
	}
	st.TotalGoalsScored += gs
	st.TotalGoalsConceded += gc
	st.GoalsDifference = st.TotalGoalsScored - st.TotalGoalsConceded
	st.MatchesPlayed++
	switch result {
	case store.ResultWin:
		st.Wins++
	case store.ResultLoss:
		st.Losses++
	case store.ResultDraw:
		st.Draws++
	}
	cp := *st
	return &cp, nil
}

func (f *fakeDurable) TopStats(_ context.Context, limit int) ([]store.UserStats, error) {
	if f.fail {
		return nil, errors.New("db down")
	}
	out := make([]store.UserStats, 0, len(f.rows))
	for _, st := range f.rows {
		out = append(out, *st)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeCache struct {
	entries map[int64]store.UserStats
	sets    int
	fail    bool
}

func (f *fakeCache) SetEntries(_ context.Context, stats []store.UserStats) error {
	if f.fail {
		return errors.New("redis down")
	}
	f.sets++
	for _, st := range stats {
		f.entries[st.UserID] = st
	}
	return nil
}

func (f *fakeCache) TopEntries(_ context.Context, limit int) ([]store.UserStats, error) {
	if f.fail {
		return nil, errors.New("redis down")
	}
	out := make([]store.UserStats, 0, len(f.entries))
	for _, st := range f.entries {
		out = append(out, st)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newFixture() (*Service, *fakeDurable, *fakeCache) {
	d := &fakeDurable{rows: make(map[int64]*store.UserStats)}
	c := &fakeCache{entries: make(map[int64]store.UserStats)}
	return NewService(d, c, slog.Default()), d, c
}

func TestComposeScoreOrdering(t *testing.T) {
	// One extra win outranks any goal difference, which outranks raw goals.
	moreWins := ComposeScore(store.UserStats{Wins: 3, GoalsDifference: -50})
	betterDiff := ComposeScore(store.UserStats{Wins: 2, GoalsDifference: 40, TotalGoalsScored: 1})
	moreGoals := ComposeScore(store.UserStats{Wins: 2, GoalsDifference: 40, TotalGoalsScored: 9})

	assert.Greater(t, moreWins, betterDiff)
	assert.Greater(t, moreGoals, betterDiff)
}

func TestUpdateStatsWritesThroughToCache(t *testing.T) {
	svc, d, c := newFixture()

	err := svc.UpdateStats(context.Background(), 1, 3, 1, store.ResultWin)
	require.NoError(t, err)

	assert.Equal(t, 1, d.applies)
	entry := c.entries[1]
	assert.Equal(t, 1, entry.Wins)
	assert.Equal(t, 3, entry.TotalGoalsScored)
	assert.Equal(t, 2, entry.GoalsDifference)
}

func TestUpdateStatsDurableFailureSkipsCache(t *testing.T) {
	svc, d, c := newFixture()
	d.fail = true

	err := svc.UpdateStats(context.Background(), 1, 1, 0, store.ResultWin)
	require.Error(t, err)
	assert.Zero(t, c.sets, "cache written despite failed durable commit")
}

func TestUpdateStatsToleratesCacheFailure(t *testing.T) {
	svc, d, c := newFixture()
	c.fail = true

	err := svc.UpdateStats(context.Background(), 1, 1, 0, store.ResultWin)
	require.NoError(t, err, "durable commit succeeded, cache failure must not surface")
	assert.Equal(t, 1, d.applies)
}

func TestGlobalRankingUsesCompleteCache(t *testing.T) {
	svc, d, c := newFixture()
	c.entries[1] = store.UserStats{UserID: 1, Username: "alice", Wins: 5}

	rows, err := svc.GlobalRanking(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].Username)
	assert.Zero(t, d.applies)
}

func TestGlobalRankingRepairsIncompleteCache(t *testing.T) {
	svc, d, c := newFixture()
	// Cached row lacks its record (no username): fall back and repopulate.
	c.entries[1] = store.UserStats{UserID: 1}
	d.rows[1] = &store.UserStats{UserID: 1, Username: "alice", Wins: 5}

	rows, err := svc.GlobalRanking(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice", rows[0].Username)
	assert.Equal(t, 1, c.sets, "incomplete cache not repopulated")
	assert.Equal(t, "alice", c.entries[1].Username)
}

func TestGlobalRankingEmptyCacheFallsBack(t *testing.T) {
	svc, d, _ := newFixture()
	d.rows[1] = &store.UserStats{UserID: 1, Username: "alice"}

	rows, err := svc.GlobalRanking(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestGlobalRankingCacheOutageFallsBack(t *testing.T) {
	svc, d, c := newFixture()
	c.fail = true
	d.rows[1] = &store.UserStats{UserID: 1, Username: "alice"}

	rows, err := svc.GlobalRanking(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestGlobalRankingBothDownSurfacesError(t *testing.T) {
	svc, d, c := newFixture()
	c.fail = true
	d.fail = true

	_, err := svc.GlobalRanking(context.Background(), 10)
	assert.Error(t, err)
}
