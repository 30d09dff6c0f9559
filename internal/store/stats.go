package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MatchResult string

const (
	ResultWin  MatchResult = "win"
	ResultLoss MatchResult = "loss"
	ResultDraw MatchResult = "draw"
)

// UserStats is the cumulative cross-match record of a registered user.
// goals_difference always equals total_goals_scored - total_goals_conceded;
// both are maintained by the same additive update.
type UserStats struct {
	UserID             int64  `json:"user_id"`
	Username           string `json:"username"`
	TotalGoalsScored   int    `json:"total_goals_scored"`
	TotalGoalsConceded int    `json:"total_goals_conceded"`
	GoalsDifference    int    `json:"goals_difference"`
	Wins               int    `json:"wins"`
	Losses             int    `json:"losses"`
	Draws              int    `json:"draws"`
	MatchesPlayed      int    `json:"matches_played"`
}

type StatsStore struct {
	db *pgxpool.Pool
}

func NewStatsStore(db *pgxpool.Pool) *StatsStore {
	return &StatsStore{db: db}
}

const statsColumns = `
	SELECT u.username, ps.user_id, ps.total_goals_scored, ps.total_goals_conceded,
	       ps.goals_difference, ps.wins, ps.losses, ps.draws, ps.matches_played
	FROM player_stats ps
	JOIN users u ON u.id = ps.user_id`

// ApplyMatchResult additively folds one completed match into the user's row
// inside a single transaction and returns the updated row. Either the whole
// match is recorded or none of it is.
func (s *StatsStore) ApplyMatchResult(ctx context.Context, userID int64, goalsScored, goalsConceded int, result MatchResult) (*UserStats, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	wins, losses, draws := 0, 0, 0
	switch result {
	case ResultWin:
		wins = 1
	case ResultLoss:
		losses = 1
	case ResultDraw:
		draws = 1
	default:
		return nil, fmt.Errorf("unknown match result %q", result)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE player_stats
		SET total_goals_scored = total_goals_scored + $1,
		    total_goals_conceded = total_goals_conceded + $2,
		    goals_difference = goals_difference + $3,
		    wins = wins + $4,
		    losses = losses + $5,
		    draws = draws + $6,
		    matches_played = matches_played + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE user_id = $7
	`, goalsScored, goalsConceded, goalsScored-goalsConceded, wins, losses, draws, userID)
	if err != nil {
		return nil, fmt.Errorf("update stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("no stats row for user %d", userID)
	}

	updated := &UserStats{}
	err = tx.QueryRow(ctx, statsColumns+` WHERE ps.user_id = $1`, userID).Scan(
		&updated.Username, &updated.UserID, &updated.TotalGoalsScored, &updated.TotalGoalsConceded,
		&updated.GoalsDifference, &updated.Wins, &updated.Losses, &updated.Draws, &updated.MatchesPlayed,
	)
	if err != nil {
		return nil, fmt.Errorf("read back stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

// TopStats is the durable-store leaderboard query, the fallback and rebuild
// source for the ranking cache.
func (s *StatsStore) TopStats(ctx context.Context, limit int) ([]UserStats, error) {
	rows, err := s.db.Query(ctx, statsColumns+`
		WHERE ps.matches_played > 0
		ORDER BY ps.wins DESC, ps.goals_difference DESC, ps.total_goals_scored DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top stats: %w", err)
	}
	defer rows.Close()

	var out []UserStats
	for rows.Next() {
		var st UserStats
		if err := rows.Scan(
			&st.Username, &st.UserID, &st.TotalGoalsScored, &st.TotalGoalsConceded,
			&st.GoalsDifference, &st.Wins, &st.Losses, &st.Draws, &st.MatchesPlayed,
		); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *StatsStore) Get(ctx context.Context, userID int64) (*UserStats, error) {
	st := &UserStats{}
	err := s.db.QueryRow(ctx, statsColumns+` WHERE ps.user_id = $1`, userID).Scan(
		&st.Username, &st.UserID, &st.TotalGoalsScored, &st.TotalGoalsConceded,
		&st.GoalsDifference, &st.Wins, &st.Losses, &st.Draws, &st.MatchesPlayed,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return st, err
}
