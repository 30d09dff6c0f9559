package ranking

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/pitchside/pitchside/internal/cache"
	"github.com/pitchside/pitchside/internal/store"
)

// RedisCache implements Cache on a sorted set (ordering) plus one hash per
// user (record). Members are user ids as strings.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) SetEntries(ctx context.Context, stats []store.UserStats) error {
	pipe := c.rdb.TxPipeline()
	for _, st := range stats {
		member := strconv.FormatInt(st.UserID, 10)
		pipe.ZAdd(ctx, cache.KeyRanking, redis.Z{Score: ComposeScore(st), Member: member})
		pipe.HSet(ctx, c.userKey(st.UserID), map[string]any{
			"user_id":              member,
			"username":             st.Username,
			"total_goals_scored":   st.TotalGoalsScored,
			"total_goals_conceded": st.TotalGoalsConceded,
			"goals_difference":     st.GoalsDifference,
			"wins":                 st.Wins,
			"losses":               st.Losses,
			"draws":                st.Draws,
			"matches_played":       st.MatchesPlayed,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write ranking entries: %w", err)
	}
	return nil
}

func (c *RedisCache) TopEntries(ctx context.Context, limit int) ([]store.UserStats, error) {
	ids, err := c.rdb.ZRevRange(ctx, cache.KeyRanking, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read ranking zset: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		uid, _ := strconv.ParseInt(id, 10, 64)
		cmds[i] = pipe.HGetAll(ctx, c.userKey(uid))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read ranking records: %w", err)
	}

	out := make([]store.UserStats, 0, len(ids))
	for i, cmd := range cmds {
		data := cmd.Val()
		uid, _ := strconv.ParseInt(ids[i], 10, 64)
		out = append(out, store.UserStats{
			UserID:             uid,
			Username:           data["username"],
			TotalGoalsScored:   atoi(data["total_goals_scored"]),
			TotalGoalsConceded: atoi(data["total_goals_conceded"]),
			GoalsDifference:    atoi(data["goals_difference"]),
			Wins:               atoi(data["wins"]),
			Losses:             atoi(data["losses"]),
			Draws:              atoi(data["draws"]),
			MatchesPlayed:      atoi(data["matches_played"]),
		})
	}
	return out, nil
}

func (c *RedisCache) userKey(userID int64) string {
	return fmt.Sprintf(cache.KeyPlayerHash, userID)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
