package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func NewRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}

const (
	KeyRoom        = "game:rooms:%s"    // serialized room snapshot, TTL renewed per write
	KeyRoomSet     = "game:active_rooms"
	KeyRoomCounter = "game:room_counter"
	KeyRanking     = "global_ranking"
	KeyPlayerHash  = "player:%d"
)
