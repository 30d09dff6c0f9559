package room

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitchside/pitchside/internal/cache"
)

// roomTTL is a safety net against state leaked by crashed replicas; every
// write renews it, so live rooms never expire.
const roomTTL = time.Hour

// RedisStore implements Store on the shared coordination store.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal room %s: %w", rec.ID, err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.key(rec.ID), data, roomTTL)
	pipe.SAdd(ctx, cache.KeyRoomSet, rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save room %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal room %s: %w", id, err)
	}
	return &rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.SRem(ctx, cache.KeyRoomSet, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete room %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) All(ctx context.Context) ([]Record, error) {
	ids, err := s.rdb.SMembers(ctx, cache.KeyRoomSet).Result()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	recs := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			// Snapshot expired but the membership entry lingered.
			_ = s.rdb.SRem(ctx, cache.KeyRoomSet, id).Err()
			continue
		}
		recs = append(recs, *rec)
	}
	return recs, nil
}

func (s *RedisStore) NextID(ctx context.Context) (int64, error) {
	seq, err := s.rdb.Incr(ctx, cache.KeyRoomCounter).Result()
	if err != nil {
		return 0, fmt.Errorf("next room id: %w", err)
	}
	return seq, nil
}

func (s *RedisStore) Touch(ctx context.Context, id string) error {
	if err := s.rdb.Expire(ctx, s.key(id), roomTTL).Err(); err != nil {
		return fmt.Errorf("touch room %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) key(id string) string {
	return fmt.Sprintf(cache.KeyRoom, id)
}
