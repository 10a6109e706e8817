package storage

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps account records in Redis hashes. Commits run inside a
// WATCH-guarded MULTI/EXEC so every record in a command replaces atomically.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("storage.NewRedisStore: client is nil")
	}
	return &RedisStore{client: client}
}

func accountKey(addr Address) string {
	return "account:" + string(addr)
}

func (s *RedisStore) Load(ctx context.Context, addr Address) (*Record, error) {
	vals, err := s.client.HGetAll(ctx, accountKey(addr)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	version, err := strconv.ParseInt(vals["version"], 10, 64)
	if err != nil {
		return nil, err
	}
	return &Record{Address: addr, Data: []byte(vals["data"]), Version: version}, nil
}

func (s *RedisStore) CommitAll(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	keys := make([]string, len(writes))
	for i, w := range writes {
		keys[i] = accountKey(w.Address)
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		for _, w := range writes {
			raw, err := tx.HGet(ctx, accountKey(w.Address), "version").Result()
			if errors.Is(err, redis.Nil) {
				if w.Version != 0 {
					return ErrVersionConflict
				}
				continue
			}
			if err != nil {
				return err
			}
			current, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return err
			}
			if current != w.Version {
				return ErrVersionConflict
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, w := range writes {
				pipe.HSet(ctx, accountKey(w.Address),
					"data", string(w.Data),
					"version", strconv.FormatInt(w.Version+1, 10))
			}
			return nil
		})
		return err
	}, keys...)

	if errors.Is(err, redis.TxFailedErr) {
		// A watched key moved underneath us. The host serializes commands
		// per address, so this surfaces as a conflict rather than a retry.
		return ErrVersionConflict
	}
	return err
}
