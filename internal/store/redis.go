package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kestrelworks/switchboard/internal/domain"
	"github.com/kestrelworks/switchboard/internal/logging"
)

// recordKeyPrefix namespaces session records in Redis.
const recordKeyPrefix = "session:"

// ErrStaleRevision is returned when a Save would move a record's revision
// backwards. It indicates a writer working from a stale snapshot, which the
// session store's exclusion contract should make impossible; the driver
// still refuses the write as a second line of defense.
var ErrStaleRevision = errors.New("store: stale revision")

// Redis stores each session as a JSON snapshot at "session:{key}".
// SET replaces the value atomically; a WATCH-based revision check refuses
// lost updates at the storage layer.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *logging.Logger
}

// NewRedis creates a Redis driver. ttl of zero means records never expire.
func NewRedis(client *redis.Client, ttl time.Duration, log *logging.Logger) *Redis {
	return &Redis{client: client, ttl: ttl, log: log.Sub("store")}
}

// Load implements Driver. The TTL, when set, is refreshed on every read so
// active conversations stay durable.
func (r *Redis) Load(ctx context.Context, key domain.SessionKey) (*Record, error) {
	val, err := r.client.Get(ctx, recordKeyPrefix+string(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", key, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", key, err)
	}

	if r.ttl > 0 {
		_ = r.client.Expire(ctx, recordKeyPrefix+string(key), r.ttl).Err()
	}
	return &rec, nil
}

// Save implements Driver.
func (r *Redis) Save(ctx context.Context, rec *Record) error {
	key := recordKeyPrefix + string(rec.Key)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", rec.Key, err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var stored Record
			if err := json.Unmarshal([]byte(val), &stored); err != nil {
				return fmt.Errorf("decoding stored session %s: %w", rec.Key, err)
			}
			if stored.Revision >= rec.Revision {
				return ErrStaleRevision
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("saving session %s: %w", rec.Key, err)
	}
	return nil
}

// Delete implements Driver.
func (r *Redis) Delete(ctx context.Context, key domain.SessionKey) error {
	if err := r.client.Del(ctx, recordKeyPrefix+string(key)).Err(); err != nil {
		return fmt.Errorf("deleting session %s: %w", key, err)
	}
	return nil
}

// Keys implements Driver. SCAN keeps this safe on large keyspaces.
func (r *Redis) Keys(ctx context.Context) ([]domain.SessionKey, error) {
	var keys []domain.SessionKey
	iter := r.client.Scan(ctx, 0, recordKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, domain.SessionKey(iter.Val()[len(recordKeyPrefix):]))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return keys, nil
}

// Close implements Driver.
func (r *Redis) Close() error {
	return r.client.Close()
}
