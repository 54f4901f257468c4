// Package store provides durable snapshot storage for session records.
//
// Each session key maps to exactly one record holding the full turn
// sequence and a revision counter. Drivers overwrite a record atomically on
// Save, so a crash mid-flush never leaves a half-written record observable
// to a later Load.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kestrelworks/switchboard/internal/domain"
	"github.com/kestrelworks/switchboard/internal/logging"
)

// Record is the durable snapshot of one session.
type Record struct {
	Key       domain.SessionKey `json:"key"`
	Turns     []domain.Turn     `json:"turns"`
	Revision  uint64            `json:"revision"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy so callers never alias stored state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Turns = make([]domain.Turn, len(r.Turns))
	copy(out.Turns, r.Turns)
	for i, turn := range out.Turns {
		if len(turn.ToolCalls) > 0 {
			calls := make([]domain.ToolCallRecord, len(turn.ToolCalls))
			copy(calls, turn.ToolCalls)
			out.Turns[i].ToolCalls = calls
		}
	}
	return &out
}

// Driver is the storage contract the session store persists through.
type Driver interface {
	// Load returns the record for key, or (nil, nil) when none exists.
	Load(ctx context.Context, key domain.SessionKey) (*Record, error)

	// Save overwrites the record atomically.
	Save(ctx context.Context, rec *Record) error

	// Delete removes the record for key. Missing records are not an error.
	Delete(ctx context.Context, key domain.SessionKey) error

	// Keys lists all stored session keys.
	Keys(ctx context.Context) ([]domain.SessionKey, error)

	// Close releases driver resources.
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver string // "sqlite" | "redis" | "memory"

	// sqlite
	Path string // database file path, or ":memory:"

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration // 0 means no expiry
}

// Open creates the configured driver. An unknown driver name is a
// configuration error.
func Open(cfg Config, log *logging.Logger) (Driver, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		return OpenSQLite(path, log)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedis(client, cfg.RedisTTL, log), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
