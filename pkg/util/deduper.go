package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper suppresses duplicate processing of the same logical event
// across redeliveries, keyed on handler name plus an event key.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	return &Deduper{
		rdb: rdb,
		ttl: ttl,
	}
}

// NewDeduperWithLogger creates a deduper with logger support.
func NewDeduperWithLogger(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// AcquireOnce tries to acquire the dedup slot for handler + key.
// Returns true if this is the first time processing, false on a
// duplicate. When redis is unavailable processing is allowed through:
// the downstream writes are idempotent, dropping events is not.
func (d *Deduper) AcquireOnce(ctx context.Context, handler, key string) bool {
	slot := fmt.Sprintf("dedup:%s:%s", handler, key)

	ok, err := d.rdb.SetNX(ctx, slot, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.String("key", key),
			zap.String("dedup_key", slot),
		)
	}

	return ok
}

// Release frees the slot so a failed attempt can be retried.
func (d *Deduper) Release(ctx context.Context, handler, key string) {
	slot := fmt.Sprintf("dedup:%s:%s", handler, key)
	if err := d.rdb.Del(ctx, slot).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to release dedup slot",
			zap.String("handler", handler),
			zap.String("key", key),
			zap.Error(err),
		)
	}
}
