// Package threadslot provides durable per-booking cache slots: key-value
// blob storage that lets a reloaded session recover its thread history.
package threadslot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"guardline/internal/ports"

	"github.com/redis/go-redis/v9"
)

// snapshots older than this are garbage; the reconciler rebuilds from the
// store anyway, the slot only bridges reload gaps
const slotTTL = 7 * 24 * time.Hour

// RedisSlot stores thread snapshots in Redis keyed "thread:{booking_id}".
type RedisSlot struct {
	client *redis.Client
	prefix string
}

// NewRedisSlot creates a Redis-backed slot store and verifies connectivity.
func NewRedisSlot(addr string, db int) (*RedisSlot, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisSlot{client: client, prefix: "thread:"}, nil
}

// NewRedisSlotWithClient creates a slot store from an existing client.
func NewRedisSlotWithClient(client *redis.Client) *RedisSlot {
	return &RedisSlot{client: client, prefix: "thread:"}
}

func (s *RedisSlot) key(bookingID string) string {
	return s.prefix + bookingID
}

// Save overwrites the snapshot blob for a booking.
func (s *RedisSlot) Save(ctx context.Context, bookingID string, blob []byte) error {
	if err := s.client.Set(ctx, s.key(bookingID), blob, slotTTL).Err(); err != nil {
		return fmt.Errorf("save thread snapshot: %w", err)
	}
	return nil
}

// Load returns the snapshot blob, or ErrSlotEmpty when none exists.
func (s *RedisSlot) Load(ctx context.Context, bookingID string) ([]byte, error) {
	blob, err := s.client.Get(ctx, s.key(bookingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ports.ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("load thread snapshot: %w", err)
	}
	return blob, nil
}

// Close closes the Redis connection.
func (s *RedisSlot) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *RedisSlot) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
