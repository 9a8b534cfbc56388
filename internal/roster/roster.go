// Package roster tracks the identities of the running consumers.
package roster

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Roster holds the identities of the running pool in process and mirrors
// them to a Redis list so other processes can read them.
type Roster struct {
	rdb *redis.Client
	key string

	mu  sync.RWMutex
	ids []string
}

// New creates a roster mirrored to the list at key.
func New(rdb *redis.Client, key string) *Roster {
	return &Roster{rdb: rdb, key: key}
}

// Key returns the Redis list key.
func (r *Roster) Key() string {
	return r.key
}

// Reset clears both the local list and the Redis list.
func (r *Roster) Reset(ctx context.Context) error {
	r.mu.Lock()
	r.ids = nil
	r.mu.Unlock()

	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("reset roster %s: %w", r.key, err)
	}
	return nil
}

// Register appends id locally and to the Redis list.
func (r *Roster) Register(ctx context.Context, id string) error {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()

	if err := r.rdb.RPush(ctx, r.key, id).Err(); err != nil {
		return fmt.Errorf("register %s in roster %s: %w", id, r.key, err)
	}
	return nil
}

// List returns a copy of the local identities in registration order.
func (r *Roster) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Len returns the number of registered identities.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ids)
}

// Stored reads the identities from Redis, which may have been written by another process.
func Stored(ctx context.Context, rdb *redis.Client, key string) ([]string, error) {
	ids, err := rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", key, err)
	}
	return ids, nil
}
