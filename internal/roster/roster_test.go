package roster

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRoster(t *testing.T) (*Roster, *miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, "consumer-ids"), mr, rdb
}

func TestRoster_RegisterMirrorsToRedis(t *testing.T) {
	r, mr, rdb := setupTestRoster(t)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, "a"))
	require.NoError(t, r.Register(ctx, "b"))

	assert.Equal(t, []string{"a", "b"}, r.List())
	assert.Equal(t, 2, r.Len())

	stored, err := mr.List("consumer-ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, stored)

	ids, err := Stored(ctx, rdb, r.Key())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestRoster_ResetClearsPreviousRun(t *testing.T) {
	r, mr, rdb := setupTestRoster(t)
	ctx := context.Background()

	_, err := mr.Push("consumer-ids", "stale-1", "stale-2")
	require.NoError(t, err)

	require.NoError(t, r.Reset(ctx))
	require.NoError(t, r.Register(ctx, "fresh"))

	ids, err := Stored(ctx, rdb, "consumer-ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids)
}

func TestRoster_ListIsACopy(t *testing.T) {
	r, _, _ := setupTestRoster(t)
	require.NoError(t, r.Register(context.Background(), "a"))

	ids := r.List()
	ids[0] = "mutated"
	assert.Equal(t, []string{"a"}, r.List())
}

func TestRoster_ConcurrentRegister(t *testing.T) {
	r, _, _ := setupTestRoster(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.Register(ctx, fmt.Sprintf("c%d", i)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, r.Len())
}

func TestStored_WrongType(t *testing.T) {
	_, mr, rdb := setupTestRoster(t)
	require.NoError(t, mr.Set("consumer-ids", "x"))

	_, err := Stored(context.Background(), rdb, "consumer-ids")
	assert.Error(t, err)
}
