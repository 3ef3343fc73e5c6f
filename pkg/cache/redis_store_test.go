package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsedash/analytics-engine/pkg/models"
	"github.com/pulsedash/analytics-engine/pkg/testhelpers"
)

func setupRedisStore(t *testing.T) Store {
	t.Helper()
	testRedis := testhelpers.GetTestRedis(t)
	require.NoError(t, testRedis.Client.FlushDB(context.Background()).Err())
	return NewRedisStore(testRedis.Client)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "aq:result:1:abc")
	require.NoError(t, err)
	assert.False(t, ok, "missing key is a clean miss, not an error")

	require.NoError(t, store.Set(ctx, "aq:result:1:abc", []byte(`{"row_count":2}`), time.Minute))

	val, ok, err := store.Get(ctx, "aq:result:1:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `{"row_count":2}`, string(val))

	require.NoError(t, store.Delete(ctx, "aq:result:1:abc"))
	_, ok, err = store.Get(ctx, "aq:result:1:abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_TTLExpiry(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "aq:config:9", []byte("x"), 500*time.Millisecond))

	_, ok, err := store.Get(ctx, "aq:config:9")
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(time.Second)

	_, ok, err = store.Get(ctx, "aq:config:9")
	require.NoError(t, err)
	assert.False(t, ok, "entry must expire with its TTL")
}

func TestRedisStore_DeleteMatching(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	for _, key := range []string{
		"aq:result:42:aaa", "aq:result:42:bbb", "aq:result:42:ccc",
		"aq:result:7:aaa",
		"aq:mapping:analytics.revenue_daily",
	} {
		require.NoError(t, store.Set(ctx, key, []byte("v"), time.Minute))
	}

	deleted, err := store.DeleteMatching(ctx, "aq:result:42:")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	// Other namespaces survive.
	_, ok, err := store.Get(ctx, "aq:result:7:aaa")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = store.Get(ctx, "aq:mapping:analytics.revenue_daily")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_DeleteMatching_NoMatches(t *testing.T) {
	store := setupRedisStore(t)

	deleted, err := store.DeleteMatching(context.Background(), "aq:result:999:")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

// The full cache over a real Redis: results land, survive a round trip,
// and vanish on invalidation.
func TestQueryCache_RedisIntegration(t *testing.T) {
	store := setupRedisStore(t)
	qc := newTestCache(store)
	ctx := context.Background()

	params := baseParams()
	sec := baseContext()
	qc.SetQueryResult(ctx, params, sec, &models.QueryResult{RowCount: 3}, time.Minute)

	got, ok := qc.GetQueryResult(ctx, params, sec)
	require.True(t, ok)
	assert.Equal(t, 3, got.RowCount)
	assert.True(t, got.CacheHit)

	deleted, err := qc.InvalidateDataSource(ctx, params.DataSourceID)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, ok = qc.GetQueryResult(ctx, params, sec)
	assert.False(t, ok)
}
