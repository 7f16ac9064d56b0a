package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/michaelpento.lv/dexarb/aggregator"
	"github.com/michaelpento.lv/dexarb/config"
	"github.com/michaelpento.lv/dexarb/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pair = types.Pair{
	Base:  types.Token{Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Symbol: "WETH", Decimals: 18},
	Quote: types.Token{Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Symbol: "USDC", Decimals: 6},
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), config.RedisConfig{Addr: mr.Addr(), Prefix: "dexarb"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewRequiresAddress(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{})
	assert.Error(t, err)
}

func TestSnapshotCache(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	cache := NewSnapshotCache(c, time.Minute)

	_, ok, err := cache.Get(ctx, pair.Key())
	require.NoError(t, err)
	assert.False(t, ok)

	taken := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := aggregator.NewSnapshot([]string{"alpha", "beta"}, taken)
	snap.Add(types.PricePoint{Venue: "alpha", Pair: pair, Price: decimal.NewFromInt(2490), LiquidityUSD: decimal.NewFromInt(500000), Pool: types.PoolRef{Venue: "alpha", ID: "0xa"}})
	snap.Add(types.PricePoint{Venue: "beta", Pair: pair, Price: decimal.NewFromInt(2510), LiquidityUSD: decimal.NewFromInt(400000), Pool: types.PoolRef{Venue: "beta", ID: "0xb", FeeTier: types.Fee(3000)}})
	require.NoError(t, cache.Put(ctx, snap))

	assert.True(t, mr.Exists("dexarb:snapshot"))
	assert.Equal(t, time.Minute, mr.TTL("dexarb:snapshot"))

	points, ok, err := cache.Get(ctx, pair.Key())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, points, 2)
	assert.Equal(t, "alpha", points[0].Venue)
	assert.True(t, points[1].Price.Equal(decimal.NewFromInt(2510)))
	require.NotNil(t, points[1].Pool.FeeTier)
	assert.Equal(t, uint32(3000), *points[1].Pool.FeeTier)

	meta, ok, err := cache.Meta(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, meta.Entries)
	assert.True(t, meta.TakenAt.Equal(taken))
	assert.NotEmpty(t, meta.Fingerprint)

	t.Run("expires", func(t *testing.T) {
		mr.FastForward(2 * time.Minute)
		_, ok, err := cache.Get(ctx, pair.Key())
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = cache.Meta(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSnapshotCacheReplacesTable(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	cache := NewSnapshotCache(c, 0)

	first := aggregator.NewSnapshot([]string{"alpha"}, time.Now())
	first.Add(types.PricePoint{Venue: "alpha", Pair: pair, Price: decimal.NewFromInt(2490)})
	require.NoError(t, cache.Put(ctx, first))

	require.NoError(t, cache.Put(ctx, aggregator.NewSnapshot([]string{"alpha"}, time.Now())))
	_, ok, err := cache.Get(ctx, pair.Key())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCooldown(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	cd := NewCooldown(c)
	opp := types.Opportunity{Pair: pair, BuyVenue: "alpha", SellVenue: "beta", DetectedAt: time.Now()}

	ok, err := cd.Acquire(ctx, opp, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// prices moved but the route is the same
	again := opp
	again.BuyPrice = decimal.NewFromInt(2491)
	ok, err = cd.Acquire(ctx, again, 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := cd.Remaining(ctx, opp)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, remaining)

	reversed := opp
	reversed.BuyVenue, reversed.SellVenue = "beta", "alpha"
	ok, err = cd.Acquire(ctx, reversed, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("expires", func(t *testing.T) {
		mr.FastForward(6 * time.Minute)
		remaining, err := cd.Remaining(ctx, opp)
		require.NoError(t, err)
		assert.Zero(t, remaining)
		ok, err := cd.Acquire(ctx, opp, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("release", func(t *testing.T) {
		require.NoError(t, cd.Release(ctx, opp))
		ok, err := cd.Acquire(ctx, opp, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
