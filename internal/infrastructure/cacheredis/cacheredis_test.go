package cacheredis

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"serverstf/internal/domain/address"
	"serverstf/internal/domain/players"
	"serverstf/internal/domain/status"
	"serverstf/internal/domain/tagset"
	serrors "serverstf/internal/shared/errors"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})

	return client
}

func mustAddr(t *testing.T, octets [4]byte, port int) address.Address {
	addr, err := address.New(octets, port)
	require.NoError(t, err)
	return addr
}

func TestGetUnknownAddressReturnsEmptyStatus(t *testing.T) {
	client := setupTestRedis(t)
	cache := New(client, zap.NewNop())
	ctx := context.Background()

	addr := mustAddr(t, [4]byte{192, 0, 2, 1}, 27015)

	s, err := cache.Get(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, addr, s.Address)
	assert.Zero(t, s.Interest)
	assert.Nil(t, s.Name)
	assert.Nil(t, s.Map)
	assert.Nil(t, s.ApplicationID)
	assert.Equal(t, players.Empty, s.Players)
	assert.True(t, s.Tags.Equal(tagset.New()))
}

func TestSetThenGetRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	cache := New(client, zap.NewNop())
	ctx := context.Background()

	addr := mustAddr(t, [4]byte{192, 0, 2, 1}, 27015)
	name := "Valve TF2 Server"
	m := "ctf_2fort"
	appID := 440

	in := status.Status{
		Address:       addr,
		Name:          &name,
		Map:           &m,
		ApplicationID: &appID,
		Players:       players.FromEntries(2, 24, 0, []players.Entry{{Name: "alice", Score: 3}}),
		Tags:          tagset.New("tf2", "mode:ctf"),
	}

	require.NoError(t, cache.Set(ctx, in))

	out, err := cache.Get(ctx, addr)
	require.NoError(t, err)

	assert.True(t, out.Tags.Equal(in.Tags))
	require.NotNil(t, out.Name)
	assert.Equal(t, name, *out.Name)
	require.NotNil(t, out.Map)
	assert.Equal(t, m, *out.Map)
	require.NotNil(t, out.ApplicationID)
	assert.Equal(t, appID, *out.ApplicationID)
	assert.Equal(t, in.Players, out.Players)
}

// TestSubscribeThenPollRoundTrip checks that with an empty cache,
// subscribing makes the address immediately poppable from the interest
// queue.
func TestSubscribeThenPollRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	cache := New(client, zap.NewNop())
	ctx := context.Background()

	addr := mustAddr(t, [4]byte{192, 0, 2, 1}, 27015)

	s, err := cache.Get(ctx, addr)
	require.NoError(t, err)
	assert.Zero(t, s.Interest)

	require.NoError(t, cache.Subscribe(ctx, addr))

	popped, err := cache.Interesting(ctx)
	require.NoError(t, err)
	assert.Equal(t, addr, popped)
}

// TestInterestDecay is scenario 3: three Subscribe calls keep the queue
// populated across pop/update cycles as long as interest doesn't drop.
func TestInterestDecay(t *testing.T) {
	client := setupTestRedis(t)
	cache := New(client, zap.NewNop())
	ctx := context.Background()

	addr := mustAddr(t, [4]byte{192, 0, 2, 1}, 27015)

	for i := 0; i < 3; i++ {
		require.NoError(t, cache.Subscribe(ctx, addr))
	}

	length, err := client.LLen(ctx, keyInterestingQueue).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 3, length)

	for i := 0; i < 3; i++ {
		popped, err := cache.Interesting(ctx)
		require.NoError(t, err)
		assert.Equal(t, addr, popped)
		require.NoError(t, cache.UpdateInterestQueue(ctx))
	}

	length, err = client.LLen(ctx, keyInterestingQueue).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 3, length, "interest stayed at 3, so every popped level 1..3 re-enqueues")
}

func TestInterestingTwiceWithoutUpdateIsCacheError(t *testing.T) {
	client := setupTestRedis(t)
	cache := New(client, zap.NewNop())
	ctx := context.Background()

	addr := mustAddr(t, [4]byte{192, 0, 2, 1}, 27015)
	require.NoError(t, cache.Subscribe(ctx, addr))

	_, err := cache.Interesting(ctx)
	require.NoError(t, err)

	_, err = cache.Interesting(ctx)
	require.Error(t, err)
	kind, ok := serrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, serrors.KindCache, kind)
}

func TestInterestingOnEmptyQueueReturnsEmptyQueueError(t *testing.T) {
	client := setupTestRedis(t)
	cache := New(client, zap.NewNop())
	ctx := context.Background()

	_, err := cache.Interesting(ctx)
	require.Error(t, err)
	kind, ok := serrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, serrors.KindEmptyQueue, kind)
}

func TestAllEnumeratesEveryAddress(t *testing.T) {
	client := setupTestRedis(t)
	cache := New(client, zap.NewNop())
	ctx := context.Background()

	addrs := []address.Address{
		mustAddr(t, [4]byte{192, 0, 2, 1}, 27015),
		mustAddr(t, [4]byte{192, 0, 2, 2}, 27015),
		mustAddr(t, [4]byte{192, 0, 2, 3}, 27015),
	}
	for _, addr := range addrs {
		_, err := cache.Ensure(ctx, addr)
		require.NoError(t, err)
	}

	seq, err := cache.All(ctx)
	require.NoError(t, err)

	seen := make(map[address.Address]struct{})
	for addr := range seq {
		seen[addr] = struct{}{}
	}
	assert.Len(t, seen, 3)
	for _, addr := range addrs {
		assert.Contains(t, seen, addr)
	}
}

// TestSearchSetAlgebra exercises include/exclude set algebra over the
// tag reverse-indexes.
func TestSearchSetAlgebra(t *testing.T) {
	client := setupTestRedis(t)
	cache := New(client, zap.NewNop())
	ctx := context.Background()

	a1 := mustAddr(t, [4]byte{192, 0, 2, 1}, 27015)
	a2 := mustAddr(t, [4]byte{192, 0, 2, 2}, 27015)
	a3 := mustAddr(t, [4]byte{192, 0, 2, 3}, 27015)

	require.NoError(t, cache.Set(ctx, status.Status{Address: a1, Players: players.Empty, Tags: tagset.New("x", "y")}))
	require.NoError(t, cache.Set(ctx, status.Status{Address: a2, Players: players.Empty, Tags: tagset.New("x", "z")}))
	require.NoError(t, cache.Set(ctx, status.Status{Address: a3, Players: players.Empty, Tags: tagset.New("y", "z")}))

	result, err := cache.Search(ctx, []string{"x", "y"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[address.Address]struct{}{a1: {}}, result)

	result, err = cache.Search(ctx, []string{"x"}, []string{"y"})
	require.NoError(t, err)
	assert.Equal(t, map[address.Address]struct{}{a2: {}}, result)

	result, err = cache.Search(ctx, nil, []string{"x"})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestSearchReverseIndexTracksOverwrite(t *testing.T) {
	client := setupTestRedis(t)
	cache := New(client, zap.NewNop())
	ctx := context.Background()

	addr := mustAddr(t, [4]byte{192, 0, 2, 1}, 27015)

	require.NoError(t, cache.Set(ctx, status.Status{Address: addr, Players: players.Empty, Tags: tagset.New("tf2", "mode:cp")}))
	result, err := cache.Search(ctx, []string{"mode:cp"}, nil)
	require.NoError(t, err)
	assert.Contains(t, result, addr)

	require.NoError(t, cache.Set(ctx, status.Status{Address: addr, Players: players.Empty, Tags: tagset.New("tf2", "mode:koth")}))
	result, err = cache.Search(ctx, []string{"mode:cp"}, nil)
	require.NoError(t, err)
	assert.NotContains(t, result, addr)

	result, err = cache.Search(ctx, []string{"mode:koth"}, nil)
	require.NoError(t, err)
	assert.Contains(t, result, addr)
}
