package poller

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"serverstf/internal/application/tagger"
	"serverstf/internal/application/tagger/rules"
	"serverstf/internal/domain/address"
	"serverstf/internal/infrastructure/a2s"
	"serverstf/internal/infrastructure/cacheredis"
)

func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
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

type fakeQuerier struct {
	info    a2s.Info
	players a2s.Players
	rules   a2s.Rules
}

func (f *fakeQuerier) GetInfo(context.Context) (a2s.Info, error)       { return f.info, nil }
func (f *fakeQuerier) GetPlayers(context.Context) (a2s.Players, error) { return f.players, nil }
func (f *fakeQuerier) GetRules(context.Context) (a2s.Rules, error)     { return f.rules, nil }
func (f *fakeQuerier) Close() error                                    { return nil }

func TestPollCommitsTaggedStatus(t *testing.T) {
	client := setupTestRedis(t)
	cache := cacheredis.New(client, zap.NewNop())
	ctx := context.Background()

	addr, err := address.New([4]byte{192, 0, 2, 1}, 27015)
	require.NoError(t, err)

	engine, err := tagger.NewEngine(rules.Default()...)
	require.NoError(t, err)

	pool := New(Config{Workers: 1}, func() *cacheredis.StateCache { return cache }, nil, engine, zap.NewNop())

	dial := func(address.Address) (a2s.Querier, error) {
		return &fakeQuerier{
			info:  a2s.Info{ServerName: "Test Server", Map: "koth_viaduct", AppID: 440, PlayerCount: 1, MaxPlayers: 24, BotCount: 0},
			rules: a2s.Rules{Rules: map[string]string{"tf_gamemode_cp": "1"}},
		}, nil
	}

	pool.poll(ctx, cache, dial, addr)

	s, err := cache.Get(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, s.Name)
	assert.Equal(t, "Test Server", *s.Name)
	assert.True(t, s.Tags.Contains("tf2"))
	assert.True(t, s.Tags.Contains("mode:koth"))
}

func TestQueueSourceDrainsInterestingAddress(t *testing.T) {
	client := setupTestRedis(t)
	cache := cacheredis.New(client, zap.NewNop())
	ctx := context.Background()

	addr, err := address.New([4]byte{192, 0, 2, 5}, 27015)
	require.NoError(t, err)
	require.NoError(t, cache.Subscribe(ctx, addr))

	source := NewQueueSource()
	got, err := source(ctx, cache)
	require.NoError(t, err)
	assert.Equal(t, addr, got)
	require.NoError(t, cache.UpdateInterestQueue(ctx))
}

func TestPassiveSourceWalksAndLoopsTheFullSet(t *testing.T) {
	client := setupTestRedis(t)
	cache := cacheredis.New(client, zap.NewNop())
	ctx := context.Background()

	a1, err := address.New([4]byte{192, 0, 2, 1}, 27015)
	require.NoError(t, err)
	a2, err := address.New([4]byte{192, 0, 2, 2}, 27015)
	require.NoError(t, err)

	_, err = cache.Ensure(ctx, a1)
	require.NoError(t, err)
	_, err = cache.Ensure(ctx, a2)
	require.NoError(t, err)

	source := NewPassiveSource()
	seen := make(map[address.Address]int)
	for i := 0; i < 4; i++ {
		got, err := source(ctx, cache)
		require.NoError(t, err)
		seen[got]++
	}

	assert.Equal(t, 2, seen[a1])
	assert.Equal(t, 2, seen[a2])
}

func TestRunStopsOnContextCancel(t *testing.T) {
	client := setupTestRedis(t)
	cache := cacheredis.New(client, zap.NewNop())

	engine, err := tagger.NewEngine(rules.Default()...)
	require.NoError(t, err)

	emptySource := func(ctx context.Context, cache *cacheredis.StateCache) (address.Address, error) {
		return address.Address{}, assert.AnError
	}

	pool := New(Config{Workers: 2}, func() *cacheredis.StateCache { return cache }, emptySource, engine, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err = pool.Run(ctx)
	assert.NoError(t, err)
}
