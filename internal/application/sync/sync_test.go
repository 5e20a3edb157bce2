package sync

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"serverstf/internal/domain/address"
	"serverstf/internal/infrastructure/cacheredis"
	serrors "serverstf/internal/shared/errors"
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

type fakeDirectory struct {
	byRegion map[string][]address.Address
	failFor  map[string]bool
}

func (f *fakeDirectory) Query(_ context.Context, region string) ([]address.Address, error) {
	if f.failFor[region] {
		return nil, serrors.NewFatalError("upstream timeout", nil)
	}
	return f.byRegion[region], nil
}

func TestRunCountsNewAdditions(t *testing.T) {
	client := setupTestRedis(t)
	cache := cacheredis.New(client, zap.NewNop())
	ctx := context.Background()

	a1, err := address.New([4]byte{192, 0, 2, 1}, 27015)
	require.NoError(t, err)
	a2, err := address.New([4]byte{192, 0, 2, 2}, 27015)
	require.NoError(t, err)

	directory := &fakeDirectory{byRegion: map[string][]address.Address{
		"us-east": {a1, a2},
	}}

	syncer := New(directory, cache, []string{"us-east"}, zap.NewNop())

	added, err := syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, added, "re-running should find nothing new")
}

func TestRunRecoversFromUpstreamTimeout(t *testing.T) {
	client := setupTestRedis(t)
	cache := cacheredis.New(client, zap.NewNop())
	ctx := context.Background()

	a1, err := address.New([4]byte{192, 0, 2, 1}, 27015)
	require.NoError(t, err)

	directory := &fakeDirectory{
		byRegion: map[string][]address.Address{"eu-west": {a1}},
		failFor:  map[string]bool{"us-east": true},
	}

	syncer := New(directory, cache, []string{"us-east", "eu-west"}, zap.NewNop())

	added, err := syncer.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added, "failure in one region must not block the other")
}
