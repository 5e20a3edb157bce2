package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"serverstf/internal/domain/address"
	"serverstf/internal/domain/status"
	"serverstf/internal/domain/tagset"
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

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestSubscribeThenPollRoundTrip checks that subscribing to an unknown
// address yields an immediate empty status and queues the address for
// polling.
func TestSubscribeThenPollRoundTrip(t *testing.T) {
	redisClient := setupTestRedis(t)
	cache := cacheredis.New(redisClient, zap.NewNop())
	server := New(cache, nil, zap.NewNop())
	httpServer := httptest.NewServer(server.Engine())
	defer httpServer.Close()

	conn := dialWS(t, httpServer)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   "subscribe",
		"entity": map[string]any{"ip": "192.0.2.1", "port": 27015},
	}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type   string `json:"type"`
		Entity struct {
			IP      string   `json:"ip"`
			Port    int      `json:"port"`
			Name    string   `json:"name"`
			Map     string   `json:"map"`
			Tags    []string `json:"tags"`
			Players struct {
				Current int `json:"current"`
				Max     int `json:"max"`
				Bots    int `json:"bots"`
			} `json:"players"`
		} `json:"entity"`
	}
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, "192.0.2.1", msg.Entity.IP)
	assert.Equal(t, 27015, msg.Entity.Port)
	assert.Equal(t, "", msg.Entity.Name)
	assert.Equal(t, "", msg.Entity.Map)
	assert.Empty(t, msg.Entity.Tags)
	assert.Zero(t, msg.Entity.Players.Current)

	addr, err := address.New([4]byte{192, 0, 2, 1}, 27015)
	require.NoError(t, err)
	popped, err := cache.Interesting(context.Background())
	require.NoError(t, err)
	assert.Equal(t, addr, popped)
}

// TestTagDeltaNotification checks that a standing query receives a match
// when a status overwrite first applies one of the queried tags, and that
// a later overwrite removing the tag does not retract the match.
func TestTagDeltaNotification(t *testing.T) {
	redisClient := setupTestRedis(t)
	cache := cacheredis.New(redisClient, zap.NewNop())
	ctx := context.Background()

	addr, err := address.New([4]byte{192, 0, 2, 1}, 27015)
	require.NoError(t, err)
	require.NoError(t, cache.Set(ctx, status.Status{Address: addr, Tags: tagset.New("tf2", "mode:cp")}))

	server := New(cache, nil, zap.NewNop())
	httpServer := httptest.NewServer(server.Engine())
	defer httpServer.Close()

	conn := dialWS(t, httpServer)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   "query",
		"entity": map[string]any{"include": []string{"mode:koth"}, "exclude": []string{}},
	}))

	time.Sleep(100 * time.Millisecond)

	require.NoError(t, cache.Set(ctx, status.Status{Address: addr, Tags: tagset.New("tf2", "mode:cp", "mode:koth")}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var match struct {
		Type   string `json:"type"`
		Entity struct {
			IP   string `json:"ip"`
			Port int    `json:"port"`
		} `json:"entity"`
	}
	require.NoError(t, conn.ReadJSON(&match))
	assert.Equal(t, "match", match.Type)
	assert.Equal(t, "192.0.2.1", match.Entity.IP)
	assert.Equal(t, 27015, match.Entity.Port)

	require.NoError(t, cache.Set(ctx, status.Status{Address: addr, Tags: tagset.New("tf2", "mode:cp")}))

	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var retraction struct {
		Type string `json:"type"`
	}
	err = conn.ReadJSON(&retraction)
	assert.Error(t, err, "a tag overwrite removing mode:koth must not retract the earlier match")
}

// TestMalformedWebSocketMessage checks that unparseable input produces an
// error message without dropping the connection.
func TestMalformedWebSocketMessage(t *testing.T) {
	redisClient := setupTestRedis(t)
	cache := cacheredis.New(redisClient, zap.NewNop())
	server := New(cache, nil, zap.NewNop())
	httpServer := httptest.NewServer(server.Engine())
	defer httpServer.Close()

	conn := dialWS(t, httpServer)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type   string `json:"type"`
		Entity string `json:"entity"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.NotEmpty(t, msg.Entity)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   "subscribe",
		"entity": map[string]any{"ip": "192.0.2.1", "port": 27015},
	}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var status struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "status", status.Type, "connection remains open after a malformed message")
}
