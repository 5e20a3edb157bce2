// Package cacheredis is the Redis-backed state cache: durable storage for
// server statuses, tag reverse-indexes, and the interest queue.
package cacheredis

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"serverstf/internal/domain/address"
	"serverstf/internal/domain/players"
	"serverstf/internal/domain/queueitem"
	"serverstf/internal/domain/status"
	"serverstf/internal/domain/tagset"
	serrors "serverstf/internal/shared/errors"
)

const (
	keyServers          = "serverstf/servers"
	keyInterestingQueue = "serverstf/interesting"
)

func keyServer(addr address.Address) string {
	return "serverstf/servers/" + addr.String()
}

func keyServerTags(addr address.Address) string {
	return "serverstf/servers/" + addr.String() + "/tags"
}

func keyServerInterest(addr address.Address) string {
	return "serverstf/servers/" + addr.String() + "/interest"
}

func keyTag(tag string) string {
	return "serverstf/tags/" + tag
}

// ChannelServer is the pub/sub channel name for one server's notifications.
func ChannelServer(addr address.Address) string {
	return "serverstf/channels/servers/" + addr.String()
}

// ChannelTag is the pub/sub channel name for one tag's notifications.
func ChannelTag(tag string) string {
	return "serverstf/channels/tags/" + tag
}

// activeItem tracks the queue item popped by Interesting until the
// matching UpdateInterestQueue call.
type activeItem struct {
	item queueitem.Item
	set  bool
}

// StateCache provides durable, concurrent-safe, asynchronous read/write
// access to server statuses. Each handle owns its own "active interest
// queue item" marker and must not be shared across concurrent pollers --
// callers that poll concurrently should give each worker its own handle.
type StateCache struct {
	client *redis.Client
	log    *zap.Logger

	mu     sync.Mutex
	active activeItem
}

// New wraps an existing Redis client as a StateCache.
func New(client *redis.Client, log *zap.Logger) *StateCache {
	return &StateCache{client: client, log: log.Named("cacheredis")}
}

// Ensure adds addr to the authoritative server set if absent. Returns true
// on insertion. Idempotent.
func (c *StateCache) Ensure(ctx context.Context, addr address.Address) (bool, error) {
	added, err := c.client.SAdd(ctx, keyServers, addr.String()).Result()
	if err != nil {
		return false, serrors.NewCacheError("ensure", err)
	}
	return added > 0, nil
}

// Get reconstructs a Status for addr. Never fails for an unknown address:
// it returns a Status with all-null fields, an empty roster, no tags, and
// interest zero.
func (c *StateCache) Get(ctx context.Context, addr address.Address) (status.Status, error) {
	var hashCmd *redis.MapStringStringCmd
	var tagsCmd *redis.StringSliceCmd
	var interestCmd *redis.StringCmd

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hashCmd = pipe.HGetAll(ctx, keyServer(addr))
		tagsCmd = pipe.SMembers(ctx, keyServerTags(addr))
		interestCmd = pipe.Get(ctx, keyServerInterest(addr))
		return nil
	})
	if err != nil && err != redis.Nil {
		return status.Status{}, serrors.NewCacheError("get", err)
	}

	s := status.New(addr)

	fields := hashCmd.Val()
	if name, ok := fields["name"]; ok {
		s.Name = &name
	}
	if m, ok := fields["map"]; ok {
		s.Map = &m
	}
	if rawAppID, ok := fields["application_id"]; ok {
		if appID, err := strconv.Atoi(rawAppID); err == nil {
			s.ApplicationID = &appID
		}
	}
	if rawPlayers, ok := fields["players"]; ok {
		var p players.Players
		if err := json.Unmarshal([]byte(rawPlayers), &p); err != nil {
			c.log.Warn("malformed players JSON in cache, returning empty roster",
				zap.String("address", addr.String()), zap.Error(err))
			p = players.Empty
		}
		s.Players = p
	}

	s.Tags = tagset.New(tagsCmd.Val()...)

	if interest, err := interestCmd.Int(); err == nil {
		s.Interest = interest
	}

	return s, nil
}

// Set atomically rewrites addr's status hash and tag set, maintains tag
// reverse-indexes, and publishes notifications for the update and for any
// newly-applied tags. The Interest field of s is ignored; interest is
// owned exclusively by Subscribe.
func (c *StateCache) Set(ctx context.Context, s status.Status) error {
	addr := s.Address

	previousTags, err := c.client.SMembers(ctx, keyServerTags(addr)).Result()
	if err != nil && err != redis.Nil {
		return serrors.NewCacheError("set: read previous tags", err)
	}
	previous := tagset.New(previousTags...)

	playersJSON, err := json.Marshal(s.Players)
	if err != nil {
		return serrors.NewCacheError("set: marshal players", err)
	}

	fields := map[string]any{
		"players": string(playersJSON),
	}
	if s.Name != nil {
		fields["name"] = *s.Name
	}
	if s.Map != nil {
		fields["map"] = *s.Map
	}
	if s.ApplicationID != nil {
		fields["application_id"] = *s.ApplicationID
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, keyServers, addr.String())
		pipe.Del(ctx, keyServer(addr))
		pipe.HSet(ctx, keyServer(addr), fields)
		pipe.Del(ctx, keyServerTags(addr))
		if tags := s.Tags.Slice(); len(tags) > 0 {
			members := make([]any, len(tags))
			for i, t := range tags {
				members[i] = t
			}
			pipe.SAdd(ctx, keyServerTags(addr), members...)
		}
		for _, t := range s.Tags.Slice() {
			pipe.SAdd(ctx, keyTag(t), addr.String())
		}
		return nil
	})
	if err != nil {
		return serrors.NewCacheError("set: write status", err)
	}

	removed := s.Tags.Removed(previous)
	for _, t := range removed.Slice() {
		if err := c.client.SRem(ctx, keyTag(t), addr.String()).Err(); err != nil {
			return serrors.NewCacheError("set: clean reverse index", err)
		}
	}

	if err := c.client.Publish(ctx, ChannelServer(addr), addr.String()).Err(); err != nil {
		return serrors.NewCacheError("set: publish server notification", err)
	}

	added := s.Tags.Added(previous)
	for _, t := range added.Slice() {
		if err := c.client.Publish(ctx, ChannelTag(t), addr.String()).Err(); err != nil {
			return serrors.NewCacheError("set: publish tag notification", err)
		}
	}

	return nil
}

// Subscribe atomically increments addr's interest counter and pushes the
// resulting value onto the interest queue. Writing INCR's own return value
// into the queue item leaves no read-then-write window between the
// increment and the enqueue.
func (c *StateCache) Subscribe(ctx context.Context, addr address.Address) error {
	interest, err := c.client.Incr(ctx, keyServerInterest(addr)).Result()
	if err != nil {
		return serrors.NewCacheError("subscribe: incr interest", err)
	}

	encoded := queueitem.Encode(queueitem.Item{Interest: int(interest), Address: addr})
	if err := c.client.RPush(ctx, keyInterestingQueue, encoded).Err(); err != nil {
		return serrors.NewCacheError("subscribe: enqueue", err)
	}
	return nil
}

// Interesting pops the head of the interest queue. Callers must follow
// with UpdateInterestQueue before calling Interesting again on the same
// handle.
func (c *StateCache) Interesting(ctx context.Context) (address.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active.set {
		return address.Address{}, serrors.NewCacheError("interesting", fmt.Errorf("UpdateInterestQueue not called since last Interesting"))
	}

	raw, err := c.client.LPop(ctx, keyInterestingQueue).Bytes()
	if err == redis.Nil {
		return address.Address{}, serrors.NewEmptyQueueError()
	}
	if err != nil {
		return address.Address{}, serrors.NewCacheError("interesting: lpop", err)
	}

	item, err := queueitem.Decode(raw)
	if err != nil {
		return address.Address{}, serrors.NewCacheError("interesting: decode", err)
	}

	c.active = activeItem{item: item, set: true}
	return item.Address, nil
}

// UpdateInterestQueue must be called after every Interesting. It re-enqueues
// the popped item if the address's current interest is still at least the
// interest-at-enqueue value, otherwise discards it; the active marker is
// cleared either way.
func (c *StateCache) UpdateInterestQueue(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active.set {
		return serrors.NewCacheError("updateInterestQueue", fmt.Errorf("no active item; call Interesting first"))
	}
	item := c.active.item
	c.active = activeItem{}

	current, err := c.client.Get(ctx, keyServerInterest(item.Address)).Int()
	if err != nil && err != redis.Nil {
		return serrors.NewCacheError("updateInterestQueue: read interest", err)
	}

	if current < item.Interest {
		return nil
	}

	encoded := queueitem.Encode(queueitem.Item{Interest: item.Interest, Address: item.Address})
	if err := c.client.RPush(ctx, keyInterestingQueue, encoded).Err(); err != nil {
		return serrors.NewCacheError("updateInterestQueue: re-enqueue", err)
	}
	return nil
}

// All lazily enumerates the authoritative server set via SSCAN cursors.
func (c *StateCache) All(ctx context.Context) (iter.Seq[address.Address], error) {
	return func(yield func(address.Address) bool) {
		var cursor uint64
		for {
			keys, next, err := c.client.SScan(ctx, keyServers, cursor, "", 0).Result()
			if err != nil {
				c.log.Error("all: sscan failed", zap.Error(err))
				return
			}
			for _, raw := range keys {
				addr, err := address.Parse(raw)
				if err != nil {
					c.log.Warn("all: malformed address in servers set, skipping", zap.String("raw", raw))
					continue
				}
				if !yield(addr) {
					return
				}
			}
			cursor = next
			if cursor == 0 {
				return
			}
		}
	}, nil
}

// Search computes (intersection of tags/<t> for t in include) minus
// (union of tags/<t> for t in exclude) using temporary Redis keys that are
// always cleaned up. An empty include yields an empty result.
func (c *StateCache) Search(ctx context.Context, include, exclude []string) (map[address.Address]struct{}, error) {
	result := make(map[address.Address]struct{})
	if len(include) == 0 {
		return result, nil
	}

	includeKeys := make([]string, len(include))
	for i, t := range include {
		includeKeys[i] = keyTag(t)
	}

	intersectionKey := "serverstf/tmp/" + uuid.NewString()
	defer c.client.Del(ctx, intersectionKey)
	if err := c.client.SInterStore(ctx, intersectionKey, includeKeys...).Err(); err != nil {
		return nil, serrors.NewCacheError("search: sinterstore", err)
	}

	resultKey := intersectionKey
	if len(exclude) > 0 {
		excludeKeys := make([]string, len(exclude))
		for i, t := range exclude {
			excludeKeys[i] = keyTag(t)
		}
		unionKey := "serverstf/tmp/" + uuid.NewString()
		defer c.client.Del(ctx, unionKey)
		if err := c.client.SUnionStore(ctx, unionKey, excludeKeys...).Err(); err != nil {
			return nil, serrors.NewCacheError("search: sunionstore", err)
		}

		diffKey := "serverstf/tmp/" + uuid.NewString()
		defer c.client.Del(ctx, diffKey)
		if err := c.client.SDiffStore(ctx, diffKey, intersectionKey, unionKey).Err(); err != nil {
			return nil, serrors.NewCacheError("search: sdiffstore", err)
		}
		resultKey = diffKey
	}

	members, err := c.client.SMembers(ctx, resultKey).Result()
	if err != nil {
		return nil, serrors.NewCacheError("search: smembers", err)
	}
	for _, raw := range members {
		addr, err := address.Parse(raw)
		if err != nil {
			continue
		}
		result[addr] = struct{}{}
	}
	return result, nil
}

// Notifier returns a new connection-backed notifier sharing this cache's
// client.
func (c *StateCache) Notifier() *Notifier {
	return newNotifier(c.client, c.log)
}
