// Package hub implements the per-connection WebSocket state machine that
// translates client messages into cache operations and cache notifications
// into pushed messages.
package hub

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"serverstf/internal/domain/address"
	"serverstf/internal/domain/status"
	"serverstf/internal/domain/tagset"
	"serverstf/internal/infrastructure/cacheredis"
	serrors "serverstf/internal/shared/errors"
	"serverstf/internal/shared/goroutine"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client is one WebSocket connection's state machine: Idle until a
// subscribe arrives, then Subscribed to the notifications of every server
// it has subscribed to and not yet unsubscribed from (subscribed records
// only the most recent one), with an independent include/exclude tag query
// active regardless of subscription state.
type Client struct {
	id       uuid.UUID
	conn     *websocket.Conn
	cache    *cacheredis.StateCache
	notifier *cacheredis.Notifier
	resolver status.LocationResolver
	log      *zap.Logger

	send   chan *OutEnvelope
	cancel context.CancelFunc
	closed atomic.Bool

	mu           sync.Mutex
	subscribed   *address.Address
	include      tagset.Set
	exclude      tagset.Set
	watchingTags tagset.Set
}

// New builds a Client bound to one WebSocket connection. Call Run to start
// its three cooperative goroutines; Run blocks until the connection closes.
func New(conn *websocket.Conn, cache *cacheredis.StateCache, resolver status.LocationResolver, log *zap.Logger) *Client {
	if resolver == nil {
		resolver = status.NoopLocationResolver{}
	}
	id := uuid.New()
	return &Client{
		id:           id,
		conn:         conn,
		cache:        cache,
		notifier:     cache.Notifier(),
		resolver:     resolver,
		log:          log.Named("hub-client").With(zap.String("session", id.String())),
		send:         make(chan *OutEnvelope, 32),
		include:      tagset.New(),
		exclude:      tagset.New(),
		watchingTags: tagset.New(),
	}
}

// ID returns the client's session identifier.
func (c *Client) ID() uuid.UUID {
	return c.id
}

// TrySend enqueues msg for delivery, returning false if the client has
// closed or its send buffer is full.
func (c *Client) TrySend(msg *OutEnvelope) (sent bool) {
	if c.closed.Load() {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Run starts the reader, writer, and notifier-drain goroutines and blocks
// until any of them exits. It always closes the underlying connection and
// notifier before returning.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	defer c.shutdown()

	var wg sync.WaitGroup
	wg.Add(3)
	goroutine.SafeGo(c.log, "hub-client-read", func() { c.readPump(ctx) }, wg.Done)
	goroutine.SafeGo(c.log, "hub-client-write", func() { c.writePump(ctx) }, wg.Done)
	goroutine.SafeGo(c.log, "hub-client-notify", func() { c.notifyPump(ctx) }, wg.Done)
	wg.Wait()
}

func (c *Client) shutdown() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.conn.Close()
	if err := c.notifier.Close(); err != nil {
		c.log.Warn("error closing notifier", zap.Error(err))
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer c.cancel()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		c.handleMessage(ctx, raw)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Warn("websocket write error", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) notifyPump(ctx context.Context) {
	defer c.cancel()

	for {
		kind, addr, err := c.notifier.Watch(ctx)
		if err != nil {
			return
		}

		switch kind {
		case cacheredis.KindServer:
			c.pushStatus(ctx, addr)
		case cacheredis.KindTag:
			c.handleTagNotification(ctx, addr)
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, raw []byte) {
	var envelope InEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.TrySend(errorEnvelope("malformed message: " + err.Error()))
		return
	}

	switch envelope.Type {
	case TypeSubscribe:
		c.handleSubscribe(ctx, envelope.Entity)
	case TypeUnsubscribe:
		c.handleUnsubscribe(ctx, envelope.Entity)
	case TypeQuery:
		c.handleQuery(ctx, envelope.Entity)
	default:
		err := serrors.NewMessageError("unknown message type: " + string(envelope.Type))
		c.TrySend(errorEnvelope(err.Error()))
	}
}

func decodeAddress(raw json.RawMessage) (address.Address, error) {
	var entity AddressEntity
	if err := json.Unmarshal(raw, &entity); err != nil {
		return address.Address{}, serrors.NewMessageError("malformed address entity: " + err.Error())
	}
	addr, err := address.Parse(entity.IP + ":" + strconv.Itoa(entity.Port))
	if err != nil {
		return address.Address{}, serrors.NewMessageError("malformed address entity: " + err.Error())
	}
	return addr, nil
}

func (c *Client) handleSubscribe(ctx context.Context, raw json.RawMessage) {
	addr, err := decodeAddress(raw)
	if err != nil {
		c.TrySend(errorEnvelope(err.Error()))
		return
	}

	if _, err := c.cache.Ensure(ctx, addr); err != nil {
		c.log.Warn("subscribe failed", zap.Error(err))
		c.TrySend(errorEnvelope("subscribe failed"))
		return
	}
	if err := c.cache.Subscribe(ctx, addr); err != nil {
		c.log.Warn("subscribe failed", zap.Error(err))
		c.TrySend(errorEnvelope("subscribe failed"))
		return
	}
	if err := c.notifier.WatchServer(ctx, addr); err != nil {
		c.log.Warn("watch server failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.subscribed = &addr
	c.mu.Unlock()

	c.pushStatus(ctx, addr)
}

func (c *Client) handleUnsubscribe(ctx context.Context, raw json.RawMessage) {
	addr, err := decodeAddress(raw)
	if err != nil {
		c.TrySend(errorEnvelope(err.Error()))
		return
	}

	if err := c.notifier.UnwatchServer(ctx, addr); err != nil {
		c.log.Warn("unwatch server failed", zap.Error(err))
	}

	c.mu.Lock()
	if c.subscribed != nil && c.subscribed.Equal(addr) {
		c.subscribed = nil
	}
	c.mu.Unlock()
}

func (c *Client) handleQuery(ctx context.Context, raw json.RawMessage) {
	var entity QueryEntity
	if err := json.Unmarshal(raw, &entity); err != nil {
		c.TrySend(errorEnvelope("malformed query entity: " + err.Error()))
		return
	}

	newInclude := tagset.New(entity.Include...)
	newExclude := tagset.New(entity.Exclude...)

	c.mu.Lock()
	previouslyWatched := c.watchingTags
	c.include = newInclude
	c.exclude = newExclude
	c.watchingTags = newInclude
	c.mu.Unlock()

	for _, t := range previouslyWatched.Removed(newInclude).Slice() {
		if err := c.notifier.UnwatchTag(ctx, t); err != nil {
			c.log.Warn("unwatch tag failed", zap.String("tag", t), zap.Error(err))
		}
	}
	for _, t := range newInclude.Added(previouslyWatched).Slice() {
		if err := c.notifier.WatchTag(ctx, t); err != nil {
			c.log.Warn("watch tag failed", zap.String("tag", t), zap.Error(err))
		}
	}

	results, err := c.cache.Search(ctx, entity.Include, entity.Exclude)
	if err != nil {
		c.log.Warn("search failed", zap.Error(err))
		return
	}
	for addr := range results {
		c.TrySend(matchEnvelope(addr.IP(), addr.Port()))
	}
}

func (c *Client) handleTagNotification(ctx context.Context, addr address.Address) {
	c.mu.Lock()
	include := c.include
	exclude := c.exclude
	c.mu.Unlock()

	s, err := c.cache.Get(ctx, addr)
	if err != nil {
		c.log.Warn("failed to load status for tag notification", zap.Error(err))
		return
	}
	if s.Tags.SupersetOf(include) && s.Tags.DisjointFrom(exclude) {
		c.TrySend(matchEnvelope(addr.IP(), addr.Port()))
	}
}

func (c *Client) pushStatus(ctx context.Context, addr address.Address) {
	s, err := c.cache.Get(ctx, addr)
	if err != nil {
		c.log.Warn("failed to load status", zap.Error(err))
		return
	}

	loc := c.resolver.Resolve(addr)

	name, mapName := "", ""
	if s.Name != nil {
		name = *s.Name
	}
	if s.Map != nil {
		mapName = *s.Map
	}

	entity := StatusEntity{
		IP:        addr.IP(),
		Port:      addr.Port(),
		Name:      name,
		Map:       mapName,
		Tags:      s.Tags.Slice(),
		Players:   s.Players,
		Country:   loc.Country,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
	}
	c.TrySend(&OutEnvelope{Type: TypeStatus, Entity: entity})
}
