// Package poller drives the worker pool that polls servers over A2S and
// commits refreshed statuses to the cache.
package poller

import (
	"context"
	"iter"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"serverstf/internal/application/tagger"
	"serverstf/internal/domain/address"
	"serverstf/internal/domain/players"
	"serverstf/internal/domain/status"
	"serverstf/internal/infrastructure/a2s"
	"serverstf/internal/infrastructure/cacheredis"
	serrors "serverstf/internal/shared/errors"
	"serverstf/internal/shared/goroutine"
)

// AddressSource yields the next address a worker should poll, given that
// worker's own StateCache handle. In queue-driven mode this is
// cache.Interesting; in passive mode it walks every known address via
// cache.All. Taking the handle as a parameter, rather than closing over a
// single shared one, keeps the active interest-queue marker the source
// pops with the handle poll() later acks it with.
type AddressSource func(ctx context.Context, cache *cacheredis.StateCache) (address.Address, error)

// CacheHandleFactory builds a fresh StateCache handle, one per worker,
// since a handle's active interest-queue marker must never be shared.
type CacheHandleFactory func() *cacheredis.StateCache

// Config controls pool sizing, passive-mode pacing, and the per-request A2S
// timeout.
type Config struct {
	Workers          int
	PassiveMode      bool
	PassiveRateLimit float64
	QueryTimeout     time.Duration
}

// Pool polls addresses concurrently across a bounded set of workers.
type Pool struct {
	cfg     Config
	handles CacheHandleFactory
	source  AddressSource
	engine  *tagger.Engine
	log     *zap.Logger

	inFlight sync.Map // address.Address -> struct{}
	limiter  *rate.Limiter
}

// NewQueueSource returns an AddressSource that drains the interest queue.
// Its EmptyQueueError is handled by runWorker's caller loop, which simply
// retries rather than treating an empty queue as fatal.
func NewQueueSource() AddressSource {
	return func(ctx context.Context, cache *cacheredis.StateCache) (address.Address, error) {
		return cache.Interesting(ctx)
	}
}

// NewPassiveSource returns an AddressSource that repeatedly walks the
// entire authoritative server set, looping back to the start once
// exhausted, so that unsubscribed servers never go stale. The returned
// source is shared across every worker in a Pool -- like the interest
// queue it wraps in queue-driven mode, the underlying cursor is a single
// shared sequence that workers drain cooperatively under a mutex, which is
// what keeps two workers from being handed the same address back to back.
func NewPassiveSource() AddressSource {
	var (
		mu   sync.Mutex
		next func() (address.Address, bool)
		stop func()
	)
	return func(ctx context.Context, cache *cacheredis.StateCache) (address.Address, error) {
		mu.Lock()
		defer mu.Unlock()
		for {
			if next == nil {
				seq, err := cache.All(ctx)
				if err != nil {
					return address.Address{}, err
				}
				next, stop = iter.Pull(seq)
			}
			addr, ok := next()
			if ok {
				return addr, nil
			}
			stop()
			next = nil
		}
	}
}

// New builds a Pool. handles must return a new, unshared StateCache handle
// on each call. source is queue-driven (cache.Interesting) or passive
// (cache.All) depending on cfg.PassiveMode.
func New(cfg Config, handles CacheHandleFactory, source AddressSource, engine *tagger.Engine, log *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = a2s.DefaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.PassiveMode {
		limit := cfg.PassiveRateLimit
		if limit <= 0 {
			limit = 50.0
		}
		limiter = rate.NewLimiter(rate.Limit(limit), 1)
	}

	return &Pool{
		cfg:     cfg,
		handles: handles,
		source:  source,
		engine:  engine,
		log:     log.Named("poller"),
		limiter: limiter,
	}
}

// Run starts the configured number of workers and blocks until ctx is
// cancelled or a worker returns a FatalError, which is propagated to the
// caller so the enclosing subcommand can translate it to exit status 1.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	fatal := make(chan error, p.cfg.Workers)

	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		cache := p.handles()
		querierFactory := func(addr address.Address) (a2s.Querier, error) {
			return a2s.Dial(addr.String())
		}
		goroutine.SafeGo(p.log, "poller-worker", func() {
			p.runWorker(ctx, cache, querierFactory, fatal)
		}, wg.Done)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case err := <-fatal:
		return err
	case <-done:
		return nil
	case <-ctx.Done():
		<-done
		return nil
	}
}

func (p *Pool) runWorker(ctx context.Context, cache *cacheredis.StateCache, dial func(address.Address) (a2s.Querier, error), fatal chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
		}

		addr, err := p.source(ctx, cache)
		if err != nil {
			kind, known := serrors.KindOf(err)
			switch {
			case known && kind == serrors.KindEmptyQueue:
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			case known && (kind == serrors.KindFatal || kind == serrors.KindCache):
				fatal <- serrors.NewFatalError("interest queue unavailable", err)
				return
			default:
				p.log.Warn("failed to fetch next address", zap.Error(err))
				continue
			}
		}

		if _, loaded := p.inFlight.LoadOrStore(addr, struct{}{}); loaded {
			p.requeue(ctx, cache)
			continue
		}

		err = p.poll(ctx, cache, dial, addr)
		p.inFlight.Delete(addr)
		if err != nil {
			fatal <- err
			return
		}
	}
}

// requeue acknowledges a popped item without polling it, for the in-flight
// collision case -- the cache's own pop-then-reenqueue semantics handle
// the rest. Passive mode has no queue item to acknowledge.
func (p *Pool) requeue(ctx context.Context, cache *cacheredis.StateCache) {
	if p.cfg.PassiveMode {
		return
	}
	if err := cache.UpdateInterestQueue(ctx); err != nil {
		p.log.Warn("failed to requeue in-flight address", zap.Error(err))
	}
}

// poll performs one polling cycle for addr. Transient A2S failures are
// absorbed with a warning; only a failure to commit to the cache is
// returned, as a FatalError, since it means Redis itself is gone.
func (p *Pool) poll(ctx context.Context, cache *cacheredis.StateCache, dial func(address.Address) (a2s.Querier, error), addr address.Address) error {
	if !p.cfg.PassiveMode {
		defer func() {
			if err := cache.UpdateInterestQueue(ctx); err != nil {
				p.log.Warn("failed to update interest queue", zap.String("address", addr.String()), zap.Error(err))
			}
		}()
	}

	querier, err := dial(addr)
	if err != nil {
		p.log.Warn("failed to dial server", zap.String("address", addr.String()), zap.Error(err))
		return nil
	}
	defer querier.Close()

	queryCtx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	info, err := querier.GetInfo(queryCtx)
	cancel()
	if err != nil {
		p.log.Warn("poll failed", zap.String("address", addr.String()), zap.Error(err))
		return nil
	}
	queryCtx, cancel = context.WithTimeout(ctx, p.cfg.QueryTimeout)
	rawPlayers, err := querier.GetPlayers(queryCtx)
	cancel()
	if err != nil {
		p.log.Warn("poll failed", zap.String("address", addr.String()), zap.Error(err))
		return nil
	}
	queryCtx, cancel = context.WithTimeout(ctx, p.cfg.QueryTimeout)
	rules, err := querier.GetRules(queryCtx)
	cancel()
	if err != nil {
		p.log.Warn("poll failed", zap.String("address", addr.String()), zap.Error(err))
		return nil
	}

	entries := make([]players.Entry, 0, len(rawPlayers.Players))
	for _, pl := range rawPlayers.Players {
		entries = append(entries, players.Entry{Name: pl.Name, Score: pl.Score, Duration: pl.Duration})
	}
	roster := players.FromEntries(info.PlayerCount, info.MaxPlayers, info.BotCount, entries)

	tags := p.engine.Evaluate(info, roster, rules)

	name := info.ServerName
	mapName := info.Map
	appID := info.AppID

	s := status.Status{
		Address:       addr,
		Name:          &name,
		Map:           &mapName,
		ApplicationID: &appID,
		Players:       roster,
		Tags:          tags,
	}

	if err := cache.Set(ctx, s); err != nil {
		p.log.Error("failed to commit polled status", zap.String("address", addr.String()), zap.Error(err))
		return serrors.NewFatalError("failed to commit polled status", err)
	}
	return nil
}
