// Package sync implements the master-server synchroniser: it enumerates
// addresses from an upstream master-server directory and ensures they are
// known to the cache.
package sync

import (
	"context"

	"go.uber.org/zap"

	"serverstf/internal/domain/address"
	"serverstf/internal/infrastructure/cacheredis"
)

// MasterDirectory abstracts the upstream master-server query transport
// (a thin UDP protocol outside this system's scope, alongside A2S) so the
// synchroniser's control flow never depends on a concrete implementation.
type MasterDirectory interface {
	Query(ctx context.Context, region string) ([]address.Address, error)
}

// Syncer drives one or more passes over a list of region tags, ensuring
// every address the directory reports is known to the cache.
type Syncer struct {
	directory MasterDirectory
	cache     *cacheredis.StateCache
	regions   []string
	log       *zap.Logger
}

// New builds a Syncer for the given regions.
func New(directory MasterDirectory, cache *cacheredis.StateCache, regions []string, log *zap.Logger) *Syncer {
	return &Syncer{directory: directory, cache: cache, regions: regions, log: log.Named("sync")}
}

// Run performs one full pass over every configured region, returning the
// number of newly added addresses. Upstream timeouts for one region are
// logged and do not abort the remaining regions.
func (s *Syncer) Run(ctx context.Context) (int, error) {
	added := 0
	for _, region := range s.regions {
		addrs, err := s.directory.Query(ctx, region)
		if err != nil {
			s.log.Warn("master server query failed, continuing with remaining regions",
				zap.String("region", region), zap.Error(err))
			continue
		}

		for _, addr := range addrs {
			wasNew, err := s.cache.Ensure(ctx, addr)
			if err != nil {
				s.log.Warn("failed to ensure address", zap.String("address", addr.String()), zap.Error(err))
				continue
			}
			if wasNew {
				added++
			}
		}
	}
	return added, nil
}

// RunForever loops Run indefinitely, one full pass per "tick", with no
// internal backoff between passes. It returns only when ctx is cancelled.
func (s *Syncer) RunForever(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		added, err := s.Run(ctx)
		if err != nil {
			return err
		}
		s.log.Info("sync pass complete", zap.Int("added", added))
	}
}
