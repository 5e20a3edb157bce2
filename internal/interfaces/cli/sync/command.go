// Package sync wires the "sync" subcommand: the master-server
// synchroniser that feeds newly discovered addresses into the cache.
package sync

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	syncapp "serverstf/internal/application/sync"
	"serverstf/internal/infrastructure/cacheredis"
	"serverstf/internal/infrastructure/config"
	"serverstf/internal/infrastructure/master"
	"serverstf/internal/shared/logger"
)

var (
	redisURL string
	regions  []string
	forever  bool
)

// NewCommand builds the "sync" command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Poll the master-server directory for new addresses",
		Long:  `Enumerates addresses from the upstream Steam master-server directory for a list of region tags and ensures each is known to the cache.`,
		RunE:  run,
	}

	cmd.Flags().StringVar(&redisURL, "redis", "redis://localhost:6379/0", "Redis connection URL")
	cmd.Flags().StringSliceVar(&regions, "region", nil, "Region tag(s) to query (default: configured regions, or \"all\")")
	cmd.Flags().BoolVar(&forever, "forever", false, "Loop indefinitely, one full pass per tick, with no internal backoff")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(redisURL)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(&cfg.Logger); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	log := logger.Named("sync-cli")

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := cmd.Context()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	activeRegions := regions
	if len(activeRegions) == 0 {
		activeRegions = cfg.Sync.Regions
	}

	directory := master.New(cfg.Sync.MasterAddr, cfg.Sync.Filter, time.Duration(cfg.Sync.TimeoutMS)*time.Millisecond)
	cache := cacheredis.New(client, log)
	syncer := syncapp.New(directory, cache, activeRegions, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down master-server synchroniser")
		cancel()
	}()

	log.Info("starting master server synchroniser", zap.Strings("regions", activeRegions), zap.Bool("forever", forever))

	if forever {
		return syncer.RunForever(ctx)
	}

	added, err := syncer.Run(ctx)
	if err != nil {
		return err
	}
	log.Info("sync pass complete", zap.Int("added", added))
	return nil
}
