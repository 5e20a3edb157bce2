// Package poller wires the "poller" subcommand: a worker pool that drains
// the interest queue (or, with --all, walks the whole cache in passive
// mode) and commits refreshed statuses.
package poller

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

	"serverstf/internal/application/poller"
	"serverstf/internal/application/tagger"
	"serverstf/internal/application/tagger/rules"
	"serverstf/internal/infrastructure/cacheredis"
	"serverstf/internal/infrastructure/config"
	serrors "serverstf/internal/shared/errors"
	"serverstf/internal/shared/logger"
)

var (
	redisURL string
	workers  int
	passive  bool
)

// NewCommand builds the "poller" command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poller",
		Short: "Run the poller pool against the interest queue",
		Long:  `Drains addresses from the interest queue (or, with --all, walks the entire cache in passive mode), queries them over A2S, tags them, and commits refreshed statuses.`,
		RunE:  run,
	}

	cmd.Flags().StringVar(&redisURL, "redis", "redis://localhost:6379/0", "Redis connection URL")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of concurrent poller workers (0 = host CPU count)")
	cmd.Flags().BoolVar(&passive, "all", false, "Walk every known address instead of draining the interest queue")

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

	log := logger.Named("poller-cli")

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}

	engine, err := tagger.NewEngine(rules.Default()...)
	if err != nil {
		return fmt.Errorf("failed to build tagger engine: %w", err)
	}

	poolWorkers := workers
	if poolWorkers <= 0 {
		poolWorkers = cfg.Poller.Workers
	}

	var source poller.AddressSource
	if passive {
		source = poller.NewPassiveSource()
	} else {
		source = poller.NewQueueSource()
	}

	handles := func() *cacheredis.StateCache {
		client := redis.NewClient(opts)
		return cacheredis.New(client, log)
	}

	pool := poller.New(poller.Config{
		Workers:          poolWorkers,
		PassiveMode:      passive,
		PassiveRateLimit: cfg.Poller.PassiveRateLimit,
		QueryTimeout:     time.Duration(cfg.Poller.QueryTimeoutMS) * time.Millisecond,
	}, handles, source, engine, log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down poller pool")
		cancel()
	}()

	log.Info("starting poller pool", zap.Int("workers", poolWorkers), zap.Bool("passive", passive))

	if err := pool.Run(ctx); err != nil {
		if kind, ok := serrors.KindOf(err); ok && kind == serrors.KindFatal {
			log.Error("poller pool terminated", zap.Error(err))
		}
		return err
	}
	return nil
}
