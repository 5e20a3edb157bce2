// Package websocket wires the "websocket" subcommand: the bidirectional
// fan-out gateway clients connect to for subscriptions and tag queries.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"serverstf/internal/domain/status"
	"serverstf/internal/infrastructure/cacheredis"
	"serverstf/internal/infrastructure/config"
	"serverstf/internal/interfaces/ws"
	"serverstf/internal/shared/logger"
)

var (
	redisURL string
	bind     string
)

// NewCommand builds the "websocket" command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "websocket",
		Short: "Serve the WebSocket fan-out gateway",
		Long:  `Accepts long-lived client connections at "/" and translates per-connection subscribe/unsubscribe/query messages into cache operations and outgoing status/match pushes.`,
		RunE:  run,
	}

	cmd.Flags().StringVar(&redisURL, "redis", "redis://localhost:6379/0", "Redis connection URL")
	cmd.Flags().StringVar(&bind, "bind", "", "HTTP bind address (default: configured websocket.bind)")

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

	log := logger.Named("websocket-cli")

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

	cache := cacheredis.New(client, log)

	bindAddr := bind
	if bindAddr == "" {
		bindAddr = cfg.WebSocket.Bind
	}

	server := ws.New(cache, status.NoopLocationResolver{}, log)

	srv := &http.Server{
		Addr:    bindAddr,
		Handler: server.Engine(),
	}

	go func() {
		log.Info("websocket gateway starting", zap.String("bind", bindAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("websocket gateway failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down websocket gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("websocket gateway forced to shutdown", zap.Error(err))
		return err
	}

	log.Info("websocket gateway exited gracefully")
	return nil
}
