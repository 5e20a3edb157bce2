// Package cache exposes a thin operational/debug CLI surface over the
// StateCache -- get, ensure, search, all -- for operators inspecting state
// without a REST facade.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"serverstf/internal/domain/address"
	"serverstf/internal/infrastructure/cacheredis"
	"serverstf/internal/infrastructure/config"
	"serverstf/internal/shared/logger"
)

var (
	redisURL string
	include  []string
	exclude  []string
)

// NewCommand builds the "cache" parent command and its subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manipulate the server state cache",
		Long:  `Operational surface over the Redis-backed state cache, intended for operators debugging server state without a REST facade.`,
	}

	cmd.PersistentFlags().StringVar(&redisURL, "redis", "redis://localhost:6379/0", "Redis connection URL")

	cmd.AddCommand(newGetCommand(), newEnsureCommand(), newSearchCommand(), newAllCommand())

	return cmd
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <addr>",
		Short: "Print the cached status for one address",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
}

func newEnsureCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure <addr>",
		Short: "Ensure an address is known to the cache",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnsure,
	}
}

func newSearchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "List addresses matching a tag filter",
		RunE:  runSearch,
	}
	cmd.Flags().StringSliceVar(&include, "include", nil, "Tags every matching address must carry")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Tags no matching address may carry")
	return cmd
}

func newAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "List every address known to the cache",
		RunE:  runAll,
	}
}

func connect() (*cacheredis.StateCache, func(), error) {
	cfg, err := config.Load(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(&cfg.Logger); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log := logger.Named("cache-cli")
	cache := cacheredis.New(client, log)

	cleanup := func() {
		client.Close()
		logger.Sync()
	}
	return cache, cleanup, nil
}

func runGet(cmd *cobra.Command, args []string) error {
	cache, cleanup, err := connect()
	if err != nil {
		return err
	}
	defer cleanup()

	addr, err := address.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", args[0], err)
	}

	st, err := cache.Get(cmd.Context(), addr)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	name := "<unknown>"
	if st.Name != nil {
		name = *st.Name
	}
	mapName := "<unknown>"
	if st.Map != nil {
		mapName = *st.Map
	}

	fmt.Printf("address:  %s\n", st.Address)
	fmt.Printf("interest: %d\n", st.Interest)
	fmt.Printf("name:     %s\n", name)
	fmt.Printf("map:      %s\n", mapName)
	fmt.Printf("players:  %d/%d (%d bots)\n", st.Players.Current, st.Players.Max, st.Players.Bots)
	fmt.Printf("tags:     %s\n", strings.Join(st.Tags.Slice(), ", "))
	return nil
}

func runEnsure(cmd *cobra.Command, args []string) error {
	cache, cleanup, err := connect()
	if err != nil {
		return err
	}
	defer cleanup()

	addr, err := address.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", args[0], err)
	}

	wasNew, err := cache.Ensure(cmd.Context(), addr)
	if err != nil {
		return fmt.Errorf("failed to ensure address: %w", err)
	}

	if wasNew {
		fmt.Printf("%s added\n", addr)
	} else {
		fmt.Printf("%s already known\n", addr)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	cache, cleanup, err := connect()
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := cache.Search(cmd.Context(), include, exclude)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	for addr := range results {
		fmt.Println(addr)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s matches\n", strconv.Itoa(len(results)))
	return nil
}

func runAll(cmd *cobra.Command, args []string) error {
	cache, cleanup, err := connect()
	if err != nil {
		return err
	}
	defer cleanup()

	seq, err := cache.All(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to enumerate cache: %w", err)
	}

	count := 0
	for addr := range seq {
		fmt.Println(addr)
		count++
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d addresses\n", count)
	return nil
}
