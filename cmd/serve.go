package cmd

import (
	"context"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/area/diffsync/internal/adapter"
	"github.com/area/diffsync/internal/config"
	"github.com/area/diffsync/internal/diffengine"
	"github.com/area/diffsync/internal/editprocessor"
	"github.com/area/diffsync/internal/logging"
	"github.com/area/diffsync/internal/roomstore"
	"github.com/area/diffsync/internal/savecoalescer"
	"github.com/area/diffsync/internal/sessionrouter"
	"github.com/area/diffsync/internal/transport"
)

func newServeCommand() *cobra.Command {
	var useMemory bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), useMemory)
		},
	}
	cmd.Flags().BoolVar(&useMemory, "memory", false, "use the in-memory adapter instead of Postgres (local development)")
	return cmd
}

func runServe(ctx context.Context, useMemory bool) error {
	cfg := config.Load()
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	var a adapter.Adapter
	if useMemory {
		a = adapter.NewMemory()
	} else {
		pool, err := adapter.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		var opts []adapter.PostgresOption
		if cfg.RedisURL != "" {
			redisOpts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return err
			}
			opts = append(opts, adapter.WithRedis(redis.NewClient(redisOpts)))
		}
		a = adapter.NewPostgres(pool, cfg.JWTSecret, opts...)
	}

	engine := diffengine.New(diffengine.Options{})
	store := roomstore.New(a, engine)
	coalescer := savecoalescer.New(a, store)

	hub := transport.NewHub()
	processor := editprocessor.New(store, coalescer, a, hub, engine)
	router := sessionrouter.New(store, processor, engine)
	transport.Bind(hub, router)

	r := transport.NewRouter(hub)
	log.Printf("diffsync: listening on :%s", cfg.Port)
	return r.Run(":" + cfg.Port)
}
