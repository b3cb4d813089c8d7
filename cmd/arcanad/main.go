// Command arcanad serves the entitlement API for one account.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/arcana/pkg/config"
	"github.com/dmitrymomot/arcana/pkg/connectivity"
	"github.com/dmitrymomot/arcana/pkg/feature"
	"github.com/dmitrymomot/arcana/pkg/httpserver"
	"github.com/dmitrymomot/arcana/pkg/kv"
	"github.com/dmitrymomot/arcana/pkg/kv/mongostore"
	"github.com/dmitrymomot/arcana/pkg/kv/pgstore"
	"github.com/dmitrymomot/arcana/pkg/kv/redisstore"
	"github.com/dmitrymomot/arcana/pkg/limits"
	"github.com/dmitrymomot/arcana/pkg/logger"
	"github.com/dmitrymomot/arcana/pkg/recovery"
	"github.com/dmitrymomot/arcana/pkg/subscription"
	"github.com/dmitrymomot/arcana/pkg/usage"
	"github.com/dmitrymomot/arcana/svc/api"
	"github.com/dmitrymomot/arcana/svc/resilient"
	"github.com/dmitrymomot/arcana/svc/subsync"
)

type appConfig struct {
	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"` // memory, redis, postgres or mongo
	Platform    string `env:"PLATFORM" envDefault:"mock"`       // mock or paddle
	PolicyFile  string `env:"LIMITS_POLICY_FILE"`               // overrides the bundled tier table
}

var (
	errUnknownStoreDriver = errors.New("unknown STORE_DRIVER")
	errUnknownPlatform    = errors.New("unknown PLATFORM")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "arcanad:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logCfg, err := config.Load[logger.Config]()
	if err != nil {
		return err
	}
	log, err := logger.FromConfig(logCfg, logger.WithContextExtractors(api.RequestIDExtractor()))
	if err != nil {
		return err
	}

	cfg, err := config.Load[appConfig]()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.StoreDriver, log)
	if err != nil {
		return err
	}
	defer closeStore()

	policy := limits.DefaultPolicy()
	if cfg.PolicyFile != "" {
		if policy, err = limits.LoadPolicyFile(cfg.PolicyFile); err != nil {
			return err
		}
	}

	recoveryCfg, err := config.Load[recovery.Config](config.WithPrefix("RECOVERY_"))
	if err != nil {
		return err
	}
	handler := recovery.NewHandler(recoveryCfg, recovery.WithStore(store), recovery.WithLogger(log))
	if err := handler.LoadCache(ctx); err != nil {
		log.WarnContext(ctx, "cached subscription status unavailable", logger.Error(err))
	}

	base, webhooks, err := openPlatform(cfg.Platform, log)
	if err != nil {
		return err
	}

	connCfg, err := config.Load[connectivity.Config]()
	if err != nil {
		return err
	}
	monitor := connectivity.NewHTTPMonitor(connCfg, connectivity.WithLogger(log))
	monitor.Start(ctx)

	svc := resilient.New(base, monitor, handler, resilient.WithLogger(log))
	defer func() {
		if err := svc.Dispose(); err != nil {
			log.ErrorContext(ctx, "failed to dispose subscription service", logger.Error(err))
		}
	}()

	tracker := usage.New(store, usage.WithLogger(log))
	if reset, err := tracker.ResetIfNeeded(ctx); err != nil {
		log.ErrorContext(ctx, "monthly usage reset failed", logger.Error(err))
	} else if reset {
		log.InfoContext(ctx, "monthly usage reset")
	}

	gate := feature.NewGate(policy, tracker,
		feature.WithLogger(log),
		feature.WithInitialStatus(handler.GetFallbackStatus()))
	go func() {
		if err := gate.Follow(ctx, svc.SubscriptionStatusStream(ctx)); err != nil && !errors.Is(err, context.Canceled) {
			log.ErrorContext(ctx, "gate stopped following status", logger.Error(err))
		}
	}()

	syncCfg, err := config.Load[subsync.Config]()
	if err != nil {
		return err
	}
	syncer := subsync.New(svc, handler, store,
		subsync.WithConfig(syncCfg),
		subsync.WithLogger(log),
		subsync.WithStatusListener(gate.UpdateSubscriptionStatus))
	syncer.Start(ctx)
	defer func() {
		if err := syncer.Close(); err != nil {
			log.ErrorContext(ctx, "failed to stop sync", logger.Error(err))
		}
	}()

	opts := []api.Option{api.WithLogger(log)}
	if hc, ok := store.(kv.Healthchecker); ok {
		opts = append(opts, api.WithReadinessChecks(httpserver.Check{Name: "store", Fn: hc.Healthcheck}))
	}
	if webhooks != nil {
		opts = append(opts, api.WithWebhooks(webhooks))
	}

	httpCfg, err := config.Load[httpserver.Config]()
	if err != nil {
		return err
	}
	server := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))
	return server.Run(ctx, api.New(gate, svc, syncer, opts...).Router())
}

// openStore connects the configured backend. The returned func releases it.
func openStore(ctx context.Context, driver string, log *slog.Logger) (kv.Store, func(), error) {
	switch driver {
	case "memory":
		log.WarnContext(ctx, "using in-memory store, state is lost on restart")
		return kv.NewMemory(), func() {}, nil

	case "redis":
		cfg, err := config.Load[redisstore.Config]()
		if err != nil {
			return nil, nil, err
		}
		client, err := redisstore.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		s := redisstore.New(client, cfg.KeyPrefix)
		return s, func() { _ = s.Close() }, nil

	case "postgres":
		cfg, err := config.Load[pgstore.Config]()
		if err != nil {
			return nil, nil, err
		}
		pool, err := pgstore.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := pgstore.Migrate(ctx, pool, cfg, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
		s := pgstore.New(pool)
		return s, s.Close, nil

	case "mongo":
		cfg, err := config.Load[mongostore.Config]()
		if err != nil {
			return nil, nil, err
		}
		client, err := mongostore.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return mongostore.NewFromClient(client, cfg), func() {
			_ = client.Disconnect(context.Background())
		}, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", errUnknownStoreDriver, driver)
	}
}

func openPlatform(name string, log *slog.Logger) (subscription.Service, api.WebhookHandler, error) {
	switch name {
	case "mock":
		return subscription.NewMockPlatform(), nil, nil
	case "paddle":
		cfg, err := config.Load[subscription.PaddleConfig]()
		if err != nil {
			return nil, nil, err
		}
		p, err := subscription.NewPaddlePlatform(cfg,
			subscription.WithPaddleLogger(log),
			subscription.WithLinkOpener(api.LinkCollector()))
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", errUnknownPlatform, name)
	}
}
