// Package control assembles the transaction gateway from configuration and runs it.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/txgate/internal/api"
	"github.com/vietddude/txgate/internal/core/config"
	"github.com/vietddude/txgate/internal/core/monitor"
	"github.com/vietddude/txgate/internal/core/submit"
	"github.com/vietddude/txgate/internal/core/txn"
	"github.com/vietddude/txgate/internal/health"
	"github.com/vietddude/txgate/internal/infra/chain/solana"
	redisclient "github.com/vietddude/txgate/internal/infra/redis"
	"github.com/vietddude/txgate/internal/infra/rpc/provider"
	"github.com/vietddude/txgate/internal/infra/rpc/routing"
	"github.com/vietddude/txgate/internal/infra/storage"
	"github.com/vietddude/txgate/internal/infra/storage/memory"
	"github.com/vietddude/txgate/internal/infra/storage/postgres"
)

// Gateway owns every long running component of the service.
type Gateway struct {
	cfg          *config.AppConfig
	router       *routing.Router
	pubsub       *solana.PubSub
	monitor      *monitor.Monitor
	grpcServer   *api.Server
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// NewGateway creates a Gateway with all dependencies initialized.
// Redis and PostgreSQL are optional; without them the status cache is off
// and submissions are journaled in memory.
func NewGateway(ctx context.Context, cfg *config.AppConfig) (*Gateway, error) {
	g := &Gateway{cfg: cfg, log: slog.Default().With("component", "gateway")}

	// 1. Ledger endpoints
	g.router = routing.NewRouter(routing.ParseRotationStrategy(cfg.Ledger.Rotation))
	g.router.AddProvider(provider.NewHTTPProvider("primary", cfg.Ledger.RPCURL, cfg.Ledger.Timeout))
	for i, url := range cfg.Ledger.FallbackURLs {
		g.router.AddProvider(provider.NewHTTPProvider(fmt.Sprintf("fallback-%d", i+1), url, cfg.Ledger.Timeout))
	}

	retry := routing.DefaultRetryConfig
	retry.MaxAttempts = cfg.Ledger.RetryAttempts
	ledger := solana.NewClient(g.router, retry)
	codec := solana.Codec{}

	// 2. Push transport
	if !cfg.Ledger.DisablePush {
		wsURL := cfg.Ledger.WSURL
		if wsURL == "" {
			derived, err := solana.DeriveWebsocketURL(cfg.Ledger.RPCURL)
			if err != nil {
				return nil, fmt.Errorf("derive websocket url: %w", err)
			}
			wsURL = derived
		}
		g.pubsub = solana.NewPubSub(wsURL)
	}

	// 3. Optional storage
	var journal storage.SubmissionJournal
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}
		g.db = db
		journal = postgres.NewJournalRepo(db)
		g.log.Info("Using PostgreSQL submission journal")
	} else {
		journal = memory.NewJournal()
		g.log.Info("Using in-memory submission journal")
	}

	var cache monitor.StatusCache
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(ctx, cfg.Redis)
		if err != nil {
			g.log.Warn("Failed to connect to Redis, status cache disabled", "error", err)
		} else {
			g.redisClient = client
			cache = redisclient.NewStatusCache(client, cfg.Redis.StatusTTL)
		}
	}

	// 4. Core
	monOpts := []monitor.Option{}
	if g.pubsub != nil {
		monOpts = append(monOpts, monitor.WithNotifier(g.pubsub))
	}
	if cache != nil {
		monOpts = append(monOpts, monitor.WithCache(cache))
	}
	g.monitor = monitor.New(ledger, cfg.Monitor, monOpts...)

	svc := api.NewService(api.Deps{
		Compiler:   txn.NewCompiler(ledger, codec, cfg.Ledger.DefaultCommitment),
		Signer:     txn.NewSigner(codec),
		Submitter:  submit.NewSubmitter(ledger, codec, submit.WithJournal(storage.Recorder{Journal: journal})),
		Simulator:  submit.NewSimulator(ledger, codec),
		Monitor:    g.monitor,
		Reader:     ledger,
		Decoder:    codec,
		Commitment: cfg.Ledger.DefaultCommitment,
	})
	g.grpcServer = api.NewServer(svc, cfg.Server.GRPCPort)

	// 5. Health
	healthOpts := []health.Option{health.WithSubscriptions(g.monitor.Registry())}
	if g.pubsub != nil {
		healthOpts = append(healthOpts, health.WithPush(g.pubsub))
	}
	if g.db != nil {
		healthOpts = append(healthOpts, health.WithDependency("postgres", g.db))
	}
	if g.redisClient != nil {
		healthOpts = append(healthOpts, health.WithDependency("redis", g.redisClient))
	}
	g.healthServer = health.NewServer(health.NewMonitor(g.router, healthOpts...), cfg.Server.HealthPort)

	return g, nil
}

// Run starts every component and blocks until ctx is cancelled or one of them fails.
func (g *Gateway) Run(ctx context.Context) error {
	return g.run(ctx, func(ctx context.Context) error { return g.grpcServer.Start(ctx) })
}

// RunListener is Run with the gRPC server bound to lis.
func (g *Gateway) RunListener(ctx context.Context, lis net.Listener) error {
	return g.run(ctx, func(ctx context.Context) error { return g.grpcServer.Serve(ctx, lis) })
}

func (g *Gateway) run(ctx context.Context, serve func(context.Context) error) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error { return serve(ctx) })

	eg.Go(func() error {
		return g.monitor.Run(ctx)
	})

	if g.pubsub != nil {
		eg.Go(func() error {
			return g.pubsub.Run(ctx)
		})
	}

	eg.Go(func() error {
		g.log.Info("Starting health server", "port", g.cfg.Server.HealthPort)
		return g.healthServer.Start()
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return g.healthServer.Stop(shutdownCtx)
	})

	if g.db != nil {
		g.db.StartMetricsCollector(ctx)
	}

	err := eg.Wait()
	g.close()
	return err
}

func (g *Gateway) close() {
	g.log.Info("Stopping gateway")
	if g.redisClient != nil {
		if err := g.redisClient.Close(); err != nil {
			g.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			g.log.Warn("Failed to close database", "error", err)
		}
	}
	if err := g.router.Close(); err != nil {
		g.log.Warn("Failed to close providers", "error", err)
	}
}
