package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"noprime/redirector/internal/bus"
	"noprime/redirector/internal/catalog"
	"noprime/redirector/internal/client"
	"noprime/redirector/internal/config"
	"noprime/redirector/internal/controller"
	"noprime/redirector/internal/coordinator"
	httpdelivery "noprime/redirector/internal/delivery/http"
	"noprime/redirector/internal/extractor"
	"noprime/redirector/internal/host"
	"noprime/redirector/internal/proxy"
	"noprime/redirector/internal/repository"
	"noprime/redirector/internal/resolver"
	"noprime/redirector/internal/service"
	"noprime/redirector/internal/state"
)

const shutdownTimeout = 5 * time.Second

// Container holds all initialized components
type Container struct {
	Config      *config.Config
	Catalog     *catalog.Catalog
	Resolver    *resolver.Resolver
	Extractor   *extractor.Extractor
	Settings    state.SettingsStore
	Tabs        state.TabStore
	Bus         bus.Bus
	Fetcher     client.PageFetcher
	Inspector   *service.Inspector
	Browser     *host.Browser
	Coordinator *coordinator.Coordinator
	Router      *gin.Engine

	db    *pgxpool.Pool
	redis *redis.Client
}

// New creates a new container with all dependencies initialized. Redis and
// Postgres are only connected when the configuration selects them.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		Config: cfg,
	}

	brands, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load brand catalog: %w", err)
	}
	container.Catalog = brands

	container.Resolver = resolver.New(brands, resolver.Options{
		SearchURL:           cfg.Resolver.SearchURL,
		ExcludeTerm:         cfg.Resolver.ExcludeTerm,
		BookSellerEANURL:    cfg.Resolver.BookSellerEANURL,
		BookSellerSearchURL: cfg.Resolver.BookSellerSearchURL,
	})
	container.Extractor = extractor.New()

	if cfg.UsesRedis() {
		if err := container.connectRedis(ctx); err != nil {
			_ = container.Close()
			return nil, err
		}
	}

	if cfg.UsesPostgres() {
		if err := container.connectPostgres(ctx); err != nil {
			_ = container.Close()
			return nil, err
		}
	}

	switch cfg.Storage.Durable {
	case "redis":
		container.Settings = state.NewRedisSettingsStore(container.redis)
	case "postgres":
		container.Settings = repository.NewSettingsRepository(container.db)
	default:
		container.Settings = state.NewMemorySettingsStore()
	}

	switch cfg.Storage.Session {
	case "redis":
		container.Tabs = state.NewRedisTabStore(container.redis, cfg.Storage.SessionTTL)
	default:
		container.Tabs = state.NewMemoryTabStore()
	}

	switch cfg.Bus.Transport {
	case "redis":
		container.Bus = bus.NewRedisBus(container.redis, cfg.Bus)
	default:
		container.Bus = bus.NewMemoryBus()
	}

	proxySupplier := proxy.NewProxySupplier(ctx, cfg.Fetcher.Proxies, cfg.Fetcher.ProxyCheckURL)
	container.Fetcher = client.NewPageFetcher(cfg.Fetcher, proxySupplier)
	container.Inspector = service.NewInspector(container.Fetcher, container.Extractor, container.Resolver, cfg.Fetcher.MaxWorkers)

	container.Browser = host.NewBrowser(
		container.Bus,
		container.Extractor,
		container.Resolver,
		container.Settings,
		container.Fetcher,
		host.Options{
			Controller:     controller.Options{SearchEngine: cfg.Resolver.SearchName},
			RequestTimeout: cfg.Bus.RequestTimeout,
		},
	)

	container.Coordinator = coordinator.New(
		container.Settings,
		container.Tabs,
		container.Browser,
		container.Browser,
		container.Bus,
		cfg.Retailer.TabPatterns,
	)
	container.Browser.Attach(container.Coordinator)

	handler := httpdelivery.NewHandler(
		container.Browser,
		container.Coordinator,
		container.Resolver,
		container.Inspector,
		cfg.Server.RequestTimeout,
	)
	container.Router = httpdelivery.SetupRouter(cfg.Server, handler)

	return container, nil
}

func (c *Container) connectRedis(ctx context.Context) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Addr(),
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.Database,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Info("✅ Connected to Redis successfully")
	c.redis = rdb
	return nil
}

func (c *Container) connectPostgres(ctx context.Context) error {
	db, err := pgxpool.New(ctx, c.Config.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to create Postgres pool: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := repository.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return err
	}

	log.Info("✅ Connected to Postgres successfully")
	c.db = db
	return nil
}

// Run serves the coordinator and the HTTP API until ctx ends.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.Coordinator.Run(ctx)
	})

	server := &http.Server{
		Addr:              c.Config.Server.Addr(),
		Handler:           c.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		select {
		case <-c.Coordinator.Ready():
		case <-ctx.Done():
			return nil
		}

		log.Infof("🚀 HTTP API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close performs cleanup when shutting down
func (c *Container) Close() error {
	log.Info("Shutting down container...")

	var errs []error
	if c.Browser != nil {
		c.Browser.Close()
	}
	if c.Bus != nil {
		errs = append(errs, c.Bus.Close())
	}
	if c.db != nil {
		c.db.Close()
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}

	log.Info("Container shut down successfully")
	return errors.Join(errs...)
}
