package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/api"
	"github.com/MorseWayne/storefront/internal/cache"
	"github.com/MorseWayne/storefront/internal/config"
	"github.com/MorseWayne/storefront/internal/database"
	"github.com/MorseWayne/storefront/internal/limiter"
	"github.com/MorseWayne/storefront/internal/listing"
	"github.com/MorseWayne/storefront/internal/logger"
	"github.com/MorseWayne/storefront/internal/mq"
	"github.com/MorseWayne/storefront/internal/repo"
	"github.com/MorseWayne/storefront/internal/router"
	"github.com/MorseWayne/storefront/internal/service"
)

const (
	startupTimeout = 30 * time.Second
	initialLoad    = 10 * time.Second
)

// app 持有进程级资源，关闭时按相反顺序释放
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	closers []func(ctx context.Context) error
}

func (a *app) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Sugar().Errorw("failed to release resource", "err", err)
		}
	}
}

// initConfigAndLogger 初始化配置和日志器
func initConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, cfg.App.Name, cfg.App.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, lg, nil
}

// openStore 按 STORE_TYPE 打开商品存储
func (a *app) openStore(ctx context.Context) (repo.ProductRepository, error) {
	cfg, lg := a.cfg, a.logger

	switch cfg.Store.Type {
	case config.StoreMySQL:
		db, err := database.New(ctx, cfg.Database, lg)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return db.Close() })

		lg.Sugar().Infow("using migrations directory", "path", cfg.Migrations.Dir)
		if err := db.RunMigrations(cfg.Migrations.Dir); err != nil {
			return nil, fmt.Errorf("run database migrations: %w", err)
		}
		return repo.NewProductRepository(db.DB), nil

	case config.StoreMongo:
		mc, err := database.NewMongo(ctx, cfg.Mongo, lg)
		if err != nil {
			return nil, err
		}
		a.onClose(mc.Close)

		if err := repo.EnsureProductIndexes(ctx, mc.DB); err != nil {
			return nil, fmt.Errorf("ensure product indexes: %w", err)
		}
		return repo.NewMongoProductRepository(mc.DB, cfg.Mongo.OpTimeout), nil

	case config.StoreDynamo:
		dc, err := database.NewDynamo(ctx, cfg.Dynamo, lg)
		if err != nil {
			return nil, err
		}
		created, err := repo.EnsureProductTable(ctx, dc.DB, cfg.Dynamo.Table)
		if err != nil {
			return nil, fmt.Errorf("ensure product table: %w", err)
		}
		if created {
			lg.Sugar().Infow("dynamodb table created", "table", cfg.Dynamo.Table)
		}
		return repo.NewDynamoProductRepository(dc.DB, cfg.Dynamo.Table), nil

	case config.StoreMemory:
		lg.Sugar().Warnw("using in-memory product store; data is lost on restart")
		return repo.NewMemoryProductRepository(), nil
	}
	return nil, fmt.Errorf("unsupported store type %q", cfg.Store.Type)
}

// initRedis 在缓存或限流需要时连接 Redis，连接失败时降级运行
func (a *app) initRedis(ctx context.Context) *redis.Client {
	cfg := a.cfg
	if !(cfg.Cache.Enabled && cfg.Cache.Type == "redis") && !cfg.RateLimit.Enabled {
		return nil
	}

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		a.logger.Sugar().Warnw("failed to connect to Redis, continuing without it", "error", err)
		return nil
	}
	a.onClose(func(context.Context) error { return client.Close() })
	a.logger.Sugar().Infow("redis connected", "host", cfg.Redis.Host, "port", cfg.Redis.Port)
	return client
}

// initMQ 连接 RabbitMQ：本实例的写操作发布事件，其他实例的事件触发目录刷新
func (a *app) initMQ(ctx context.Context, instanceID string, catalog *listing.Catalog) (*mq.Producer, error) {
	cfg, lg := a.cfg, a.logger
	if !cfg.MQ.Enabled {
		return nil, nil
	}

	cm := mq.NewConnectionManager(cfg.MQ.URL, lg)
	if err := cm.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	a.onClose(func(context.Context) error { return cm.Close() })

	queue := cfg.MQ.Queue
	if queue == "" {
		queue = fmt.Sprintf("%s.%s", cfg.MQ.Exchange, instanceID)
	}
	consumer := mq.NewConsumer(cm, cfg.MQ.Exchange, queue,
		mq.ProductChangedHandler(instanceID, catalog.Refresh, lg), lg)
	if err := consumer.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("start consumer: %w", err)
	}
	a.onClose(func(context.Context) error { consumer.Stop(); return nil })

	lg.Sugar().Infow("catalog events enabled", "exchange", cfg.MQ.Exchange, "queue", queue)
	return mq.NewProducer(cm, cfg.MQ.Exchange, lg), nil
}

// build 组装仓储、目录、服务和路由
func (a *app) build(ctx context.Context) (http.Handler, error) {
	cfg, lg := a.cfg, a.logger
	instanceID := uuid.NewString()

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	redisClient := a.initRedis(ctx)
	productCache := cache.New(cfg.Cache, redisClient)
	lg.Sugar().Infow("product cache", "enabled", cfg.Cache.Enabled, "type", cfg.Cache.Type, "ttl", cfg.Cache.TTL)

	// 目录本身就是列表数据的快照，直接读底层存储；详情查询走缓存装饰器
	catalog := listing.NewCatalog(store, lg)
	products := store
	if cfg.Cache.Enabled {
		products = repo.NewCachedProductRepository(store, productCache, cfg.Cache.TTL, lg)
	}

	loadCtx, cancel := context.WithTimeout(ctx, initialLoad)
	if err := catalog.Refresh(loadCtx); err != nil {
		lg.Sugar().Warnw("initial catalog load failed; serving 503 until a refresh succeeds", "err", err)
	}
	cancel()

	svcOpts := []service.ProductServiceOption{service.WithCatalogRefresher(catalog)}
	producer, err := a.initMQ(ctx, instanceID, catalog)
	if err != nil {
		return nil, err
	}
	if producer != nil {
		svcOpts = append(svcOpts, service.WithEventPublisher(producer, instanceID))
	}

	jwtService := service.NewJWTService(cfg, lg)
	productService := service.NewProductService(products, lg, svcOpts...)
	authService := service.NewAuthService(cfg.Admin, jwtService, lg)

	deps := &router.Dependencies{
		ProductHandler:   api.NewProductHandler(catalog, productService, cfg.Listing.HotDealsLimit, lg, api.WithCategorySource(products)),
		ShopHandler:      api.NewShopHandler(catalog, cfg.Listing.PageSize, cfg.Listing.StickyNavigationDiscount, lg),
		AdminHandler:     api.NewAdminHandler(productService, catalog, lg),
		AuthHandler:      api.NewAuthHandler(authService, lg),
		TokenValidator:   jwtService,
		IdempotencyStore: productCache,
		HealthChecks: map[string]router.HealthCheck{
			"store": store.Ping,
			"cache": productCache.Ping,
		},
	}
	if _, isNull := productCache.(*cache.NullCache); isNull {
		deps.IdempotencyStore = cache.NewMemoryCache()
	}
	if cfg.RateLimit.Enabled {
		if redisClient == nil {
			lg.Sugar().Warnw("rate limiting enabled but Redis is unavailable; requests are not limited")
		} else if l, err := limiter.NewTokenBucketLimiter(redisClient, limiter.ConfigFrom(cfg.RateLimit)); err != nil {
			lg.Sugar().Warnw("invalid rate limit config; requests are not limited", "err", err)
		} else {
			deps.Limiter = l
		}
	}

	lg.Sugar().Infow("dependencies ready", "store", cfg.Store.Type, "instance_id", instanceID)
	return router.New().Setup(cfg, deps, lg), nil
}

// startServer 启动服务器并处理优雅关闭
func (a *app) startServer(handler http.Handler) {
	cfg, lg := a.cfg, a.logger
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	lg.Sugar().Infow("server starting", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Sugar().Errorw("server error", "err", err)
		}
	case <-quit:
		lg.Sugar().Infow("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Sugar().Errorw("server shutdown error", "err", err)
	}
	a.close(ctx)
	lg.Sugar().Infow("server exited")
}

func main() {
	cfg, lg, err := initConfigAndLogger()
	if err != nil {
		log.Fatalf("failed to initialize config and logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	a := &app{cfg: cfg, logger: lg}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	handler, err := a.build(ctx)
	cancel()
	if err != nil {
		a.close(context.Background())
		lg.Sugar().Fatalw("failed to initialize application", "err", err)
	}

	a.startServer(handler)
}
