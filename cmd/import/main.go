// Package main 商品目录导入工具：读取 JSON 文件，按 ID 合并写入配置的商品存储
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/config"
	"github.com/MorseWayne/storefront/internal/database"
	"github.com/MorseWayne/storefront/internal/importer"
	"github.com/MorseWayne/storefront/internal/logger"
	"github.com/MorseWayne/storefront/internal/mq"
	"github.com/MorseWayne/storefront/internal/repo"
)

func main() {
	var (
		file        = flag.StringP("file", "f", "products.json", "JSON catalog with allProducts and featuredProducts")
		featured    = flag.StringSlice("featured", nil, "Additional featured product IDs (comma separated)")
		concurrency = flag.IntP("concurrency", "c", importer.DefaultConcurrency, "Concurrent upserts")
		timeout     = flag.Duration("timeout", 5*time.Minute, "Overall import timeout")
		notify      = flag.Bool("notify", true, "Publish an imported event when MQ_ENABLED=true")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, "import", cfg.App.Version)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if err := run(cfg, lg, *file, *featured, *concurrency, *timeout, *notify); err != nil {
		lg.Sugar().Fatalw("import failed", "err", err)
	}
}

func run(cfg *config.Config, lg *zap.Logger, path string, featured []string, concurrency int, timeout time.Duration, notify bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	src, err := importer.Decode(f)
	_ = f.Close()
	if err != nil {
		return err
	}
	lg.Sugar().Infow("catalog parsed", "file", path, "products", len(src.Products), "featured", len(src.FeaturedIDs)+len(featured))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []importer.Option{importer.WithConcurrency(concurrency)}
	if notify && cfg.MQ.Enabled {
		cm := mq.NewConnectionManager(cfg.MQ.URL, lg)
		if err := cm.Connect(ctx); err != nil {
			lg.Sugar().Warnw("rabbitmq unavailable; running instances will not be notified", "err", err)
		} else {
			defer func() { _ = cm.Close() }()
			opts = append(opts, importer.WithPublisher(mq.NewProducer(cm, cfg.MQ.Exchange, lg), "import-"+uuid.NewString()))
		}
	}

	res, err := importer.New(store, lg, opts...).Run(ctx, src, featured...)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d products (%d featured, %d failed)\n", res.Imported, res.Featured, res.Failed)
	return nil
}

// openStore 打开与服务端相同的商品存储；内存存储对导入没有意义
func openStore(ctx context.Context, cfg *config.Config, lg *zap.Logger) (repo.ProductRepository, func(), error) {
	switch cfg.Store.Type {
	case config.StoreMySQL:
		db, err := database.New(ctx, cfg.Database, lg)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewProductRepository(db.DB), func() { _ = db.Close() }, nil

	case config.StoreMongo:
		mc, err := database.NewMongo(ctx, cfg.Mongo, lg)
		if err != nil {
			return nil, nil, err
		}
		if err := repo.EnsureProductIndexes(ctx, mc.DB); err != nil {
			_ = mc.Close(context.Background())
			return nil, nil, err
		}
		return repo.NewMongoProductRepository(mc.DB, cfg.Mongo.OpTimeout), func() { _ = mc.Close(context.Background()) }, nil

	case config.StoreDynamo:
		dc, err := database.NewDynamo(ctx, cfg.Dynamo, lg)
		if err != nil {
			return nil, nil, err
		}
		if _, err := repo.EnsureProductTable(ctx, dc.DB, cfg.Dynamo.Table); err != nil {
			return nil, nil, err
		}
		return repo.NewDynamoProductRepository(dc.DB, cfg.Dynamo.Table), func() {}, nil
	}
	return nil, nil, fmt.Errorf("store type %q cannot be imported into", cfg.Store.Type)
}
