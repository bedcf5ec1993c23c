package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/MorseWayne/storefront/internal/config"
)

// 连接重试参数
const (
	maxConnectRetries = 5
	initialBackoff    = time.Second
	maxBackoff        = 30 * time.Second
)

// MongoClient 封装 MongoDB 客户端和目标数据库
type MongoClient struct {
	Client *mongo.Client
	DB     *mongo.Database
}

// NewMongo 连接 MongoDB，失败时按指数退避重试
func NewMongo(ctx context.Context, cfg config.MongoConfig, logger *zap.Logger) (*MongoClient, error) {
	clientOpts := options.Client().ApplyURI(cfg.URI)

	var (
		client *mongo.Client
		err    error
	)
	backoff := initialBackoff
	for attempt := 1; attempt <= maxConnectRetries; attempt++ {
		client, err = connectMongo(ctx, clientOpts, cfg.ConnectTimeout)
		if err == nil {
			break
		}
		if attempt == maxConnectRetries {
			return nil, fmt.Errorf("connect to mongo after %d attempts: %w", maxConnectRetries, err)
		}
		logger.Warn("mongo connect failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := sleep(ctx, backoff); err != nil {
			return nil, err
		}
		backoff = min(backoff*2, maxBackoff)
	}

	logger.Info("mongo connected", zap.String("database", cfg.DB))
	return &MongoClient{Client: client, DB: client.Database(cfg.DB)}, nil
}

func connectMongo(ctx context.Context, opts *options.ClientOptions, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return client, nil
}

// Ping 检查连接
func (c *MongoClient) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx, nil)
}

// Close 断开连接
func (c *MongoClient) Close(ctx context.Context) error {
	return c.Client.Disconnect(ctx)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
