package mq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ProducerOption 生产者可选项
type ProducerOption func(*Producer)

// WithPublishRetry 设置发布失败后的重试次数和间隔
func WithPublishRetry(attempts int, interval time.Duration) ProducerOption {
	return func(p *Producer) {
		if attempts > 0 {
			p.maxAttempts = attempts
		}
		p.retryInterval = interval
	}
}

// Producer 向 fanout 交换机发布商品变更事件，使用发布确认
type Producer struct {
	cm       *ConnectionManager
	exchange string
	logger   *zap.Logger

	confirmTimeout time.Duration
	maxAttempts    int
	retryInterval  time.Duration
}

// NewProducer 创建生产者
func NewProducer(cm *ConnectionManager, exchange string, logger *zap.Logger, opts ...ProducerOption) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Producer{
		cm:             cm,
		exchange:       exchange,
		logger:         logger,
		confirmTimeout: 5 * time.Second,
		maxAttempts:    3,
		retryInterval:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DeclareExchange 声明持久化的 fanout 交换机
func DeclareExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return nil
}

// PublishProductChanged 发布商品变更事件
func (p *Producer) PublishProductChanged(ctx context.Context, event ProductChangedEvent) error {
	body, err := event.Encode()
	if err != nil {
		return err
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         RoutingKeyProductChanged,
		AppId:        event.Source,
		Body:         body,
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if lastErr = p.publishOnce(ctx, publishing); lastErr == nil {
			p.logger.Debug("商品变更事件已发布",
				zap.String("action", string(event.Action)),
				zap.String("product_id", event.ProductID))
			return nil
		}

		p.logger.Warn("消息发布失败",
			zap.String("exchange", p.exchange),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.maxAttempts),
			zap.Error(lastErr))
		if attempt == p.maxAttempts {
			break
		}

		select {
		case <-time.After(p.retryInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed to publish message after %d attempts: %w", p.maxAttempts, lastErr)
}

func (p *Producer) publishOnce(ctx context.Context, publishing amqp.Publishing) error {
	ch, err := p.cm.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}
	defer ch.Close()

	if err := DeclareExchange(ch, p.exchange); err != nil {
		return err
	}
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("failed to set confirm mode: %w", err)
	}
	confirmCh := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	if err := ch.PublishWithContext(ctx, p.exchange, RoutingKeyProductChanged, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	select {
	case confirmation := <-confirmCh:
		if confirmation.Ack {
			return nil
		}
		return fmt.Errorf("message was nacked by broker")
	case <-time.After(p.confirmTimeout):
		return fmt.Errorf("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}
