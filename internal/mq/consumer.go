package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// MessageHandler 消息处理函数
type MessageHandler func(ctx context.Context, delivery amqp.Delivery) error

// ConsumerOption 消费者可选项
type ConsumerOption func(*Consumer)

// WithConsumeRetry 设置处理失败后的重试次数和间隔
func WithConsumeRetry(attempts int, interval time.Duration) ConsumerOption {
	return func(c *Consumer) {
		c.maxRetries = attempts
		c.retryInterval = interval
	}
}

// WithConsumeTimeout 设置单条消息的处理超时
func WithConsumeTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) { c.consumeTimeout = d }
}

// Consumer 订阅商品变更事件。
// 每个实例声明自己的独占队列并绑定到 fanout 交换机，从而每个实例都能收到全部事件。
type Consumer struct {
	cm       *ConnectionManager
	exchange string
	queue    string
	logger   *zap.Logger
	handler  MessageHandler

	maxRetries     int
	retryInterval  time.Duration
	consumeTimeout time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewConsumer 创建消费者，queue 为本实例的队列名
func NewConsumer(cm *ConnectionManager, exchange, queue string, handler MessageHandler, logger *zap.Logger, opts ...ConsumerOption) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Consumer{
		cm:             cm,
		exchange:       exchange,
		queue:          queue,
		logger:         logger,
		handler:        handler,
		maxRetries:     2,
		retryInterval:  time.Second,
		consumeTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start 开始消费，连接重建后自动重新订阅
func (c *Consumer) Start(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("message handler is not set")
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer is already running")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.mu.Unlock()

	if err := c.subscribe(); err != nil {
		c.Stop()
		return err
	}
	c.cm.OnReconnected(func() {
		if err := c.subscribe(); err != nil {
			c.logger.Error("重新订阅失败", zap.String("queue", c.queue), zap.Error(err))
		}
	})
	return nil
}

// Stop 停止消费并等待处理中的消息完成
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("停止消费消息", zap.String("queue", c.queue))
}

func (c *Consumer) subscribe() error {
	c.mu.Lock()
	ctx, running := c.ctx, c.running
	c.mu.Unlock()
	if !running {
		return nil
	}

	ch, err := c.cm.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}
	if err := DeclareExchange(ch, c.exchange); err != nil {
		ch.Close()
		return err
	}
	// 独占且自动删除，实例退出后队列随之消失
	q, err := ch.QueueDeclare(c.queue, false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare queue %s: %w", c.queue, err)
	}
	if err := ch.QueueBind(q.Name, RoutingKeyProductChanged, c.exchange, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("开始消费消息", zap.String("queue", q.Name), zap.String("exchange", c.exchange))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ch.Close()
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					c.logger.Info("消费通道关闭", zap.String("queue", q.Name))
					return
				}
				c.process(ctx, d)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// process 处理单条消息：成功确认，重试耗尽后拒绝且不重新入队
func (c *Consumer) process(parent context.Context, d amqp.Delivery) {
	ctx, cancel := context.WithTimeout(parent, c.consumeTimeout)
	defer cancel()

	var err error
	for attempt := 0; ; attempt++ {
		if err = c.handler(ctx, d); err == nil {
			if ackErr := d.Ack(false); ackErr != nil {
				c.logger.Error("消息确认失败", zap.Error(ackErr), zap.String("message_id", d.MessageId))
			}
			return
		}

		c.logger.Error("消息处理失败",
			zap.Error(err),
			zap.String("message_id", d.MessageId),
			zap.Int("retry_count", attempt))
		if attempt >= c.maxRetries || IsNonRetryableError(err) {
			break
		}

		select {
		case <-time.After(c.retryInterval):
			continue
		case <-ctx.Done():
		}
		break
	}

	if rejectErr := d.Reject(false); rejectErr != nil {
		c.logger.Error("消息拒绝失败", zap.Error(rejectErr), zap.String("message_id", d.MessageId))
	}
}

// NonRetryableError 不可重试错误，例如无法解析的消息
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable error: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// IsNonRetryableError 检查是否为不可重试错误
func IsNonRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nonRetryable *NonRetryableError
	return errors.As(err, &nonRetryable)
}

// ProductChangedHandler 将商品变更事件转换为目录刷新。
// 本实例发布的事件被忽略，因为写操作完成后已在本地刷新。
func ProductChangedHandler(self string, refresh func(ctx context.Context) error, logger *zap.Logger) MessageHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, d amqp.Delivery) error {
		event, err := DecodeProductChangedEvent(d.Body)
		if err != nil {
			return &NonRetryableError{Err: err}
		}
		if event.Source == self {
			return nil
		}
		logger.Info("收到商品变更事件，刷新目录",
			zap.String("action", string(event.Action)),
			zap.String("product_id", event.ProductID),
			zap.String("source", event.Source))
		return refresh(ctx)
	}
}
