// Package mq 提供RabbitMQ连接管理以及商品变更事件的发布和订阅
package mq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultReconnectInterval 连接断开后的重连间隔
const DefaultReconnectInterval = 3 * time.Second

// ConnectionState 连接状态
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnected
	StateReconnecting
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionManager 管理单个RabbitMQ连接，断开后自动重连
type ConnectionManager struct {
	url    string
	logger *zap.Logger

	conn  *amqp.Connection
	mu    sync.RWMutex
	state int32

	reconnectInterval time.Duration
	stopCh            chan struct{}

	cbMu          sync.Mutex
	onReconnected []func()
}

// NewConnectionManager 创建连接管理器
func NewConnectionManager(url string, logger *zap.Logger) *ConnectionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionManager{
		url:               url,
		logger:            logger,
		state:             int32(StateDisconnected),
		reconnectInterval: DefaultReconnectInterval,
		stopCh:            make(chan struct{}),
	}
}

// Connect 建立连接并开始监控
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	if cm.State() == StateClosed {
		return fmt.Errorf("connection manager is closed")
	}
	if err := cm.dial(ctx); err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	cm.logger.Info("RabbitMQ连接成功")
	go cm.monitor()
	return nil
}

// Channel 在当前连接上打开一个新通道，调用方负责关闭
func (cm *ConnectionManager) Channel() (*amqp.Channel, error) {
	cm.mu.RLock()
	conn := cm.conn
	cm.mu.RUnlock()

	if conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("connection is not available")
	}
	return conn.Channel()
}

// OnReconnected 注册重连成功后的回调，消费者借此重新订阅
func (cm *ConnectionManager) OnReconnected(fn func()) {
	cm.cbMu.Lock()
	cm.onReconnected = append(cm.onReconnected, fn)
	cm.cbMu.Unlock()
}

// IsConnected 检查是否已连接
func (cm *ConnectionManager) IsConnected() bool {
	return cm.State() == StateConnected
}

// State 获取连接状态
func (cm *ConnectionManager) State() ConnectionState {
	return ConnectionState(atomic.LoadInt32(&cm.state))
}

// Close 关闭连接并停止重连
func (cm *ConnectionManager) Close() error {
	if ConnectionState(atomic.SwapInt32(&cm.state, int32(StateClosed))) == StateClosed {
		return nil
	}
	cm.logger.Info("关闭RabbitMQ连接")
	close(cm.stopCh)

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.conn != nil {
		err := cm.conn.Close()
		cm.conn = nil
		return err
	}
	return nil
}

func (cm *ConnectionManager) dial(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := amqp.DialConfig(cm.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return err
	}

	cm.mu.Lock()
	cm.conn = conn
	cm.mu.Unlock()
	if !atomic.CompareAndSwapInt32(&cm.state, int32(StateDisconnected), int32(StateConnected)) &&
		!atomic.CompareAndSwapInt32(&cm.state, int32(StateReconnecting), int32(StateConnected)) {
		// 拨号期间已被关闭
		_ = conn.Close()
		return fmt.Errorf("connection manager is closed")
	}
	return nil
}

// monitor 监听连接关闭事件，意外断开时触发重连
func (cm *ConnectionManager) monitor() {
	cm.mu.RLock()
	conn := cm.conn
	cm.mu.RUnlock()
	if conn == nil {
		return
	}

	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	select {
	case err := <-closeCh:
		if err == nil {
			return
		}
		if !atomic.CompareAndSwapInt32(&cm.state, int32(StateConnected), int32(StateReconnecting)) {
			return
		}
		cm.logger.Warn("RabbitMQ连接断开，开始重连", zap.Error(err))
		go cm.reconnect()
	case <-cm.stopCh:
	}
}

func (cm *ConnectionManager) reconnect() {
	for attempt := 1; ; attempt++ {
		select {
		case <-cm.stopCh:
			return
		case <-time.After(cm.reconnectInterval):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := cm.dial(ctx)
		cancel()
		if err != nil {
			cm.logger.Error("RabbitMQ重连失败", zap.Error(err), zap.Int("attempt", attempt))
			if cm.State() == StateClosed {
				return
			}
			continue
		}

		cm.logger.Info("RabbitMQ重连成功", zap.Int("attempts", attempt))
		go cm.monitor()

		cm.cbMu.Lock()
		callbacks := append([]func(){}, cm.onReconnected...)
		cm.cbMu.Unlock()
		for _, fn := range callbacks {
			fn()
		}
		return
	}
}
