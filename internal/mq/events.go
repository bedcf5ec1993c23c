package mq

import (
	"encoding/json"
	"fmt"
	"time"
)

// RoutingKeyProductChanged 商品变更事件的路由键
const RoutingKeyProductChanged = "product.changed"

// ProductAction 商品变更类型
type ProductAction string

const (
	ActionCreated  ProductAction = "created"
	ActionUpdated  ProductAction = "updated"
	ActionDeleted  ProductAction = "deleted"
	ActionImported ProductAction = "imported"
)

func (a ProductAction) valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionDeleted, ActionImported:
		return true
	}
	return false
}

// ProductChangedEvent 商品目录发生变化的通知。
// 事件只携带标识，接收方重新加载目录而不是应用增量。
type ProductChangedEvent struct {
	Action     ProductAction `json:"action"`
	ProductID  string        `json:"product_id,omitempty"`
	Source     string        `json:"source"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// NewProductChangedEvent 创建事件，source 为发布方实例标识
func NewProductChangedEvent(action ProductAction, productID, source string) ProductChangedEvent {
	return ProductChangedEvent{
		Action:     action,
		ProductID:  productID,
		Source:     source,
		OccurredAt: time.Now().UTC(),
	}
}

// Encode 序列化事件
func (e ProductChangedEvent) Encode() ([]byte, error) {
	if !e.Action.valid() {
		return nil, fmt.Errorf("unknown product action %q", e.Action)
	}
	return json.Marshal(e)
}

// DecodeProductChangedEvent 反序列化并校验事件
func DecodeProductChangedEvent(body []byte) (ProductChangedEvent, error) {
	var e ProductChangedEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return e, fmt.Errorf("failed to unmarshal product event: %w", err)
	}
	if !e.Action.valid() {
		return e, fmt.Errorf("unknown product action %q", e.Action)
	}
	return e, nil
}
