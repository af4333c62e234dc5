package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderCreatedEvent is emitted once per order after checkout commits.
type OrderCreatedEvent struct {
	OrderID        string
	NotificationID string
	CustomerID     string
	ProductID      string
	MerchantID     string
	ProductName    string
	Count          int
	TotalAmount    decimal.Decimal
	Message        string
	OccurredAt     time.Time
}

func (OrderCreatedEvent) EventName() string { return "order.created" }

func NewOrderCreatedEvent(o *Order, notificationID, message string) OrderCreatedEvent {
	return OrderCreatedEvent{
		OrderID:        o.ID,
		NotificationID: notificationID,
		CustomerID:     o.CustomerID,
		ProductID:      o.ProductID,
		MerchantID:     o.MerchantID,
		ProductName:    o.ProductName,
		Count:          o.Count,
		TotalAmount:    o.TotalAmount,
		Message:        message,
		OccurredAt:     time.Now().UTC(),
	}
}

// OrderStatusChangedEvent is emitted after a merchant or customer status change commits.
type OrderStatusChangedEvent struct {
	OrderID    string
	CustomerID string
	MerchantID string
	From       Status
	To         Status
	Restocked  int
	Refunded   decimal.Decimal
	OccurredAt time.Time
}

func (OrderStatusChangedEvent) EventName() string { return "order.status_changed" }

func NewOrderStatusChangedEvent(o *Order, from Status, restocked int, refunded decimal.Decimal) OrderStatusChangedEvent {
	return OrderStatusChangedEvent{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		MerchantID: o.MerchantID,
		From:       from,
		To:         o.Status,
		Restocked:  restocked,
		Refunded:   refunded,
		OccurredAt: time.Now().UTC(),
	}
}
