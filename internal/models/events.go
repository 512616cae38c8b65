package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeOrderDeleted       = "ORDER_DELETED"
	EventTypeProductChanged     = "PRODUCT_CHANGED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published after checkout persisted the order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       int64           `json:"order_id"`
	CustomerEmail string          `json:"customer_email"`
	Total         decimal.Decimal `json:"total"`
	Items         []OrderItem     `json:"items"`
}

// OrderStatusChangedEvent published when an admin updates an order.
// Previous* are the values before the write.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID               int64         `json:"order_id"`
	PreviousStatus        OrderStatus   `json:"previous_status"`
	Status                OrderStatus   `json:"status"`
	PreviousPaymentStatus PaymentStatus `json:"previous_payment_status"`
	PaymentStatus         PaymentStatus `json:"payment_status"`
}

// OrderDeletedEvent published when an admin deletes an order
type OrderDeletedEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
}

// Product change actions
const (
	ProductActionCreated = "created"
	ProductActionUpdated = "updated"
	ProductActionDeleted = "deleted"
)

// ProductChangedEvent published on admin product writes
type ProductChangedEvent struct {
	BaseEvent
	ProductID int64  `json:"product_id"`
	Action    string `json:"action"`
	Stock     int    `json:"stock"`
}
