package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultPaymentMethod = "cod"

// OrderService handles order business logic
type OrderService struct {
	orders          OrderRepository
	inventoryClient *InventoryClient
	eventPublisher  EventPublisher
	logger          *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orders OrderRepository,
	inventoryClient *InventoryClient,
	eventPublisher EventPublisher,
) *OrderService {
	return &OrderService{
		orders:          orders,
		inventoryClient: inventoryClient,
		eventPublisher:  eventPublisher,
		logger:          util.GetLogger(),
	}
}

// CreateOrderRequest is the checkout payload: the cart as the shopper saw it
// plus contact details.
type CreateOrderRequest struct {
	Customer      models.Customer    `json:"customer"`
	Items         []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	Shipping      decimal.Decimal    `json:"shipping"`
	PaymentMethod string             `json:"payment_method"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	ProductID string          `json:"product_id" binding:"required"`
	Title     string          `json:"title"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
}

// UpdateOrderRequest changes order and/or payment status. At least one is
// required.
type UpdateOrderRequest struct {
	OrderStatus   *models.OrderStatus   `json:"order_status"`
	PaymentStatus *models.PaymentStatus `json:"payment_status"`
}

// CreateOrder validates the cart, prices it, takes stock for every stored
// product and persists the order as pending and unpaid.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	order, lines, err := buildOrder(req)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		util.EndSpan(span, err)
		return nil, err
	}

	reserved, err := s.inventoryClient.Reserve(ctx, lines)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
		util.EndSpan(span, err)
		return nil, err
	}

	if err := s.orders.CreateOrder(ctx, order, lines); err != nil {
		s.inventoryClient.Release(ctx, reserved)
		util.EndSpan(span, err)
		switch {
		case errors.Is(err, store.ErrInsufficientStock):
			util.OrdersFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, err
		case errors.Is(err, store.ErrNotFound):
			util.OrdersFailedTotal.WithLabelValues("unknown_product").Inc()
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.String("total", order.Total.String()),
		zap.Int("items", len(order.Items)))

	event := &models.OrderCreatedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderCreated),
		OrderID:       order.ID,
		CustomerEmail: order.Customer.Email,
		Total:         order.Total,
		Items:         order.Items,
	}
	if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return order, nil
}

// buildOrder turns the request into an order and the stock lines it takes.
func buildOrder(req *CreateOrderRequest) (*models.Order, []store.StockLine, error) {
	c := req.Customer
	c.Name = strings.TrimSpace(c.Name)
	c.Email = normalizeEmail(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	c.City = strings.TrimSpace(c.City)
	if c.Name == "" || c.Email == "" || c.Phone == "" || c.Address == "" || c.City == "" {
		return nil, nil, validationf("customer name, email, phone, address and city are required")
	}
	if len(req.Items) == 0 {
		return nil, nil, validationf("order must contain at least one item")
	}
	if err := validateAmount("shipping", req.Shipping); err != nil {
		return nil, nil, err
	}

	items := make(models.OrderItems, 0, len(req.Items))
	subtotal := decimal.Zero

	for i, it := range req.Items {
		ref, err := catalog.ParseRef(it.ProductID)
		if err != nil {
			return nil, nil, validationf("item %d: %v", i, err)
		}
		if it.Quantity < 1 {
			return nil, nil, validationf("item %d: quantity must be at least 1", i)
		}
		if err := validateAmount(fmt.Sprintf("item %d: price", i), it.Price); err != nil {
			return nil, nil, err
		}

		item := models.OrderItem{
			ProductID: it.ProductID,
			Source:    ref.Source,
			Title:     it.Title,
			Size:      it.Size,
			Color:     it.Color,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
			Image:     it.Image,
		}
		items = append(items, item)
		subtotal = subtotal.Add(item.LineTotal())
	}

	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		method = defaultPaymentMethod
	}

	return &models.Order{
		Customer:      c,
		Items:         items,
		Subtotal:      subtotal,
		Shipping:      req.Shipping,
		Total:         subtotal.Add(req.Shipping),
		Status:        models.OrderStatusPending,
		PaymentMethod: method,
		PaymentStatus: models.PaymentStatusUnpaid,
	}, store.OrderStockLines(items), nil
}

// ListOrders returns every order to admins and the caller's own orders,
// matched by checkout email, to everyone else.
func (s *OrderService) ListOrders(ctx context.Context, p *Principal) ([]models.Order, error) {
	if p.IsAdmin() {
		return s.orders.ListOrders(ctx)
	}
	return s.orders.ListOrdersByCustomerEmail(ctx, normalizeEmail(p.Email))
}

// GetOrder returns an order visible to p. Orders of other customers are
// reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, p *Principal, id int64) (*models.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && order.Customer.Email != normalizeEmail(p.Email) {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return order, nil
}

// UpdateOrder writes the requested statuses as given. Any order status may
// follow any other; cancelling returns the order's stock and reopening a
// cancelled order takes it again, which fails with ErrInsufficientStock when
// the units were sold in the meantime.
func (s *OrderService) UpdateOrder(ctx context.Context, id int64, req *UpdateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateOrder")
	defer span.End()

	if req.OrderStatus == nil && req.PaymentStatus == nil {
		return nil, validationf("order_status or payment_status is required")
	}
	if req.OrderStatus != nil && !req.OrderStatus.Valid() {
		return nil, validationf("invalid order status %q", *req.OrderStatus)
	}
	if req.PaymentStatus != nil && !req.PaymentStatus.Valid() {
		return nil, validationf("invalid payment status %q", *req.PaymentStatus)
	}

	before, after, err := s.orders.UpdateOrder(ctx, id, req.OrderStatus, req.PaymentStatus)
	if err != nil {
		util.EndSpan(span, err)
		return nil, err
	}

	if before.StockRestored != after.StockRestored {
		s.inventoryClient.Refresh(ctx, store.OrderStockLines(after.Items))
		if after.StockRestored {
			util.StockRestoredTotal.Inc()
		}
		s.logger.Info("Order stock moved with status",
			zap.Int64("order_id", id),
			zap.Bool("returned", after.StockRestored))
	}

	if req.OrderStatus != nil {
		util.OrderStatusChangesTotal.WithLabelValues(string(after.Status)).Inc()
	}
	s.logger.Info("Order updated",
		zap.Int64("order_id", id),
		zap.String("from", string(before.Status)),
		zap.String("to", string(after.Status)),
		zap.String("payment_status", string(after.PaymentStatus)))

	event := &models.OrderStatusChangedEvent{
		BaseEvent:             newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:               id,
		PreviousStatus:        before.Status,
		Status:                after.Status,
		PreviousPaymentStatus: before.PaymentStatus,
		PaymentStatus:         after.PaymentStatus,
	}
	if err := s.eventPublisher.PublishOrderStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
	}

	return after, nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, id int64) error {
	if err := s.orders.DeleteOrder(ctx, id); err != nil {
		return err
	}

	event := &models.OrderDeletedEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderDeleted),
		OrderID:   id,
	}
	if err := s.eventPublisher.PublishOrderDeleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderDeleted event", zap.Error(err))
	}
	s.logger.Info("Order deleted", zap.Int64("order_id", id))
	return nil
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
