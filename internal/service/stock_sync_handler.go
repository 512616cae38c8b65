package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// StockSyncHandler reloads the Redis counters of an order's products after
// the order entered or left cancelled. The database moves the stock itself
// when the status is written; the counters updated in that request may have
// missed it, and this handler repairs them from the stored values. It never
// writes stock, so redelivered or out-of-order events are harmless.
type StockSyncHandler struct {
	orders          OrderRepository
	ledger          EventLedger
	inventoryClient *InventoryClient
	logger          *zap.Logger
}

func NewStockSyncHandler(orders OrderRepository, ledger EventLedger, inventoryClient *InventoryClient) *StockSyncHandler {
	return &StockSyncHandler{
		orders:          orders,
		ledger:          ledger,
		inventoryClient: inventoryClient,
		logger:          util.GetLogger(),
	}
}

// HandleOrderStatusChanged handles a status change event
func (h *StockSyncHandler) HandleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "StockSyncHandler.HandleOrderStatusChanged")
	defer span.End()

	processed, err := h.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		h.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if event.Status == models.OrderStatusCancelled || event.PreviousStatus == models.OrderStatusCancelled {
		if err := h.refresh(ctx, event.OrderID); err != nil {
			util.EndSpan(span, err)
			return err
		}
	}

	if err := h.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		h.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	return nil
}

func (h *StockSyncHandler) refresh(ctx context.Context, orderID int64) error {
	order, err := h.orders.GetOrderByID(ctx, orderID)
	if errors.Is(err, ErrNotFound) {
		h.logger.Info("Order no longer exists", zap.Int64("order_id", orderID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}

	lines := store.OrderStockLines(order.Items)
	h.inventoryClient.Refresh(ctx, lines)
	h.logger.Info("Stock counters refreshed",
		zap.Int64("order_id", orderID),
		zap.String("status", string(order.Status)),
		zap.Int("lines", len(lines)))
	return nil
}
