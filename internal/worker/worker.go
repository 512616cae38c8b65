package worker

import (
	"context"

	"storefront/internal/broker"
	"storefront/internal/service"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// StockSyncWorker consumes order events and keeps the Redis stock counters
// in line with the database after cancellations and reopenings.
type StockSyncWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStockSyncWorker creates a new stock sync worker
func NewStockSyncWorker(consumer *broker.Consumer, stockSync *service.StockSyncHandler) *StockSyncWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderStatusChanged(stockSync.HandleOrderStatusChanged)

	return &StockSyncWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled
func (w *StockSyncWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock sync worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockSyncWorker) Stop() error {
	w.logger.Info("Stopping stock sync worker")
	return w.consumer.Close()
}
