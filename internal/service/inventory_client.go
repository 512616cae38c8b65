package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// InventoryClient fronts the database stock guard with the Redis counters.
// The database stays authoritative: a missing counter or a Redis error only
// skips the fast path, it never fails a checkout on its own.
type InventoryClient struct {
	counter  StockCounter
	products ProductRepository
	logger   *zap.Logger
}

// NewInventoryClient creates a new inventory client. counter may be nil when
// Redis is not configured.
func NewInventoryClient(counter StockCounter, products ProductRepository) *InventoryClient {
	return &InventoryClient{
		counter:  counter,
		products: products,
		logger:   util.GetLogger(),
	}
}

// Reserve takes lines out of the counters. It returns the lines that were
// actually taken so the caller can hand them back if the order is not
// written. A line with too little cached stock releases everything taken so
// far and fails with ErrInsufficientStock.
func (ic *InventoryClient) Reserve(ctx context.Context, lines []store.StockLine) ([]store.StockLine, error) {
	if ic.counter == nil || len(lines) == 0 {
		return nil, nil
	}
	ctx, span := util.StartSpan(ctx, "InventoryClient.Reserve")
	defer span.End()

	start := time.Now()
	defer func() { util.StockReserveLatency.Observe(time.Since(start).Seconds()) }()

	var taken []store.StockLine
	for _, line := range lines {
		ok, err := ic.counter.ReserveStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			if !errors.Is(err, redisclient.ErrUnknownProduct) {
				ic.logger.Warn("Redis reservation failed, falling back to DB",
					zap.Int64("product_id", line.ProductID),
					zap.Error(err))
			}
			continue
		}
		if !ok {
			ic.Release(ctx, taken)
			return nil, fmt.Errorf("product %d: %w", line.ProductID, ErrInsufficientStock)
		}
		taken = append(taken, line)
	}
	return taken, nil
}

// Release returns lines to the counters. Failures are logged; the next Sync
// of the product overwrites the counter anyway.
func (ic *InventoryClient) Release(ctx context.Context, lines []store.StockLine) {
	if ic.counter == nil {
		return
	}
	for _, line := range lines {
		if err := ic.counter.ReleaseStock(ctx, line.ProductID, line.Quantity); err != nil {
			ic.logger.Error("Failed to release stock in Redis",
				zap.Int64("product_id", line.ProductID),
				zap.Error(err))
		}
	}
}

// Sync overwrites the counter of p with its stored stock.
func (ic *InventoryClient) Sync(ctx context.Context, p *models.Product) {
	if ic.counter == nil {
		return
	}
	if err := ic.counter.SetStock(ctx, p.ID, p.Stock); err != nil {
		ic.logger.Error("Failed to sync stock to Redis",
			zap.Int64("product_id", p.ID),
			zap.Error(err))
	}
}

// Refresh reloads the counters of the products in lines from the database.
// Products that no longer exist lose their counter.
func (ic *InventoryClient) Refresh(ctx context.Context, lines []store.StockLine) {
	if ic.counter == nil {
		return
	}
	for _, line := range lines {
		p, err := ic.products.GetProductByID(ctx, line.ProductID)
		if errors.Is(err, ErrNotFound) {
			ic.Forget(ctx, line.ProductID)
			continue
		}
		if err != nil {
			ic.logger.Error("Failed to load product for stock refresh",
				zap.Int64("product_id", line.ProductID),
				zap.Error(err))
			continue
		}
		ic.Sync(ctx, p)
	}
}

// Forget drops the counter of a deleted product.
func (ic *InventoryClient) Forget(ctx context.Context, productID int64) {
	if ic.counter == nil {
		return
	}
	if err := ic.counter.DeleteStock(ctx, productID); err != nil {
		ic.logger.Error("Failed to delete stock counter",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}

// SyncInventoryToRedis seeds every counter from the database.
func (ic *InventoryClient) SyncInventoryToRedis(ctx context.Context) error {
	if ic.counter == nil {
		return nil
	}
	ic.logger.Info("Starting inventory sync to Redis")

	products, err := ic.products.ListProducts(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to get products: %w", err)
	}

	for i := range products {
		ic.Sync(ctx, &products[i])
	}

	ic.logger.Info("Inventory sync completed", zap.Int("count", len(products)))
	return nil
}
