package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, customer, items, subtotal, shipping, total, status, payment_method, payment_status, stock_restored, created_at, updated_at`

// StockLine is a quantity of a persisted product taken from or returned to stock.
type StockLine struct {
	ProductID int64
	Quantity  int
}

// CreateOrder persists order and takes every line out of product stock in
// the same transaction. A line whose product has less stock than requested
// aborts the whole write with ErrInsufficientStock.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, lines []StockLine) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := takeStock(ctx, tx, lines, false); err != nil {
		return err
	}

	query := `
		INSERT INTO orders (customer, items, subtotal, shipping, total, status, payment_method, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	if err := tx.GetContext(ctx, order, query,
		order.Customer, order.Items, order.Subtotal, order.Shipping, order.Total,
		order.Status, order.PaymentMethod, order.PaymentStatus); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	return tx.Commit()
}

// OrderStockLines sums item quantities per stored product. Bundled listings
// carry no stock.
func OrderStockLines(items models.OrderItems) []StockLine {
	quantities := make(map[int64]int)
	var ids []int64
	for _, it := range items {
		if it.Source != models.SourcePersisted {
			continue
		}
		id, err := strconv.ParseInt(it.ProductID, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		if _, seen := quantities[id]; !seen {
			ids = append(ids, id)
		}
		quantities[id] += it.Quantity
	}
	lines := make([]StockLine, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, StockLine{ProductID: id, Quantity: quantities[id]})
	}
	return lines
}

// takeStock decrements every line with a stock >= qty guard. Rows are locked
// in id order so concurrent writers cannot deadlock. Lines of deleted
// products fail with ErrNotFound unless skipMissing is set.
func takeStock(ctx context.Context, tx *sqlx.Tx, lines []StockLine, skipMissing bool) error {
	sorted := append([]StockLine(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, line := range sorted {
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock - $1, updated_at = NOW() WHERE id = $2 AND stock >= $1",
			line.Quantity, line.ProductID)
		if err != nil {
			return fmt.Errorf("failed to reserve stock for product %d: %w", line.ProductID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var exists bool
			if err := tx.GetContext(ctx, &exists,
				"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", line.ProductID); err != nil {
				return err
			}
			if !exists {
				if skipMissing {
					continue
				}
				return fmt.Errorf("product %d: %w", line.ProductID, ErrNotFound)
			}
			return fmt.Errorf("product %d: %w", line.ProductID, ErrInsufficientStock)
		}
	}
	return nil
}

// returnStock adds lines back. Deleted products are skipped.
func returnStock(ctx context.Context, tx *sqlx.Tx, lines []StockLine) error {
	sorted := append([]StockLine(nil), lines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, line := range sorted {
		if _, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = stock + $1, updated_at = NOW() WHERE id = $2",
			line.Quantity, line.ProductID); err != nil {
			return fmt.Errorf("failed to restore stock for product %d: %w", line.ProductID, err)
		}
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders ORDER BY created_at DESC")
	return orders, err
}

// ListOrdersByCustomerEmail matches the email captured in the order snapshot.
func (s *Store) ListOrdersByCustomerEmail(ctx context.Context, email string) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT "+orderColumns+" FROM orders WHERE customer->>'email' = $1 ORDER BY created_at DESC", email)
	return orders, err
}

// UpdateOrder writes the non-nil status fields and returns the order as it
// was before and after the write. Stock follows the status in the same
// transaction: entering cancelled returns the order's quantities once, and
// leaving cancelled takes them again, failing with ErrInsufficientStock when
// they are no longer available.
func (s *Store) UpdateOrder(ctx context.Context, id int64, status *models.OrderStatus, payment *models.PaymentStatus) (before, after *models.Order, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var prev models.Order
	err = tx.GetContext(ctx, &prev, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	next := prev
	if status != nil {
		next.Status = *status
	}
	if payment != nil {
		next.PaymentStatus = *payment
	}

	cancelled := next.Status == models.OrderStatusCancelled
	switch {
	case cancelled && !prev.StockRestored:
		if err := returnStock(ctx, tx, OrderStockLines(prev.Items)); err != nil {
			return nil, nil, err
		}
		next.StockRestored = true
	case !cancelled && prev.StockRestored:
		if err := takeStock(ctx, tx, OrderStockLines(prev.Items), true); err != nil {
			return nil, nil, err
		}
		next.StockRestored = false
	}

	err = tx.GetContext(ctx, &next.UpdatedAt,
		"UPDATE orders SET status = $1, payment_status = $2, stock_restored = $3, updated_at = NOW() WHERE id = $4 RETURNING updated_at",
		next.Status, next.PaymentStatus, next.StockRestored, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &prev, &next, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) CountOrders(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM orders")
	return n, err
}

func (s *Store) CountOrdersByStatus(ctx context.Context, status models.OrderStatus) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM orders WHERE status = $1", status)
	return n, err
}

// SumOrderTotals adds up total over every order regardless of status.
func (s *Store) SumOrderTotals(ctx context.Context) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.GetContext(ctx, &sum, "SELECT COALESCE(SUM(total), 0) FROM orders")
	return sum, err
}

func (s *Store) RecentOrders(ctx context.Context, limit int) ([]models.OrderSummary, error) {
	summaries := []models.OrderSummary{}
	err := s.db.SelectContext(ctx, &summaries, `
		SELECT id, customer->>'name' AS customer_name, customer->>'email' AS customer_email,
		       total, status, created_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	return summaries, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
