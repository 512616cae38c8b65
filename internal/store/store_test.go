package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"storefront/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "postgres")), mock
}

func sampleOrder() *models.Order {
	return &models.Order{
		Customer: models.Customer{Name: "Ada", Email: "ada@example.com", Phone: "555", Address: "1 Main", City: "Springfield"},
		Items: models.OrderItems{
			{ProductID: "7", Title: "Tee", Quantity: 2, UnitPrice: decimal.NewFromInt(1000)},
		},
		Subtotal:      decimal.NewFromInt(2000),
		Shipping:      decimal.NewFromInt(200),
		Total:         decimal.NewFromInt(2200),
		Status:        models.OrderStatusPending,
		PaymentMethod: "cod",
		PaymentStatus: models.PaymentStatusUnpaid,
	}
}

var takeStockQuery = regexp.QuoteMeta("UPDATE products SET stock = stock - $1")

func TestCreateOrderTakesStock(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	// Lines are locked in ascending product order.
	mock.ExpectExec(takeStockQuery).WithArgs(1, int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(takeStockQuery).WithArgs(2, int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(42, now, now))
	mock.ExpectCommit()

	order := sampleOrder()
	err := s.CreateOrder(context.Background(), order, []StockLine{{ProductID: 7, Quantity: 2}, {ProductID: 3, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(42), order.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(takeStockQuery).WithArgs(5, int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM products")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := s.CreateOrder(context.Background(), sampleOrder(), []StockLine{{ProductID: 7, Quantity: 5}})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(takeStockQuery).WithArgs(1, int64(99)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM products")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := s.CreateOrder(context.Background(), sampleOrder(), []StockLine{{ProductID: 99, Quantity: 1}})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var lockOrder = regexp.QuoteMeta("FROM orders WHERE id = $1 FOR UPDATE")

func orderRow(status models.OrderStatus, restored bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "customer", "items", "subtotal", "shipping", "total", "status",
		"payment_method", "payment_status", "stock_restored", "created_at", "updated_at",
	}).AddRow(
		42,
		[]byte(`{"name":"Ada","email":"ada@example.com","phone":"555","address":"1 Main","city":"Springfield"}`),
		[]byte(`[{"product_id":"7","source":"persisted","title":"Tee","quantity":2,"unit_price":"10"},`+
			`{"product_id":"static-1","source":"static","title":"Cap","quantity":1,"unit_price":"5"}]`),
		"25.00", "0.00", "25.00", string(status), "cod", "unpaid", restored, now, now,
	)
}

func TestUpdateOrderCancelReturnsStock(t *testing.T) {
	s, mock := newMockStore(t)
	cancelled := models.OrderStatusCancelled

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrder).WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusPending, false))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET stock = stock + $1")).
		WithArgs(2, int64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE orders SET status = $1, payment_status = $2, stock_restored = $3")).
		WithArgs("cancelled", "unpaid", true, int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	before, after, err := s.UpdateOrder(context.Background(), 42, &cancelled, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, before.Status)
	assert.Equal(t, models.OrderStatusCancelled, after.Status)
	assert.True(t, after.StockRestored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderCancelledTwiceKeepsStock(t *testing.T) {
	s, mock := newMockStore(t)
	cancelled := models.OrderStatusCancelled

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrder).WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusCancelled, true))
	mock.ExpectQuery("UPDATE orders SET status").
		WithArgs("cancelled", "unpaid", true, int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))
	mock.ExpectCommit()

	_, after, err := s.UpdateOrder(context.Background(), 42, &cancelled, nil)
	require.NoError(t, err)
	assert.True(t, after.StockRestored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderReopenNeedsStock(t *testing.T) {
	s, mock := newMockStore(t)
	pending := models.OrderStatusPending

	mock.ExpectBegin()
	mock.ExpectQuery(lockOrder).WithArgs(int64(42)).WillReturnRows(orderRow(models.OrderStatusCancelled, true))
	mock.ExpectExec(takeStockQuery).WithArgs(2, int64(7)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM products")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, _, err := s.UpdateOrder(context.Background(), 42, &pending, nil)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderStockLines(t *testing.T) {
	lines := OrderStockLines(models.OrderItems{
		{ProductID: "7", Source: models.SourcePersisted, Quantity: 2},
		{ProductID: "static-3", Source: models.SourceStatic, Quantity: 5},
		{ProductID: "3", Source: models.SourcePersisted, Quantity: 1},
		{ProductID: "7", Source: models.SourcePersisted, Quantity: 1},
	})
	assert.Equal(t, []StockLine{{ProductID: 7, Quantity: 3}, {ProductID: 3, Quantity: 1}}, lines)
}

func TestUpdateUserDuplicateEmail(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE users").
		WillReturnError(&pq.Error{Code: uniqueViolation, Message: "duplicate key value"})

	err := s.UpdateUser(context.Background(), &models.User{ID: 1, Name: "Ada", Email: "taken@example.com", Role: models.RoleCustomer})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteOrderNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM orders WHERE id = $1")).
		WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.DeleteOrder(context.Background(), 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSumOrderTotals(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(total), 0) FROM orders")).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("2160.00"))

	sum, err := s.SumOrderTotals(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(2160)), sum.String())
}

func TestEventLedger(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM processed_events")).
		WithArgs("evt-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO processed_events").
		WithArgs("evt-1", "ORDER_STATUS_CHANGED").
		WillReturnResult(sqlmock.NewResult(0, 1))

	seen, err := s.IsEventProcessed(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, s.MarkEventProcessed(ctx, "evt-1", "ORDER_STATUS_CHANGED"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
