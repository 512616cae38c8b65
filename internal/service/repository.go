package service

import (
	"context"
	"io"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
)

// ProductRepository is the product half of *store.Store.
type ProductRepository interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, category models.Category) ([]models.Product, error)
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id int64) (*models.Product, error)
	CountProducts(ctx context.Context) (int64, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id int64) error
	CountUsers(ctx context.Context) (int64, error)
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order, lines []store.StockLine) error
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	ListOrders(ctx context.Context) ([]models.Order, error)
	ListOrdersByCustomerEmail(ctx context.Context, email string) ([]models.Order, error)
	// UpdateOrder moves stock with the status, see store.Store.UpdateOrder.
	UpdateOrder(ctx context.Context, id int64, status *models.OrderStatus, payment *models.PaymentStatus) (before, after *models.Order, err error)
	DeleteOrder(ctx context.Context, id int64) error
	CountOrders(ctx context.Context) (int64, error)
	CountOrdersByStatus(ctx context.Context, status models.OrderStatus) (int64, error)
	SumOrderTotals(ctx context.Context) (decimal.Decimal, error)
	RecentOrders(ctx context.Context, limit int) ([]models.OrderSummary, error)
}

// EventLedger records consumed events so redeliveries are skipped.
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// StockCounter is the cache of per-product stock, see redisclient.Client.
type StockCounter interface {
	ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error)
	ReleaseStock(ctx context.Context, productID int64, quantity int) error
	SetStock(ctx context.Context, productID int64, stock int) error
	DeleteStock(ctx context.Context, productID int64) error
}

type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderDeleted(ctx context.Context, event *models.OrderDeletedEvent) error
	PublishProductChanged(ctx context.Context, event *models.ProductChangedEvent) error
}

// ImageStore keeps uploaded product images, see upload.Storage.
type ImageStore interface {
	Save(originalName string, r io.Reader) (string, error)
	Remove(path string) (bool, error)
	IsLocal(path string) bool
}
