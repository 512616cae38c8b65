package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryMen   Category = "men"
	CategoryWomen Category = "women"
	CategoryChild Category = "child"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryMen, CategoryWomen, CategoryChild:
		return true
	}
	return false
}

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus is tracked independently of OrderStatus.
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "unpaid"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// ListingSource tells catalog listings bundled with the binary apart from
// products stored in the database.
type ListingSource string

const (
	SourceStatic    ListingSource = "static"
	SourcePersisted ListingSource = "persisted"
)

// Product represents a product in the catalog
type Product struct {
	ID          int64           `db:"id" json:"id"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	Category    Category        `db:"category" json:"category"`
	Sizes       StringSet       `db:"sizes" json:"sizes"`
	Colors      StringSet       `db:"colors" json:"colors"`
	Image       string          `db:"image" json:"image"`
	Stock       int             `db:"stock" json:"stock"`
	Featured    bool            `db:"featured" json:"featured"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// User represents an account. PasswordHash never leaves the process.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Phone        string    `db:"phone" json:"phone"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Customer is the contact snapshot captured at checkout.
type Customer struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
}

func (c Customer) Value() (driver.Value, error) { return jsonValue(c) }
func (c *Customer) Scan(src interface{}) error  { return jsonScan(src, c) }

// OrderItem is the line item snapshot captured at checkout.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Source    ListingSource   `json:"source"`
	Title     string          `json:"title"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image,omitempty"`
}

// LineTotal returns unit price × quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderItems []OrderItem

func (o OrderItems) Value() (driver.Value, error) { return jsonValue(o) }
func (o *OrderItems) Scan(src interface{}) error  { return jsonScan(src, o) }

// Order is a purchase record. Customer and Items are copies taken at
// checkout and are never rewritten afterwards.
type Order struct {
	ID            int64           `db:"id" json:"id"`
	Customer      Customer        `db:"customer" json:"customer"`
	Items         OrderItems      `db:"items" json:"items"`
	Subtotal      decimal.Decimal `db:"subtotal" json:"subtotal"`
	Shipping      decimal.Decimal `db:"shipping" json:"shipping"`
	Total         decimal.Decimal `db:"total" json:"total"`
	Status        OrderStatus     `db:"status" json:"status"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	PaymentStatus PaymentStatus   `db:"payment_status" json:"payment_status"`
	StockRestored bool            `db:"stock_restored" json:"-"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderSummary is the reduced order shape used by the dashboard.
type OrderSummary struct {
	ID            int64           `db:"id" json:"id"`
	CustomerName  string          `db:"customer_name" json:"customer_name"`
	CustomerEmail string          `db:"customer_email" json:"customer_email"`
	Total         decimal.Decimal `db:"total" json:"total"`
	Status        OrderStatus     `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Stats is the admin dashboard aggregate.
type Stats struct {
	TotalProducts   int64           `json:"total_products"`
	TotalUsers      int64           `json:"total_users"`
	TotalOrders     int64           `json:"total_orders"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	PendingOrders   int64           `json:"pending_orders"`
	DeliveredOrders int64           `json:"delivered_orders"`
	RecentOrders    []OrderSummary  `json:"recent_orders"`
}

// StringSet is a list of labels stored as a JSONB array.
type StringSet []string

func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return jsonValue([]string(s))
}

func (s *StringSet) Scan(src interface{}) error { return jsonScan(src, s) }

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("unsupported JSONB source type")
	}
}
