// Package servicetest provides in-memory implementations of the service
// dependencies for tests.
package servicetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/shopspring/decimal"
)

// MemStore is an in-memory stand-in for *store.Store.
type MemStore struct {
	mu        sync.Mutex
	nextID    int64
	Products  map[int64]*models.Product
	Users     map[int64]*models.User
	Orders    map[int64]*models.Order
	Processed map[string]bool
	clock     time.Time
	// FailWith, when set, is returned by UpdateProduct.
	FailWith error
}

func NewMemStore() *MemStore {
	return &MemStore{
		Products:  map[int64]*models.Product{},
		Users:     map[int64]*models.User{},
		Orders:    map[int64]*models.Order{},
		Processed: map[string]bool{},
		clock:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *MemStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, store.ErrNotFound)
}

func (m *MemStore) CreateProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	p.CreatedAt = m.tick()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.Products[p.ID] = &cp
	return nil
}

func (m *MemStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	cp := *p
	return &cp, nil
}

func (m *MemStore) ListProducts(_ context.Context, category models.Category) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Product{}
	for _, p := range m.Products {
		if category == "" || p.Category == category {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemStore) UpdateProduct(_ context.Context, p *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	if _, ok := m.Products[p.ID]; !ok {
		return notFound("product", p.ID)
	}
	p.UpdatedAt = m.tick()
	cp := *p
	m.Products[p.ID] = &cp
	return nil
}

func (m *MemStore) DeleteProduct(_ context.Context, id int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	delete(m.Products, id)
	return p, nil
}

func (m *MemStore) CountProducts(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Products)), nil
}

func (m *MemStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.Users {
		if existing.Email == u.Email {
			return fmt.Errorf("email %s: %w", u.Email, store.ErrDuplicate)
		}
	}
	u.ID = m.id()
	u.CreatedAt = m.tick()
	cp := *u
	m.Users[u.ID] = &cp
	return nil
}

func (m *MemStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	cp := *u
	return &cp, nil
}

func (m *MemStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, store.ErrNotFound)
}

func (m *MemStore) ListUsers(context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, u := range m.Users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *MemStore) UpdateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Users[u.ID]; !ok {
		return notFound("user", u.ID)
	}
	cp := *u
	m.Users[u.ID] = &cp
	return nil
}

func (m *MemStore) DeleteUser(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Users[id]; !ok {
		return notFound("user", id)
	}
	delete(m.Users, id)
	return nil
}

func (m *MemStore) CountUsers(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Users)), nil
}

func (m *MemStore) CreateOrder(_ context.Context, order *models.Order, lines []store.StockLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range lines {
		p, ok := m.Products[l.ProductID]
		if !ok {
			return notFound("product", l.ProductID)
		}
		if p.Stock < l.Quantity {
			return fmt.Errorf("product %d: %w", l.ProductID, store.ErrInsufficientStock)
		}
	}
	for _, l := range lines {
		m.Products[l.ProductID].Stock -= l.Quantity
	}
	order.ID = m.id()
	order.CreatedAt = m.tick()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	m.Orders[order.ID] = &cp
	return nil
}

func (m *MemStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	cp := *o
	return &cp, nil
}

func (m *MemStore) sortedOrders(keep func(*models.Order) bool) []models.Order {
	out := []models.Order{}
	for _, o := range m.Orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemStore) ListOrders(context.Context) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedOrders(func(*models.Order) bool { return true }), nil
}

func (m *MemStore) ListOrdersByCustomerEmail(_ context.Context, email string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedOrders(func(o *models.Order) bool { return o.Customer.Email == email }), nil
}

// UpdateOrder moves stock with the status the way store.Store.UpdateOrder does.
func (m *MemStore) UpdateOrder(_ context.Context, id int64, status *models.OrderStatus, payment *models.PaymentStatus) (*models.Order, *models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orders[id]
	if !ok {
		return nil, nil, notFound("order", id)
	}
	before := *o
	next := *o
	if status != nil {
		next.Status = *status
	}
	if payment != nil {
		next.PaymentStatus = *payment
	}

	lines := store.OrderStockLines(o.Items)
	cancelled := next.Status == models.OrderStatusCancelled
	switch {
	case cancelled && !o.StockRestored:
		for _, l := range lines {
			if p, ok := m.Products[l.ProductID]; ok {
				p.Stock += l.Quantity
			}
		}
		next.StockRestored = true
	case !cancelled && o.StockRestored:
		for _, l := range lines {
			if p, ok := m.Products[l.ProductID]; ok && p.Stock < l.Quantity {
				return nil, nil, fmt.Errorf("product %d: %w", l.ProductID, store.ErrInsufficientStock)
			}
		}
		for _, l := range lines {
			if p, ok := m.Products[l.ProductID]; ok {
				p.Stock -= l.Quantity
			}
		}
		next.StockRestored = false
	}

	next.UpdatedAt = m.tick()
	*o = next
	after := next
	return &before, &after, nil
}

func (m *MemStore) DeleteOrder(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Orders[id]; !ok {
		return notFound("order", id)
	}
	delete(m.Orders, id)
	return nil
}

func (m *MemStore) CountOrders(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Orders)), nil
}

func (m *MemStore) CountOrdersByStatus(_ context.Context, status models.OrderStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, o := range m.Orders {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *MemStore) SumOrderTotals(context.Context) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, o := range m.Orders {
		sum = sum.Add(o.Total)
	}
	return sum, nil
}

func (m *MemStore) RecentOrders(_ context.Context, limit int) ([]models.OrderSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.OrderSummary{}
	for _, o := range m.sortedOrders(func(*models.Order) bool { return true }) {
		if len(out) == limit {
			break
		}
		out = append(out, models.OrderSummary{
			ID:            o.ID,
			CustomerName:  o.Customer.Name,
			CustomerEmail: o.Customer.Email,
			Total:         o.Total,
			Status:        o.Status,
			CreatedAt:     o.CreatedAt,
		})
	}
	return out, nil
}

func (m *MemStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Processed[eventID], nil
}

func (m *MemStore) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Processed[eventID] = true
	return nil
}

// Publisher records published events in order.
type Publisher struct {
	mu     sync.Mutex
	Events []interface{}
	// FailWith, when set, is returned by every publish and nothing is recorded.
	FailWith error
}

func (r *Publisher) record(e interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	r.Events = append(r.Events, e)
	return nil
}

func (r *Publisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	return r.record(e)
}

func (r *Publisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	return r.record(e)
}

func (r *Publisher) PublishOrderDeleted(_ context.Context, e *models.OrderDeletedEvent) error {
	return r.record(e)
}

func (r *Publisher) PublishProductChanged(_ context.Context, e *models.ProductChangedEvent) error {
	return r.record(e)
}

func (r *Publisher) StatusChanges() []*models.OrderStatusChangedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.OrderStatusChangedEvent
	for _, e := range r.Events {
		if sc, ok := e.(*models.OrderStatusChangedEvent); ok {
			out = append(out, sc)
		}
	}
	return out
}

// MemImages keeps "uploaded" files in a map under the /uploads prefix.
type MemImages struct {
	Files map[string][]byte
	n     int
}

func NewMemImages() *MemImages {
	return &MemImages{Files: map[string][]byte{}}
}

func (m *MemImages) Save(name string, r io.Reader) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	m.n++
	path := fmt.Sprintf("/uploads/%d-%s", m.n, name)
	m.Files[path] = buf.Bytes()
	return path, nil
}

func (m *MemImages) Remove(path string) (bool, error) {
	if _, ok := m.Files[path]; !ok {
		return false, nil
	}
	delete(m.Files, path)
	return true, nil
}

func (m *MemImages) IsLocal(path string) bool {
	return strings.HasPrefix(path, "/uploads/")
}
