package service

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/service/servicetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrderService(t *testing.T, counter StockCounter) (*OrderService, *servicetest.MemStore, *servicetest.Publisher) {
	t.Helper()
	st := servicetest.NewMemStore()
	pub := &servicetest.Publisher{}
	return NewOrderService(st, NewInventoryClient(counter, st), pub), st, pub
}

func listingID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func customer() models.Customer {
	return models.Customer{
		Name:    "Ada",
		Email:   "Ada@Example.com ",
		Phone:   "555-0100",
		Address: "1 Main St",
		City:    "Springfield",
	}
}

func seedProduct(t *testing.T, st *servicetest.MemStore, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Title:    "Tee",
		Price:    decimal.NewFromInt(1000),
		Category: models.CategoryMen,
		Stock:    stock,
	}
	require.NoError(t, st.CreateProduct(context.Background(), p))
	return p
}

func TestCreateOrderComputesTotals(t *testing.T) {
	svc, _, pub := newOrderService(t, nil)

	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items: []OrderItemRequest{
			{ProductID: "static-1", Quantity: 2, Price: decimal.NewFromInt(1000)},
			{ProductID: "static-2", Quantity: 1, Price: decimal.NewFromInt(500)},
		},
		Shipping: decimal.NewFromInt(200),
	})
	require.NoError(t, err)

	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(2500)), order.Subtotal.String())
	assert.True(t, order.Total.Equal(decimal.NewFromInt(2700)), order.Total.String())
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, order.PaymentStatus)
	assert.Equal(t, "cod", order.PaymentMethod)
	assert.Equal(t, "ada@example.com", order.Customer.Email)
	assert.Equal(t, models.SourceStatic, order.Items[0].Source)
	require.Len(t, pub.Events, 1)
	assert.IsType(t, &models.OrderCreatedEvent{}, pub.Events[0])
}

func TestCreateOrderValidation(t *testing.T) {
	svc, st, _ := newOrderService(t, nil)
	item := OrderItemRequest{ProductID: "static-1", Quantity: 1, Price: decimal.NewFromInt(10)}

	noName := customer()
	noName.Name = " "

	cases := map[string]*CreateOrderRequest{
		"missing customer name": {Customer: noName, Items: []OrderItemRequest{item}},
		"no items":              {Customer: customer()},
		"zero quantity": {Customer: customer(), Items: []OrderItemRequest{
			{ProductID: "static-1", Quantity: 0, Price: decimal.NewFromInt(10)},
		}},
		"negative price": {Customer: customer(), Items: []OrderItemRequest{
			{ProductID: "static-1", Quantity: 1, Price: decimal.NewFromInt(-1)},
		}},
		"bad product id": {Customer: customer(), Items: []OrderItemRequest{
			{ProductID: "abc", Quantity: 1, Price: decimal.NewFromInt(10)},
		}},
		"negative shipping": {Customer: customer(), Items: []OrderItemRequest{item}, Shipping: decimal.NewFromInt(-5)},
		"fractional cent price": {Customer: customer(), Items: []OrderItemRequest{
			{ProductID: "static-1", Quantity: 1, Price: decimal.RequireFromString("0.335")},
		}},
		"fractional cent shipping": {Customer: customer(), Items: []OrderItemRequest{item}, Shipping: decimal.RequireFromString("0.335")},
	}

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Empty(t, st.Orders)
}

func TestCreateOrderTakesStock(t *testing.T) {
	svc, st, _ := newOrderService(t, nil)
	p := seedProduct(t, st, 5)
	id := listingID(p.ID)

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items: []OrderItemRequest{
			{ProductID: id, Size: "M", Quantity: 2, Price: p.Price},
			{ProductID: id, Size: "L", Quantity: 1, Price: p.Price},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Products[p.ID].Stock)

	_, err = svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: id, Quantity: 3, Price: p.Price}},
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 2, st.Products[p.ID].Stock)
	assert.Len(t, st.Orders, 1)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	svc, _, _ := newOrderService(t, nil)

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: "404", Quantity: 1, Price: decimal.NewFromInt(1)}},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateOrderRedisFastPath(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	svc, st, _ := newOrderService(t, rc)
	p := seedProduct(t, st, 3)
	require.NoError(t, rc.SetStock(context.Background(), p.ID, 3))

	_, err = svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: listingID(p.ID), Quantity: 2, Price: p.Price}},
	})
	require.NoError(t, err)

	cached, err := rc.GetStock(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cached)
	assert.Equal(t, 1, st.Products[p.ID].Stock)

	// The counter rejects before the database is touched.
	_, err = svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: listingID(p.ID), Quantity: 2, Price: p.Price}},
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	cached, _ = rc.GetStock(context.Background(), p.ID)
	assert.Equal(t, 1, cached)
}

func TestCreateOrderReleasesCounterWhenDatabaseRejects(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	svc, st, _ := newOrderService(t, rc)
	p := seedProduct(t, st, 1)
	// Counter drifted above the stored stock.
	require.NoError(t, rc.SetStock(context.Background(), p.ID, 10))

	_, err = svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: listingID(p.ID), Quantity: 4, Price: p.Price}},
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	cached, err := rc.GetStock(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, cached)
}

func TestUpdateOrderIsUnconditional(t *testing.T) {
	svc, _, pub := newOrderService(t, nil)
	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: "static-1", Quantity: 1, Price: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	sequence := []models.OrderStatus{
		models.OrderStatusDelivered,
		models.OrderStatusPending,
		models.OrderStatusCancelled,
		models.OrderStatusDelivered,
		models.OrderStatusCancelled,
		models.OrderStatusPending,
	}
	for _, status := range sequence {
		s := status
		updated, err := svc.UpdateOrder(context.Background(), order.ID, &UpdateOrderRequest{OrderStatus: &s})
		require.NoError(t, err)
		assert.Equal(t, status, updated.Status)

		stored, err := svc.GetOrder(context.Background(), &Principal{Role: models.RoleAdmin}, order.ID)
		require.NoError(t, err)
		assert.Equal(t, status, stored.Status)
	}

	changes := pub.StatusChanges()
	require.Len(t, changes, len(sequence))
	assert.Equal(t, models.OrderStatusPending, changes[0].PreviousStatus)
	assert.Equal(t, models.OrderStatusDelivered, changes[0].Status)
}

func TestUpdateOrderPaymentStatus(t *testing.T) {
	svc, _, _ := newOrderService(t, nil)
	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: "static-1", Quantity: 1, Price: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	paid := models.PaymentStatusPaid
	updated, err := svc.UpdateOrder(context.Background(), order.ID, &UpdateOrderRequest{PaymentStatus: &paid})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, updated.PaymentStatus)
	assert.Equal(t, models.OrderStatusPending, updated.Status)

	_, err = svc.UpdateOrder(context.Background(), order.ID, &UpdateOrderRequest{})
	assert.ErrorIs(t, err, ErrValidation)

	bogus := models.OrderStatus("shipped")
	_, err = svc.UpdateOrder(context.Background(), order.ID, &UpdateOrderRequest{OrderStatus: &bogus})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateOrder(context.Background(), 999, &UpdateOrderRequest{PaymentStatus: &paid})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOrdersByRole(t *testing.T) {
	svc, _, _ := newOrderService(t, nil)
	other := customer()
	other.Email = "bob@example.com"

	for _, c := range []models.Customer{customer(), other, customer()} {
		_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
			Customer: c,
			Items:    []OrderItemRequest{{ProductID: "static-1", Quantity: 1, Price: decimal.NewFromInt(10)}},
		})
		require.NoError(t, err)
	}

	all, err := svc.ListOrders(context.Background(), &Principal{Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	own, err := svc.ListOrders(context.Background(), &Principal{UserID: 7, Email: "ADA@example.com", Role: models.RoleCustomer})
	require.NoError(t, err)
	assert.Len(t, own, 2)

	bob := &Principal{UserID: 8, Email: "bob@example.com", Role: models.RoleCustomer}
	_, err = svc.GetOrder(context.Background(), bob, own[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOrder(t *testing.T) {
	svc, st, _ := newOrderService(t, nil)
	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: "static-1", Quantity: 1, Price: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOrder(context.Background(), order.ID))
	assert.Empty(t, st.Orders)
	assert.ErrorIs(t, svc.DeleteOrder(context.Background(), order.ID), ErrNotFound)
}

func TestCreateOrderAcceptsTrailingZeros(t *testing.T) {
	svc, _, _ := newOrderService(t, nil)

	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: "static-1", Quantity: 3, Price: decimal.RequireFromString("0.3300")}},
		Shipping: decimal.RequireFromString("0.34"),
	})
	require.NoError(t, err)
	assert.True(t, order.Subtotal.Equal(decimal.RequireFromString("0.99")), order.Subtotal.String())
	assert.True(t, order.Total.Equal(order.Subtotal.Add(order.Shipping)))
}

func TestCancelReturnsStockWhenPublishFails(t *testing.T) {
	svc, st, pub := newOrderService(t, nil)
	p := seedProduct(t, st, 5)
	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: listingID(p.ID), Quantity: 2, Price: p.Price}},
	})
	require.NoError(t, err)
	require.Equal(t, 3, st.Products[p.ID].Stock)

	pub.FailWith = errors.New("broker unavailable")
	cancelled := models.OrderStatusCancelled
	updated, err := svc.UpdateOrder(context.Background(), order.ID, &UpdateOrderRequest{OrderStatus: &cancelled})
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCancelled, updated.Status)
	assert.Equal(t, 5, st.Products[p.ID].Stock)
	assert.True(t, st.Orders[order.ID].StockRestored)

	// Payment changes on a cancelled order do not return stock twice.
	refunded := models.PaymentStatusRefunded
	_, err = svc.UpdateOrder(context.Background(), order.ID, &UpdateOrderRequest{PaymentStatus: &refunded})
	require.NoError(t, err)
	assert.Equal(t, 5, st.Products[p.ID].Stock)
}

func TestReopenedOrderTakesStockAgain(t *testing.T) {
	svc, st, _ := newOrderService(t, nil)
	p := seedProduct(t, st, 5)
	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items: []OrderItemRequest{
			{ProductID: listingID(p.ID), Quantity: 2, Price: p.Price},
			{ProductID: "static-1", Quantity: 1, Price: decimal.NewFromInt(5)},
		},
	})
	require.NoError(t, err)

	steps := []struct {
		status models.OrderStatus
		stock  int
	}{
		{models.OrderStatusCancelled, 5},
		{models.OrderStatusPending, 3},
		{models.OrderStatusCancelled, 5},
		{models.OrderStatusCancelled, 5},
		{models.OrderStatusDelivered, 3},
	}
	for _, step := range steps {
		status := step.status
		_, err := svc.UpdateOrder(context.Background(), order.ID, &UpdateOrderRequest{OrderStatus: &status})
		require.NoError(t, err)
		assert.Equal(t, step.stock, st.Products[p.ID].Stock, status)
	}
}

func TestReopenFailsWhenStockIsGone(t *testing.T) {
	svc, st, _ := newOrderService(t, nil)
	p := seedProduct(t, st, 5)
	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: listingID(p.ID), Quantity: 2, Price: p.Price}},
	})
	require.NoError(t, err)

	cancelled := models.OrderStatusCancelled
	_, err = svc.UpdateOrder(context.Background(), order.ID, &UpdateOrderRequest{OrderStatus: &cancelled})
	require.NoError(t, err)

	_, err = svc.CreateOrder(context.Background(), &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: listingID(p.ID), Quantity: 4, Price: p.Price}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, st.Products[p.ID].Stock)

	pending := models.OrderStatusPending
	_, err = svc.UpdateOrder(context.Background(), order.ID, &UpdateOrderRequest{OrderStatus: &pending})
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, models.OrderStatusCancelled, st.Orders[order.ID].Status)
	assert.Equal(t, 1, st.Products[p.ID].Stock)
}
