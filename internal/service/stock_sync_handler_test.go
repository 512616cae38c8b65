package service

import (
	"context"
	"testing"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/service/servicetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLateCancelEventKeepsReopenedOrderStock(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rc, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	svc, st, pub := newOrderService(t, rc)
	stockSync := NewStockSyncHandler(st, st, svc.inventoryClient)

	p := seedProduct(t, st, 5)
	require.NoError(t, rc.SetStock(ctx, p.ID, 5))
	order, err := svc.CreateOrder(ctx, &CreateOrderRequest{
		Customer: customer(),
		Items:    []OrderItemRequest{{ProductID: listingID(p.ID), Quantity: 2, Price: p.Price}},
	})
	require.NoError(t, err)

	cancelled := models.OrderStatusCancelled
	pending := models.OrderStatusPending
	for _, s := range []*models.OrderStatus{&cancelled, &pending} {
		_, err := svc.UpdateOrder(ctx, order.ID, &UpdateOrderRequest{OrderStatus: s})
		require.NoError(t, err)
	}

	// Counter drifted while the events were in flight.
	require.NoError(t, rc.SetStock(ctx, p.ID, 99))

	changes := pub.StatusChanges()
	require.Len(t, changes, 2)
	for _, e := range changes {
		require.NoError(t, stockSync.HandleOrderStatusChanged(ctx, e))
	}
	require.NoError(t, stockSync.HandleOrderStatusChanged(ctx, changes[0]))

	assert.Equal(t, models.OrderStatusPending, st.Orders[order.ID].Status)
	assert.Equal(t, 3, st.Products[p.ID].Stock)
	cached, err := rc.GetStock(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, cached)
	assert.Len(t, st.Processed, 2)
}

func TestStockSyncIgnoresDeletedOrders(t *testing.T) {
	st := servicetest.NewMemStore()
	stockSync := NewStockSyncHandler(st, st, NewInventoryClient(nil, st))

	err := stockSync.HandleOrderStatusChanged(context.Background(), &models.OrderStatusChangedEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderStatusChanged},
		OrderID:   42,
		Status:    models.OrderStatusCancelled,
	})
	require.NoError(t, err)
	assert.True(t, st.Processed["e1"])
}
