package service

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"golang.org/x/sync/errgroup"
)

const recentOrdersLimit = 5

// StatsService computes the admin dashboard. Nothing is cached; every call
// reads the full record set.
type StatsService struct {
	products ProductRepository
	users    UserRepository
	orders   OrderRepository
}

func NewStatsService(products ProductRepository, users UserRepository, orders OrderRepository) *StatsService {
	return &StatsService{products: products, users: users, orders: orders}
}

// Get returns the dashboard aggregate. Revenue sums every order total,
// cancelled orders included.
func (s *StatsService) Get(ctx context.Context) (*models.Stats, error) {
	ctx, span := util.StartSpan(ctx, "StatsService.Get")
	defer span.End()

	var stats models.Stats
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		stats.TotalProducts, err = s.products.CountProducts(gctx)
		return wrapStat("products", err)
	})
	g.Go(func() (err error) {
		stats.TotalUsers, err = s.users.CountUsers(gctx)
		return wrapStat("users", err)
	})
	g.Go(func() (err error) {
		stats.TotalOrders, err = s.orders.CountOrders(gctx)
		return wrapStat("orders", err)
	})
	g.Go(func() (err error) {
		stats.TotalRevenue, err = s.orders.SumOrderTotals(gctx)
		return wrapStat("revenue", err)
	})
	g.Go(func() (err error) {
		stats.PendingOrders, err = s.orders.CountOrdersByStatus(gctx, models.OrderStatusPending)
		return wrapStat("pending orders", err)
	})
	g.Go(func() (err error) {
		stats.DeliveredOrders, err = s.orders.CountOrdersByStatus(gctx, models.OrderStatusDelivered)
		return wrapStat("delivered orders", err)
	})
	g.Go(func() (err error) {
		stats.RecentOrders, err = s.orders.RecentOrders(gctx, recentOrdersLimit)
		return wrapStat("recent orders", err)
	})

	if err := g.Wait(); err != nil {
		util.EndSpan(span, err)
		return nil, err
	}
	if stats.RecentOrders == nil {
		stats.RecentOrders = []models.OrderSummary{}
	}
	return &stats, nil
}

func wrapStat(name string, err error) error {
	if err != nil {
		return fmt.Errorf("failed to compute %s: %w", name, err)
	}
	return nil
}
