package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_created_total",
		Help: "Total number of orders created at checkout",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_orders_failed_total",
		Help: "Total number of rejected checkouts",
	}, []string{"reason"})

	OrderStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_order_status_changes_total",
		Help: "Total number of admin order status changes",
	}, []string{"status"})

	StockReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_stock_reserve_latency_seconds",
		Help:    "Latency of the stock reservation fast path",
		Buckets: prometheus.DefBuckets,
	})

	StockRestoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_stock_restored_total",
		Help: "Total number of cancelled orders whose stock was returned",
	})

	ImageUploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_image_uploads_total",
		Help: "Total number of product image uploads",
	}, []string{"result"})

	AdminDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_admin_gate_decisions_total",
		Help: "Role gate outcomes for admin surface calls",
	}, []string{"decision"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
