package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProductsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allhall_products_submitted_total",
		Help: "Total number of products submitted for moderation",
	})

	ModerationDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "allhall_moderation_decisions_total",
		Help: "Total number of moderation decisions",
	}, []string{"decision"})

	CartAddsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allhall_cart_adds_total",
		Help: "Total number of add-to-cart operations",
	})

	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allhall_orders_placed_total",
		Help: "Total number of orders placed",
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allhall_orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	CheckoutFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "allhall_checkout_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	StoreUnavailableTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "allhall_store_unavailable_total",
		Help: "Total number of store calls that failed as unavailable",
	}, []string{"operation"})

	LiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "allhall_live_subscriptions",
		Help: "Number of open live view subscriptions",
	})

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
