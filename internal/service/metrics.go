package service

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts ledger outcomes. A nil *Metrics records nothing.
type Metrics struct {
	ordersCreated     prometheus.Counter
	stockRejections   prometheus.Counter
	statusTransitions *prometheus.CounterVec
	reviewsSubmitted  *prometheus.CounterVec
	reviewsDeleted    prometheus.Counter
	ratingRecomputes  prometheus.Counter
	cacheLookups      *prometheus.CounterVec
}

// NewMetrics registers the ledger metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Orders recorded.",
		}),
		stockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "order_stock_rejections_total",
			Help: "Orders rejected for insufficient stock.",
		}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Order status changes by target status.",
		}, []string{"status"}),
		reviewsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviews_submitted_total",
			Help: "Reviews created or replaced, by rating.",
		}, []string{"rating"}),
		reviewsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reviews_deleted_total",
			Help: "Reviews deleted by their authors.",
		}),
		ratingRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "product_rating_recomputes_total",
			Help: "Product rating recomputations.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "product_cache_lookups_total",
			Help: "Product cache lookups by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.ordersCreated,
		m.stockRejections,
		m.statusTransitions,
		m.reviewsSubmitted,
		m.reviewsDeleted,
		m.ratingRecomputes,
		m.cacheLookups,
	)
	return m
}

func (m *Metrics) orderCreated() {
	if m != nil {
		m.ordersCreated.Inc()
	}
}

func (m *Metrics) stockRejected() {
	if m != nil {
		m.stockRejections.Inc()
	}
}

func (m *Metrics) statusChanged(status string) {
	if m != nil {
		m.statusTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) reviewSubmitted(rating int) {
	if m != nil {
		m.reviewsSubmitted.WithLabelValues(strconv.Itoa(rating)).Inc()
	}
}

func (m *Metrics) reviewDeleted() {
	if m != nil {
		m.reviewsDeleted.Inc()
	}
}

func (m *Metrics) ratingRecomputed() {
	if m != nil {
		m.ratingRecomputes.Inc()
	}
}

func (m *Metrics) cacheLookup(result string) {
	if m != nil {
		m.cacheLookups.WithLabelValues(result).Inc()
	}
}
