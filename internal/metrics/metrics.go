package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checkout results recorded by ObserveCheckout.
const (
	ResultCompleted         = "completed"
	ResultRejected          = "rejected"
	ResultCheckoutFailed    = "checkout_failed"
	ResultPersistenceFailed = "persistence_failed"
)

type Registry struct {
	reg             *prometheus.Registry
	Checkouts       *prometheus.CounterVec
	CheckoutLatency prometheus.Histogram
	CartMutations   *prometheus.CounterVec
	OutboxPublished prometheus.Counter
	OutboxFailures  prometheus.Counter
	Reconciliations prometheus.Counter
	// SessionClearFailures counts completed checkouts whose cart session
	// could not be emptied.
	SessionClearFailures prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_total",
		Help: "Checkout attempts by result.",
	}, []string{"result"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_checkout_duration_seconds",
		Help:    "Duration of checkout attempts that reached the gateway.",
		Buckets: prometheus.DefBuckets,
	})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_mutations_total",
		Help: "Cart mutations by operation.",
	}, []string{"op"})
	published := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_outbox_published_total"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_outbox_publish_failures_total"})
	reconciliations := prometheus.NewCounter(prometheus.CounterOpts{Name: "storefront_orders_reconciliation_total"})
	clearFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_session_clear_failures_total",
		Help: "Completed checkouts that left the paid items in the cart session.",
	})

	r.MustRegister(checkouts, latency, mutations, published, failures, reconciliations, clearFailures)
	return &Registry{
		reg:             r,
		Checkouts:       checkouts,
		CheckoutLatency: latency,
		CartMutations:   mutations,
		OutboxPublished: published,
		OutboxFailures:  failures,
		Reconciliations: reconciliations,

		SessionClearFailures: clearFailures,
	}
}

func (r *Registry) ObserveCheckout(result string, elapsed time.Duration) {
	r.Checkouts.WithLabelValues(result).Inc()
	if result != ResultRejected {
		r.CheckoutLatency.Observe(elapsed.Seconds())
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
