package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteCalcTotal counts price calculation outcomes.
	QuoteCalcTotal *prometheus.CounterVec
	// QuoteConfirmTotal counts confirmation attempts by outcome.
	QuoteConfirmTotal *prometheus.CounterVec
	// PromoSkipTotal counts promo codes that did not resolve and were skipped.
	PromoSkipTotal prometheus.Counter
	// QuoteSweepArchived counts quotes archived by the retention sweeper.
	QuoteSweepArchived prometheus.Counter
	// QuoteCalcLatency records pipeline latency in milliseconds.
	QuoteCalcLatency prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteCalcTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_calculations_total",
			Help:      "Count of price calculation outcomes.",
		}, []string{"result"})
		QuoteConfirmTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_confirmations_total",
			Help:      "Count of price confirmation attempts by outcome.",
		}, []string{"result"})
		PromoSkipTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_skips_total",
			Help:      "Number of promo codes that did not resolve and were skipped.",
		})
		QuoteSweepArchived = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_sweep_archived_total",
			Help:      "Number of unconfirmed quotes archived by the retention sweeper.",
		})
		QuoteCalcLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_calculation_duration_ms",
			Help:      "Latency of the pricing pipeline in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		})

		mustRegisterCollector(reg, QuoteCalcTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteCalcTotal = v
			}
		})
		mustRegisterCollector(reg, QuoteConfirmTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteConfirmTotal = v
			}
		})
		mustRegisterCollector(reg, PromoSkipTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PromoSkipTotal = v
			}
		})
		mustRegisterCollector(reg, QuoteSweepArchived, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				QuoteSweepArchived = v
			}
		})
		mustRegisterCollector(reg, QuoteCalcLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				QuoteCalcLatency = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
