package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the guessing service.
type Metrics struct {
	PriceFetches     *prometheus.CounterVec
	PriceCacheHits   prometheus.Counter
	GuessesSubmitted *prometheus.CounterVec
	GuessesResolved  *prometheus.CounterVec
}

// Fetch outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeStale = "stale"
)

// New registers all collectors against reg. Tests pass a private registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PriceFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "btcguessr_price_fetches_total",
			Help: "Upstream spot price fetch attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		PriceCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "btcguessr_price_cache_hits_total",
			Help: "Price reads served from the in-process cache.",
		}),
		GuessesSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "btcguessr_guesses_submitted_total",
			Help: "Guesses accepted by direction.",
		}, []string{"direction"}),
		GuessesResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "btcguessr_guesses_resolved_total",
			Help: "Guesses settled by outcome.",
		}, []string{"outcome"}),
	}
}

// ObservePriceFetch increments the fetch counter; nil-safe so callers can run
// without metrics wired.
func (m *Metrics) ObservePriceFetch(source, outcome string) {
	if m == nil {
		return
	}
	m.PriceFetches.WithLabelValues(source, outcome).Inc()
}

// ObserveCacheHit increments the cache hit counter.
func (m *Metrics) ObserveCacheHit() {
	if m == nil {
		return
	}
	m.PriceCacheHits.Inc()
}

// ObserveGuess increments the submitted counter for a direction.
func (m *Metrics) ObserveGuess(direction string) {
	if m == nil {
		return
	}
	m.GuessesSubmitted.WithLabelValues(direction).Inc()
}

// ObserveResolution increments the resolved counter for an outcome.
func (m *Metrics) ObserveResolution(won bool) {
	if m == nil {
		return
	}
	outcome := "lost"
	if won {
		outcome = "won"
	}
	m.GuessesResolved.WithLabelValues(outcome).Inc()
}
