package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/statements-tracker/internal/entity"
)

const namespace = "statements"

// Collector records parse runs. It satisfies pipeline.Observer.
type Collector struct {
	runs         *prometheus.CounterVec
	duration     prometheus.Histogram
	transactions prometheus.Counter
	review       prometheus.Counter
	confidence   prometheus.Histogram
	signals      *prometheus.CounterVec
	arbitration  *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Parse runs by final status.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a parse run.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Transactions returned by successful runs.",
		}),
		review: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_needs_review_total",
			Help:      "Returned transactions flagged for review.",
		}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "schema_confidence",
			Help:      "Confidence of the selected candidate.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 0.99},
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Non-fatal pipeline conditions met during runs.",
		}, []string{"signal"}),
		arbitration: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "arbitrations_total",
			Help:      "Arbitration outcomes.",
		}, []string{"status"}),
	}
	reg.MustRegister(c.runs, c.duration, c.transactions, c.review, c.confidence, c.signals, c.arbitration)
	return c
}

func (c *Collector) ObserveRun(res entity.ParseResult, elapsed time.Duration) {
	c.runs.WithLabelValues(string(res.Status)).Inc()
	c.duration.Observe(elapsed.Seconds())
	for _, s := range res.Signals {
		c.signals.WithLabelValues(string(s)).Inc()
	}
	if a := res.Trace.Arbitration; a != nil && a.Used {
		c.arbitration.WithLabelValues(a.Status).Inc()
	}
	if res.TransactionCount == 0 {
		return
	}
	c.confidence.Observe(res.SchemaConfidence)
	c.transactions.Add(float64(res.TransactionCount))
	n := 0
	for _, t := range res.Transactions {
		if t.NeedsReview {
			n++
		}
	}
	c.review.Add(float64(n))
}
