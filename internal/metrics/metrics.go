// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Soft-skip reasons.
const (
	SkipTestToken   = "test_token"
	SkipNoIdentity  = "no_identity"
	SkipNoOperators = "no_operators"
	SkipReputation  = "reputation"
	SkipRefused     = "quote_refused"
)

// Metrics groups the engine collectors.
type Metrics struct {
	launches       prometheus.Counter
	skips          *prometheus.CounterVec
	buys           *prometheus.CounterVec
	sales          *prometheus.CounterVec
	submitDuration prometheus.Histogram
	tickSkipped    *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		launches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sniper_launches_total",
			Help: "Pool launches decoded from the chain",
		}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_soft_skips_total",
			Help: "Launch or operator processing ended without a trade",
		}, []string{"reason"}),
		buys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_buys_total",
			Help: "Buy submissions by result",
		}, []string{"result"}),
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_sales_total",
			Help: "Sale submissions by trigger and result",
		}, []string{"trigger", "result"}),
		submitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sniper_submit_duration_seconds",
			Help:    "Quote to relay acknowledgement latency",
			Buckets: prometheus.LinearBuckets(0, 0.1, 10),
		}),
		tickSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_scheduler_ticks_skipped_total",
			Help: "Ticks skipped because the previous run was still in flight",
		}, []string{"task"}),
	}

	if reg != nil {
		reg.MustRegister(m.launches, m.skips, m.buys, m.sales, m.submitDuration, m.tickSkipped)
	}
	return m
}

func (m *Metrics) Launch() { m.launches.Inc() }

func (m *Metrics) Skip(reason string) { m.skips.WithLabelValues(reason).Inc() }

func (m *Metrics) Buy(ok bool) { m.buys.WithLabelValues(result(ok)).Inc() }

func (m *Metrics) Sale(trigger string, ok bool) { m.sales.WithLabelValues(trigger, result(ok)).Inc() }

func (m *Metrics) TrackSubmit(start time.Time) {
	m.submitDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) TickSkipped(task string) { m.tickSkipped.WithLabelValues(task).Inc() }

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
