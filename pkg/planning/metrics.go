package planning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "laborledger"

// Certificate payouts are counted by absolute amount under a direction label,
// since a negative payout factor yields negative payouts.
const (
	directionCredited = "credited"
	directionDebited  = "debited"
)

// Metrics instruments the update run. Collectors are registered on the given
// registerer; a nil registerer leaves them unregistered.
type Metrics struct {
	Runs                    prometheus.Counter
	PlansExpired            prometheus.Counter
	Payouts                 prometheus.Counter
	PayoutsSkipped          *prometheus.CounterVec
	PlanFailures            *prometheus.CounterVec
	CertificatesPaid        *prometheus.CounterVec
	CertificatesPaidLastRun prometheus.Gauge
	PayoutFactor            prometheus.Gauge
	RunDuration             prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "update_runs_total",
			Help:      "Number of completed plan update runs.",
		}),
		PlansExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "plans_expired_total",
			Help:      "Number of plans marked as expired.",
		}),
		Payouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "certificate_payouts_total",
			Help:      "Number of certificate payout transactions created.",
		}),
		PayoutsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "certificate_payouts_skipped_total",
			Help:      "Payouts skipped, by reason.",
		}, []string{"reason"}),
		PlanFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "plan_update_failures_total",
			Help:      "Plans whose processing failed, by phase.",
		}, []string{"phase"}),
		CertificatesPaid: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "certificates_paid_total",
			Help:      "Absolute sum of labour certificates paid out, by direction.",
		}, []string{"direction"}),
		CertificatesPaidLastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "certificates_paid_last_run",
			Help:      "Net labour certificates paid by the latest run.",
		}),
		PayoutFactor: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "payout_factor",
			Help:      "Payout factor computed by the latest run.",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "update_run_duration_seconds",
			Help:      "Duration of plan update runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

// observeCertificates records one payout amount, which may be negative.
func (m *Metrics) observeCertificates(amount float64) {
	if amount < 0 {
		m.CertificatesPaid.WithLabelValues(directionDebited).Add(-amount)
		return
	}
	m.CertificatesPaid.WithLabelValues(directionCredited).Add(amount)
}
