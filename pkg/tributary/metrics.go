package tributary

import (
	"encoding/hex"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespaceTributary = "tributary"
)

// Metrics for a single tributary. A nil Registerer leaves them unregistered.
type Metrics struct {
	height      prometheus.Gauge
	mempoolSize prometheus.Gauge
	txsAdded    *prometheus.CounterVec
	blockErrors *prometheus.CounterVec
	slashes     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer, genesis [32]byte) *Metrics {
	f := promauto.With(reg)
	labels := prometheus.Labels{"genesis": hex.EncodeToString(genesis[:8])}

	return &Metrics{
		height: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespaceTributary,
			Name:        "block_number",
			Help:        "height of the tip",
			ConstLabels: labels,
		}),
		mempoolSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespaceTributary,
			Name:        "mempool_transactions",
			Help:        "transactions waiting in the mempool",
			ConstLabels: labels,
		}),
		txsAdded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespaceTributary,
			Name:        "transactions_added_total",
			Help:        "transactions included on chain by kind",
			ConstLabels: labels,
		}, []string{"kind"}),
		blockErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespaceTributary,
			Name:        "block_errors_total",
			Help:        "rejected blocks by reason",
			ConstLabels: labels,
		}, []string{"reason"}),
		slashes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespaceTributary,
			Name:        "slashes_total",
			Help:        "slash events raised by this node",
			ConstLabels: labels,
		}, []string{"type"}),
	}
}

func (m *Metrics) blockError(err error) {
	if be, ok := err.(*BlockError); ok {
		m.blockErrors.WithLabelValues(blockErrorNames[be.Kind]).Inc()
		return
	}
	m.blockErrors.WithLabelValues("other").Inc()
}
