package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/fx"
)

// Metrics exposes the engine's operational counters.
type Metrics struct {
	ClaimsTotal        *prometheus.CounterVec
	CallbacksTotal     *prometheus.CounterVec
	DedupHitsTotal     prometheus.Counter
	BlocksMaterialized prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		ClaimsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voltra",
			Name:      "block_claims_total",
			Help:      "Block claim attempts by result.",
		}, []string{"result"}),
		CallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voltra",
			Name:      "protocol_callbacks_total",
			Help:      "Outbound protocol callbacks by result.",
		}, []string{"action", "result"}),
		DedupHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "voltra",
			Name:      "protocol_dedup_hits_total",
			Help:      "Inbound messages short-circuited as duplicates.",
		}),
		BlocksMaterialized: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "voltra",
			Name:      "blocks_materialized_total",
			Help:      "Blocks created from offer synchronization.",
		}),
	}
}

func (m *Metrics) RecordClaim(result string) {
	if m == nil {
		return
	}
	m.ClaimsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCallback(action, result string) {
	if m == nil {
		return
	}
	m.CallbacksTotal.WithLabelValues(action, result).Inc()
}

func (m *Metrics) RecordDedupHit() {
	if m == nil {
		return
	}
	m.DedupHitsTotal.Inc()
}

func (m *Metrics) RecordMaterialized(n int) {
	if m == nil {
		return
	}
	m.BlocksMaterialized.Add(float64(n))
}

// Module wires the prometheus counters.
var Module = fx.Module("metrics",
	fx.Provide(New),
)
