// Package metrics implements core.MetricsSink over Prometheus collectors:
// current round, replica state, and error counts by kind.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/corebft/ibft/core"
)

// Sink is a prometheus-backed core.MetricsSink.
type Sink struct {
	round prometheus.Gauge
	state *prometheus.GaugeVec
	errs  *prometheus.CounterVec
}

// New builds a Sink and registers its collectors with reg.
func New(reg prometheus.Registerer) (*Sink, error) {
	s := &Sink{
		round: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ibft_round",
			Help: "Current round for the in-progress height.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ibft_replica_state",
			Help: "1 for the replica's current state, 0 otherwise.",
		}, []string{"state"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ibft_errors_total",
			Help: "Classified handler failures by kind.",
		}, []string{"kind"}),
	}

	if err := reg.Register(s.round); err != nil {
		return nil, err
	}
	if err := reg.Register(s.state); err != nil {
		return nil, err
	}
	if err := reg.Register(s.errs); err != nil {
		return nil, err
	}
	return s, nil
}

// SetRound implements core.MetricsSink.
func (s *Sink) SetRound(round uint64) {
	s.round.Set(float64(round))
}

// SetState implements core.MetricsSink. Every state label is reset to 0
// except the current one, so the vector reads as a one-hot indicator.
func (s *Sink) SetState(state core.ReplicaState) {
	for _, st := range []core.ReplicaState{
		core.AcceptRequest, core.Preprepared, core.Prepared, core.Committed, core.Final,
	} {
		v := 0.0
		if st == state {
			v = 1.0
		}
		s.state.WithLabelValues(st.String()).Set(v)
	}
}

// IncError implements core.MetricsSink.
func (s *Sink) IncError(kind core.ErrorKind) {
	s.errs.WithLabelValues(kind.String()).Inc()
}
