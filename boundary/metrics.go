package boundary

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	created   *prometheus.CounterVec
	advanced  *prometheus.CounterVec
	discarded *prometheus.CounterVec
	panics    prometheus.Counter
}

// newMetrics builds the table counters and registers them on reg when it is
// not nil.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thresh",
			Name:      "instances_created_total",
			Help:      "Protocol instances created or restored, by protocol.",
		}, []string{"protocol"}),
		advanced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thresh",
			Name:      "advances_total",
			Help:      "Advance calls, by protocol and resulting status.",
		}, []string{"protocol", "status"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thresh",
			Name:      "messages_discarded_total",
			Help:      "Inbound messages discarded before processing, by reason.",
		}, []string{"reason"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "thresh",
			Name:      "boundary_panics_total",
			Help:      "Panics recovered at the boundary.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.created, m.advanced, m.discarded, m.panics} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
