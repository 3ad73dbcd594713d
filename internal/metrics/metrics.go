// Package metrics defines the Prometheus collectors used by the dashboard
// core and the reference server. Collectors are registered on a caller
// supplied Registerer; a nil Registerer leaves them unregistered, which is
// what most tests want.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "rainfall"

// Sync counts polling activity.
type Sync struct {
	Cycles       *prometheus.CounterVec
	SkippedTicks prometheus.Counter
}

// NewSync creates the sync collectors.
func NewSync(reg prometheus.Registerer) *Sync {
	m := &Sync{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cycles_total",
			Help:      "Fetch cycles by outcome (ok, partial, failed, discarded).",
		}, []string{"result"}),
		SkippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "skipped_ticks_total",
			Help:      "Polling ticks dropped because a cycle was still in flight.",
		}),
	}
	register(reg, m.Cycles, m.SkippedTicks)
	return m
}

// Mutations counts write attempts.
type Mutations struct {
	Total *prometheus.CounterVec
}

// NewMutations creates the mutation collectors.
func NewMutations(reg prometheus.Registerer) *Mutations {
	m := &Mutations{
		Total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "total",
			Help:      "Mutations by operation and outcome.",
		}, []string{"op", "result"}),
	}
	register(reg, m.Total)
	return m
}

// HTTP counts requests served by the reference server.
type HTTP struct {
	Requests *prometheus.CounterVec
}

// NewHTTP creates the server request collectors.
func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests served by route pattern and status code.",
		}, []string{"route", "code"}),
	}
	register(reg, m.Requests)
	return m
}

func register(reg prometheus.Registerer, collectors ...prometheus.Collector) {
	if reg == nil {
		return
	}
	for _, c := range collectors {
		reg.MustRegister(c)
	}
}
