package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forgeflow",
		Subsystem: "plugins",
		Name:      "lifecycle_transitions_total",
		Help:      "Completed plugin lifecycle transitions by target state.",
	}, []string{"plugin", "state"})

	hookFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forgeflow",
		Subsystem: "plugins",
		Name:      "hook_failures_total",
		Help:      "Plugin lifecycle hook failures by hook name.",
	}, []string{"plugin", "hook"})

	registered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "forgeflow",
		Subsystem: "plugins",
		Name:      "registered",
		Help:      "Number of plugins currently held in the registry.",
	})
)
