package lifecycle

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	opsOnce    sync.Once
	opsCounter *prometheus.CounterVec
)

func operationsCounter() *prometheus.CounterVec {
	opsOnce.Do(func() {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atelier",
			Subsystem: "orchestrator",
			Name:      "operations_total",
			Help:      "Lifecycle operations by kind and outcome.",
		}, []string{"operation", "outcome"})
		if err := prometheus.Register(c); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
					c = existing
				}
			}
		}
		opsCounter = c
	})
	return opsCounter
}

func recordOperation(operation, outcome string) {
	operationsCounter().WithLabelValues(operation, outcome).Inc()
}
