package directory

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callCounter     *prometheus.CounterVec //nolint:gochecknoglobals
	callCounterOnce sync.Once              //nolint:gochecknoglobals
)

func observeCall(op string, err error) {
	callCounterOnce.Do(func() {
		callCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_calls_total",
				Help: "Number of remote group directory calls, differentiated by operation and outcome.",
			},
			[]string{"op", "outcome"},
		)
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	callCounter.WithLabelValues(op, outcome).Inc()
}
