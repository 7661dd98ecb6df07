package audit

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/staffmanagement/authservice/internal/db/models"
)

const (
	outcomePersisted = "persisted"
	outcomeFailed    = "failed"
	outcomeDropped   = "dropped"
)

var (
	eventCounter     *prometheus.CounterVec //nolint:gochecknoglobals
	eventCounterOnce sync.Once              //nolint:gochecknoglobals
)

func observe(t models.EventType, outcome string) {
	eventCounterOnce.Do(func() {
		eventCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_events_total",
				Help: "Number of audit events, differentiated by type and outcome.",
			},
			[]string{"type", "outcome"},
		)
	})

	eventCounter.WithLabelValues(string(t), outcome).Inc()
}
