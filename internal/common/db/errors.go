package db

import (
	"fmt"
	"time"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/observability/metrics"
)

// ObserveQuery records the duration of one store operation and, on failure,
// counts the error by its concrete type.
func ObserveQuery(store, operation string, startTime time.Time, err error) {
	metrics.DBQueryDurationSeconds.WithLabelValues(store, operation).Observe(time.Since(startTime).Seconds())
	if err != nil {
		metrics.DBQueryErrors.WithLabelValues(store, operation, fmt.Sprintf("%T", err)).Inc()
	}
}

func ObserveConstraintViolation(store, constraint string) {
	metrics.DBConstraintViolations.WithLabelValues(store, constraint).Inc()
}
