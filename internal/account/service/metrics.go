package service

import (
	"time"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/observability/metrics"
)

const (
	resultSuccess            = "success"
	resultConflict           = "conflict"
	resultValidation         = "validation"
	resultNotFound           = "not_found"
	resultInvalidCredentials = "invalid_credentials"
	resultError              = "error"
)

func incrementRegistrations(result string) {
	metrics.RegistrationsTotal.WithLabelValues(result).Inc()
}

func incrementAuthentications(result string) {
	metrics.AuthenticationsTotal.WithLabelValues(result).Inc()
}

func incrementAccountUpdates(result string) {
	metrics.AccountUpdatesTotal.WithLabelValues(result).Inc()
}

func incrementUniquenessRaces(operation, field string) {
	metrics.UniquenessRacesTotal.WithLabelValues(operation, field).Inc()
}

func incrementPasswordRehashes(fromScheme string) {
	metrics.PasswordRehashesTotal.WithLabelValues(fromScheme).Inc()
}

func incrementAccessTokensIssued() {
	metrics.AccessTokensIssued.Inc()
}

func observeHashDuration(start time.Time) {
	metrics.PasswordHashDurationSeconds.Observe(time.Since(start).Seconds())
}
