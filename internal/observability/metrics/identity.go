package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IdentityRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_requests_total",
			Help: "Total number of identity HTTP requests",
		},
		[]string{"method", "path"},
	)

	IdentityRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "identity_requests_in_flight",
			Help: "Number of identity HTTP requests currently being processed",
		},
	)

	IdentityRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "identity_request_duration_seconds",
			Help:    "Duration of identity HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RegistrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_registrations_total",
			Help: "Total number of account registrations by result",
		},
		[]string{"result"},
	)

	AuthenticationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_authentications_total",
			Help: "Total number of authentication attempts by result",
		},
		[]string{"result"},
	)

	AccountUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_account_updates_total",
			Help: "Total number of account updates by result",
		},
		[]string{"result"},
	)

	UniquenessRacesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_uniqueness_races_total",
			Help: "Total number of writes rejected by a storage unique constraint after the pre-check passed",
		},
		[]string{"operation", "field"},
	)

	PasswordRehashesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_password_rehashes_total",
			Help: "Total number of password hashes upgraded to the current scheme on login",
		},
		[]string{"from_scheme"},
	)

	PasswordHashDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "identity_password_hash_duration_seconds",
			Help:    "Duration of password hash and verify operations in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	AccessTokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "access_tokens_issued_total",
			Help: "Total number of access tokens issued",
		},
	)

	JWTValidationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jwt_validations_total",
			Help: "Total number of JWT validations",
		},
	)

	JWTValidationsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jwt_validations_failed_total",
			Help: "Total number of failed JWT validations",
		},
	)
)
