package http

import (
	"net/http"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/constants"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/httpmetrics"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/logger"
)

// BuildBaseHandler wraps handler with the middleware every route shares.
func BuildBaseHandler(log *logger.Logger, handler http.Handler) http.Handler {
	metrics := httpmetrics.New()
	recovery := RecoveryMiddleware(log)
	maxRequestSize := MaxRequestSizeMiddleware(constants.DefaultMaxRequestSize)

	return SecurityHeadersMiddleware(TraceIDMiddleware(recovery(maxRequestSize(metrics.Wrap(handler)))))
}
