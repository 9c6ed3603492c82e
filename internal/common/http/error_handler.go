package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/constants"
	commonerrors "github.com/AlibekovAA/biometrics-identity/backend/internal/common/errors"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/httpmetrics"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/logger"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/observability/metrics"
)

type ErrorHandler struct {
	log *logger.Logger
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	return &ErrorHandler{log: log}
}

// HandleError renders err as a JSON envelope. Only the domain error's public
// message is exposed; causes are logged.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	h.HandleErrorWithDetails(w, r, err, nil)
}

// HandleErrorWithDetails is HandleError with extra client-safe details merged
// into the envelope of a domain error.
func (h *ErrorHandler) HandleErrorWithDetails(w http.ResponseWriter, r *http.Request, err error, details map[string]any) {
	if err == nil {
		return
	}

	if domainErr, ok := commonerrors.AsDomainError(err); ok {
		h.handleDomainError(w, r, domainErr, details)
		return
	}

	ctx := r.Context()
	traceID := TraceIDFromContext(ctx)

	h.log.WithFields(ctx, logger.Fields{
		"path":   r.URL.Path,
		"action": "unhandled_error",
	}).Errorf("unhandled error: %v", err)

	metrics.HTTPErrorsTotal.WithLabelValues(
		strconv.Itoa(http.StatusInternalServerError),
		httpmetrics.NormalizePath(r.URL.Path),
		r.Method,
	).Inc()

	WriteErrorEnvelope(w, http.StatusInternalServerError, CodeInternal, "internal server error", nil, traceID)
}

func (h *ErrorHandler) handleDomainError(w http.ResponseWriter, r *http.Request, err commonerrors.DomainError, details map[string]any) {
	ctx := r.Context()
	traceID := TraceIDFromContext(ctx)
	status := err.HTTPStatus()

	fields := logger.Fields{
		"error_code": err.Code(),
		"category":   string(err.Category()),
		"status":     status,
		"action":     "domain_error",
	}
	if status >= http.StatusInternalServerError {
		h.log.WithFields(ctx, fields).Errorf("domain error: %s", err.Error())
	} else if h.log.ShouldLog(logger.DEBUG) {
		h.log.WithFields(ctx, fields).Debugf("domain error: %s", err.Error())
	}

	metrics.DomainErrorsTotal.WithLabelValues(
		string(err.Category()),
		err.Code(),
		strconv.Itoa(status),
	).Inc()

	metrics.HTTPErrorsTotal.WithLabelValues(
		strconv.Itoa(status),
		httpmetrics.NormalizePath(r.URL.Path),
		r.Method,
	).Inc()

	if err.Category() == commonerrors.CategoryValidation && err.Unwrap() != nil {
		if details == nil {
			details = map[string]any{}
		}
		details["reason"] = err.Unwrap().Error()
	}

	WriteErrorEnvelope(w, status, err.Code(), err.Message(), details, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	traceID, _ := ctx.Value(constants.TraceIDKey).(string)
	return traceID
}
