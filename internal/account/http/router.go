package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/domain"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/account/service"
	commonerrors "github.com/AlibekovAA/biometrics-identity/backend/internal/common/errors"
	commonhttp "github.com/AlibekovAA/biometrics-identity/backend/internal/common/http"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/jwtverify"
	"github.com/AlibekovAA/biometrics-identity/backend/internal/common/logger"
)

type IdentityService interface {
	RegisterAccount(ctx context.Context, input service.RegisterInput) (domain.Account, error)
	Authenticate(ctx context.Context, username, password string) (string, error)
	UpdateAccount(ctx context.Context, id domain.ID, input service.UpdateInput) (domain.Account, error)
	GetAccount(ctx context.Context, id domain.ID) (domain.Account, error)
}

type Config struct {
	JWTSecret      string
	RequestTimeout time.Duration
	RateLimiter    *commonhttp.RateLimiter
	HealthChecks   []func(ctx context.Context) error
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type updateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toAccountResponse(a domain.Account) accountResponse {
	return accountResponse{
		ID:        a.ID.String(),
		Username:  a.Username,
		Email:     a.Email,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type Handler struct {
	identity IdentityService
	errors   *commonhttp.ErrorHandler
	log      *logger.Logger
}

func NewHandler(identity IdentityService, cfg Config, log *logger.Logger) http.Handler {
	h := &Handler{
		identity: identity,
		errors:   commonhttp.NewErrorHandler(log),
		log:      log,
	}

	timeout := commonhttp.WithTimeout(cfg.RequestTimeout)
	post := commonhttp.RequireMethod(http.MethodPost)
	limit := func(limiterType string, next http.HandlerFunc) http.HandlerFunc {
		if cfg.RateLimiter == nil {
			return next
		}
		return cfg.RateLimiter.Middleware(limiterType)(next)
	}
	authenticated := jwtverify.Middleware(cfg.JWTSecret, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", commonhttp.HealthHandler(cfg.RequestTimeout, cfg.HealthChecks...))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/auth/register", post(limit("register", timeout(h.register))))
	mux.HandleFunc("/api/auth/login", post(limit("login", timeout(h.login))))
	mux.Handle("/api/users/me", authenticated(timeout(h.me)))
	return mux
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := commonhttp.DecodeJSON(r, &req); err != nil {
		h.invalidJSON(w, r, "register", err)
		return
	}

	account, err := h.identity.RegisterAccount(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeConflictAware(w, r, err)
		return
	}

	commonhttp.WriteJSON(w, http.StatusCreated, toAccountResponse(account))
}

// login reports unknown usernames and wrong passwords identically.
func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := commonhttp.DecodeJSON(r, &req); err != nil {
		h.invalidJSON(w, r, "login", err)
		return
	}

	token, err := h.identity.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrAccountNotFound) {
			err = service.ErrInvalidCredentials
		}
		h.errors.HandleError(w, r, err)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := jwtverify.FromContext(r.Context())
	if !ok {
		h.errors.HandleError(w, r, commonerrors.ErrInvalidToken)
		return
	}
	id, err := domain.ParseID(claims.Subject)
	if err != nil {
		h.errors.HandleError(w, r, commonerrors.ErrInvalidToken.WithCause(err))
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getMe(w, r, id)
	case http.MethodPatch:
		h.updateMe(w, r, id)
	default:
		w.Header().Set("Allow", "GET, PATCH")
		commonhttp.WriteErrorEnvelope(w, http.StatusMethodNotAllowed, commonhttp.CodeMethodNotAllowed, "method not allowed", nil, commonhttp.TraceIDFromContext(r.Context()))
	}
}

func (h *Handler) getMe(w http.ResponseWriter, r *http.Request, id domain.ID) {
	account, err := h.identity.GetAccount(r.Context(), id)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	commonhttp.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request, id domain.ID) {
	var req updateRequest
	if err := commonhttp.DecodeJSON(r, &req); err != nil {
		h.invalidJSON(w, r, "update", err)
		return
	}

	account, err := h.identity.UpdateAccount(r.Context(), id, service.UpdateInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeConflictAware(w, r, err)
		return
	}

	commonhttp.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}

// writeConflictAware adds the conflicting field to already-exists errors so
// clients can point at the right input.
func (h *Handler) writeConflictAware(w http.ResponseWriter, r *http.Request, err error) {
	field, ok := service.ConflictField(err)
	if !ok {
		h.errors.HandleError(w, r, err)
		return
	}

	h.errors.HandleErrorWithDetails(w, r, err, map[string]any{"field": field})
}

func (h *Handler) invalidJSON(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.log.WithFields(r.Context(), logger.Fields{
		"action": op + "_invalid_json",
	}).Warnf("%s failed: invalid json: %v", op, err)

	status := http.StatusBadRequest
	code := commonhttp.CodeInvalidJSON
	message := "invalid json"
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		status = http.StatusRequestEntityTooLarge
		code = commonhttp.CodeRequestTooLarge
		message = "request body too large"
	}
	commonhttp.WriteErrorEnvelope(w, status, code, message, nil, commonhttp.TraceIDFromContext(r.Context()))
}
