package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/accounts/internal/adapters/primary/http/middleware"
	"github.com/lorrc/accounts/internal/adapters/primary/validation"
	"github.com/lorrc/accounts/internal/auth"
	apperrors "github.com/lorrc/accounts/internal/core/errors"
	"github.com/lorrc/accounts/internal/core/ports"
)

// AuthHandler opens and closes API sessions.
type AuthHandler struct {
	sessions     *SessionRegistry
	tokenManager *auth.TokenManager
	resetLimiter *mw.RateLimitByKey
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewAuthHandler creates a new auth handler. resetLimiter may be nil.
func NewAuthHandler(
	sessions *SessionRegistry,
	tokenManager *auth.TokenManager,
	resetLimiter *mw.RateLimitByKey,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		sessions:     sessions,
		tokenManager: tokenManager,
		resetLimiter: resetLimiter,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "auth"),
	}
}

// RegisterRoutes sets up the public auth endpoints. Logout requires a session.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
	r.Post("/password-reset", h.HandlePasswordReset)
	r.With(mw.SessionAuth(h.tokenManager)).Post("/logout", h.HandleLogout)
}

// --- Request/Response DTOs ---

// RegisterRequest defines the expected JSON body for account creation
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// Validate validates the register request
func (r *RegisterRequest) Validate() error {
	return validation.NewValidator().
		Required("firstName", r.FirstName).
		MaxLength("firstName", r.FirstName, validation.MaxFieldLength).
		Required("lastName", r.LastName).
		MaxLength("lastName", r.LastName, validation.MaxFieldLength).
		Required("email", r.Email).
		Email("email", r.Email).
		Password("password", r.Password).
		Err()
}

// LoginRequest defines the expected JSON body for sign-in
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate validates the login request
func (r *LoginRequest) Validate() error {
	return validation.NewValidator().
		Required("email", r.Email).
		Email("email", r.Email).
		Required("password", r.Password).
		Err()
}

// PasswordResetRequest defines the expected JSON body for a reset email
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// Validate validates the password reset request
func (r *PasswordResetRequest) Validate() error {
	return validation.NewValidator().
		Required("email", r.Email).
		Email("email", r.Email).
		Err()
}

// SessionResponse is returned when a session is opened.
type SessionResponse struct {
	Token         string `json:"token"`
	ExpiresIn     int64  `json:"expiresIn"`
	UserID        string `json:"userId"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
}

// --- Handlers ---

// HandleRegister creates an account and opens a session for it.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[RegisterRequest](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	provider := h.sessions.NewProvider()
	err = provider.CreateAccount(r.Context(), req.FirstName, req.LastName, req.Email, req.Password)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	resp, err := h.openSession(provider)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	h.logger.InfoContext(r.Context(), "account registered", "user_id", resp.UserID)
	WriteCreated(w, resp)
}

// HandleLogin signs in and opens a session.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[LoginRequest](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	provider := h.sessions.NewProvider()
	if _, err := provider.Login(r.Context(), req.Email, req.Password); HandleError(w, r, err, h.errorHandler) {
		return
	}

	resp, err := h.openSession(provider)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteSuccess(w, resp)
}

// HandleLogout closes the caller's session.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.NewUnauthorizedError("Authentication required"))
		return
	}

	h.sessions.Close(claims.SessionID)
	WriteNoContent(w)
}

// HandlePasswordReset asks the identity backend to email a reset link.
// Unknown addresses get the same response as known ones.
func (h *AuthHandler) HandlePasswordReset(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[PasswordResetRequest](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	if h.resetLimiter != nil && !h.resetLimiter.Allow(strings.ToLower(req.Email)) {
		h.errorHandler.Handle(w, r, apperrors.NewRateLimitError())
		return
	}

	err = h.sessions.NewProvider().ResetPassword(r.Context(), req.Email)
	if err != nil && !isUnknownUser(err) {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteAccepted(w, "If an account exists for this address, a reset email has been sent")
}

func (h *AuthHandler) openSession(provider ports.AccountProvider) (SessionResponse, error) {
	uid, _ := provider.UserID()
	email, _ := provider.UserEmail()

	sid := h.sessions.Add(provider)
	token, err := h.tokenManager.GenerateToken(sid, uid)
	if err != nil {
		h.sessions.Close(sid)
		return SessionResponse{}, apperrors.NewInternalError(err)
	}

	return SessionResponse{
		Token:         token,
		ExpiresIn:     int64(h.tokenManager.TTL().Seconds()),
		UserID:        uid,
		Email:         email,
		EmailVerified: provider.IsUserEmailVerified(),
	}, nil
}

func isUnknownUser(err error) bool {
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return true
	}
	code, ok := apperrors.CodeOf(err)
	return ok && code == apperrors.CodeUserNotFound
}
