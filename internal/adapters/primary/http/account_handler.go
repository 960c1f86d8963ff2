package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/accounts/internal/adapters/primary/validation"
	"github.com/lorrc/accounts/internal/core/domain"
	apperrors "github.com/lorrc/accounts/internal/core/errors"
)

// AccountHandler serves the signed-in account of a session.
// Every route expects SessionAuth to have run.
type AccountHandler struct {
	sessions     *SessionRegistry
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(sessions *SessionRegistry, errorHandler *ErrorHandler, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		sessions:     sessions,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "account"),
	}
}

// RegisterRoutes sets up the routing for the account endpoints.
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Delete("/", h.HandleDeleteAccount)
	r.Get("/session", h.HandleGetSession)
	r.Post("/verification", h.HandleSendVerification)
	r.Get("/profile", h.HandleGetProfile)
	r.Put("/profile", h.HandleSaveProfile)
}

// AccountStatusResponse describes the session's identity.
type AccountStatusResponse struct {
	LoggedIn      bool   `json:"loggedIn"`
	UserID        string `json:"userId,omitempty"`
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

// ProfileRequest is the full profile written by PUT /profile.
type ProfileRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Address   string `json:"address"`
	Railcard  string `json:"railcard"`
	Photocard string `json:"photocard"`
}

// Validate validates the profile request
func (r *ProfileRequest) Validate() error {
	v := validation.NewValidator().
		Required("email", r.Email).
		Email("email", r.Email).
		Required("firstName", r.FirstName).
		Required("lastName", r.LastName)

	for field, value := range map[string]string{
		domain.FieldEmail:     r.Email,
		domain.FieldFirstName: r.FirstName,
		domain.FieldLastName:  r.LastName,
		domain.FieldAddress:   r.Address,
		domain.FieldRailcard:  r.Railcard,
		domain.FieldPhotocard: r.Photocard,
	} {
		v.MaxLength(field, value, validation.MaxFieldLength)
	}
	return v.Err()
}

func (r *ProfileRequest) userInfo() domain.UserInfo {
	return domain.UserInfo{
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Address:   r.Address,
		Railcard:  r.Railcard,
		Photocard: r.Photocard,
	}
}

// HandleGetSession reports the identity held by the session.
func (h *AccountHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	_, provider, err := h.sessions.FromRequest(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	uid, _ := provider.UserID()
	email, _ := provider.UserEmail()
	WriteSuccess(w, AccountStatusResponse{
		LoggedIn:      provider.IsUserLoggedIn(),
		UserID:        uid,
		Email:         email,
		EmailVerified: provider.IsUserEmailVerified(),
	})
}

// HandleDeleteAccount deletes the identity and ends the session.
func (h *AccountHandler) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	sid, provider, err := h.sessions.FromRequest(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	deleted, err := provider.DeleteAccount(r.Context())
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	if !deleted {
		h.errorHandler.Handle(w, r, apperrors.NewInternalError(errors.New("account was not deleted")))
		return
	}

	h.sessions.Forget(sid)
	h.logger.InfoContext(r.Context(), "account deleted")
	WriteNoContent(w)
}

// HandleSendVerification asks the identity backend to send a verification email.
func (h *AccountHandler) HandleSendVerification(w http.ResponseWriter, r *http.Request) {
	_, provider, err := h.sessions.FromRequest(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	if err := provider.SendEmailVerification(r.Context()); HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteAccepted(w, "Verification email sent")
}

// HandleGetProfile returns the stored profile with its fields in order.
func (h *AccountHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	_, provider, err := h.sessions.FromRequest(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	info, err := provider.GetUserInfo(r.Context())
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteSuccess(w, info.OrderedFields())
}

// HandleSaveProfile replaces the stored profile.
func (h *AccountHandler) HandleSaveProfile(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[ProfileRequest](w, r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	_, provider, err := h.sessions.FromRequest(r)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	info := req.userInfo()
	done := make(chan error, 1)
	provider.SaveUserInfo(r.Context(), info, func(err error) { done <- err })

	select {
	case err = <-done:
	case <-r.Context().Done():
		err = r.Context().Err()
	}
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteSuccess(w, info.OrderedFields())
}
