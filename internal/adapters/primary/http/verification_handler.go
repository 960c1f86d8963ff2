package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	mw "github.com/lorrc/accounts/internal/adapters/primary/http/middleware"
	wsAdapter "github.com/lorrc/accounts/internal/adapters/primary/websocket"
	"github.com/lorrc/accounts/internal/auth"
	"github.com/lorrc/accounts/internal/core/domain"
	apperrors "github.com/lorrc/accounts/internal/core/errors"
)

// WebSocketConfig holds configuration for the verification WebSocket
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	Timeouts        wsAdapter.Timeouts
	IsDevelopment   bool
}

// VerificationHandler upgrades a session to a WebSocket and pushes
// EMAIL_VERIFIED once the identity backend reports the address verified,
// or VERIFICATION_ENDED when the watch stops for any other reason.
type VerificationHandler struct {
	sessions *SessionRegistry
	hub      *wsAdapter.Hub
	tm       *auth.TokenManager
	upgrader websocket.Upgrader
	timeouts wsAdapter.Timeouts
	logger   *slog.Logger
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(
	sessions *SessionRegistry,
	hub *wsAdapter.Hub,
	tm *auth.TokenManager,
	cfg WebSocketConfig,
	logger *slog.Logger,
) *VerificationHandler {
	h := &VerificationHandler{
		sessions: sessions,
		hub:      hub,
		tm:       tm,
		timeouts: cfg.Timeouts,
		logger:   logger.With("handler", "verification"),
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     h.makeOriginChecker(cfg),
	}

	return h
}

// makeOriginChecker creates an origin checking function based on configuration
func (h *VerificationHandler) makeOriginChecker(cfg WebSocketConfig) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Same-origin request or non-browser client
		if origin == "" {
			return true
		}

		if cfg.IsDevelopment {
			h.logger.Warn("allowing websocket connection in development mode", "origin", origin)
			return true
		}

		parsed, err := url.Parse(origin)
		if err != nil {
			h.logger.Warn("failed to parse websocket origin", "origin", origin, "error", err)
			return false
		}

		if originAllowed(parsed.Host, cfg.AllowedOrigins) {
			return true
		}

		h.logger.Warn("websocket connection rejected due to origin",
			"origin", origin,
			"allowed_origins", cfg.AllowedOrigins,
		)
		return false
	}
}

// originAllowed matches host against entries like "app.example.com" or
// "*.example.com".
func originAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		if suffix, ok := strings.CutPrefix(a, "*."); ok {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return true
			}
		} else if host == a {
			return true
		}
	}
	return false
}

// ServeHTTP authenticates with the "token" query parameter (browsers cannot
// set headers on a WebSocket handshake) or a bearer header.
func (h *VerificationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = mw.BearerToken(r)
	}
	if token == "" {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Missing authentication token", Code: "UNAUTHORIZED"})
		return
	}

	claims, err := h.tm.ValidateToken(token)
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket connection rejected: invalid token", "error", err)
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid or expired token", Code: "UNAUTHORIZED"})
		return
	}

	sid := claims.SessionID
	provider, ok := h.sessions.Get(sid)
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Session expired, sign in again", Code: "UNAUTHORIZED"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.ErrorContext(r.Context(), "failed to upgrade websocket connection", "session_id", sid, "error", err)
		return
	}

	// The watch outlives the handler, so detach it from request cancellation
	// but keep the request's logging values.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))

	client := wsAdapter.NewClient(h.hub, conn, sid, h.timeouts, h.logger)
	client.OnClose = cancel
	if !client.Start() {
		return
	}

	h.logger.InfoContext(ctx, "verification websocket established", "session_id", sid)

	if provider.IsUserEmailVerified() {
		h.publish(domain.Event{Type: domain.EventEmailVerified, SessionID: sid})
		return
	}

	watch := provider.ListenToEmailVerification(ctx, func() {
		h.publish(domain.Event{Type: domain.EventEmailVerified, SessionID: sid})
	})
	if !h.sessions.SetWatch(sid, watch) {
		cancel()
		return
	}

	go func() {
		<-watch.Done()
		err := watch.Err()
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		reason := "error"
		if errors.Is(err, apperrors.ErrVerificationTimeout) {
			reason = "timeout"
		}
		h.publish(domain.Event{
			Type:      domain.EventVerificationEnded,
			Payload:   domain.VerificationEndedPayload{Reason: reason},
			SessionID: sid,
		})
	}()
}

func (h *VerificationHandler) publish(event domain.Event) {
	if err := h.hub.Broadcast(event); err != nil {
		h.logger.Error("failed to publish verification event", "event_type", event.Type, "error", err)
	}
}
