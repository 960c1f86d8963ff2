package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lorrc/accounts/internal/core/domain"
	apperrors "github.com/lorrc/accounts/internal/core/errors"
	"github.com/lorrc/accounts/internal/core/ports"
)

const (
	DefaultIdentityURL = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL    = "https://securetoken.googleapis.com/v1"
	defaultTimeout     = 15 * time.Second
)

// AuthConfig configures the Identity Toolkit client.
type AuthConfig struct {
	APIKey string
	// IdentityURL and TokenURL default to the public Google endpoints.
	// Point them at the auth emulator for local runs.
	IdentityURL string
	TokenURL    string
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// AuthClient is an ports.IdentityBackend over the Identity Toolkit REST API.
type AuthClient struct {
	apiKey      string
	identityURL string
	tokenURL    string
	httpClient  *http.Client
	logger      *slog.Logger
}

var _ ports.IdentityBackend = (*AuthClient)(nil)

func NewAuthClient(cfg AuthConfig) (*AuthClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: firebase API key is not set", apperrors.ErrMissingConfiguration)
	}
	if cfg.IdentityURL == "" {
		cfg.IdentityURL = DefaultIdentityURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &AuthClient{
		apiKey:      cfg.APIKey,
		identityURL: strings.TrimSuffix(cfg.IdentityURL, "/"),
		tokenURL:    strings.TrimSuffix(cfg.TokenURL, "/"),
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger.With("component", "firebase_auth"),
	}, nil
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type authResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	Registered   bool   `json:"registered"`
}

type oobRequest struct {
	RequestType string `json:"requestType"`
	IDToken     string `json:"idToken,omitempty"`
	Email       string `json:"email,omitempty"`
}

type idTokenRequest struct {
	IDToken string `json:"idToken"`
}

type lookupResponse struct {
	Users []struct {
		LocalID       string `json:"localId"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"emailVerified"`
		Disabled      bool   `json:"disabled"`
	} `json:"users"`
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
}

func (c *AuthClient) CreateUser(ctx context.Context, email, password string) (*domain.IdentityUser, error) {
	var resp authResponse
	if err := c.call(ctx, "accounts:signUp", passwordRequest{Email: email, Password: password, ReturnSecureToken: true}, &resp); err != nil {
		return nil, err
	}
	return resp.user(false), nil
}

// SignIn authenticates with email and password, then looks the account up
// to learn its verification state.
func (c *AuthClient) SignIn(ctx context.Context, email, password string) (*domain.IdentityUser, error) {
	var resp authResponse
	if err := c.call(ctx, "accounts:signInWithPassword", passwordRequest{Email: email, Password: password, ReturnSecureToken: true}, &resp); err != nil {
		return nil, err
	}
	return c.Reload(ctx, resp.user(false))
}

// SignOut only drops local state. The REST API has no session to end.
func (c *AuthClient) SignOut(ctx context.Context, user *domain.IdentityUser) error {
	return nil
}

// DeleteUser and SendEmailVerification report an expired ID token as
// CodeInvalidToken. The caller refreshes through RefreshToken so the new
// token stays with its session.
func (c *AuthClient) DeleteUser(ctx context.Context, user *domain.IdentityUser) error {
	if user == nil {
		return apperrors.NewBackendError(backendName, apperrors.CodeUserNotFound, "", "no current user")
	}
	return c.call(ctx, "accounts:delete", idTokenRequest{IDToken: user.IDToken}, nil)
}

func (c *AuthClient) SendEmailVerification(ctx context.Context, user *domain.IdentityUser) error {
	if user == nil {
		return apperrors.NewBackendError(backendName, apperrors.CodeUserNotFound, "", "no current user")
	}
	return c.call(ctx, "accounts:sendOobCode", oobRequest{RequestType: "VERIFY_EMAIL", IDToken: user.IDToken}, nil)
}

func (c *AuthClient) SendPasswordReset(ctx context.Context, email string) error {
	return c.call(ctx, "accounts:sendOobCode", oobRequest{RequestType: "PASSWORD_RESET", Email: email}, nil)
}

// Reload fetches the account behind user's ID token. An expired token is
// exchanged once for a fresh one using the refresh token.
func (c *AuthClient) Reload(ctx context.Context, user *domain.IdentityUser) (*domain.IdentityUser, error) {
	if user == nil {
		return nil, apperrors.NewBackendError(backendName, apperrors.CodeUserNotFound, "", "no current user")
	}

	var reloaded *domain.IdentityUser
	err := c.withFreshToken(ctx, user, func(u *domain.IdentityUser) error {
		var resp lookupResponse
		if err := c.call(ctx, "accounts:lookup", idTokenRequest{IDToken: u.IDToken}, &resp); err != nil {
			return err
		}
		if len(resp.Users) == 0 {
			return apperrors.NewBackendError(backendName, apperrors.CodeUserNotFound, "USER_NOT_FOUND", "")
		}
		info := resp.Users[0]
		if info.Disabled {
			return apperrors.NewBackendError(backendName, apperrors.CodeUserDisabled, "USER_DISABLED", "")
		}

		reloaded = u.Clone()
		reloaded.UID = info.LocalID
		reloaded.Email = info.Email
		reloaded.EmailVerified = info.EmailVerified
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reloaded, nil
}

// withFreshToken runs fn, retrying once with a refreshed ID token when the
// backend rejects the current one.
func (c *AuthClient) withFreshToken(ctx context.Context, user *domain.IdentityUser, fn func(*domain.IdentityUser) error) error {
	if user == nil {
		return apperrors.NewBackendError(backendName, apperrors.CodeUserNotFound, "", "no current user")
	}

	err := fn(user)
	if err == nil || user.RefreshToken == "" || !errors.Is(err, &apperrors.BackendError{Code: apperrors.CodeInvalidToken}) {
		return err
	}

	refreshed, rerr := c.RefreshToken(ctx, user)
	if rerr != nil {
		c.logger.WarnContext(ctx, "id token refresh failed", "user_id", user.UID, "error", rerr)
		return err
	}
	return fn(refreshed)
}

// RefreshToken trades the refresh token for a new ID token through the
// Secure Token API.
func (c *AuthClient) RefreshToken(ctx context.Context, user *domain.IdentityUser) (*domain.IdentityUser, error) {
	if user == nil || user.RefreshToken == "" {
		return nil, apperrors.NewBackendError(backendName, apperrors.CodeInvalidToken, "", "no refresh token")
	}
	c.logger.DebugContext(ctx, "refreshing id token", "user_id", user.UID)
	return c.refresh(ctx, user)
}

func (c *AuthClient) refresh(ctx context.Context, user *domain.IdentityUser) (*domain.IdentityUser, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", user.RefreshToken)

	endpoint := c.tokenURL + "/token?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp refreshResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	u := user.Clone()
	u.IDToken = resp.IDToken
	if resp.RefreshToken != "" {
		u.RefreshToken = resp.RefreshToken
	}
	return u, nil
}

func (c *AuthClient) call(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.identityURL + "/" + method + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *AuthClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseIdentityError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (r authResponse) user(verified bool) *domain.IdentityUser {
	return &domain.IdentityUser{
		UID:           r.LocalID,
		Email:         r.Email,
		EmailVerified: verified,
		IDToken:       r.IDToken,
		RefreshToken:  r.RefreshToken,
	}
}
