// Package accounts manages user accounts on top of an identity backend and
// a profile data store.
//
// A Module is built once with Setup. Each call to AuthProvider returns an
// independent AuthProvider holding its own session:
//
//	mod, err := accounts.Setup(ctx, accounts.Config{
//		DataStoreURL:    "https://my-app.firebaseio.com",
//		IdentityBackend: accounts.IdentityFirebase,
//		FirebaseAPIKey:  key,
//	})
//	...
//	p := mod.AuthProvider()
//	verified, err := p.Login(ctx, email, password)
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/lorrc/accounts/internal/adapters/secondary/email"
	"github.com/lorrc/accounts/internal/adapters/secondary/firebase"
	"github.com/lorrc/accounts/internal/adapters/secondary/memory"
	"github.com/lorrc/accounts/internal/adapters/secondary/postgres"
	"github.com/lorrc/accounts/internal/adapters/secondary/redis"
	"github.com/lorrc/accounts/internal/core/domain"
	apperrors "github.com/lorrc/accounts/internal/core/errors"
	"github.com/lorrc/accounts/internal/core/ports"
	"github.com/lorrc/accounts/internal/core/services"
	"github.com/lorrc/accounts/internal/infrastructure/metrics"
)

type (
	AuthProvider       = ports.AccountProvider
	UserInfo           = domain.UserInfo
	VerificationWatch  = ports.VerificationWatch
	VerificationConfig = services.VerificationConfig
	BackendError       = apperrors.BackendError
)

var (
	ErrInvalidCredentials   = apperrors.ErrInvalidCredentials
	ErrEmailAlreadyInUse    = apperrors.ErrEmailAlreadyInUse
	ErrUserNotFound         = apperrors.ErrUserNotFound
	ErrSavingData           = apperrors.ErrSavingData
	ErrInvalidDataFormat    = apperrors.ErrInvalidDataFormat
	ErrVerificationTimeout  = apperrors.ErrVerificationTimeout
	ErrMissingConfiguration = apperrors.ErrMissingConfiguration
	ErrUnsupportedDataStore = apperrors.ErrUnsupportedDataStore
	ErrUnsupportedIdentity  = apperrors.ErrUnsupportedIdentity
)

// Identity backends.
const (
	IdentityFirebase = "firebase"
	IdentityMemory   = "memory"
)

const defaultHTTPTimeout = 10 * time.Second

// Config selects and configures the backends.
//
// The scheme of DataStoreURL picks the store: https or http for a Firebase
// Realtime Database, postgres or postgresql, redis or rediss, and mem for
// an in-process store.
type Config struct {
	DataStoreURL    string
	UsersCollection string
	// AutoMigrate applies the Postgres schema on Setup.
	AutoMigrate bool

	IdentityBackend string
	FirebaseAPIKey  string
	IdentityURL     string
	TokenURL        string
	HTTPTimeout     time.Duration

	Verification VerificationConfig
}

// DefaultVerificationConfig returns the bounded poll used when Config leaves
// Verification empty.
func DefaultVerificationConfig() VerificationConfig {
	return services.DefaultVerificationConfig()
}

type options struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	httpClient *http.Client
	notifier   ports.Notifier
}

// Option customises Setup.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records every provider operation in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithHTTPClient replaces the client used for the Firebase REST APIs.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithNotifier sets where the memory identity backend delivers its mail.
func WithNotifier(n ports.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// Module owns the shared backends. It is safe for concurrent use.
type Module struct {
	cfg      services.ProviderConfig
	identity ports.IdentityBackend
	store    ports.DataStore
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Setup validates cfg, opens the data store and builds the identity backend.
func Setup(ctx context.Context, cfg Config, opts ...Option) (*Module, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.httpClient == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = defaultHTTPTimeout
		}
		o.httpClient = &http.Client{Timeout: timeout}
	}

	if cfg.DataStoreURL == "" {
		return nil, fmt.Errorf("%w: data store URL is not set", ErrMissingConfiguration)
	}
	if cfg.IdentityBackend == "" {
		cfg.IdentityBackend = IdentityFirebase
	}

	identity, err := newIdentity(cfg, o)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, o)
	if err != nil {
		return nil, err
	}

	verification := cfg.Verification
	if verification == (VerificationConfig{}) {
		verification = DefaultVerificationConfig()
	}

	providerCfg := services.ProviderConfig{
		DataStoreURL:    cfg.DataStoreURL,
		UsersCollection: cfg.UsersCollection,
		Verification:    verification,
	}
	if _, err := services.NewAccountProvider(providerCfg, identity, store, o.logger); err != nil {
		_ = store.Close()
		return nil, err
	}

	o.logger.Info("account module ready",
		"identity_backend", cfg.IdentityBackend,
		"data_store", redactURL(cfg.DataStoreURL),
	)

	return &Module{
		cfg:      providerCfg,
		identity: identity,
		store:    store,
		metrics:  o.metrics,
		logger:   o.logger,
	}, nil
}

func newIdentity(cfg Config, o options) (ports.IdentityBackend, error) {
	switch cfg.IdentityBackend {
	case IdentityFirebase:
		return firebase.NewAuthClient(firebase.AuthConfig{
			APIKey:      cfg.FirebaseAPIKey,
			IdentityURL: cfg.IdentityURL,
			TokenURL:    cfg.TokenURL,
			HTTPClient:  o.httpClient,
			Logger:      o.logger,
		})
	case IdentityMemory:
		notifier := o.notifier
		if notifier == nil {
			notifier = email.NewLogNotifierWithLogger(o.logger)
		}
		return memory.NewIdentity(memory.IdentityConfig{
			Notifier: notifier,
			Logger:   o.logger,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedIdentity, cfg.IdentityBackend)
	}
}

func openStore(ctx context.Context, cfg Config, o options) (ports.DataStore, error) {
	u, err := url.Parse(cfg.DataStoreURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDataStore, err)
	}

	switch u.Scheme {
	case "https", "http":
		return firebase.NewDatabase(cfg.DataStoreURL, o.httpClient, o.logger)
	case "postgres", "postgresql":
		return postgres.Open(ctx, cfg.DataStoreURL, cfg.AutoMigrate, o.logger)
	case "redis", "rediss":
		return redis.Open(ctx, cfg.DataStoreURL, o.logger)
	case "mem":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedDataStore, u.Scheme)
	}
}

// AuthProvider returns a new provider with its own, initially empty, session.
func (m *Module) AuthProvider() AuthProvider {
	// Setup built a provider from the same inputs, so this cannot fail.
	p, _ := services.NewAccountProvider(m.cfg, m.identity, m.store, m.logger)
	if m.metrics != nil {
		return metrics.NewInstrumentedProvider(p, m.metrics)
	}
	return p
}

// Ping checks that the data store is reachable.
func (m *Module) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

// Close releases the data store.
func (m *Module) Close() error {
	return m.store.Close()
}

// VerifyEmail marks the account registered under address as verified. It
// only works with the memory identity backend, where no mail is really sent.
func (m *Module) VerifyEmail(address string) error {
	id, ok := m.identity.(*memory.Identity)
	if !ok {
		return errors.New("email can only be verified directly with the memory identity backend")
	}
	if !id.VerifyEmailAddress(address) {
		return ErrUserNotFound
	}
	return nil
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid"
	}
	return u.Redacted()
}
