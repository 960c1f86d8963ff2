package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/lorrc/accounts/internal/core/errors"
	"github.com/lorrc/accounts/internal/core/ports"
)

// permissionDenied is what security rules answer with; any other 401 is a
// bad or expired auth token.
const permissionDenied = "Permission denied"

// Database is a ports.DataStore over the Realtime Database REST API.
// Requests are authorised with the ID token carried in the context.
type Database struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.DataStore = (*Database)(nil)

func NewDatabase(baseURL string, httpClient *http.Client, logger *slog.Logger) (*Database, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid database URL %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Database{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "firebase_database"),
	}, nil
}

// SetValue replaces the node at ref with value.
func (d *Database) SetValue(ctx context.Context, ref ports.Reference, value map[string]any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, d.nodeURL(ctx, ref), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = d.do(req)
	return err
}

// GetData returns the decoded node at ref, or nil when it does not exist.
func (d *Database) GetData(ctx context.Context, ref ports.Reference) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.nodeURL(ctx, ref), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	body, err := d.do(req)
	if err != nil {
		return nil, err
	}

	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return value, nil
}

// Ping checks that the database answers. Rule rejections still count as reachable.
func (d *Database) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/.json?shallow=true", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("database unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (d *Database) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}

func (d *Database) nodeURL(ctx context.Context, ref ports.Reference) string {
	base := d.baseURL
	if ref.Location != "" {
		base = strings.TrimSuffix(ref.Location, "/")
	}

	segs := make([]string, len(ref.Segments))
	for i, s := range ref.Segments {
		segs[i] = url.PathEscape(s)
	}

	u := base + "/" + strings.Join(segs, "/") + ".json"
	if token, ok := ports.IDTokenFromContext(ctx); ok {
		u += "?auth=" + url.QueryEscape(token)
	}
	return u
}

type databaseError struct {
	Error string `json:"error"`
}

func (d *Database) do(req *http.Request) ([]byte, error) {
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("database request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		d.logger.DebugContext(req.Context(), "database request rejected", "method", req.Method, "status", resp.StatusCode)
		var dbErr databaseError
		if json.Unmarshal(body, &dbErr) != nil || dbErr.Error == "" {
			return nil, fmt.Errorf("database returned status %d", resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized && dbErr.Error != permissionDenied {
			return nil, apperrors.NewBackendError(backendName, apperrors.CodeInvalidToken, "", dbErr.Error)
		}
		return nil, fmt.Errorf("database returned status %d: %s", resp.StatusCode, dbErr.Error)
	}
	return body, nil
}
