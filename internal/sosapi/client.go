// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sosapi is the client for the external SOS REST backend.
package sosapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/sosync/internal/credentials"
	"github.com/ManuGH/sosync/internal/domain/sos/model"
	xglog "github.com/ManuGH/sosync/internal/log"
	"github.com/ManuGH/sosync/internal/metrics"
	"github.com/ManuGH/sosync/internal/platform/httpx"
	"github.com/ManuGH/sosync/internal/wire"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultProbePath = "/api/get-all-sos/"

	maxErrorBody = 512
	userAgent    = "sosync"
)

// Credentials is the token cache the client reads and invalidates.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	SaveToken(ctx context.Context, token string) error
	SaveProfile(ctx context.Context, p credentials.Profile) error
	Clear(ctx context.Context) error
}

// Client calls the REST backend. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	http      *http.Client
	creds     Credentials
	probePath string
	logger    zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the hardened default client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCredentials attaches a token cache. Without one, authenticated calls
// fail with ErrUnauthorized.
func WithCredentials(creds Credentials) Option {
	return func(c *Client) { c.creds = creds }
}

// WithProbePath overrides the path used by Probe.
func WithProbePath(p string) Option {
	return func(c *Client) {
		if p != "" {
			c.probePath = p
		}
	}
}

// New returns a client for baseURL. timeout bounds each call.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("sosapi: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("sosapi: base url must be http(s): %q", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("sosapi: base url has no host: %q", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		base:      u,
		http:      httpx.NewClient(timeout, httpx.WithTracing(), httpx.WithUserAgent(userAgent)),
		probePath: DefaultProbePath,
		logger:    xglog.WithComponent("sosapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string { return c.base.String() }

// CreateSOS registers a new session. No auth is required.
func (c *Client) CreateSOS(ctx context.Context, name string, cat model.Category, pos model.Position) (CreateResult, error) {
	var out CreateResult
	err := c.do(ctx, "create_sos", http.MethodPost, "/api/create-sos/", false, createRequest{
		Name:      name,
		SOSType:   cat.WireCode(),
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
	}, &out)
	if err != nil {
		return CreateResult{}, err
	}
	if out.SessionID == "" {
		return CreateResult{}, &APIError{Sentinel: ErrBadResponse, Operation: "create_sos", Body: "missing sos_id"}
	}
	return out, nil
}

// UpdateLocation stores one position report for sessionID.
func (c *Client) UpdateLocation(ctx context.Context, sessionID string, pos model.Position) error {
	var out statusResponse
	return c.do(ctx, "update_location", http.MethodPost, "/api/update-location/", false, locationRequest{
		SessionID: wire.ID(sessionID),
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
	}, &out)
}

// ResolveSOS marks the session resolved on the backend.
func (c *Client) ResolveSOS(ctx context.Context, sessionID string) (SessionRecord, error) {
	var out resolveResponse
	path := "/api/resolve-sos/" + url.PathEscape(sessionID) + "/"
	if err := c.do(ctx, "resolve_sos", http.MethodPost, path, true, nil, &out); err != nil {
		return SessionRecord{}, err
	}
	return out.SOS, nil
}

// AssignOfficer attaches an officer and unit to a session.
func (c *Client) AssignOfficer(ctx context.Context, sessionID, officer, unit string) (Assignment, error) {
	var out assignResponse
	err := c.do(ctx, "assign_officer", http.MethodPost, "/api/assign-officer/", true, assignRequest{
		SessionID:   wire.ID(sessionID),
		OfficerName: officer,
		UnitNumber:  unit,
	}, &out)
	if err != nil {
		return Assignment{}, err
	}
	return out.Officer, nil
}

// ListSessions returns every session the backend knows about.
func (c *Client) ListSessions(ctx context.Context) ([]SessionRecord, error) {
	var out listResponse
	if err := c.do(ctx, "list_sessions", http.MethodGet, "/api/get-all-sos/", false, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetSession fetches one session including its location updates.
func (c *Client) GetSession(ctx context.Context, sessionID string) (SessionRecord, error) {
	var out SessionRecord
	path := "/api/sos/" + url.PathEscape(sessionID) + "/"
	if err := c.do(ctx, "get_session", http.MethodGet, path, true, nil, &out); err != nil {
		return SessionRecord{}, err
	}
	return out, nil
}

// Login exchanges username and password for a token, stores it, and loads
// the profile.
func (c *Client) Login(ctx context.Context, username, password string) (credentials.Profile, error) {
	if c.creds == nil {
		return credentials.Profile{}, &APIError{Sentinel: ErrUnauthorized, Operation: "login", Body: "no credential store"}
	}
	var out loginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/auth/token/login/", false, loginRequest{
		Username: username,
		Password: password,
	}, &out); err != nil {
		return credentials.Profile{}, err
	}
	if out.AuthToken == "" {
		return credentials.Profile{}, &APIError{Sentinel: ErrBadResponse, Operation: "login", Body: "missing auth_token"}
	}
	if err := c.creds.SaveToken(ctx, out.AuthToken); err != nil {
		return credentials.Profile{}, err
	}
	return c.Me(ctx)
}

// Logout invalidates the token on the backend. Local credentials are
// cleared whatever the backend answers.
func (c *Client) Logout(ctx context.Context) error {
	if c.creds == nil {
		return nil
	}
	remote := c.do(ctx, "logout", http.MethodPost, "/auth/token/logout/", true, nil, nil)
	local := c.creds.Clear(ctx)
	if remote != nil && !errors.Is(remote, ErrUnauthorized) {
		c.logger.Warn().Err(remote).Str(xglog.FieldEvent, "sosapi.logout_failed").Msg("backend logout failed; local credentials cleared")
	}
	return local
}

// Me fetches and caches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (credentials.Profile, error) {
	var p credentials.Profile
	if err := c.do(ctx, "me", http.MethodGet, "/auth/users/me/", true, nil, &p); err != nil {
		return credentials.Profile{}, err
	}
	if c.creds != nil {
		if err := c.creds.SaveProfile(ctx, p); err != nil {
			return credentials.Profile{}, err
		}
	}
	return p, nil
}

// Probe reports whether the backend answers HTTP at all. Any response,
// including 4xx, counts as reachable.
func (c *Client) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(c.probePath), nil)
	if err != nil {
		return &APIError{Sentinel: ErrUnavailable, Operation: "probe", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordAPIRequest("probe", 0, err)
		return c.transportError(ctx, "probe", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	metrics.RecordAPIRequest("probe", resp.StatusCode, nil)
	if resp.StatusCode >= 500 {
		return &APIError{Sentinel: ErrUnavailable, Operation: "probe", Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = c.base.Path + path
	return u.String()
}

func (c *Client) do(ctx context.Context, op, method, path string, auth bool, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("sosapi: %s: encode request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("sosapi: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		tok, err := c.token(ctx)
		if err != nil {
			return err
		}
		if tok == "" {
			return &APIError{Sentinel: ErrUnauthorized, Operation: op}
		}
		req.Header.Set("Authorization", "Token "+tok)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordAPIRequest(op, 0, err)
		return c.transportError(ctx, op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.RecordAPIRequest(op, resp.StatusCode, nil)

	logger := xglog.WithContext(ctx, c.logger).With().Str("operation", op).Int(xglog.FieldStatus, resp.StatusCode).Logger()
	logger.Debug().Dur("duration", time.Since(start)).Msg("backend call")

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		if c.creds != nil {
			if cerr := c.creds.Clear(ctx); cerr != nil {
				logger.Warn().Err(cerr).Msg("failed to clear credentials after 401")
			}
		}
		return &APIError{Sentinel: ErrAuthExpired, Operation: op, Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		sentinel := ErrRejected
		if resp.StatusCode == http.StatusNotFound {
			sentinel = ErrNotFound
		}
		return &APIError{Sentinel: sentinel, Operation: op, Status: resp.StatusCode, Body: errorMessage(raw)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.creds == nil {
		return "", nil
	}
	tok, err := c.creds.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("sosapi: read token: %w", err)
	}
	return tok, nil
}

func (c *Client) transportError(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("sosapi: %s: %w", op, ctx.Err())
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Sentinel: ErrTimeout, Operation: op, Err: err}
	}
	return &APIError{Sentinel: ErrUnavailable, Operation: op, Err: err}
}

// errorMessage extracts the backend's error or message field, falling back
// to the raw body.
func errorMessage(raw []byte) string {
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		switch {
		case eb.Error != "":
			return eb.Error
		case eb.Message != "":
			return eb.Message
		case eb.Detail != "":
			return eb.Detail
		}
	}
	return strings.TrimSpace(string(raw))
}
