// Package api is the REST client for the support backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/soyeahso/agentdesk/internal/config"
	"github.com/soyeahso/agentdesk/internal/credentials"
	"github.com/soyeahso/agentdesk/internal/logging"
	"github.com/soyeahso/agentdesk/internal/version"
)

// ErrSessionExpired is returned when a 401 could not be recovered by a
// token refresh. Stored credentials are cleared by then.
var ErrSessionExpired = errors.New("session expired, sign in again")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (%d)", e.Status)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status of err when it is an *APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Client calls the support backend with the stored bearer token.
type Client struct {
	baseURL   string
	http      *http.Client
	creds     *credentials.Manager
	oauth     *oauth2.Config
	log       *logging.Logger
	userAgent string

	refreshMu sync.Mutex
	onExpired func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for API and token calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSessionExpired registers fn to run after credentials were cleared
// because the session could not be refreshed.
func WithSessionExpired(fn func()) Option {
	return func(c *Client) { c.onExpired = fn }
}

// New creates a client for cfg.
func New(cfg config.APIConfig, creds *credentials.Manager, log *logging.Logger, opts ...Option) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultAPITimeout
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: timeout},
		creds:     creds,
		log:       log.Sub("api"),
		userAgent: version.UserAgent(),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  base + "/auth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	if cfg.Scope != "" {
		c.oauth.Scopes = strings.Fields(cfg.Scope)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// request is one API call. Bodies are encoded up front so the call can be
// replayed after a token refresh.
type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

func jsonRequest(method, path string, body any) (request, error) {
	r := request{method: method, path: path}
	if body == nil {
		return r, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return r, fmt.Errorf("failed to marshal request: %w", err)
	}
	r.body = data
	r.contentType = "application/json"
	return r, nil
}

// call sends req, refreshing the token once on 401, and decodes the
// response into out when out is non-nil.
func (c *Client) call(ctx context.Context, req request, out any) error {
	token, err := c.creds.Token()
	if err != nil {
		return err
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.log.Debug().Str("path", req.path).Msg("401, refreshing token")
		fresh, err := c.refresh(ctx, token)
		if err != nil {
			c.expire(err)
			return fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		resp, err = c.send(ctx, req, fresh)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func (c *Client) send(ctx context.Context, req request, token string) (*http.Response, error) {
	u := c.baseURL + "/" + strings.TrimPrefix(req.path, "/")
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	c.log.Trace().
		Str("method", req.method).
		Str("path", req.path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("api call")
	return resp, nil
}

// refresh exchanges the stored refresh token for a new pair. stale is the
// token that just got a 401; when the stored token already differs another
// call refreshed in the meantime and its token is reused.
func (c *Client) refresh(ctx context.Context, stale string) (string, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	sess, err := c.creds.Load()
	if err != nil {
		return "", err
	}
	if sess.Token != "" && sess.Token != stale {
		return sess.Token, nil
	}
	if sess.RefreshToken == "" {
		return "", errors.New("no refresh token stored")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: sess.RefreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("refreshing token: %w", err)
	}
	if err := c.creds.UpdateTokens(tok.AccessToken, tok.RefreshToken); err != nil {
		return "", err
	}
	c.log.Info().Msg("access token refreshed")
	return tok.AccessToken, nil
}

func (c *Client) expire(cause error) {
	c.log.Warn().Err(cause).Msg("session expired, clearing credentials")
	if err := c.creds.Clear(); err != nil {
		c.log.Error().Err(err).Msg("failed to clear credentials")
	}
	if c.onExpired != nil {
		c.onExpired()
	}
}

// Login signs in with the password grant and stores the session.
func (c *Client) Login(ctx context.Context, username, password string) (credentials.Session, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	tok, err := c.oauth.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return credentials.Session{}, &APIError{Status: re.Response.StatusCode, Message: errorMessage(re.Body)}
		}
		return credentials.Session{}, fmt.Errorf("login: %w", err)
	}

	sess := credentials.Session{
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Agent:        agentFromToken(tok, username),
	}
	if sess.Agent.ID.IsZero() {
		return credentials.Session{}, errors.New("login response carries no agent id")
	}
	if err := c.creds.Save(sess); err != nil {
		return credentials.Session{}, err
	}
	c.log.Info().Str("agent", sess.Agent.ID.String()).Msg("signed in")
	return sess, nil
}

// Logout forgets the stored session.
func (c *Client) Logout() error {
	return c.creds.Clear()
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func decode(resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage pulls detail or message out of an error body.
// maxErrorRunes bounds the raw body quoted in an APIError.
const maxErrorRunes = 200

func errorMessage(body []byte) string {
	var e struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		var detail string
		if len(e.Detail) > 0 && json.Unmarshal(e.Detail, &detail) == nil && detail != "" {
			return detail
		}
		if len(e.Detail) > 0 && string(e.Detail) != "null" {
			return string(e.Detail)
		}
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	msg := []rune(strings.TrimSpace(string(body)))
	if len(msg) > maxErrorRunes {
		msg = msg[:maxErrorRunes]
	}
	return string(msg)
}
