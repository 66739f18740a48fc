// Package gotrue implements the identity.Service interface against a
// GoTrue-compatible REST API (the auth component of a Supabase project).
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dietplanner/authflow/identity"
)

const defaultTimeout = 30 * time.Second

// Client speaks to a GoTrue server. It is stateless: tokens are passed in by
// callers, never held.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

var _ identity.Service = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the request logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a Client for the GoTrue server at baseURL, e.g.
// "https://<project>.supabase.co/auth/v1". apiKey is the project's
// publishable key, sent on every request.
func New(baseURL, apiKey string, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("[gotrue.New] baseURL is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("[gotrue.New] apiKey is required")
	}

	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// SignInWithPassword exchanges email/password credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	body := map[string]any{"email": email, "password": password}
	session := &identity.Session{}
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, session); err != nil {
		return nil, errors.Wrap(err, "[SignInWithPassword] password grant")
	}
	return session, nil
}

// signUpResponse covers both shapes GoTrue returns from /signup: a full
// session when autoconfirm is on, or a bare user record when email
// confirmation is pending.
type signUpResponse struct {
	identity.Session
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SignUp creates an account. The response carries no session when the server
// requires email confirmation first.
func (c *Client) SignUp(ctx context.Context, req identity.SignUpRequest) (*identity.SignUpResponse, error) {
	body := map[string]any{"email": req.Email, "password": req.Password}
	if len(req.Metadata) > 0 {
		body["data"] = req.Metadata
	}

	path := "/signup"
	if req.RedirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(req.RedirectTo)
	}

	resp := &signUpResponse{}
	if err := c.do(ctx, http.MethodPost, path, "", body, resp); err != nil {
		return nil, errors.Wrap(err, "[SignUp] signup request")
	}

	if resp.AccessToken == "" {
		user := resp.Session.User
		if user == nil {
			user = &identity.User{ID: resp.ID, Email: resp.Email}
		}
		return &identity.SignUpResponse{User: user}, nil
	}
	session := resp.Session
	return &identity.SignUpResponse{Session: &session, User: session.User}, nil
}

// SendOTP asks the server to email a one-time code.
func (c *Client) SendOTP(ctx context.Context, req identity.OTPRequest) error {
	body := map[string]any{"email": req.Email, "create_user": req.CreateUser}

	path := "/otp"
	if req.RedirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(req.RedirectTo)
	}

	if err := c.do(ctx, http.MethodPost, path, "", body, nil); err != nil {
		return errors.Wrap(err, "[SendOTP] otp request")
	}
	return nil
}

// VerifyOTP redeems an emailed code for a session. The channel type is fixed
// to "email".
func (c *Client) VerifyOTP(ctx context.Context, email, token string) (*identity.Session, error) {
	body := map[string]any{"email": email, "token": token, "type": "email"}
	session := &identity.Session{}
	if err := c.do(ctx, http.MethodPost, "/verify", "", body, session); err != nil {
		return nil, errors.Wrap(err, "[VerifyOTP] verify request")
	}
	return session, nil
}

// AuthorizeURL builds the /authorize URL that starts a provider OAuth flow in
// a browser.
func (c *Client) AuthorizeURL(params identity.AuthorizeParams) (string, error) {
	if params.Provider == "" {
		return "", errors.New("[AuthorizeURL] provider is required")
	}

	values := url.Values{}
	values.Set("provider", params.Provider)
	if params.RedirectTo != "" {
		values.Set("redirect_to", params.RedirectTo)
	}
	if params.CodeChallenge != "" {
		values.Set("code_challenge", params.CodeChallenge)
		values.Set("code_challenge_method", params.CodeChallengeMethod)
	}
	return c.baseURL + "/authorize?" + values.Encode(), nil
}

// ExchangeCode trades a PKCE authorization code for a session.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*identity.Session, error) {
	body := map[string]any{"auth_code": code, "code_verifier": codeVerifier}
	session := &identity.Session{}
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=pkce", "", body, session); err != nil {
		return nil, errors.Wrap(err, "[ExchangeCode] pkce grant")
	}
	return session, nil
}

// SetSession installs an explicit token pair. The access token is validated
// by fetching its user; when the server rejects it, the refresh token is
// redeemed instead, which mirrors how the pair behaves after the emailed
// link sat unopened past the access token's lifetime.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*identity.Session, error) {
	user := &identity.User{}
	err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, user)
	if err == nil {
		return &identity.Session{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			TokenType:    "bearer",
			User:         user,
		}, nil
	}

	var svcErr *identity.Error
	if errors.As(err, &svcErr) && (svcErr.Status == http.StatusUnauthorized || svcErr.Status == http.StatusForbidden) {
		session, refreshErr := c.RefreshSession(ctx, refreshToken)
		if refreshErr != nil {
			return nil, errors.Wrap(refreshErr, "[SetSession] refresh fallback")
		}
		return session, nil
	}
	return nil, errors.Wrap(err, "[SetSession] user lookup")
}

// RefreshSession redeems a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*identity.Session, error) {
	body := map[string]any{"refresh_token": refreshToken}
	session := &identity.Session{}
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, session); err != nil {
		return nil, errors.Wrap(err, "[RefreshSession] refresh grant")
	}
	return session, nil
}

// SendPasswordReset asks the server to email a recovery link. GoTrue answers
// with success whether or not the email is registered, so account existence
// is not revealed.
func (c *Client) SendPasswordReset(ctx context.Context, email, redirectTo string) error {
	body := map[string]any{"email": email}

	path := "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}

	if err := c.do(ctx, http.MethodPost, path, "", body, nil); err != nil {
		return errors.Wrap(err, "[SendPasswordReset] recover request")
	}
	return nil
}

// UpdatePassword sets a new password for the authenticated user.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	body := map[string]any{"password": newPassword}
	if err := c.do(ctx, http.MethodPut, "/user", accessToken, body, nil); err != nil {
		return errors.Wrap(err, "[UpdatePassword] user update")
	}
	return nil
}

// SignOut revokes the session server-side.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil); err != nil {
		return errors.Wrap(err, "[SignOut] logout request")
	}
	return nil
}

// errorResponse covers the error body shapes GoTrue emits across versions.
type errorResponse struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	ErrorField       string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("X-Client-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "identity request")
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("identity request")

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "decode response body")
	}
	return nil
}

func parseError(status int, raw []byte) error {
	parsed := errorResponse{}
	_ = json.Unmarshal(raw, &parsed)

	message := parsed.Msg
	if message == "" {
		message = parsed.ErrorDescription
	}
	if message == "" {
		message = parsed.Message
	}
	if message == "" {
		message = parsed.ErrorField
	}
	if message == "" {
		message = fmt.Sprintf("identity service returned status %d", status)
	}

	code := parsed.ErrorCode
	if code == "" && parsed.ErrorDescription != "" {
		// OAuth-style bodies put the machine code in "error".
		code = parsed.ErrorField
	}

	return &identity.Error{Status: status, Code: code, Message: message}
}
