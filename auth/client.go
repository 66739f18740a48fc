// Package auth implements the credential session client: password, OTP and
// password-reset flows against the identity service, with every outcome
// normalized for display and every session change published through the
// session store.
package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dietplanner/authflow/autherrors"
	"github.com/dietplanner/authflow/identity"
	"github.com/dietplanner/authflow/internal/applink"
	"github.com/dietplanner/authflow/session"
)

const (
	minPasswordLength = 8
	otpLength         = 6
)

// SignUpResult reports a sign-up outcome. NeedsEmailVerification is true
// when the account was created but no session exists yet because the user
// must confirm their email first.
type SignUpResult struct {
	NeedsEmailVerification bool
}

// Client orchestrates credential flows. Callers are expected to disable the
// triggering control while a call is in flight; the client does not queue or
// deduplicate concurrent requests.
type Client struct {
	svc      identity.Service
	sessions *session.Store
	persist  session.Persister

	redirectURI      string
	resetRedirectURI string
	nowTime          func() time.Time
	leeway           time.Duration
	log              zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAppScheme derives the email redirect URIs from the application's
// custom URL scheme.
func WithAppScheme(scheme string) Option {
	return func(c *Client) {
		c.redirectURI = applink.RedirectURI(scheme, applink.PathAuth)
		c.resetRedirectURI = applink.RedirectURI(scheme, applink.PathResetPassword)
	}
}

// WithPersistence stores sessions on the device so Start can restore them
// after a cold start.
func WithPersistence(persist session.Persister) Option {
	return func(c *Client) {
		c.persist = persist
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a credential session client bound to the given store.
func New(svc identity.Service, sessions *session.Store, options ...Option) (*Client, error) {
	if svc == nil {
		return nil, errors.New("[auth.New] identity service is required")
	}
	if sessions == nil {
		return nil, errors.New("[auth.New] session store is required")
	}

	client := &Client{
		svc:              svc,
		sessions:         sessions,
		redirectURI:      applink.RedirectURI(applink.DefaultScheme, applink.PathAuth),
		resetRedirectURI: applink.RedirectURI(applink.DefaultScheme, applink.PathResetPassword),
		nowTime:          time.Now,
		leeway:           30 * time.Second,
		log:              zerolog.Nop(),
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// Start performs the initial session lookup and publishes the result,
// ending the store's loading state. A persisted session that is close to
// expiry is refreshed before being published; a rejected refresh clears the
// persisted copy.
func (c *Client) Start(ctx context.Context) {
	if c.persist == nil {
		c.sessions.Publish(nil)
		return
	}

	stored, err := c.persist.LoadSession(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to load persisted session")
		c.sessions.Publish(nil)
		return
	}
	if stored == nil {
		c.sessions.Publish(nil)
		return
	}

	if !stored.ExpiresWithin(c.nowTime(), c.leeway) {
		c.sessions.Publish(stored)
		return
	}

	renewed, err := c.svc.RefreshSession(ctx, stored.RefreshToken)
	if err != nil {
		c.log.Warn().Err(err).Msg("persisted session could not be refreshed")
		c.clearPersisted(ctx)
		c.sessions.Publish(nil)
		return
	}
	c.install(ctx, renewed)
}

// SignInWithPassword authenticates with email/password. A nil return means
// the store now holds a live session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) *autherrors.Error {
	established, err := c.svc.SignInWithPassword(ctx, email, password)
	if err != nil {
		return autherrors.Normalize(err)
	}
	c.install(ctx, established)
	return nil
}

// SignUpWithPassword creates an account. When the service requires email
// confirmation no session exists yet and the store is left untouched.
func (c *Client) SignUpWithPassword(ctx context.Context, email, password string) (SignUpResult, *autherrors.Error) {
	resp, err := c.svc.SignUp(ctx, identity.SignUpRequest{
		Email:      email,
		Password:   password,
		RedirectTo: c.redirectURI,
		Metadata:   map[string]any{"onboarded": false},
	})
	if err != nil {
		return SignUpResult{}, autherrors.Normalize(err)
	}

	if resp.Session == nil {
		return SignUpResult{NeedsEmailVerification: true}, nil
	}
	c.install(ctx, resp.Session)
	return SignUpResult{}, nil
}

// SendOTP emails a one-time code, creating the account implicitly when none
// exists.
func (c *Client) SendOTP(ctx context.Context, email string) *autherrors.Error {
	err := c.svc.SendOTP(ctx, identity.OTPRequest{
		Email:      email,
		CreateUser: true,
		RedirectTo: c.redirectURI,
	})
	return autherrors.Normalize(err)
}

// VerifyOTP redeems a six-digit emailed code for a session. Malformed codes
// are rejected locally without a network call.
func (c *Client) VerifyOTP(ctx context.Context, email, token string) *autherrors.Error {
	if !validOTP(token) {
		return autherrors.New(autherrors.CategoryInvalidOrExpiredCode, "Enter the 6-digit code from your email.")
	}

	established, err := c.svc.VerifyOTP(ctx, email, token)
	if err != nil {
		return autherrors.Normalize(err)
	}
	c.install(ctx, established)
	return nil
}

// SendPasswordReset emails a recovery link. The outcome does not reveal
// whether the address is registered.
func (c *Client) SendPasswordReset(ctx context.Context, email string) *autherrors.Error {
	return autherrors.Normalize(c.svc.SendPasswordReset(ctx, email, c.resetRedirectURI))
}

// UpdatePassword validates the new password locally, then updates it for the
// current session's user. On success the session is signed out so the user
// re-authenticates with the new credentials.
func (c *Client) UpdatePassword(ctx context.Context, newPassword, confirmPassword string) *autherrors.Error {
	if newPassword == "" || confirmPassword == "" {
		return autherrors.New(autherrors.CategoryUnknown, "Enter and confirm your new password.")
	}
	if newPassword != confirmPassword {
		return autherrors.New(autherrors.CategoryUnknown, "Passwords do not match.")
	}
	if len(newPassword) < minPasswordLength {
		return autherrors.New(autherrors.CategoryUnknown, "Password must be at least 8 characters.")
	}

	current := c.sessions.Session()
	if current == nil {
		return autherrors.New(autherrors.CategoryUnauthenticated, "Your reset link is no longer valid. Request a new one.")
	}

	if err := c.svc.UpdatePassword(ctx, current.AccessToken, newPassword); err != nil {
		return autherrors.Normalize(err)
	}
	return c.SignOut(ctx)
}

// SignOut clears the held session unconditionally. It is safe to call with
// no active session; a server-side revocation failure is reported but the
// local state is already cleared.
func (c *Client) SignOut(ctx context.Context) *autherrors.Error {
	current := c.sessions.Session()

	c.clearPersisted(ctx)
	c.sessions.Publish(nil)

	if current == nil {
		return nil
	}
	if err := c.svc.SignOut(ctx, current.AccessToken); err != nil {
		c.log.Warn().Err(err).Msg("server-side sign-out failed")
		return autherrors.Normalize(err)
	}
	return nil
}

func (c *Client) install(ctx context.Context, established *identity.Session) {
	if c.persist != nil {
		if err := c.persist.SaveSession(ctx, established); err != nil {
			c.log.Warn().Err(err).Msg("failed to persist session")
		}
	}
	c.sessions.Publish(established)
}

func (c *Client) clearPersisted(ctx context.Context) {
	if c.persist == nil {
		return
	}
	if err := c.persist.ClearSession(ctx); err != nil {
		c.log.Warn().Err(err).Msg("failed to clear persisted session")
	}
}

func validOTP(token string) bool {
	if len(token) != otpLength {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
