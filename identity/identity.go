// Package identity defines the boundary with the external identity service.
// The orchestration packages (auth, deeplink, oauthflow, session) depend only
// on the Service interface; the gotrue subpackage provides the HTTP
// implementation, and identityfakes provides the test double.
package identity

import "context"

// OTPRequest carries the parameters for requesting an emailed one-time code.
type OTPRequest struct {
	Email string
	// CreateUser allows the service to create a new identity when none
	// exists for the email, enabling implicit sign-up via OTP.
	CreateUser bool
	// RedirectTo is embedded in the emailed magic link, if the service
	// sends one alongside the code.
	RedirectTo string
}

// SignUpRequest carries the parameters for password-based account creation.
type SignUpRequest struct {
	Email    string
	Password string
	// RedirectTo is embedded in the confirmation email when the service
	// requires email verification before issuing a session.
	RedirectTo string
	// Metadata is attached to the created user record.
	Metadata map[string]any
}

// SignUpResponse reports the outcome of account creation. Session is nil when
// the service requires email confirmation before a session can exist.
type SignUpResponse struct {
	Session *Session
	User    *User
}

// AuthorizeParams describes an OAuth authorization request against the
// identity service's /authorize endpoint.
type AuthorizeParams struct {
	Provider            string
	RedirectTo          string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Service is the subset of the identity service's API consumed by this
// module. Every call returns either a session/data object or an error; the
// HTTP implementation surfaces failures as *Error so callers can classify
// them by structured code rather than status inspection.
type Service interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error)
	SendOTP(ctx context.Context, req OTPRequest) error
	VerifyOTP(ctx context.Context, email, token string) (*Session, error)

	// AuthorizeURL builds the browser URL that starts an OAuth flow. No
	// network call is made; the browser drives the flow from here.
	AuthorizeURL(params AuthorizeParams) (string, error)
	// ExchangeCode trades a PKCE authorization code for a session.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*Session, error)
	// SetSession installs an explicit token pair, validating the access
	// token and falling back to a refresh when it is no longer usable.
	SetSession(ctx context.Context, accessToken, refreshToken string) (*Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)

	SendPasswordReset(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
	SignOut(ctx context.Context, accessToken string) error
}
