// Package oauthflow signs the user in through an external OAuth provider:
// it opens a browser authentication session against the identity service's
// authorize endpoint and exchanges the resulting redirect for a session.
package oauthflow

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/dietplanner/authflow/autherrors"
	"github.com/dietplanner/authflow/identity"
	"github.com/dietplanner/authflow/internal/applink"
	"github.com/dietplanner/authflow/session"
)

// ResultType classifies how a browser authentication session ended.
type ResultType string

const (
	// ResultSuccess means the browser reached the redirect URI.
	ResultSuccess ResultType = "success"
	// ResultCancelled means the user dismissed the browser.
	ResultCancelled ResultType = "cancelled"
	// ResultError means the browser session failed.
	ResultError ResultType = "error"
)

// BrowserResult is the terminal state of a browser authentication session.
// URL is the final redirect URL and is only meaningful on success.
type BrowserResult struct {
	Type ResultType
	URL  string
}

// Browser opens a controlled web authentication session and blocks until the
// redirect completes, the user cancels, or the session fails.
type Browser interface {
	OpenAuthSession(ctx context.Context, authURL, redirectURI string) (BrowserResult, error)
}

const defaultProvider = "google"

// Exchange runs the OAuth sign-in flow for a fixed provider.
type Exchange struct {
	svc      identity.Service
	sessions *session.Store
	persist  session.Persister
	browser  Browser

	provider    string
	redirectURI string
	newVerifier func() string
	log         zerolog.Logger
}

// Option configures an Exchange.
type Option func(*Exchange)

// WithBrowser supplies the browser session opener. Leave unset on platforms
// where the OS handles the redirect natively; SignIn then returns once the
// flow has been initiated and the deep-link recoverer completes it.
func WithBrowser(browser Browser) Option {
	return func(e *Exchange) {
		e.browser = browser
	}
}

// WithProvider overrides the OAuth provider.
func WithProvider(provider string) Option {
	return func(e *Exchange) {
		e.provider = provider
	}
}

// WithAppScheme derives the redirect URI from the app's custom URL scheme.
func WithAppScheme(scheme string) Option {
	return func(e *Exchange) {
		e.redirectURI = applink.RedirectURI(scheme, applink.PathAuth)
	}
}

// WithPersistence stores the exchanged session on the device.
func WithPersistence(persist session.Persister) Option {
	return func(e *Exchange) {
		e.persist = persist
	}
}

// WithVerifier sets the PKCE verifier source (primarily for testing).
func WithVerifier(fn func() string) Option {
	return func(e *Exchange) {
		e.newVerifier = fn
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Exchange) {
		e.log = log
	}
}

// New creates an Exchange.
func New(svc identity.Service, sessions *session.Store, options ...Option) (*Exchange, error) {
	if svc == nil {
		return nil, errors.New("[oauthflow.New] identity service is required")
	}
	if sessions == nil {
		return nil, errors.New("[oauthflow.New] session store is required")
	}

	exchange := &Exchange{
		svc:         svc,
		sessions:    sessions,
		provider:    defaultProvider,
		redirectURI: applink.RedirectURI(applink.DefaultScheme, applink.PathAuth),
		newVerifier: oauth2.GenerateVerifier,
		log:         zerolog.Nop(),
	}
	for _, opt := range options {
		opt(exchange)
	}
	return exchange, nil
}

// SignIn runs the provider sign-in flow. Cancellation by the user resolves
// with the Cancelled category; callers should treat it as informational and
// allow a retry without an alarming message.
func (e *Exchange) SignIn(ctx context.Context) *autherrors.Error {
	verifier := e.newVerifier()

	authURL, err := e.svc.AuthorizeURL(identity.AuthorizeParams{
		Provider:            e.provider,
		RedirectTo:          e.redirectURI,
		CodeChallenge:       oauth2.S256ChallengeFromVerifier(verifier),
		CodeChallengeMethod: "s256",
	})
	if err != nil {
		return autherrors.Normalize(err)
	}

	if e.browser == nil {
		// Native redirect handling: the OS opens authURL and delivers the
		// callback as a deep link; initiation is the whole job here.
		e.log.Debug().Str("provider", e.provider).Msg("oauth flow initiated without browser session")
		return nil
	}

	result, err := e.browser.OpenAuthSession(ctx, authURL, e.redirectURI)
	if err != nil {
		e.log.Warn().Err(err).Msg("browser auth session failed")
		return autherrors.New(autherrors.CategoryUnknown, "Sign-in could not be completed. Please try again.")
	}

	switch result.Type {
	case ResultSuccess:
		return e.complete(ctx, result.URL, verifier)
	case ResultCancelled:
		return autherrors.New(autherrors.CategoryCancelled, "Sign-in was cancelled.")
	default:
		return autherrors.New(autherrors.CategoryUnknown, "Sign-in could not be completed. Please try again.")
	}
}

func (e *Exchange) complete(ctx context.Context, finalURL, verifier string) *autherrors.Error {
	callback, err := applink.ParseCallback(finalURL)
	if err != nil || callback.Code == "" {
		e.log.Warn().Err(err).Msg("redirect carried no authorization code")
		return autherrors.New(autherrors.CategoryUnknown, "Sign-in could not be completed. Please try again.")
	}

	exchanged, err := e.svc.ExchangeCode(ctx, callback.Code, verifier)
	if err != nil {
		return autherrors.Normalize(err)
	}

	if e.persist != nil {
		if err := e.persist.SaveSession(ctx, exchanged); err != nil {
			e.log.Warn().Err(err).Msg("failed to persist exchanged session")
		}
	}
	e.sessions.Publish(exchanged)
	return nil
}
