// Package deeplink establishes a session from an incoming password-reset or
// OAuth callback link before any screen logic runs. The same logical link can
// arrive three ways depending on platform and cold/warm start: explicit route
// parameters carrying a token pair, a bare authorization code, or only the
// OS-level launch URL.
package deeplink

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dietplanner/authflow/autherrors"
	"github.com/dietplanner/authflow/identity"
	"github.com/dietplanner/authflow/internal/applink"
	"github.com/dietplanner/authflow/session"
)

// Strategy identifies which recovery path established the session.
type Strategy string

const (
	// StrategyTokenPair installs an explicit access/refresh token pair.
	StrategyTokenPair Strategy = "token_pair"
	// StrategyAuthorizationCode exchanges a code from the route parameters.
	StrategyAuthorizationCode Strategy = "authorization_code"
	// StrategyLaunchURL exchanges credentials dug out of the OS launch URL,
	// covering cold-start links that never populated route parameters.
	StrategyLaunchURL Strategy = "launch_url"
	// StrategyNone means no recovery path had anything to work with.
	StrategyNone Strategy = "none"
)

const failureMessage = "Unable to use this link. Request a new one."

// Params are the route parameters of the screen being mounted.
type Params struct {
	AccessToken  string
	RefreshToken string
	Code         string
}

// LaunchURLFunc returns the URL that launched the process, or "" when the
// process was not started by a link.
type LaunchURLFunc func(ctx context.Context) (string, error)

// Recoverer runs the recovery strategies in priority order: token pair, then
// authorization code, then launch URL. The first applicable strategy is the
// only one attempted, and a Recoverer attempts recovery at most once; later
// calls return the recorded outcome without touching the network.
type Recoverer struct {
	svc       identity.Service
	sessions  *session.Store
	persist   session.Persister
	launchURL LaunchURLFunc
	log       zerolog.Logger

	mu        sync.Mutex
	attempted bool
	strategy  Strategy
	outcome   *autherrors.Error
}

// Option configures a Recoverer.
type Option func(*Recoverer)

// WithLaunchURL supplies the OS launch-URL lookup.
func WithLaunchURL(fn LaunchURLFunc) Option {
	return func(r *Recoverer) {
		r.launchURL = fn
	}
}

// WithPersistence stores the recovered session on the device.
func WithPersistence(persist session.Persister) Option {
	return func(r *Recoverer) {
		r.persist = persist
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Recoverer) {
		r.log = log
	}
}

// New creates a Recoverer for one screen mount.
func New(svc identity.Service, sessions *session.Store, options ...Option) (*Recoverer, error) {
	if svc == nil {
		return nil, errors.New("[deeplink.New] identity service is required")
	}
	if sessions == nil {
		return nil, errors.New("[deeplink.New] session store is required")
	}

	recoverer := &Recoverer{
		svc:      svc,
		sessions: sessions,
		log:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(recoverer)
	}
	return recoverer, nil
}

// Recover establishes a session from the given route parameters. A nil error
// with a strategy other than StrategyNone means the store now holds a live
// session. Exchange failures are collapsed into a generic retry-guidance
// message; the underlying cause is logged, not shown.
func (r *Recoverer) Recover(ctx context.Context, params Params) (Strategy, *autherrors.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.attempted {
		return r.strategy, r.outcome
	}
	r.attempted = true

	r.strategy, r.outcome = r.run(ctx, params)
	return r.strategy, r.outcome
}

func (r *Recoverer) run(ctx context.Context, params Params) (Strategy, *autherrors.Error) {
	if params.AccessToken != "" && params.RefreshToken != "" {
		return StrategyTokenPair, r.establish(ctx, StrategyTokenPair, func() (*identity.Session, error) {
			return r.svc.SetSession(ctx, params.AccessToken, params.RefreshToken)
		})
	}

	if params.Code != "" {
		return StrategyAuthorizationCode, r.establish(ctx, StrategyAuthorizationCode, func() (*identity.Session, error) {
			return r.svc.ExchangeCode(ctx, params.Code, "")
		})
	}

	if r.launchURL != nil {
		raw, err := r.launchURL(ctx)
		if err != nil {
			r.log.Warn().Err(err).Msg("launch url lookup failed")
			return StrategyNone, autherrors.New(autherrors.CategoryUnknown, failureMessage)
		}
		if raw != "" {
			callback, err := applink.ParseCallback(raw)
			if err != nil || callback.Empty() {
				return StrategyNone, autherrors.New(autherrors.CategoryUnknown, failureMessage)
			}
			return StrategyLaunchURL, r.establish(ctx, StrategyLaunchURL, func() (*identity.Session, error) {
				if callback.AccessToken != "" && callback.RefreshToken != "" {
					return r.svc.SetSession(ctx, callback.AccessToken, callback.RefreshToken)
				}
				return r.svc.ExchangeCode(ctx, callback.Code, "")
			})
		}
	}

	return StrategyNone, autherrors.New(autherrors.CategoryUnknown, failureMessage)
}

func (r *Recoverer) establish(ctx context.Context, strategy Strategy, attempt func() (*identity.Session, error)) *autherrors.Error {
	recovered, err := attempt()
	if err != nil {
		r.log.Warn().Err(err).Str("strategy", string(strategy)).Msg("deep-link recovery failed")
		return autherrors.New(autherrors.CategoryUnknown, failureMessage)
	}

	if r.persist != nil {
		if err := r.persist.SaveSession(ctx, recovered); err != nil {
			r.log.Warn().Err(err).Msg("failed to persist recovered session")
		}
	}
	r.sessions.Publish(recovered)
	r.log.Debug().Str("strategy", string(strategy)).Msg("session recovered from deep link")
	return nil
}
