package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dietplanner/authflow/identity"
)

const (
	defaultLeeway        = 30 * time.Second
	defaultRetryInterval = 15 * time.Second
)

// RefreshService is the slice of the identity service needed to renew a
// session.
type RefreshService interface {
	RefreshSession(ctx context.Context, refreshToken string) (*identity.Session, error)
}

// Refresher renews the current session's access token shortly before it
// expires. Renewed sessions flow through Store.Publish like every other
// session mutation, so subscribers observe refreshes the same way they
// observe sign-ins.
type Refresher struct {
	svc   RefreshService
	store *Store

	leeway        time.Duration
	retryInterval time.Duration
	nowTime       func() time.Time
	log           zerolog.Logger

	lastAttempt time.Time
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithLeeway sets how long before expiry a refresh is attempted.
func WithLeeway(leeway time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.leeway = leeway
	}
}

// WithRetryInterval sets the wait after a transient refresh failure.
func WithRetryInterval(interval time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.retryInterval = interval
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) RefresherOption {
	return func(r *Refresher) {
		r.nowTime = nowFunc
	}
}

// WithRefresherLogger sets the logger.
func WithRefresherLogger(log zerolog.Logger) RefresherOption {
	return func(r *Refresher) {
		r.log = log
	}
}

// NewRefresher creates a Refresher bound to a store.
func NewRefresher(svc RefreshService, store *Store, options ...RefresherOption) (*Refresher, error) {
	if svc == nil {
		return nil, errors.New("[NewRefresher] refresh service is required")
	}
	if store == nil {
		return nil, errors.New("[NewRefresher] store is required")
	}

	refresher := &Refresher{
		svc:           svc,
		store:         store,
		leeway:        defaultLeeway,
		retryInterval: defaultRetryInterval,
		nowTime:       time.Now,
		log:           zerolog.Nop(),
	}
	for _, opt := range options {
		opt(refresher)
	}
	return refresher, nil
}

// Run blocks until ctx is done, refreshing the held session before each
// expiry. Sessions arriving while Run sleeps (sign-in, deep-link recovery)
// reschedule the timer.
func (r *Refresher) Run(ctx context.Context) {
	changes := make(chan struct{}, 1)
	cancel := r.store.Subscribe(func(Snapshot) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer cancel()

	for {
		wait, hasSession := r.nextWait()

		var timerC <-chan time.Time
		var timer *time.Timer
		if hasSession {
			timer = time.NewTimer(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-changes:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
			r.refreshOnce(ctx)
		}
	}
}

// RefreshNow forces an immediate refresh of the current session. Intended
// for use before Run is started, not concurrently with it.
func (r *Refresher) RefreshNow(ctx context.Context) {
	r.refreshOnce(ctx)
}

func (r *Refresher) refreshOnce(ctx context.Context) {
	current := r.store.Session()
	if current == nil {
		return
	}
	r.lastAttempt = r.nowTime()

	renewed, err := r.svc.RefreshSession(ctx, current.RefreshToken)
	if err != nil {
		var svcErr *identity.Error
		if errors.As(err, &svcErr) && svcErr.Status >= 400 && svcErr.Status < 500 {
			// The refresh token itself was rejected; the session is gone
			// and retrying cannot bring it back.
			r.log.Warn().Str("code", svcErr.Code).Msg("refresh token rejected, dropping session")
			r.store.Publish(nil)
			return
		}
		r.log.Warn().Err(err).Msg("session refresh failed, will retry")
		return
	}

	r.log.Debug().Time("expiry", renewed.Expiry()).Msg("session refreshed")
	r.store.Publish(renewed)
}

// nextWait computes how long to sleep before the next refresh attempt.
func (r *Refresher) nextWait() (time.Duration, bool) {
	current := r.store.Session()
	if current == nil {
		return 0, false
	}

	expiry := current.Expiry()
	if expiry.IsZero() {
		expiry = tokenExpiry(current.AccessToken)
	}

	now := r.nowTime()
	if expiry.IsZero() {
		// No expiry is knowable; poll at the retry interval.
		return r.retryInterval, true
	}

	wait := expiry.Add(-r.leeway).Sub(now)
	if wait < 0 {
		wait = 0
	}
	// Space attempts out after a failed refresh of an already-expired token.
	if sinceLast := now.Sub(r.lastAttempt); !r.lastAttempt.IsZero() && wait < r.retryInterval-sinceLast {
		wait = r.retryInterval - sinceLast
	}
	return wait, true
}

// tokenExpiry extracts the exp claim from an access token without verifying
// its signature. Verification belongs to the identity service; this is only
// used for scheduling.
func tokenExpiry(accessToken string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
