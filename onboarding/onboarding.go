// Package onboarding tracks whether the user has completed the intro
// carousel. The flag lives in the device store and is read once at startup;
// storage failures are logged and treated as "not completed", which only
// costs the user a repeat of the carousel.
package onboarding

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dietplanner/authflow/devicestore"
)

const storageKey = "onboarding.completed"

// KV is the slice of the device store used by the tracker.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Tracker holds the onboarding-completion flag.
type Tracker struct {
	store KV
	log   zerolog.Logger

	mu        sync.Mutex
	completed bool
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(t *Tracker) {
		t.log = log
	}
}

// New creates a Tracker and loads the stored flag.
func New(ctx context.Context, store KV, options ...Option) (*Tracker, error) {
	if store == nil {
		return nil, errors.New("[onboarding.New] store is required")
	}

	tracker := &Tracker{
		store: store,
		log:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(tracker)
	}

	value, err := store.Get(ctx, storageKey)
	switch {
	case errors.Is(err, devicestore.ErrNotFound):
	case err != nil:
		tracker.log.Warn().Err(err).Msg("failed to read onboarding state")
	default:
		tracker.completed = string(value) == "true"
	}
	return tracker, nil
}

// Completed reports whether onboarding has been completed.
func (t *Tracker) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Complete marks onboarding as done. The in-memory flag flips even when
// persistence fails, so the current run is not interrupted.
func (t *Tracker) Complete(ctx context.Context) error {
	t.mu.Lock()
	t.completed = true
	t.mu.Unlock()

	if err := t.store.Set(ctx, storageKey, []byte("true")); err != nil {
		t.log.Warn().Err(err).Msg("failed to persist onboarding completion")
		return errors.Wrap(err, "[Complete] persist flag")
	}
	return nil
}

// Reset clears the flag so the carousel shows again.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	t.completed = false
	t.mu.Unlock()

	if err := t.store.Delete(ctx, storageKey); err != nil {
		t.log.Warn().Err(err).Msg("failed to clear onboarding state")
		return errors.Wrap(err, "[Reset] clear flag")
	}
	return nil
}
