// Package session holds the process-wide authentication state: a Store that
// broadcasts session changes to subscribers, and a Refresher that renews the
// access token before expiry through the same publish path as every other
// mutator.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dietplanner/authflow/identity"
)

// Snapshot is the observable state at a point in time. Loading is true until
// the initial session lookup has published, and consumers must not act on the
// session value while it is set.
type Snapshot struct {
	Session *identity.Session
	Loading bool
}

// Authenticated reports whether the snapshot holds a usable session.
func (s Snapshot) Authenticated() bool {
	return !s.Loading && s.Session != nil
}

// Persister stores a session on the device so a cold start can restore it.
// Implementations treat a nil session as "clear".
type Persister interface {
	LoadSession(ctx context.Context) (*identity.Session, error)
	SaveSession(ctx context.Context, session *identity.Session) error
	ClearSession(ctx context.Context) error
}

// Store is the single owner of the current session. All mutators publish
// through it and all consumers observe through it; updates are delivered to
// subscribers serially, in publish order.
//
// Construct one Store at application start and Close it at exit. Subscriber
// callbacks run on the publisher's goroutine; they may read the Store but
// must not publish from inside the callback.
type Store struct {
	log zerolog.Logger

	// dispatchMu is held across subscriber notification so snapshots are
	// delivered serially, in publish order.
	dispatchMu sync.Mutex

	mu      sync.Mutex
	session *identity.Session
	loading bool
	closed  bool
	nextID  int
	subs    map[int]func(Snapshot)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used for publish diagnostics.
func WithStoreLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore creates a Store in the loading state.
func NewStore(options ...StoreOption) *Store {
	store := &Store{
		log:     zerolog.Nop(),
		loading: true,
		subs:    make(map[int]func(Snapshot)),
	}
	for _, opt := range options {
		opt(store)
	}
	return store
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Session: s.session, Loading: s.loading}
}

// Session returns the current session, which may be nil.
func (s *Store) Session() *identity.Session {
	return s.Snapshot().Session
}

// Publish replaces the held session wholesale and clears the loading flag.
// The first Publish ends the loading state regardless of which source (the
// initial lookup or a refresh event) delivered it; later writes win.
func (s *Store) Publish(session *identity.Session) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.session = session
	s.loading = false
	snapshot := Snapshot{Session: s.session, Loading: s.loading}
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	s.log.Debug().Bool("authenticated", snapshot.Session != nil).Msg("session state published")
	for _, fn := range subs {
		fn(snapshot)
	}
}

// Subscribe registers fn to receive every subsequent snapshot and returns a
// cancel function. fn is not called with the current state; read Snapshot
// first when the initial value matters.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Close tears the Store down: all subscribers are dropped and further
// publishes are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[int]func(Snapshot))
}
