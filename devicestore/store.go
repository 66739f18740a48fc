// Package devicestore is the on-device key-value store: a single SQLite file
// holding small blobs such as the persisted session and the onboarding flag.
// Values can be sealed with an AEAD so tokens are not written in the clear.
package devicestore

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/chacha20poly1305"
	_ "modernc.org/sqlite"

	"github.com/dietplanner/authflow/identity"
	"github.com/dietplanner/authflow/session"
)

// ErrNotFound is returned by Get for an absent key.
var ErrNotFound = errors.New("devicestore: key not found")

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

const sessionKey = "auth.session"

// Store is a SQLite-backed key-value store.
type Store struct {
	db      *sql.DB
	aead    cipher.AEAD
	nowTime func() time.Time
	log     zerolog.Logger
}

var _ session.Persister = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithEncryptionKey seals every value with XChaCha20-Poly1305 under the
// given 32-byte key.
func WithEncryptionKey(key []byte) Option {
	return func(s *Store) error {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return errors.Wrap(err, "[WithEncryptionKey] build aead")
		}
		s.aead = aead
		return nil
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Store) error {
		s.nowTime = nowFunc
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) error {
		s.log = log
		return nil
	}
}

// Open opens (creating if needed) the device store at path.
func Open(path string, options ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("[devicestore.Open] path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "[devicestore.Open] open sqlite db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[devicestore.Open] ping sqlite db")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "[devicestore.Open] create schema")
	}

	store := &Store{
		db:      db,
		nowTime: time.Now,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		if err := opt(store); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Get] query value")
	}
	return s.open(value)
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.seal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, sealed, s.nowTime().UTC().UnixMilli())
	return errors.Wrap(err, "[Set] upsert value")
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return errors.Wrap(err, "[Delete] delete value")
}

// LoadSession restores the persisted session, or nil when none is stored.
func (s *Store) LoadSession(ctx context.Context) (*identity.Session, error) {
	raw, err := s.Get(ctx, sessionKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[LoadSession] read session")
	}

	stored := &identity.Session{}
	if err := json.Unmarshal(raw, stored); err != nil {
		// A corrupt record is unrecoverable; drop it rather than wedging
		// every startup.
		s.log.Warn().Err(err).Msg("discarding corrupt persisted session")
		_ = s.Delete(ctx, sessionKey)
		return nil, nil
	}
	return stored, nil
}

// SaveSession persists the session; a nil session clears it.
func (s *Store) SaveSession(ctx context.Context, sess *identity.Session) error {
	if sess == nil {
		return s.ClearSession(ctx)
	}
	encoded, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "[SaveSession] encode session")
	}
	return s.Set(ctx, sessionKey, encoded)
}

// ClearSession removes the persisted session.
func (s *Store) ClearSession(ctx context.Context) error {
	return s.Delete(ctx, sessionKey)
}

func (s *Store) seal(value []byte) ([]byte, error) {
	if s.aead == nil {
		return value, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "[seal] generate nonce")
	}
	return s.aead.Seal(nonce, nonce, value, nil), nil
}

func (s *Store) open(value []byte) ([]byte, error) {
	if s.aead == nil {
		return value, nil
	}
	if len(value) < s.aead.NonceSize() {
		return nil, errors.New("[open] sealed value too short")
	}
	nonce, ciphertext := value[:s.aead.NonceSize()], value[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[open] unseal value")
	}
	return plaintext, nil
}
