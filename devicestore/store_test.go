package devicestore_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dietplanner/authflow/devicestore"
	"github.com/dietplanner/authflow/identity"
)

func openStore(t *testing.T, options ...devicestore.Option) *devicestore.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "device.db")
	store, err := devicestore.Open(path, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := devicestore.Open("")
	require.Error(t, err)
}

func TestSetGetDelete(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "greeting", []byte("hello")))

	value, err := store.Get(ctx, "greeting")
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), value)

	require.NoError(t, store.Set(ctx, "greeting", []byte("replaced")))
	value, err = store.Get(ctx, "greeting")
	require.NoError(t, err)
	require.Equal(t, []byte("replaced"), value)

	require.NoError(t, store.Delete(ctx, "greeting"))
	_, err = store.Get(ctx, "greeting")
	require.ErrorIs(t, err, devicestore.ErrNotFound)

	// Deleting an absent key is fine.
	require.NoError(t, store.Delete(ctx, "greeting"))
}

func TestSessionRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	loaded, err := store.LoadSession(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	stored := &identity.Session{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    1900000000,
		User:         &identity.User{ID: "user-1", Email: "jamie@example.com"},
	}
	require.NoError(t, store.SaveSession(ctx, stored))

	loaded, err = store.LoadSession(ctx)
	require.NoError(t, err)
	require.Equal(t, stored, loaded)

	require.NoError(t, store.ClearSession(ctx))
	loaded, err = store.LoadSession(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestSaveNilSessionClears(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, &identity.Session{AccessToken: "at", RefreshToken: "rt"}))
	require.NoError(t, store.SaveSession(ctx, nil))

	loaded, err := store.LoadSession(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestCorruptSessionIsDiscarded(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "auth.session", []byte("{not json")))

	loaded, err := store.LoadSession(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	_, err = store.Get(ctx, "auth.session")
	require.ErrorIs(t, err, devicestore.ErrNotFound)
}

func TestEncryptedValuesAreSealedAtRest(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	path := filepath.Join(t.TempDir(), "device.db")

	store, err := devicestore.Open(path, devicestore.WithEncryptionKey(key))
	require.NoError(t, err)

	ctx := context.Background()
	secret := []byte("super-secret-refresh-token")
	require.NoError(t, store.Set(ctx, "k", secret))

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, secret, value)
	require.NoError(t, store.Close())

	// The raw database file must not contain the plaintext.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), string(secret))
}

func TestEncryptionKeyLengthValidated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.db")
	_, err := devicestore.Open(path, devicestore.WithEncryptionKey([]byte("short")))
	require.Error(t, err)
}
