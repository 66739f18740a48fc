package onboarding_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/dietplanner/authflow/devicestore"
	"github.com/dietplanner/authflow/onboarding"
)

func openStore(t *testing.T) *devicestore.Store {
	t.Helper()
	store, err := devicestore.Open(filepath.Join(t.TempDir(), "device.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewRequiresStore(t *testing.T) {
	_, err := onboarding.New(context.Background(), nil)
	require.Error(t, err)
}

func TestDefaultsToNotCompleted(t *testing.T) {
	tracker, err := onboarding.New(context.Background(), openStore(t))
	require.NoError(t, err)
	require.False(t, tracker.Completed())
}

func TestCompleteSurvivesRestart(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	tracker, err := onboarding.New(ctx, store)
	require.NoError(t, err)
	require.NoError(t, tracker.Complete(ctx))
	require.True(t, tracker.Completed())

	// A new tracker over the same store sees the persisted flag.
	restarted, err := onboarding.New(ctx, store)
	require.NoError(t, err)
	require.True(t, restarted.Completed())
}

func TestResetClearsFlag(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	tracker, err := onboarding.New(ctx, store)
	require.NoError(t, err)
	require.NoError(t, tracker.Complete(ctx))
	require.NoError(t, tracker.Reset(ctx))
	require.False(t, tracker.Completed())

	restarted, err := onboarding.New(ctx, store)
	require.NoError(t, err)
	require.False(t, restarted.Completed())
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk unavailable")
}

func (failingKV) Set(context.Context, string, []byte) error {
	return errors.New("disk unavailable")
}

func (failingKV) Delete(context.Context, string) error {
	return errors.New("disk unavailable")
}

func TestStorageFailuresTreatedAsNotCompleted(t *testing.T) {
	ctx := context.Background()

	tracker, err := onboarding.New(ctx, failingKV{})
	require.NoError(t, err)
	require.False(t, tracker.Completed())

	// Completion still flips in memory for the current run.
	require.Error(t, tracker.Complete(ctx))
	require.True(t, tracker.Completed())
}
