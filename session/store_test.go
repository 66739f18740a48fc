package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dietplanner/authflow/identity"
	"github.com/dietplanner/authflow/session"
)

func TestStoreStartsLoading(t *testing.T) {
	store := session.NewStore()
	defer store.Close()

	snapshot := store.Snapshot()
	require.True(t, snapshot.Loading)
	require.Nil(t, snapshot.Session)
	require.False(t, snapshot.Authenticated())
}

func TestPublishEndsLoading(t *testing.T) {
	store := session.NewStore()
	defer store.Close()

	store.Publish(nil)
	snapshot := store.Snapshot()
	require.False(t, snapshot.Loading)
	require.Nil(t, snapshot.Session)
}

func TestPublishNotifiesSubscribersInOrder(t *testing.T) {
	store := session.NewStore()
	defer store.Close()

	var seen []string
	cancel := store.Subscribe(func(snapshot session.Snapshot) {
		if snapshot.Session == nil {
			seen = append(seen, "")
			return
		}
		seen = append(seen, snapshot.Session.AccessToken)
	})
	defer cancel()

	store.Publish(&identity.Session{AccessToken: "first"})
	store.Publish(&identity.Session{AccessToken: "second"})
	store.Publish(nil)

	require.Equal(t, []string{"first", "second", ""}, seen)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	store := session.NewStore()
	defer store.Close()

	calls := 0
	cancel := store.Subscribe(func(session.Snapshot) { calls++ })

	store.Publish(&identity.Session{AccessToken: "a"})
	cancel()
	store.Publish(&identity.Session{AccessToken: "b"})

	require.Equal(t, 1, calls)
}

func TestLastWriteWins(t *testing.T) {
	store := session.NewStore()
	defer store.Close()

	// A refresh event landing before the initial lookup result is applied
	// in arrival order; the later write replaces it.
	store.Publish(&identity.Session{AccessToken: "from-refresh"})
	store.Publish(&identity.Session{AccessToken: "from-initial-lookup"})

	require.Equal(t, "from-initial-lookup", store.Session().AccessToken)
}

func TestCloseDropsSubscribersAndIgnoresPublish(t *testing.T) {
	store := session.NewStore()

	calls := 0
	store.Subscribe(func(session.Snapshot) { calls++ })
	store.Publish(&identity.Session{AccessToken: "before"})

	store.Close()
	store.Publish(&identity.Session{AccessToken: "after"})

	require.Equal(t, 1, calls)
	require.Equal(t, "before", store.Session().AccessToken)
}
