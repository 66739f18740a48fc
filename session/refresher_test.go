package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dietplanner/authflow/identity"
	"github.com/dietplanner/authflow/identity/identityfakes"
	"github.com/dietplanner/authflow/session"
)

func TestRefresherRequiresDeps(t *testing.T) {
	_, err := session.NewRefresher(nil, session.NewStore())
	require.Error(t, err)

	_, err = session.NewRefresher(identityfakes.NewFakeService(), nil)
	require.Error(t, err)
}

func TestRefreshNowWithoutSessionMakesNoCall(t *testing.T) {
	svc := identityfakes.NewFakeService()
	store := session.NewStore()
	defer store.Close()
	store.Publish(nil)

	refresher, err := session.NewRefresher(svc, store)
	require.NoError(t, err)

	refresher.RefreshNow(context.Background())
	require.Equal(t, 0, svc.RefreshCalls)
}

func TestRefreshNowPublishesRenewedSession(t *testing.T) {
	renewed := &identity.Session{AccessToken: "renewed", RefreshToken: "rt-2"}
	svc := identityfakes.NewFakeService()
	svc.SessionToReturn = renewed

	store := session.NewStore()
	defer store.Close()
	store.Publish(&identity.Session{AccessToken: "stale", RefreshToken: "rt-1"})

	refresher, err := session.NewRefresher(svc, store)
	require.NoError(t, err)

	refresher.RefreshNow(context.Background())

	require.Equal(t, 1, svc.RefreshCalls)
	require.Equal(t, "rt-1", svc.LastRefreshToken)
	require.Equal(t, "renewed", store.Session().AccessToken)
}

func TestRejectedRefreshTokenDropsSession(t *testing.T) {
	svc := identityfakes.NewFakeService()
	svc.RefreshErr = &identity.Error{Status: 400, Code: "refresh_token_not_found", Message: "Invalid Refresh Token"}

	store := session.NewStore()
	defer store.Close()
	store.Publish(&identity.Session{AccessToken: "stale", RefreshToken: "rt-1"})

	refresher, err := session.NewRefresher(svc, store)
	require.NoError(t, err)

	refresher.RefreshNow(context.Background())
	require.Nil(t, store.Session())
}

func TestTransientFailureKeepsSession(t *testing.T) {
	svc := identityfakes.NewFakeService()
	svc.RefreshErr = &identity.Error{Status: 503, Message: "service unavailable"}

	store := session.NewStore()
	defer store.Close()
	store.Publish(&identity.Session{AccessToken: "stale", RefreshToken: "rt-1"})

	refresher, err := session.NewRefresher(svc, store)
	require.NoError(t, err)

	refresher.RefreshNow(context.Background())
	require.Equal(t, "stale", store.Session().AccessToken)
}

func TestRunRefreshesExpiringSession(t *testing.T) {
	now := time.Now()
	renewed := &identity.Session{
		AccessToken:  "renewed",
		RefreshToken: "rt-2",
		ExpiresAt:    now.Add(time.Hour).Unix(),
	}
	svc := identityfakes.NewFakeService()
	svc.SessionToReturn = renewed

	store := session.NewStore()
	defer store.Close()

	refresher, err := session.NewRefresher(svc, store,
		session.WithLeeway(0),
		session.WithRetryInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go refresher.Run(ctx)

	// Already past expiry, so the refresh fires immediately.
	store.Publish(&identity.Session{
		AccessToken:  "stale",
		RefreshToken: "rt-1",
		ExpiresAt:    now.Add(-time.Minute).Unix(),
	})

	require.Eventually(t, func() bool {
		current := store.Session()
		return current != nil && current.AccessToken == "renewed"
	}, 2*time.Second, 10*time.Millisecond)
}
