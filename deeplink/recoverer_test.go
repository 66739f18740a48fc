package deeplink_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/dietplanner/authflow/autherrors"
	"github.com/dietplanner/authflow/deeplink"
	"github.com/dietplanner/authflow/identity"
	"github.com/dietplanner/authflow/identity/identityfakes"
	"github.com/dietplanner/authflow/session"
)

func setupRecoverer(t *testing.T, options ...deeplink.Option) (*identityfakes.FakeService, *session.Store, *deeplink.Recoverer) {
	t.Helper()

	svc := identityfakes.NewFakeService()
	svc.SessionToReturn = &identity.Session{AccessToken: "recovered", RefreshToken: "rt"}
	sessions := session.NewStore()
	t.Cleanup(sessions.Close)

	recoverer, err := deeplink.New(svc, sessions, options...)
	require.NoError(t, err)
	return svc, sessions, recoverer
}

func TestTokenPairTakesPriorityOverCode(t *testing.T) {
	svc, sessions, recoverer := setupRecoverer(t)

	strategy, failed := recoverer.Recover(context.Background(), deeplink.Params{
		AccessToken:  "at",
		RefreshToken: "rt",
		Code:         "should-not-be-used",
	})

	require.Nil(t, failed)
	require.Equal(t, deeplink.StrategyTokenPair, strategy)
	require.Equal(t, 1, svc.SetCalls)
	require.Equal(t, 0, svc.ExchangeCalls)
	require.Equal(t, "recovered", sessions.Session().AccessToken)
}

func TestCodeStrategyWhenNoTokenPair(t *testing.T) {
	svc, sessions, recoverer := setupRecoverer(t)

	strategy, failed := recoverer.Recover(context.Background(), deeplink.Params{Code: "abc123"})

	require.Nil(t, failed)
	require.Equal(t, deeplink.StrategyAuthorizationCode, strategy)
	require.Equal(t, "abc123", svc.LastExchangeCode)
	require.Equal(t, "recovered", sessions.Session().AccessToken)
}

func TestPartialTokenPairFallsThroughToCode(t *testing.T) {
	svc, _, recoverer := setupRecoverer(t)

	strategy, failed := recoverer.Recover(context.Background(), deeplink.Params{
		AccessToken: "at-without-refresh",
		Code:        "abc123",
	})

	require.Nil(t, failed)
	require.Equal(t, deeplink.StrategyAuthorizationCode, strategy)
	require.Equal(t, 0, svc.SetCalls)
	require.Equal(t, 1, svc.ExchangeCalls)
}

func TestLaunchURLStrategyCoversColdStart(t *testing.T) {
	launch := func(context.Context) (string, error) {
		return "dietplanner://reset-password?code=cold-start-code", nil
	}
	svc, sessions, recoverer := setupRecoverer(t, deeplink.WithLaunchURL(launch))

	strategy, failed := recoverer.Recover(context.Background(), deeplink.Params{})

	require.Nil(t, failed)
	require.Equal(t, deeplink.StrategyLaunchURL, strategy)
	require.Equal(t, "cold-start-code", svc.LastExchangeCode)
	require.Equal(t, "recovered", sessions.Session().AccessToken)
}

func TestLaunchURLWithFragmentTokens(t *testing.T) {
	launch := func(context.Context) (string, error) {
		return "dietplanner://reset-password#access_token=at&refresh_token=rt&type=recovery", nil
	}
	svc, _, recoverer := setupRecoverer(t, deeplink.WithLaunchURL(launch))

	strategy, failed := recoverer.Recover(context.Background(), deeplink.Params{})

	require.Nil(t, failed)
	require.Equal(t, deeplink.StrategyLaunchURL, strategy)
	require.Equal(t, 1, svc.SetCalls)
	require.Equal(t, "at", svc.LastAccessToken)
}

func TestNoCredentialsAnywhereFails(t *testing.T) {
	_, sessions, recoverer := setupRecoverer(t)
	sessions.Publish(nil)

	strategy, failed := recoverer.Recover(context.Background(), deeplink.Params{})

	require.Equal(t, deeplink.StrategyNone, strategy)
	require.NotNil(t, failed)
	require.Equal(t, "Unable to use this link. Request a new one.", failed.Message)
	require.Nil(t, sessions.Session())
}

func TestExchangeFailureCollapsesToGenericMessage(t *testing.T) {
	svc, sessions, recoverer := setupRecoverer(t)
	sessions.Publish(nil)
	svc.ExchangeErr = &identity.Error{Status: 400, Code: "flow_state_not_found", Message: "invalid flow state, no valid flow state found"}

	_, failed := recoverer.Recover(context.Background(), deeplink.Params{Code: "expired"})

	require.NotNil(t, failed)
	require.Equal(t, autherrors.CategoryUnknown, failed.Category)
	require.Equal(t, "Unable to use this link. Request a new one.", failed.Message)
	require.Nil(t, sessions.Session())
}

func TestLaunchURLLookupErrorFails(t *testing.T) {
	launch := func(context.Context) (string, error) {
		return "", errors.New("no launch url available")
	}
	_, _, recoverer := setupRecoverer(t, deeplink.WithLaunchURL(launch))

	strategy, failed := recoverer.Recover(context.Background(), deeplink.Params{})
	require.Equal(t, deeplink.StrategyNone, strategy)
	require.NotNil(t, failed)
}

func TestRecoveryRunsAtMostOnce(t *testing.T) {
	svc, _, recoverer := setupRecoverer(t)

	strategy, failed := recoverer.Recover(context.Background(), deeplink.Params{Code: "abc123"})
	require.Nil(t, failed)
	require.Equal(t, deeplink.StrategyAuthorizationCode, strategy)

	// Re-rendering the screen with the same params must not hit the network
	// again; the recorded outcome is replayed.
	strategy, failed = recoverer.Recover(context.Background(), deeplink.Params{Code: "abc123"})
	require.Nil(t, failed)
	require.Equal(t, deeplink.StrategyAuthorizationCode, strategy)
	require.Equal(t, 1, svc.ExchangeCalls)
}
