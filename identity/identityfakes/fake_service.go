// Package identityfakes provides an in-memory identity.Service for tests.
package identityfakes

import (
	"context"
	"fmt"
	"sync"

	"github.com/dietplanner/authflow/identity"
)

var _ identity.Service = (*FakeService)(nil)

// FakeService is a scriptable identity.Service. Tests assign the session or
// error each operation should return and assert on the recorded call counts.
type FakeService struct {
	lock sync.Mutex

	SessionToReturn *identity.Session
	SignUpSession   *identity.Session
	SignUpUser      *identity.User

	SignInErr   error
	SignUpErr   error
	SendOTPErr  error
	VerifyErr   error
	ExchangeErr error
	SetErr      error
	RefreshErr  error
	ResetErr    error
	UpdateErr   error
	SignOutErr  error

	// consumedOTPs records redeemed email/token pairs so a second verify of
	// the same code fails like a real single-use token.
	consumedOTPs map[string]bool

	SignInCalls   int
	SignUpCalls   int
	SendOTPCalls  int
	VerifyCalls   int
	ExchangeCalls int
	SetCalls      int
	RefreshCalls  int
	ResetCalls    int
	UpdateCalls   int
	SignOutCalls  int

	LastSignUpRequest identity.SignUpRequest
	LastOTPRequest    identity.OTPRequest
	LastExchangeCode  string
	LastCodeVerifier  string
	LastAccessToken   string
	LastRefreshToken  string
	LastResetEmail    string
	LastResetRedirect string
	LastNewPassword   string
}

// NewFakeService returns a fake that succeeds with SessionToReturn on every
// session-producing call until errors are injected.
func NewFakeService() *FakeService {
	return &FakeService{
		consumedOTPs: make(map[string]bool),
	}
}

func (f *FakeService) SignInWithPassword(_ context.Context, _, _ string) (*identity.Session, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.SignInCalls++
	if f.SignInErr != nil {
		return nil, f.SignInErr
	}
	return f.SessionToReturn, nil
}

func (f *FakeService) SignUp(_ context.Context, req identity.SignUpRequest) (*identity.SignUpResponse, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.SignUpCalls++
	f.LastSignUpRequest = req
	if f.SignUpErr != nil {
		return nil, f.SignUpErr
	}
	return &identity.SignUpResponse{Session: f.SignUpSession, User: f.SignUpUser}, nil
}

func (f *FakeService) SendOTP(_ context.Context, req identity.OTPRequest) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.SendOTPCalls++
	f.LastOTPRequest = req
	return f.SendOTPErr
}

func (f *FakeService) VerifyOTP(_ context.Context, email, token string) (*identity.Session, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.VerifyCalls++
	if f.VerifyErr != nil {
		return nil, f.VerifyErr
	}
	key := fmt.Sprintf("%s:%s", email, token)
	if f.consumedOTPs[key] {
		return nil, &identity.Error{Status: 403, Code: "otp_expired", Message: "Token has expired or is invalid"}
	}
	f.consumedOTPs[key] = true
	return f.SessionToReturn, nil
}

func (f *FakeService) AuthorizeURL(params identity.AuthorizeParams) (string, error) {
	return "https://identity.example.test/authorize?provider=" + params.Provider, nil
}

func (f *FakeService) ExchangeCode(_ context.Context, code, codeVerifier string) (*identity.Session, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.ExchangeCalls++
	f.LastExchangeCode = code
	f.LastCodeVerifier = codeVerifier
	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	return f.SessionToReturn, nil
}

func (f *FakeService) SetSession(_ context.Context, accessToken, refreshToken string) (*identity.Session, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.SetCalls++
	f.LastAccessToken = accessToken
	f.LastRefreshToken = refreshToken
	if f.SetErr != nil {
		return nil, f.SetErr
	}
	return f.SessionToReturn, nil
}

func (f *FakeService) RefreshSession(_ context.Context, refreshToken string) (*identity.Session, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.RefreshCalls++
	f.LastRefreshToken = refreshToken
	if f.RefreshErr != nil {
		return nil, f.RefreshErr
	}
	return f.SessionToReturn, nil
}

func (f *FakeService) SendPasswordReset(_ context.Context, email, redirectTo string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.ResetCalls++
	f.LastResetEmail = email
	f.LastResetRedirect = redirectTo
	return f.ResetErr
}

func (f *FakeService) UpdatePassword(_ context.Context, accessToken, newPassword string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.UpdateCalls++
	f.LastAccessToken = accessToken
	f.LastNewPassword = newPassword
	return f.UpdateErr
}

func (f *FakeService) SignOut(_ context.Context, accessToken string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.SignOutCalls++
	f.LastAccessToken = accessToken
	return f.SignOutErr
}
