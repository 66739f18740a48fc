package identity

import "time"

// User is the identity record attached to a session.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
}

// Session is the proof-of-authentication bundle issued by the identity
// service. It is owned by the session.Store; every other component treats a
// session value as read-only.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresIn is the access token lifetime in seconds at issuance.
	ExpiresIn int `json:"expires_in,omitempty"`
	// ExpiresAt is the absolute expiry as a Unix timestamp. Zero when the
	// service omitted it; callers fall back to the token's exp claim.
	ExpiresAt int64 `json:"expires_at,omitempty"`
	User      *User `json:"user,omitempty"`
}

// Expiry returns the absolute expiry time, or the zero time when unknown.
func (s *Session) Expiry() time.Time {
	if s == nil || s.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(s.ExpiresAt, 0)
}

// ExpiresWithin reports whether the session's known expiry falls before
// now+leeway. A session with no known expiry never reports true; the
// refresher resolves its expiry from the token itself.
func (s *Session) ExpiresWithin(now time.Time, leeway time.Duration) bool {
	expiry := s.Expiry()
	if expiry.IsZero() {
		return false
	}
	return expiry.Before(now.Add(leeway))
}
