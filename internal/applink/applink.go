// Package applink builds and parses the application's deep-link URLs. The
// identity service redirects back into the app through a fixed custom scheme
// and one of two fixed paths.
package applink

import (
	"net/url"

	"github.com/pkg/errors"
)

const (
	// DefaultScheme is the app's registered custom URL scheme.
	DefaultScheme = "dietplanner"

	// PathAuth receives OAuth and email-confirmation callbacks.
	PathAuth = "auth"
	// PathResetPassword receives password-recovery callbacks.
	PathResetPassword = "reset-password"
)

// RedirectURI builds a callback URI from a scheme and path, e.g.
// "dietplanner://auth".
func RedirectURI(scheme, path string) string {
	return scheme + "://" + path
}

// Callback holds the credentials a callback URL can carry. At most one of
// the token pair or the code is expected to be present.
type Callback struct {
	AccessToken  string
	RefreshToken string
	Code         string
}

// Empty reports whether the callback carried no usable credentials.
func (c Callback) Empty() bool {
	return c.Code == "" && (c.AccessToken == "" || c.RefreshToken == "")
}

// ParseCallback extracts credentials from a callback URL. The identity
// service places them either in the query string or, for emailed token
// links, in the URL fragment.
func ParseCallback(raw string) (Callback, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Callback{}, errors.Wrap(err, "[ParseCallback] parse url")
	}

	callback := fromValues(parsed.Query())
	if callback.Empty() && parsed.Fragment != "" {
		if values, err := url.ParseQuery(parsed.Fragment); err == nil {
			callback = fromValues(values)
		}
	}
	return callback, nil
}

func fromValues(values url.Values) Callback {
	return Callback{
		AccessToken:  values.Get("access_token"),
		RefreshToken: values.Get("refresh_token"),
		Code:         values.Get("code"),
	}
}
