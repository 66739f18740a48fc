// Package autherrors maps identity-service failures onto a closed set of
// user-presentable categories. Classification prefers the service's
// structured error codes and falls back to substring matching on the raw
// message; anything unrecognized passes through as Unknown with the raw text.
package autherrors

import (
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/dietplanner/authflow/identity"
)

// Category is a stable classification of an authentication failure.
type Category string

const (
	CategoryInvalidCredentials   Category = "invalid_credentials"
	CategoryRateLimited          Category = "rate_limited"
	CategoryInvalidOrExpiredCode Category = "invalid_or_expired_code"
	CategoryUnauthenticated      Category = "unauthenticated"
	CategoryCancelled            Category = "cancelled"
	CategoryUnknown              Category = "unknown"
)

// Error is a normalized, renderable failure. Message is always safe to show
// to an end user.
type Error struct {
	Category Category
	Message  string
}

func (e *Error) Error() string { return e.Message }

// New builds a normalized error with an explicit category and message.
func New(category Category, message string) *Error {
	return &Error{Category: category, Message: message}
}

const fallbackMessage = "Something went wrong. Please try again."

// classification is one row of the match table: service error codes first,
// then message substrings, mapping to a category and a friendlier message.
type classification struct {
	codes    []string
	substrs  []string
	category Category
	message  string
}

var classifications = []classification{
	{
		codes:    []string{"invalid_credentials", "invalid_grant"},
		substrs:  []string{"Invalid login credentials"},
		category: CategoryInvalidCredentials,
		message:  "Invalid email or password.",
	},
	{
		codes:    []string{"over_email_send_rate_limit", "over_request_rate_limit", "over_sms_send_rate_limit"},
		substrs:  []string{"rate limit exceeded"},
		category: CategoryRateLimited,
		message:  "Too many attempts. Please wait a minute before retrying.",
	},
	{
		codes:    []string{"otp_expired", "otp_disabled"},
		substrs:  []string{"Token has expired or is invalid"},
		category: CategoryInvalidOrExpiredCode,
		message:  "That code is invalid or has expired. Request a new one.",
	},
	{
		codes:    []string{"session_not_found", "session_expired", "no_authorization", "refresh_token_not_found"},
		substrs:  []string{"missing or invalid session"},
		category: CategoryUnauthenticated,
		message:  "Your session has expired. Please sign in again.",
	},
}

// Normalize classifies err. A nil err returns nil so call sites can return
// Normalize(err) directly.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}

	var normalized *Error
	if errors.As(err, &normalized) {
		return normalized
	}

	var svcErr *identity.Error
	if errors.As(err, &svcErr) {
		return normalizeService(svcErr)
	}

	return fromMessage(err.Error())
}

func normalizeService(err *identity.Error) *Error {
	for _, c := range classifications {
		for _, code := range c.codes {
			if err.Code == code {
				return New(c.category, c.message)
			}
		}
	}
	if normalized := matchMessage(err.Message); normalized != nil {
		return normalized
	}
	// An unauthorized response without a recognized code still means the
	// caller's session is not usable.
	if err.Status == http.StatusUnauthorized {
		return New(CategoryUnauthenticated, "Your session has expired. Please sign in again.")
	}
	return fromMessage(err.Message)
}

func matchMessage(message string) *Error {
	lower := strings.ToLower(message)
	for _, c := range classifications {
		for _, substr := range c.substrs {
			if strings.Contains(lower, strings.ToLower(substr)) {
				return New(c.category, c.message)
			}
		}
	}
	return nil
}

func fromMessage(message string) *Error {
	if normalized := matchMessage(message); normalized != nil {
		return normalized
	}
	if strings.TrimSpace(message) == "" {
		return New(CategoryUnknown, fallbackMessage)
	}
	return New(CategoryUnknown, message)
}
