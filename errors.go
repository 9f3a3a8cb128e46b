package session

import (
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// Text codes surfaced to clients alongside structured errors.
const (
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodeAccountInactive     = "ACCOUNT_INACTIVE"
	TextCodeAccountLocked       = "ACCOUNT_LOCKED"
	TextCodeInvalidRefresh      = "INVALID_REFRESH_TOKEN"
	TextCodeExpiredRefresh      = "EXPIRED_REFRESH_TOKEN"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenMalformed      = "MALFORMED_TOKEN"
	TextCodeUnverifiedEmail     = "UNVERIFIED_FEDERATED_EMAIL"
	TextCodeDependencyDown      = "DEPENDENCY_UNAVAILABLE"
	TextCodeIdentityStoreDown   = "IDENTITY_STORE_UNAVAILABLE"
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
)

// ErrUserNotFound means the identifier resolved to no identity record.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound)

// ErrInvalidCredentials covers password mismatches and, for federated
// logins, any assertion-verification failure. It deliberately carries
// no detail about which part failed.
var ErrInvalidCredentials = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrAccountInactive means the account exists but has been deactivated.
var ErrAccountInactive = errors.New("account is not active", errors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive)

// ErrAccountLocked means the account is under a failed-attempt lockout.
var ErrAccountLocked = errors.New("account is temporarily locked", errors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked)

// ErrInvalidRefreshToken covers unknown, malformed, and revoked refresh
// token values.
var ErrInvalidRefreshToken = errors.New("refresh token is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidRefresh)

// ErrExpiredRefreshToken is surfaced distinctly from
// ErrInvalidRefreshToken so clients can prompt for a fresh login
// instead of treating the session as tampered with.
var ErrExpiredRefreshToken = errors.New("refresh token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeExpiredRefresh)

// ErrTokenExpired means an access token failed validation only because
// its expiry has passed.
var ErrTokenExpired = errors.New("access token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired)

// ErrMalformedToken covers bad signatures and unparseable payloads.
var ErrMalformedToken = errors.New("access token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed)

// ErrUnverifiedFederatedEmail rejects federated assertions whose
// provider-reported email has not been verified upstream, regardless
// of signature validity.
var ErrUnverifiedFederatedEmail = errors.New("federated email address is not verified", errors.CategoryAuth).
	WithTextCode(TextCodeUnverifiedEmail)

// ErrDependencyUnavailable is the only error callers see for
// infrastructure failures; the underlying detail is logged server-side.
// It is textually distinct from authentication failures so clients do
// not mistake an outage for wrong credentials.
var ErrDependencyUnavailable = errors.New("service temporarily unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeDependencyDown)

// ErrIdentityStoreUnavailable marks credential-store infrastructure
// failures (timeouts, connection errors). The circuit breaker counts
// these and only these.
var ErrIdentityStoreUnavailable = errors.New("identity store unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeIdentityStoreDown)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// IsUnavailable reports whether err represents infrastructure
// unavailability rather than a legitimate domain outcome. NotFound and
// credential errors are never unavailability.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}

	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.Category == errors.CategoryOperation
	}

	return false
}

// IsNotFound reports whether err is a not-found outcome from any of
// the stores. Repository misses carry their own category, so the
// go-errors check alone does not cover them.
func IsNotFound(err error) bool {
	return errors.IsNotFound(err) || repository.IsRecordNotFound(err)
}

// HasTextCode reports whether err carries the given client-facing text
// code, looking through wrapping.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}

	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.TextCode == code
	}

	return false
}
