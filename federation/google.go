// Package federation verifies identity assertions from external
// providers and maps them onto local accounts. Verification is purely
// cryptographic and local: the provider's JWKS is cached and refreshed
// in the background, so no per-login network call is needed.
package federation

import (
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"

	"github.com/vijanaworks/go-session"
)

// ProviderGoogle is the provider name used in routes and link rows.
const ProviderGoogle = "google"

// GoogleJWKSURL is Google's published signing key set.
const GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var googleIssuers = []string{
	"https://accounts.google.com",
	"accounts.google.com",
}

// Identity is the verified subset of a provider assertion handed to the
// account-resolution step.
type Identity struct {
	Provider  string
	SubjectID string
	Email     string
	Name      string
	AvatarURL string
}

// Verifier checks a raw provider assertion and extracts the identity it
// attests to.
type Verifier interface {
	Verify(assertion string) (*Identity, error)
}

type googleIDClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleVerifier validates Google ID tokens: RS256 signature against
// Google's JWKS, audience equal to our OAuth client ID, a Google
// issuer, and a verified email.
type GoogleVerifier struct {
	clientID string
	keyFunc  jwt.Keyfunc
}

var _ Verifier = (*GoogleVerifier)(nil)

type GoogleVerifierOption func(*GoogleVerifier)

// WithKeyFunc overrides JWKS resolution, mainly so tests can sign with
// a local key pair.
func WithKeyFunc(fn jwt.Keyfunc) GoogleVerifierOption {
	return func(v *GoogleVerifier) {
		if fn != nil {
			v.keyFunc = fn
		}
	}
}

// NewGoogleVerifier creates a verifier for the given OAuth client ID.
// Unless a key func is injected it fetches Google's JWKS and keeps it
// refreshed in the background.
func NewGoogleVerifier(clientID string, opts ...GoogleVerifierOption) (*GoogleVerifier, error) {
	v := &GoogleVerifier{
		clientID: clientID,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	if v.keyFunc == nil {
		jwks, err := keyfunc.Get(GoogleJWKSURL, keyfunc.Options{
			RefreshErrorHandler: func(err error) {
				log.Printf("failed to do a background refresh of JWT set: %s", err)
			},
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  time.Minute * 5,
			RefreshTimeout:    time.Second * 10,
			RefreshUnknownKID: true,
		})
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryOperation, "failed to fetch google JWKS")
		}
		v.keyFunc = jwks.Keyfunc
	}

	return v, nil
}

// Verify implements Verifier. Any verification failure other than an
// unverified email collapses into ErrInvalidCredentials; the detail
// goes into error metadata for server-side logs, never to the client.
func (v *GoogleVerifier) Verify(assertion string) (*Identity, error) {
	claims := &googleIDClaims{}

	_, err := jwt.ParseWithClaims(assertion, claims, v.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, invalidAssertion("token verification failed", err)
	}

	issuer, err := claims.GetIssuer()
	if err != nil || !validGoogleIssuer(issuer) {
		return nil, invalidAssertion("unexpected issuer", err)
	}

	if claims.Subject == "" {
		return nil, invalidAssertion("missing subject", nil)
	}

	if !claims.EmailVerified {
		return nil, session.ErrUnverifiedFederatedEmail
	}

	return &Identity{
		Provider:  ProviderGoogle,
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
		AvatarURL: claims.Picture,
	}, nil
}

func validGoogleIssuer(issuer string) bool {
	for _, iss := range googleIssuers {
		if issuer == iss {
			return true
		}
	}
	return false
}

func invalidAssertion(reason string, cause error) error {
	err := session.ErrInvalidCredentials.Clone().
		WithMetadata(map[string]any{
			"reason": reason,
		})
	if cause != nil {
		err.Source = cause
	}
	return err
}
