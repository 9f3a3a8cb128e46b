package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// refreshValueBytes is the entropy of an opaque refresh token value.
// 32 bytes encode to 43 base64url characters.
const refreshValueBytes = 32

const refreshValueLength = 43

// Codec encodes and decodes the two token kinds: signed,
// self-describing access tokens and opaque random refresh values.
// It is stateless except for the signing key, which is read-only at
// request time and safe to share across concurrent callers.
type Codec struct {
	signingKey []byte
	accessTTL  time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
}

// NewCodec creates a Codec from the configured signing key, default
// access TTL, issuer and audience.
func NewCodec(signingKey []byte, accessTTL time.Duration, issuer string, audience []string, logger Logger) *Codec {
	if logger == nil {
		logger = defLogger{}
	}

	var aud jwt.ClaimStrings
	if len(audience) > 0 {
		aud = make(jwt.ClaimStrings, len(audience))
		copy(aud, audience)
	}

	return &Codec{
		signingKey: signingKey,
		accessTTL:  accessTTL,
		issuer:     issuer,
		audience:   aud,
		logger:     logger,
	}
}

// AccessTTL returns the default lifetime of issued access tokens.
func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

// IssueAccess signs a new access token for the subject. A zero or
// negative ttl uses the codec default.
func (c *Codec) IssueAccess(subjectID string, role Role, ttl time.Duration) (string, *AccessClaims, error) {
	if ttl <= 0 {
		ttl = c.accessTTL
	}

	now := time.Now()
	claims := &AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subjectID,
			Audience:  c.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UID:      subjectID,
		UserRole: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", nil, errors.Wrap(err, errors.CategoryInternal, "failed to sign access token")
	}

	return signed, claims, nil
}

// DecodeAccess parses and validates an access token, returning its
// claims. Bad signatures and unparseable payloads surface as
// ErrMalformedToken; expiry surfaces as ErrTokenExpired.
func (c *Codec) DecodeAccess(raw string) (*AccessClaims, error) {
	return c.parse(raw, true)
}

// Inspect verifies the signature but ignores expiry, so logout can
// read the jti and expiry of a token that may already be stale.
func (c *Codec) Inspect(raw string) (*AccessClaims, error) {
	return c.parse(raw, false)
}

func (c *Codec) parse(raw string, validateClaims bool) (*AccessClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 3)
	if validateClaims {
		if c.issuer != "" {
			parserOptions = append(parserOptions, jwt.WithIssuer(c.issuer))
		}
		if len(c.audience) > 0 {
			parserOptions = append(parserOptions, jwt.WithAudience(c.audience...))
		}
	} else {
		parserOptions = append(parserOptions, jwt.WithoutClaimsValidation())
	}

	token, err := jwt.ParseWithClaims(raw, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			c.logger.Error("codec rejected unexpected signing method %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrMalformedToken.Category, ErrMalformedToken.Message).
			WithTextCode(ErrMalformedToken.TextCode)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		c.logger.Error("codec could not map access token claims")
		return nil, ErrMalformedToken
	}

	return claims, nil
}

// RemainingTTL returns how long the token remains valid, zero if it is
// already expired or cannot be verified. Used to size blacklist
// entries so they never outlive the token they blacklist.
func (c *Codec) RemainingTTL(raw string) time.Duration {
	claims, err := c.Inspect(raw)
	if err != nil {
		return 0
	}

	ttl := time.Until(claims.Expires())
	if ttl < 0 {
		return 0
	}
	return ttl
}

// PeekTokenID extracts the jti without verifying the signature. Only
// useful as a lookup key; never trust anything else from an unverified
// token.
func PeekTokenID(raw string) string {
	claims := &AccessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return ""
	}
	return claims.TokenID()
}

// NewRefreshValue generates a cryptographically random, opaque refresh
// token value. Deliberately not self-describing: revocation happens in
// the ledger, not by rotating signing keys.
func NewRefreshValue() (string, error) {
	buf := make([]byte, refreshValueBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate refresh token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IsWellFormedRefreshValue reports whether value has the shape of a
// ledger-issued refresh token. Cheap precheck before any store access.
func IsWellFormedRefreshValue(value string) bool {
	if len(value) != refreshValueLength {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(value)
	return err == nil
}
