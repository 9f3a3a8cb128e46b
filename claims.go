package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the payload of a self-describing access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	UserRole Role   `json:"role,omitempty"`
}

// SubjectID returns the subject the token was issued for.
func (c *AccessClaims) SubjectID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.RegisteredClaims.Subject
}

// Role returns the role snapshotted at issuance.
func (c *AccessClaims) Role() Role {
	return c.UserRole
}

// TokenID returns the jti used as the blacklist key.
func (c *AccessClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time, zero if unset.
func (c *AccessClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// Issued returns the issuance time, zero if unset.
func (c *AccessClaims) Issued() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
