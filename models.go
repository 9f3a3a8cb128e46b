package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity record owned by the credential store.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           Role       `bun:"role,notnull" json:"role,omitempty"`
	FirstName      string     `bun:"first_name" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name" json:"last_name,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string     `bun:"email,unique" json:"email,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	Active         bool       `bun:"is_active" json:"is_active,omitempty"`
	EmailVerified  bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	FailedAttempts int        `bun:"failed_login_attempts" json:"failed_login_attempts,omitempty"`
	LastAttemptAt  *time.Time `bun:"last_attempt_at" json:"last_attempt_at,omitempty"`
	LockedUntil    *time.Time `bun:"locked_until" json:"locked_until,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IdentityRecord converts the stored user into the read-only snapshot
// consumed by the orchestrator.
func (u *User) IdentityRecord(identifier string) *IdentityRecord {
	return &IdentityRecord{
		SubjectID:      u.ID,
		Identifier:     identifier,
		PasswordHash:   u.PasswordHash,
		Role:           u.Role,
		Active:         u.Active,
		LockedUntil:    u.LockedUntil,
		FailedAttempts: u.FailedAttempts,
	}
}

// RefreshToken is a row in the refresh-token ledger. The subject role
// is snapshotted at issuance so refresh never needs the identity
// store. Expiry is fixed at creation; refresh updates LastUsedAt only.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`

	ID         uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token      string     `bun:"token,notnull,unique" json:"-"`
	SubjectID  uuid.UUID  `bun:"subject_id,notnull,type:uuid" json:"subject_id,omitempty"`
	Role       Role       `bun:"role,notnull" json:"role,omitempty"`
	IssuedAt   time.Time  `bun:"issued_at,notnull" json:"issued_at,omitempty"`
	ExpiresAt  time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	Revoked    bool       `bun:"revoked,notnull,default:false" json:"revoked,omitempty"`
	RevokedAt  *time.Time `bun:"revoked_at" json:"revoked_at,omitempty"`
	LastUsedAt *time.Time `bun:"last_used_at" json:"last_used_at,omitempty"`
}

// Live reports whether the token can still mint access tokens: not
// revoked and not past its fixed expiry. Once Revoked flips to true it
// never flips back.
func (t *RefreshToken) Live(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// Expired reports whether the fixed expiry has passed, regardless of
// revocation state.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
