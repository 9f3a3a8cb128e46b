package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// IdentityRecord is a read-only snapshot of an identity as stored in
// the credential store. The orchestrator never mutates it directly;
// attempt counters and locks are owned by the store.
type IdentityRecord struct {
	SubjectID      uuid.UUID
	Identifier     string
	PasswordHash   string
	Role           Role
	Active         bool
	LockedUntil    *time.Time
	FailedAttempts int
}

// Locked reports whether the record is under an active lockout.
func (r *IdentityRecord) Locked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// IdentityStore fetches identity records. Implementations must return
// a not-found error for unknown identifiers and an unavailability
// error (see IsUnavailable) for infrastructure failures; the circuit
// breaker counts only the latter.
type IdentityStore interface {
	Lookup(ctx context.Context, identifier string) (*IdentityRecord, error)
}

// AttemptTracker is implemented by identity stores that own the
// failed-attempt counter and lockout bookkeeping. The orchestrator
// feature-detects it; tracking failures never fail a login outward.
type AttemptTracker interface {
	TrackFailedAttempt(ctx context.Context, subjectID uuid.UUID) error
	TrackSuccessfulLogin(ctx context.Context, subjectID uuid.UUID) error
}

// RefreshLedger is the persistent store of issued refresh tokens.
//
// Revoke must be atomic and conditional: it flips the revoked flag
// only on rows that are still live and reports whether it did, so that
// concurrent refresh or logout calls racing on the same value cannot
// double-revoke or resurrect a token.
type RefreshLedger interface {
	Save(ctx context.Context, token *RefreshToken) error
	FindLiveByValue(ctx context.Context, value string) (*RefreshToken, error)
	Revoke(ctx context.Context, value string) (bool, error)
	TouchLastUsed(ctx context.Context, value string) error
	RevokeAllForSubject(ctx context.Context, subjectID uuid.UUID) (int64, error)
}

// TokenPair is the result of a successful login, federation login, or
// registration.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	SubjectID    string `json:"subject_id"`
	Role         Role   `json:"role"`
}

// ValidationResult is the outcome of validating an access token.
type ValidationResult struct {
	Valid     bool   `json:"valid"`
	SubjectID string `json:"subject_id,omitempty"`
	Role      Role   `json:"role,omitempty"`
}

// Config holds session options.
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetDefaultPhoneRegion() string
}

// NewDefaultLogger returns the stdout fallback logger used when no
// logger is configured.
func NewDefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SESSION "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SESSION "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SESSION "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SESSION "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
