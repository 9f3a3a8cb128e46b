package session

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/vijanaworks/go-session/breaker"
	"github.com/vijanaworks/go-session/revocation"
)

// Orchestrator drives the session lifecycle: credential logins, refresh
// grants, logout, and access-token validation. It composes the identity
// store (behind a circuit breaker), the refresh ledger, the revocation
// registry, and the token codec.
type Orchestrator struct {
	identities IdentityStore
	ledger     RefreshLedger
	registry   revocation.Registry
	codec      *Codec
	cb         *breaker.Breaker
	notifier   Notifier
	logger     Logger

	accessTTL     time.Duration
	refreshTTL    time.Duration
	lookupTimeout time.Duration
	phoneRegion   string
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

func WithLogger(logger Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithNotifier sets the delivery channel for account notifications.
func WithNotifier(n Notifier) OrchestratorOption {
	return func(o *Orchestrator) {
		o.notifier = normalizeNotifier(n)
	}
}

// WithBreaker guards identity-store lookups with the given circuit
// breaker. Without one, lookups go straight through.
func WithBreaker(cb *breaker.Breaker) OrchestratorOption {
	return func(o *Orchestrator) {
		o.cb = cb
	}
}

// WithLookupTimeout bounds each identity-store lookup. Zero disables
// the per-call deadline.
func WithLookupTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.lookupTimeout = d
	}
}

// NewOrchestrator wires the session flows together. registry may be nil
// for deployments that do not blacklist on logout; everything else is
// required.
func NewOrchestrator(identities IdentityStore, ledger RefreshLedger, registry revocation.Registry, cfg Config, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		identities:  identities,
		ledger:      ledger,
		registry:    registry,
		notifier:    noopNotifier{},
		logger:      defLogger{},
		accessTTL:   cfg.GetAccessTokenTTL(),
		refreshTTL:  cfg.GetRefreshTokenTTL(),
		phoneRegion: cfg.GetDefaultPhoneRegion(),
	}

	o.codec = NewCodec([]byte(cfg.GetSigningKey()), o.accessTTL, cfg.GetIssuer(), cfg.GetAudience(), o.logger)

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return o
}

// Codec exposes the token codec, mainly so middleware can decode access
// tokens without a full orchestrator round trip.
func (o *Orchestrator) Codec() *Codec {
	return o.codec
}

// Login verifies credentials and issues a token pair. Identifier may be
// an email, phone number, username, or subject id.
//
// Failure ordering is fixed: unknown user, then lockout, then inactive,
// then password mismatch. A store outage or an open circuit surfaces
// only as ErrDependencyUnavailable; the cause is logged server-side.
func (o *Orchestrator) Login(ctx context.Context, identifier, password string) (*TokenPair, error) {
	record, err := o.lookup(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if record.Locked(time.Now()) {
		return nil, ErrAccountLocked
	}

	if !record.Active {
		return nil, ErrAccountInactive
	}

	if err := ComparePasswordAndHash(password, record.PasswordHash); err != nil {
		o.trackFailure(ctx, record)
		return nil, ErrInvalidCredentials
	}

	o.trackSuccess(ctx, record.SubjectID)

	return o.IssueTokenPair(ctx, record.SubjectID, record.Role)
}

// LoginPhone authenticates a USSD session by phone number alone. The
// telco transport already authenticated possession of the SIM, so no
// password is checked; the number is normalized to E.164 before lookup.
func (o *Orchestrator) LoginPhone(ctx context.Context, phone string) (*TokenPair, error) {
	normalized, ok := NormalizePhone(phone, o.phoneRegion)
	if !ok {
		return nil, ErrUserNotFound
	}

	record, err := o.lookup(ctx, normalized)
	if err != nil {
		return nil, err
	}

	if record.Locked(time.Now()) {
		return nil, ErrAccountLocked
	}

	if !record.Active {
		return nil, ErrAccountInactive
	}

	o.trackSuccess(ctx, record.SubjectID)

	return o.IssueTokenPair(ctx, record.SubjectID, record.Role)
}

// Refresh exchanges a live refresh token for a fresh access token. The
// refresh value itself is returned unchanged: its expiry was fixed at
// login and reuse is expected until then.
//
// Refresh never touches the identity store; the subject and role come
// from the ledger row's snapshot, so token refresh keeps working while
// the credential store is down.
func (o *Orchestrator) Refresh(ctx context.Context, refreshValue string) (*TokenPair, error) {
	if !IsWellFormedRefreshValue(refreshValue) {
		return nil, ErrInvalidRefreshToken
	}

	row, err := o.ledger.FindLiveByValue(ctx, refreshValue)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrInvalidRefreshToken
		}
		o.logger.Error("refresh ledger lookup failed: %v", err)
		return nil, ErrDependencyUnavailable
	}

	now := time.Now()
	if row.Expired(now) {
		// Retire the row so later lookups are a cheap miss. Best effort:
		// the expiry check alone already rejects it.
		if _, err := o.ledger.Revoke(ctx, refreshValue); err != nil {
			o.logger.Warn("failed to retire expired refresh token: %v", err)
		}
		return nil, ErrExpiredRefreshToken
	}

	access, claims, err := o.codec.IssueAccess(row.SubjectID.String(), row.Role, o.accessTTL)
	if err != nil {
		return nil, err
	}

	if err := o.ledger.TouchLastUsed(ctx, refreshValue); err != nil {
		o.logger.Warn("failed to record refresh token use: %v", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshValue,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(claims.Expires()).Seconds()),
		SubjectID:    row.SubjectID.String(),
		Role:         row.Role,
	}, nil
}

// Logout invalidates a session. The access token's jti is blacklisted
// for its remaining lifetime and the refresh token is revoked in the
// ledger. Logout is idempotent and never fails outward: a garbage
// token, an already-revoked session, or a registry hiccup all end the
// same way, with the client logged out.
func (o *Orchestrator) Logout(ctx context.Context, accessToken, refreshValue string) {
	if accessToken != "" {
		o.blacklistAccess(ctx, accessToken)
	}

	if refreshValue != "" && IsWellFormedRefreshValue(refreshValue) {
		if _, err := o.ledger.Revoke(ctx, refreshValue); err != nil {
			o.logger.Warn("logout could not revoke refresh token: %v", err)
		}
	}
}

func (o *Orchestrator) blacklistAccess(ctx context.Context, accessToken string) {
	claims, err := o.codec.Inspect(accessToken)
	if err != nil {
		o.logger.Debug("logout ignored undecodable access token: %v", err)
		return
	}

	ttl := time.Until(claims.Expires())
	if ttl <= 0 {
		return
	}

	if o.registry == nil {
		return
	}

	if err := o.registry.Add(ctx, claims.TokenID(), ttl); err != nil {
		o.logger.Warn("logout could not blacklist access token: %v", err)
	}
}

// Validate checks an access token: blacklist first, then signature and
// claims. The blacklist is keyed by jti, which is read unverified; a
// forged jti can only cause a rejection, never an acceptance, because
// the signature check still follows.
func (o *Orchestrator) Validate(ctx context.Context, accessToken string) (*ValidationResult, error) {
	if o.registry != nil {
		if jti := PeekTokenID(accessToken); jti != "" {
			revoked, err := o.registry.Contains(ctx, jti)
			if err != nil {
				// Fail open on registry errors: a down blacklist must not
				// take down every authenticated request.
				o.logger.Warn("revocation registry check failed: %v", err)
			} else if revoked {
				return &ValidationResult{Valid: false}, nil
			}
		}
	}

	claims, err := o.codec.DecodeAccess(accessToken)
	if err != nil {
		return &ValidationResult{Valid: false}, err
	}

	return &ValidationResult{
		Valid:     true,
		SubjectID: claims.SubjectID(),
		Role:      claims.Role(),
	}, nil
}

// RevokeAllForSubject ends every session for a subject, typically after
// a password change or an admin lockout. Already-issued access tokens
// remain valid until expiry unless individually blacklisted.
func (o *Orchestrator) RevokeAllForSubject(ctx context.Context, subjectID uuid.UUID) (int64, error) {
	n, err := o.ledger.RevokeAllForSubject(ctx, subjectID)
	if err != nil {
		o.logger.Error("bulk refresh revocation failed for %s: %v", subjectID, err)
		return 0, ErrDependencyUnavailable
	}

	if n > 0 {
		o.logger.Info("revoked %d refresh tokens for subject %s", n, subjectID)
	}

	return n, nil
}

// IssueTokenPair mints an access token and a fresh refresh token for a
// subject whose identity has already been established. Federated logins
// and registration call this after their own verification.
func (o *Orchestrator) IssueTokenPair(ctx context.Context, subjectID uuid.UUID, role Role) (*TokenPair, error) {
	access, claims, err := o.codec.IssueAccess(subjectID.String(), role, o.accessTTL)
	if err != nil {
		return nil, err
	}

	refreshValue, err := NewRefreshValue()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	row := &RefreshToken{
		Token:     refreshValue,
		SubjectID: subjectID,
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now.Add(o.refreshTTL),
	}

	if err := o.ledger.Save(ctx, row); err != nil {
		o.logger.Error("failed to persist refresh token: %v", err)
		return nil, ErrDependencyUnavailable
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshValue,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(claims.Expires()).Seconds()),
		SubjectID:    subjectID.String(),
		Role:         role,
	}, nil
}

// lookup fetches the identity record through the circuit breaker,
// collapsing infrastructure failures into ErrDependencyUnavailable and
// passing domain outcomes (not found) through untouched.
func (o *Orchestrator) lookup(ctx context.Context, identifier string) (*IdentityRecord, error) {
	var record *IdentityRecord

	fetch := func(ctx context.Context) error {
		if o.lookupTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.lookupTimeout)
			defer cancel()
		}

		var err error
		record, err = o.identities.Lookup(ctx, identifier)
		return err
	}

	var err error
	if o.cb != nil {
		err = o.cb.Do(ctx, fetch)
	} else {
		err = fetch(ctx)
	}

	if err != nil {
		switch {
		case goerrors.Is(err, breaker.ErrOpen):
			o.logger.Warn("identity lookup short-circuited: breaker open")
			return nil, ErrDependencyUnavailable
		case IsNotFound(err):
			return nil, ErrUserNotFound
		case IsUnavailable(err):
			o.logger.Error("identity store unavailable: %v", err)
			return nil, ErrDependencyUnavailable
		default:
			o.logger.Error("identity lookup failed: %v", err)
			return nil, ErrDependencyUnavailable
		}
	}

	return record, nil
}

// trackFailure records a failed password attempt when the store keeps
// attempt counters. Tracking errors are logged, never surfaced: the
// login already failed for the caller.
func (o *Orchestrator) trackFailure(ctx context.Context, record *IdentityRecord) {
	tracker, ok := o.identities.(AttemptTracker)
	if !ok {
		return
	}

	if err := tracker.TrackFailedAttempt(ctx, record.SubjectID); err != nil {
		o.logger.Warn("failed to track login attempt for %s: %v", record.SubjectID, err)
		return
	}

	if record.FailedAttempts+1 >= MaxFailedAttempts {
		o.notifier.Notify(ctx, Notification{
			Kind:      NotificationAccountLocked,
			Recipient: record.Identifier,
			SubjectID: record.SubjectID.String(),
			Metadata: map[string]any{
				"locked_for": LockoutPeriod.String(),
			},
		})
	}
}

func (o *Orchestrator) trackSuccess(ctx context.Context, subjectID uuid.UUID) {
	tracker, ok := o.identities.(AttemptTracker)
	if !ok {
		return
	}

	if err := tracker.TrackSuccessfulLogin(ctx, subjectID); err != nil {
		o.logger.Warn("failed to reset login attempts for %s: %v", subjectID, err)
	}
}
