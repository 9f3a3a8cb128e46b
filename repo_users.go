package session

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// MaxFailedAttempts is the number of consecutive failed logins before
// an account is locked.
var MaxFailedAttempts = 5

// LockoutPeriod is how long a lock stays in place once triggered.
var LockoutPeriod = 30 * time.Minute

// Users is the credential store: lookups for the orchestrator plus the
// attempt/lock bookkeeping it delegates back to us.
type Users interface {
	repository.Repository[*User]

	Lookup(ctx context.Context, identifier string) (*IdentityRecord, error)
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)

	TrackFailedAttempt(ctx context.Context, subjectID uuid.UUID) error
	TrackFailedAttemptTx(ctx context.Context, tx bun.IDB, subjectID uuid.UUID) error
	TrackSuccessfulLogin(ctx context.Context, subjectID uuid.UUID) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, subjectID uuid.UUID) error

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db          *bun.DB
	phoneRegion string
}

var (
	_ Users                        = (*users)(nil)
	_ IdentityStore                = (*users)(nil)
	_ AttemptTracker               = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

// WithPhoneRegion sets the default region used to normalize bare
// national phone numbers into E.164.
func WithPhoneRegion(region string) UsersOption {
	return func(u *users) {
		if region != "" {
			u.phoneRegion = region
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	repoUsers := &users{
		Repository:  repo,
		db:          db,
		phoneRegion: "KE",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

// Lookup implements IdentityStore. Unknown identifiers return a
// not-found error; any other store failure is surfaced as
// ErrIdentityStoreUnavailable so the circuit breaker never counts a
// legitimate "user does not exist".
func (a *users) Lookup(ctx context.Context, identifier string) (*IdentityRecord, error) {
	user, err := a.GetByIdentifier(ctx, identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return nil, err
		}
		unavailable := ErrIdentityStoreUnavailable.Clone()
		unavailable.Source = err
		return nil, unavailable
	}

	return user.IdentityRecord(identifier), nil
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*User, error) {
	options := a.resolveIdentifier(identifier)
	if len(options) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"identifier": identifier,
			})
	}

	for _, opt := range options {
		record := &User{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) TrackFailedAttempt(ctx context.Context, subjectID uuid.UUID) error {
	return a.TrackFailedAttemptTx(ctx, a.db, subjectID)
}

// TrackFailedAttemptTx bumps the failed-attempt counter and arms the
// lock once the threshold is reached. Single conditional statement so
// concurrent failures cannot lose updates.
func (a *users) TrackFailedAttemptTx(ctx context.Context, tx bun.IDB, subjectID uuid.UUID) error {
	now := time.Now()
	lockUntil := now.Add(LockoutPeriod)

	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"failed_login_attempts" = "failed_login_attempts" + 1,
			"last_attempt_at" = ?,
			"locked_until" = CASE
				WHEN "failed_login_attempts" + 1 >= ? THEN ?
				ELSE "locked_until"
			END
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, now, MaxFailedAttempts, lockUntil, subjectID).Exec(ctx)

	return err
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, subjectID uuid.UUID) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, subjectID)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, subjectID uuid.UUID) error {
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "users" AS "usr"
		SET
			"loggedin_at" = ?,
			"last_attempt_at" = NULL,
			"failed_login_attempts" = 0,
			"locked_until" = NULL
		WHERE
			("usr".id = ?)
			AND "usr"."deleted_at" IS NULL;
	`, loggedInAt, subjectID).Exec(ctx)

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = DefaultRole
	}

	if record.Username == "" {
		record.Username = usernameFromEmail(record.Email)
	}

	record.Active = true

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func usernameFromEmail(email string) string {
	if strings.Contains(email, "@") {
		return strings.Split(email, "@")[0]
	}
	return email
}

type identifierOption struct {
	column string
	value  string
}

func (a *users) resolveIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	if phone, ok := NormalizePhone(trimmed, a.phoneRegion); ok {
		options = append(options, identifierOption{
			column: "phone_number",
			value:  phone,
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}

// NormalizePhone parses a raw phone number and returns its E.164 form.
// The region only matters for bare national numbers; values with a
// leading + carry their own country code.
func NormalizePhone(raw, region string) (string, bool) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return "", false
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.E164), true
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
