package session

import (
	"context"
	"database/sql"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type refreshTokens struct {
	db *bun.DB
}

var _ RefreshLedger = (*refreshTokens)(nil)

// NewRefreshTokenLedger creates the bun-backed refresh token ledger.
func NewRefreshTokenLedger(db *bun.DB) RefreshLedger {
	return &refreshTokens{db: db}
}

func (r *refreshTokens) Save(ctx context.Context, token *RefreshToken) error {
	if token == nil {
		return goerrors.New("refresh token must not be nil", goerrors.CategoryBadInput)
	}

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	if _, err := r.db.NewInsert().Model(token).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist refresh token")
	}

	return nil
}

// FindLiveByValue returns the row for value only if it has not been
// revoked. Revocation is part of the predicate, not a post-check:
// a revoked-but-unexpired row must never come back. Expiry is left to
// the caller, which actively revokes stale rows.
func (r *refreshTokens) FindLiveByValue(ctx context.Context, value string) (*RefreshToken, error) {
	record := &RefreshToken{}

	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", value).
		Where("?TableAlias.revoked = FALSE").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows || repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load refresh token")
	}

	return record, nil
}

// Revoke flips the revoked flag on a still-live row. The WHERE clause
// doubles as a compare-and-set: two callers racing on the same value
// see exactly one true result, and a revoked row can never be revoked
// again or un-revoked.
func (r *refreshTokens) Revoke(ctx context.Context, value string) (bool, error) {
	now := time.Now()

	res, err := r.db.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked = TRUE").
		Set("revoked_at = ?", now).
		Where("token = ?", value).
		Where("revoked = FALSE").
		Exec(ctx)

	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke refresh token")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read revoke result")
	}

	return affected == 1, nil
}

// TouchLastUsed records refresh usage for audit. It never extends
// expiry; the token's lifetime is fixed at creation.
func (r *refreshTokens) TouchLastUsed(ctx context.Context, value string) error {
	now := time.Now()

	_, err := r.db.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("last_used_at = ?", now).
		Where("token = ?", value).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record refresh token use")
	}

	return nil
}

// RevokeAllForSubject kills every live session for a subject, e.g.
// after a compromise report or forced password reset.
func (r *refreshTokens) RevokeAllForSubject(ctx context.Context, subjectID uuid.UUID) (int64, error) {
	now := time.Now()

	res, err := r.db.NewUpdate().
		Model((*RefreshToken)(nil)).
		Set("revoked = TRUE").
		Set("revoked_at = ?", now).
		Where("subject_id = ?", subjectID).
		Where("revoked = FALSE").
		Exec(ctx)

	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke subject refresh tokens")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read revoke result")
	}

	return affected, nil
}
