package federation

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// FederatedIdentity links a local user to a provider-side subject.
type FederatedIdentity struct {
	bun.BaseModel `bun:"table:federated_identities,alias:fid"`

	ID                uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID            uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Provider          string     `bun:"provider,notnull" json:"provider,omitempty"`
	ProviderSubjectID string     `bun:"provider_subject_id,notnull" json:"provider_subject_id,omitempty"`
	Email             string     `bun:"email" json:"email,omitempty"`
	Name              string     `bun:"name" json:"name,omitempty"`
	AvatarURL         string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	CreatedAt         *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// LinkStore manages federated identity persistence. The natural key is
// (provider, provider_subject_id); a user may hold links from several
// providers.
type LinkStore interface {
	FindByProviderSubject(ctx context.Context, provider, subjectID string) (*FederatedIdentity, error)
	Upsert(ctx context.Context, link *FederatedIdentity) error
}

type links struct {
	db *bun.DB
}

var _ LinkStore = (*links)(nil)

// NewLinkStore creates the bun-backed link store.
func NewLinkStore(db *bun.DB) LinkStore {
	return &links{db: db}
}

func (l *links) FindByProviderSubject(ctx context.Context, provider, subjectID string) (*FederatedIdentity, error) {
	record := &FederatedIdentity{}

	err := l.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ?", provider).
		Where("?TableAlias.provider_subject_id = ?", subjectID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows || repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"provider":   provider,
					"subject_id": subjectID,
				})
		}
		return nil, err
	}

	return record, nil
}

// Upsert inserts the link or refreshes the profile columns when the
// (provider, provider_subject_id) pair already exists.
func (l *links) Upsert(ctx context.Context, link *FederatedIdentity) error {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}

	now := time.Now()
	link.UpdatedAt = &now

	_, err := l.db.NewInsert().
		Model(link).
		On("CONFLICT (provider, provider_subject_id) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Set("email = EXCLUDED.email").
		Set("name = EXCLUDED.name").
		Set("avatar_url = EXCLUDED.avatar_url").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}
