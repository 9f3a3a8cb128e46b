package federation

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/vijanaworks/go-session"
)

// UserDirectory is the slice of the user store the adapter needs:
// email lookups and account provisioning.
type UserDirectory interface {
	GetByIdentifier(ctx context.Context, identifier string) (*session.User, error)
	Register(ctx context.Context, user *session.User) (*session.User, error)
}

// TokenIssuer mints a token pair for an already-verified subject.
// Implemented by session.Orchestrator.
type TokenIssuer interface {
	IssueTokenPair(ctx context.Context, subjectID uuid.UUID, role session.Role) (*session.TokenPair, error)
}

// Adapter resolves verified provider identities to local accounts and
// issues sessions for them. Resolution order: existing link by
// (provider, subject), then email match with link backfill, then
// account provisioning.
type Adapter struct {
	verifiers map[string]Verifier
	users     UserDirectory
	links     LinkStore
	issuer    TokenIssuer
	notifier  session.Notifier
	logger    session.Logger
}

var _ session.FederatedAuthenticator = (*Adapter)(nil)

type AdapterOption func(*Adapter)

func WithNotifier(n session.Notifier) AdapterOption {
	return func(a *Adapter) {
		if n != nil {
			a.notifier = n
		}
	}
}

func WithLogger(logger session.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithVerifier registers a verifier for a provider name.
func WithVerifier(provider string, v Verifier) AdapterOption {
	return func(a *Adapter) {
		if v != nil {
			a.verifiers[provider] = v
		}
	}
}

// NewAdapter wires federated login. At least one verifier must be
// registered via WithVerifier.
func NewAdapter(users UserDirectory, links LinkStore, issuer TokenIssuer, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		verifiers: map[string]Verifier{},
		users:     users,
		links:     links,
		issuer:    issuer,
		notifier:  session.NotifierFunc(nil),
		logger:    session.NewDefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// LoginWithProvider implements session.FederatedAuthenticator.
func (a *Adapter) LoginWithProvider(ctx context.Context, provider, assertion string) (*session.TokenPair, error) {
	verifier, ok := a.verifiers[provider]
	if !ok {
		return nil, errors.New("unknown identity provider", errors.CategoryBadInput).
			WithTextCode("UNKNOWN_PROVIDER").
			WithMetadata(map[string]any{
				"provider": provider,
			})
	}

	identity, err := verifier.Verify(assertion)
	if err != nil {
		return nil, err
	}

	user, err := a.resolveUser(ctx, identity)
	if err != nil {
		return nil, err
	}

	if !user.Active {
		return nil, session.ErrAccountInactive
	}

	return a.issuer.IssueTokenPair(ctx, user.ID, user.Role)
}

func (a *Adapter) resolveUser(ctx context.Context, identity *Identity) (*session.User, error) {
	link, err := a.links.FindByProviderSubject(ctx, identity.Provider, identity.SubjectID)
	if err == nil {
		user, err := a.users.GetByIdentifier(ctx, link.UserID.String())
		if err != nil {
			a.logger.Error("federated link points at missing user %s: %v", link.UserID, err)
			return nil, session.ErrDependencyUnavailable
		}
		return user, nil
	}
	if !session.IsNotFound(err) {
		a.logger.Error("federated link lookup failed: %v", err)
		return nil, session.ErrDependencyUnavailable
	}

	if identity.Email != "" {
		user, err := a.users.GetByIdentifier(ctx, identity.Email)
		if err == nil {
			// Known email, first login through this provider: backfill
			// the link so future logins resolve directly.
			a.saveLink(ctx, user.ID, identity)
			a.notify(ctx, session.NotificationAccountLinked, user, identity)
			return user, nil
		}
		if !session.IsNotFound(err) {
			a.logger.Error("federated email lookup failed: %v", err)
			return nil, session.ErrDependencyUnavailable
		}
	}

	return a.provisionUser(ctx, identity)
}

// provisionUser creates a local account for a first-time federated
// login. The password hash is random: the account can only be entered
// through its provider until a password reset sets a real one.
func (a *Adapter) provisionUser(ctx context.Context, identity *Identity) (*session.User, error) {
	first, last := splitName(identity.Name)

	user := &session.User{
		FirstName:     first,
		LastName:      last,
		Email:         identity.Email,
		PasswordHash:  session.RandomPasswordHash(),
		EmailVerified: true,
	}

	created, err := a.users.Register(ctx, user)
	if err != nil {
		a.logger.Error("federated account provisioning failed: %v", err)
		return nil, session.ErrDependencyUnavailable
	}

	a.saveLink(ctx, created.ID, identity)
	a.notify(ctx, session.NotificationWelcome, created, identity)

	return created, nil
}

// saveLink persists the provider link. Best effort: a failed upsert
// costs one extra email lookup on the next login, nothing more.
func (a *Adapter) saveLink(ctx context.Context, userID uuid.UUID, identity *Identity) {
	err := a.links.Upsert(ctx, &FederatedIdentity{
		UserID:            userID,
		Provider:          identity.Provider,
		ProviderSubjectID: identity.SubjectID,
		Email:             identity.Email,
		Name:              identity.Name,
		AvatarURL:         identity.AvatarURL,
	})
	if err != nil {
		a.logger.Warn("failed to persist federated link for %s: %v", userID, err)
	}
}

func (a *Adapter) notify(ctx context.Context, kind session.NotificationKind, user *session.User, identity *Identity) {
	a.notifier.Notify(ctx, session.Notification{
		Kind:      kind,
		Recipient: user.Email,
		SubjectID: user.ID.String(),
		Metadata: map[string]any{
			"provider": identity.Provider,
		},
	})
}

func splitName(full string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(full), " ", 2)
	first := parts[0]
	last := ""
	if len(parts) > 1 {
		last = parts[1]
	}
	return first, last
}
