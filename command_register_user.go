package session

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// RegisterUserMessage carries the payload for creating a new account.
type RegisterUserMessage struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone_number"`
	Password  string `json:"password"`
	Role      Role   `json:"role"`
}

func (m RegisterUserMessage) Type() string { return "session.register_user" }

// Validate implements the message contract.
func (m RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&m.FirstName, validation.Required),
		validation.Field(&m.Role, validation.By(func(any) error {
			if m.Role != "" && !ValidRole(m.Role) {
				return errors.New("unknown role", errors.CategoryValidation)
			}
			return nil
		})),
	)
}

// RegisterUserHandler creates an account and issues its first token
// pair, so a successful sign-up is also a login.
type RegisterUserHandler struct {
	repo     RepositoryManager
	auth     *Orchestrator
	notifier Notifier
	logger   Logger
}

// NewRegisterUserHandler wires the registration command.
func NewRegisterUserHandler(repo RepositoryManager, auth *Orchestrator, notifier Notifier, logger Logger) *RegisterUserHandler {
	if logger == nil {
		logger = defLogger{}
	}
	return &RegisterUserHandler{
		repo:     repo,
		auth:     auth,
		notifier: normalizeNotifier(notifier),
		logger:   logger,
	}
}

// Execute validates the message, stores the user with a hashed
// password, and returns a token pair for the new account.
func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*TokenPair, error) {
	if err := event.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid registration payload")
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		FirstName:    event.FirstName,
		LastName:     event.LastName,
		Email:        strings.ToLower(strings.TrimSpace(event.Email)),
		Phone:        event.Phone,
		PasswordHash: hash,
		Role:         event.Role,
	}

	if phone, ok := NormalizePhone(event.Phone, ""); ok {
		user.Phone = phone
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := h.repo.Users().RegisterTx(ctx, tx, user)
		if err != nil {
			return err
		}
		user = created
		return nil
	})
	if err != nil {
		h.logger.Error("user registration failed: %v", err)
		return nil, errors.Wrap(err, errors.CategoryConflict, "could not create user").
			WithTextCode("DUPLICATE_ACCOUNT")
	}

	h.notifier.Notify(ctx, Notification{
		Kind:      NotificationWelcome,
		Recipient: user.Email,
		SubjectID: user.ID.String(),
		Metadata: map[string]any{
			"first_name": user.FirstName,
		},
	})

	return h.auth.IssueTokenPair(ctx, user.ID, user.Role)
}
