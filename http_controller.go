package session

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
)

// FederatedAuthenticator verifies a provider assertion and resolves or
// provisions the local account, returning a token pair. Implemented by
// federation.Adapter.
type FederatedAuthenticator interface {
	LoginWithProvider(ctx context.Context, provider, assertion string) (*TokenPair, error)
}

// Controller exposes the session flows as a JSON API.
type Controller struct {
	Logger    Logger
	Auth      *Orchestrator
	Federated FederatedAuthenticator
	Register  *RegisterUserHandler
}

type ControllerOption func(*Controller) *Controller

func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithFederated enables the federated login routes.
func WithFederated(f FederatedAuthenticator) ControllerOption {
	return func(c *Controller) *Controller {
		c.Federated = f
		return c
	}
}

// WithRegistration enables the sign-up route.
func WithRegistration(h *RegisterUserHandler) ControllerOption {
	return func(c *Controller) *Controller {
		c.Register = h
		return c
	}
}

func NewController(auth *Orchestrator, opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger: defLogger{},
		Auth:   auth,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auth == nil {
		panic("Missing Orchestrator in session controller...")
	}

	return c
}

// RegisterRoutes mounts the session API under /auth.
func (c *Controller) RegisterRoutes(app fiber.Router) {
	grp := app.Group("/auth")

	grp.Post("/login", c.LoginPost).Name("auth.login")
	grp.Post("/login/ussd", c.LoginUSSDPost).Name("auth.login.ussd")
	grp.Post("/refresh", c.RefreshPost).Name("auth.refresh")
	grp.Post("/logout", c.LogoutPost).Name("auth.logout")
	grp.Get("/validate", c.ValidateGet).Name("auth.validate")

	if c.Federated != nil {
		grp.Post("/federation/:provider", c.FederatedPost).Name("auth.federation")
	}

	if c.Register != nil {
		grp.Post("/register", c.RegisterPost).Name("auth.register")
	}
}

// LoginPayload is the credential login body.
type LoginPayload struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (p LoginPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Identifier, validation.Required),
		validation.Field(&p.Password, validation.Required),
	)
}

func (c *Controller) LoginPost(ctx *fiber.Ctx) error {
	payload := new(LoginPayload)

	if err := ctx.BodyParser(payload); err != nil {
		return c.renderError(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse login payload"))
	}

	if err := payload.Validate(); err != nil {
		return c.renderValidation(ctx, err)
	}

	pair, err := c.Auth.Login(ctx.UserContext(), payload.Identifier, payload.Password)
	if err != nil {
		return c.renderError(ctx, err)
	}

	return ctx.JSON(pair)
}

// LoginUSSDPayload is the phone-only login body used by the USSD
// gateway.
type LoginUSSDPayload struct {
	Phone string `json:"phone_number"`
}

func (p LoginUSSDPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Phone, validation.Required),
	)
}

func (c *Controller) LoginUSSDPost(ctx *fiber.Ctx) error {
	payload := new(LoginUSSDPayload)

	if err := ctx.BodyParser(payload); err != nil {
		return c.renderError(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse ussd login payload"))
	}

	if err := payload.Validate(); err != nil {
		return c.renderValidation(ctx, err)
	}

	pair, err := c.Auth.LoginPhone(ctx.UserContext(), payload.Phone)
	if err != nil {
		return c.renderError(ctx, err)
	}

	return ctx.JSON(pair)
}

// RefreshPayload carries the refresh token value.
type RefreshPayload struct {
	RefreshToken string `json:"refresh_token"`
}

func (p RefreshPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.RefreshToken, validation.Required),
	)
}

func (c *Controller) RefreshPost(ctx *fiber.Ctx) error {
	payload := new(RefreshPayload)

	if err := ctx.BodyParser(payload); err != nil {
		return c.renderError(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse refresh payload"))
	}

	if err := payload.Validate(); err != nil {
		return c.renderValidation(ctx, err)
	}

	pair, err := c.Auth.Refresh(ctx.UserContext(), payload.RefreshToken)
	if err != nil {
		return c.renderError(ctx, err)
	}

	return ctx.JSON(pair)
}

// LogoutPayload carries the refresh token to revoke; the access token
// comes from the Authorization header.
type LogoutPayload struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutPost always reports success: a logout request with a garbage or
// already-dead token still leaves the client logged out.
func (c *Controller) LogoutPost(ctx *fiber.Ctx) error {
	payload := new(LogoutPayload)
	if err := ctx.BodyParser(payload); err != nil {
		c.Logger.Debug("logout payload unparseable: %v", err)
	}

	c.Auth.Logout(ctx.UserContext(), bearerToken(ctx), payload.RefreshToken)

	return ctx.JSON(fiber.Map{"success": true})
}

// ValidateGet reports token validity in a fixed shape: every invalid
// outcome, whether revoked, expired, or unparseable, is a 401 with
// {"valid":false}, so callers branch on one field.
func (c *Controller) ValidateGet(ctx *fiber.Ctx) error {
	raw := bearerToken(ctx)
	if raw == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(&ValidationResult{Valid: false})
	}

	result, err := c.Auth.Validate(ctx.UserContext(), raw)
	if err != nil {
		c.Logger.Debug("token validation rejected: %v", err)
		return ctx.Status(fiber.StatusUnauthorized).JSON(&ValidationResult{Valid: false})
	}

	if !result.Valid {
		return ctx.Status(fiber.StatusUnauthorized).JSON(result)
	}

	return ctx.JSON(result)
}

// FederatedPayload carries a provider-issued identity assertion.
type FederatedPayload struct {
	Assertion string `json:"assertion"`
}

func (p FederatedPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Assertion, validation.Required),
	)
}

func (c *Controller) FederatedPost(ctx *fiber.Ctx) error {
	payload := new(FederatedPayload)

	if err := ctx.BodyParser(payload); err != nil {
		return c.renderError(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse federation payload"))
	}

	if err := payload.Validate(); err != nil {
		return c.renderValidation(ctx, err)
	}

	provider := ctx.Params("provider")

	pair, err := c.Federated.LoginWithProvider(ctx.UserContext(), provider, payload.Assertion)
	if err != nil {
		return c.renderError(ctx, err)
	}

	return ctx.JSON(pair)
}

func (c *Controller) RegisterPost(ctx *fiber.Ctx) error {
	payload := RegisterUserMessage{}

	if err := ctx.BodyParser(&payload); err != nil {
		return c.renderError(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse registration payload"))
	}

	pair, err := c.Register.Execute(ctx.UserContext(), payload)
	if err != nil {
		return c.renderError(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(pair)
}

func (c *Controller) renderValidation(ctx *fiber.Ctx, err error) error {
	return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success":    false,
		"error":      "validation failed",
		"validation": err.Error(),
	})
}

func (c *Controller) renderError(ctx *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "internal error"
	textCode := ""

	var rich *errors.Error
	if errors.As(err, &rich) {
		message = rich.Message
		textCode = rich.TextCode

		switch rich.Category {
		case errors.CategoryAuth:
			status = fiber.StatusUnauthorized
		case errors.CategoryAuthz:
			status = fiber.StatusForbidden
		case errors.CategoryNotFound:
			status = fiber.StatusNotFound
		case errors.CategoryRateLimit:
			status = fiber.StatusTooManyRequests
		case errors.CategoryValidation, errors.CategoryBadInput:
			status = fiber.StatusBadRequest
		case errors.CategoryConflict:
			status = fiber.StatusConflict
		case errors.CategoryOperation:
			status = fiber.StatusServiceUnavailable
		}
	}

	if status >= fiber.StatusInternalServerError {
		c.Logger.Error("request failed: %v", err)
	}

	body := fiber.Map{
		"success": false,
		"error":   message,
	}
	if textCode != "" {
		body["code"] = textCode
	}

	return ctx.Status(status).JSON(body)
}

func bearerToken(ctx *fiber.Ctx) string {
	header := ctx.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}

	return strings.TrimSpace(header[len(prefix):])
}
