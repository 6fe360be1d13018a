package authkit

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// ControllerRoutes are the paths the controller mounts its handlers on.
type ControllerRoutes struct {
	Login          string
	Logout         string
	Refresh        string
	Register       string
	VerifyRequest  string
	Verify         string
	PasswordForgot string
	PasswordReset  string
	Me             string
}

// Controller exposes the Manager's operations as JSON endpoints. Tokens
// travel through the configured transports: bearer responses return the
// token pair in the body, cookie responses set the session cookie and
// return an empty body.
type Controller struct {
	Debug        bool
	Logger       Logger
	Manager      *Manager
	Routes       *ControllerRoutes
	Transports   []TokenTransport
	ErrorHandler func(router.Context, error) error
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

func WithControllerDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

func WithControllerRoutes(routes *ControllerRoutes) ControllerOption {
	return func(c *Controller) *Controller {
		if routes != nil {
			c.Routes = routes
		}
		return c
	}
}

// WithControllerTransports sets the transports tried, in order, for reading
// tokens; the first one is also used to write login responses.
func WithControllerTransports(transports ...TokenTransport) ControllerOption {
	return func(c *Controller) *Controller {
		if len(transports) > 0 {
			c.Transports = transports
		}
		return c
	}
}

func WithControllerErrorHandler(handler func(router.Context, error) error) ControllerOption {
	return func(c *Controller) *Controller {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

// NewController builds a controller around manager. By default tokens are
// read from the Authorization header first, then the session cookie.
func NewController(manager *Manager, opts ...ControllerOption) *Controller {
	if manager == nil {
		panic("missing manager in auth controller")
	}

	c := &Controller{
		Logger:  defLogger{},
		Manager: manager,
		Routes: &ControllerRoutes{
			Login:          "/auth/login",
			Logout:         "/auth/logout",
			Refresh:        "/auth/refresh",
			Register:       "/auth/register",
			VerifyRequest:  "/auth/verify/request",
			Verify:         "/auth/verify",
			PasswordForgot: "/auth/password/forgot",
			PasswordReset:  "/auth/password/reset",
			Me:             "/auth/me",
		},
		Transports: []TokenTransport{
			NewBearerTransport(manager.Config().GetAuthScheme()),
			NewCookieTransport(manager.Config().GetCookieConfig()),
		},
	}
	c.ErrorHandler = c.defaultErrorHandler

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

// RegisterAuthRoutes mounts the controller's handlers on app.
func RegisterAuthRoutes[T any](app router.Router[T], manager *Manager, opts ...ControllerOption) *Controller {
	controller := NewController(manager, opts...)

	app.Post(controller.Routes.Login, controller.Login).SetName("auth.login")
	app.Post(controller.Routes.Logout, controller.Logout).SetName("auth.logout")
	app.Post(controller.Routes.Refresh, controller.Refresh).SetName("auth.refresh")
	app.Post(controller.Routes.Register, controller.Register).SetName("auth.register")
	app.Post(controller.Routes.VerifyRequest, controller.VerifyRequest).SetName("auth.verify-request")
	app.Post(controller.Routes.Verify, controller.Verify).SetName("auth.verify")
	app.Post(controller.Routes.PasswordForgot, controller.PasswordForgot).SetName("auth.password-forgot")
	app.Post(controller.Routes.PasswordReset, controller.PasswordReset).SetName("auth.password-reset")
	app.Get(controller.Routes.Me, controller.Me, controller.Protected(AccessRequirements{})).SetName("auth.me")

	return controller
}

// LoginRequest payload.
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *Controller) Login(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse login payload").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	if c.Debug {
		c.Logger.Debug("login payload:\n%s", print.MaybePrettyJSON(payload))
	}

	principal, err := c.Manager.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		// Lookup miss and password mismatch read identically to the
		// client; neither confirms the account exists.
		if IsNotFound(err) || errors.Is(err, ErrInvalidCredentials) {
			return c.ErrorHandler(ctx, ErrInvalidCredentials)
		}
		return c.ErrorHandler(ctx, err)
	}

	tokens, err := c.Manager.IssueTokens(ctx.Context(), principal)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return c.writeLoginResponse(ctx, tokens)
}

func (c *Controller) Logout(ctx router.Context) error {
	for _, t := range c.Transports {
		t.Clear(ctx)
	}
	return ctx.NoContent(router.StatusNoContent)
}

// RefreshRequest payload. The token may come from the body or from any
// configured transport.
type RefreshRequest struct {
	RefreshToken string `form:"refresh_token" json:"refresh_token"`
}

func (c *Controller) Refresh(ctx router.Context) error {
	payload := new(RefreshRequest)
	if err := ctx.Bind(payload); err == nil && payload.RefreshToken != "" {
		return c.refreshWith(ctx, payload.RefreshToken)
	}

	token, err := ExtractToken(ctx, c.Transports...)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return c.refreshWith(ctx, token)
}

func (c *Controller) refreshWith(ctx router.Context, token string) error {
	tokens, err := c.Manager.Refresh(ctx.Context(), token)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}
	return c.writeLoginResponse(ctx, tokens)
}

// RegisterRequest payload.
type RegisterRequest struct {
	Email           string `form:"email" json:"email"`
	Username        string `form:"username" json:"username"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Username, validation.Length(3, 100)),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.In(r.Password).Error("passwords do not match")),
	)
}

func (c *Controller) Register(ctx router.Context) error {
	payload := new(RegisterRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse registration payload").
			WithCode(errors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	principal, err := c.Manager.Register(ctx.Context(), RegisterInput{
		Email:    payload.Email,
		Username: payload.Username,
		Password: payload.Password,
	}, true)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, principalPayload(principal))
}

// EmailRequest payload for verification and password-forgot requests.
type EmailRequest struct {
	Email string `form:"email" json:"email"`
}

func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (c *Controller) VerifyRequest(ctx router.Context) error {
	payload := new(EmailRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse payload").
			WithCode(errors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	if _, err := c.Manager.RequestVerification(ctx.Context(), payload.Email); err != nil {
		// Token delivery happens through a registered hook; the response
		// never carries the token or confirms the account exists.
		if IsNotFound(err) {
			return ctx.NoContent(router.StatusAccepted)
		}
		return c.ErrorHandler(ctx, err)
	}

	return ctx.NoContent(router.StatusAccepted)
}

// TokenRequest payload.
type TokenRequest struct {
	Token string `form:"token" json:"token"`
}

func (r TokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (c *Controller) Verify(ctx router.Context) error {
	payload := new(TokenRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse payload").
			WithCode(errors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	principal, err := c.Manager.Verify(ctx.Context(), payload.Token)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, principalPayload(principal))
}

func (c *Controller) PasswordForgot(ctx router.Context) error {
	payload := new(EmailRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse payload").
			WithCode(errors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	if _, err := c.Manager.ForgotPassword(ctx.Context(), payload.Email); err != nil {
		if IsNotFound(err) {
			return ctx.NoContent(router.StatusAccepted)
		}
		return c.ErrorHandler(ctx, err)
	}

	return ctx.NoContent(router.StatusAccepted)
}

// PasswordResetRequest payload.
type PasswordResetRequest struct {
	Token           string `form:"token" json:"token"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r PasswordResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.In(r.Password).Error("passwords do not match")),
	)
}

func (c *Controller) PasswordReset(ctx router.Context) error {
	payload := new(PasswordResetRequest)
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryBadInput, "failed to parse payload").
			WithCode(errors.CodeBadRequest))
	}
	if err := payload.Validate(); err != nil {
		return c.validationError(ctx, err)
	}

	principal, err := c.Manager.ResetPassword(ctx.Context(), payload.Token, payload.Password)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, principalPayload(principal))
}

// Me returns the authenticated principal resolved by Protected middleware.
func (c *Controller) Me(ctx router.Context) error {
	principal, ok := RouterPrincipal(ctx, "")
	if !ok {
		return c.ErrorHandler(ctx, ErrMissingToken)
	}
	return ctx.JSON(router.StatusOK, principalPayload(principal))
}

// Protected returns middleware that authenticates the request through the
// configured transports, resolves the principal, authorizes it against req,
// and stashes both claims and principal in the context locals.
func (c *Controller) Protected(req AccessRequirements) router.MiddlewareFunc {
	contextKey := c.Manager.Config().GetContextKey()

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			token, err := ExtractToken(ctx, c.Transports...)
			if err != nil {
				return c.ErrorHandler(ctx, err)
			}

			claims, err := c.Manager.Strategy().ReadToken(ctx.Context(), token, TokenAccess)
			if err != nil {
				return c.ErrorHandler(ctx, err)
			}

			principal, err := c.Manager.ResolvePrincipal(ctx.Context(), claims)
			if err != nil {
				return c.ErrorHandler(ctx, err)
			}

			if _, err := c.Manager.CheckAccess(ctx.Context(), principal, req); err != nil {
				return c.ErrorHandler(ctx, err)
			}

			ctx.Locals(contextKey, claims)
			ctx.Locals(contextKey+":principal", principal)

			return next(ctx)
		}
	}
}

func (c *Controller) writeLoginResponse(ctx router.Context, tokens *TokenResponse) error {
	if len(c.Transports) == 0 {
		return ctx.JSON(router.StatusOK, tokens)
	}

	switch transport := c.Transports[0].(type) {
	case *CookieTransport:
		cfg := c.Manager.Config()
		transport.Set(ctx, tokens.AccessToken, cfg.GetLifetime(TokenAccess))
		return ctx.NoContent(router.StatusNoContent)
	default:
		return ctx.JSON(router.StatusOK, tokens)
	}
}

func (c *Controller) validationError(ctx router.Context, err error) error {
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": FormatValidationErrorToMap(err),
	})
}

func (c *Controller) defaultErrorHandler(ctx router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "unexpected error").
			WithCode(errors.CodeInternal)
	}

	status := statusFromError(richErr)
	if status >= 500 {
		c.Logger.Error("request failed", "error", err, "text_code", richErr.TextCode)
	} else {
		c.Logger.Debug("request rejected", "text_code", richErr.TextCode, "status", status)
	}

	body := map[string]any{
		"error": richErr.Message,
	}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return ctx.JSON(status, body)
}

// statusFromError maps the error taxonomy to HTTP statuses. Configuration
// errors surface as 500s: a miswired RBAC repository is not a client
// problem.
func statusFromError(err *errors.Error) int {
	if IsConfigurationError(err) {
		return router.StatusInternalServerError
	}

	switch err.Category {
	case errors.CategoryAuth:
		return router.StatusUnauthorized
	case errors.CategoryAuthz:
		return router.StatusForbidden
	case errors.CategoryNotFound:
		return router.StatusNotFound
	case errors.CategoryConflict:
		return router.StatusConflict
	case errors.CategoryValidation, errors.CategoryBadInput:
		return router.StatusBadRequest
	default:
		return router.StatusInternalServerError
	}
}

// principalPayload is the safe JSON projection of a principal. The password
// hash never leaves the server.
func principalPayload(p Principal) map[string]any {
	return map[string]any{
		"id":          p.ID(),
		"email":       p.Email(),
		"username":    p.Username(),
		"is_active":   p.IsActive(),
		"is_verified": p.IsVerified(),
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field-to-message map.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}
	if err != nil {
		out["_"] = err.Error()
	}
	return out
}
