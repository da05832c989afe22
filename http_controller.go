package session

import (
	"fmt"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RouteRegistrar captures the router methods used by the controller.
type RouteRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Patch(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// ControllerRoutes holds the mounted paths.
type ControllerRoutes struct {
	Login          string
	Register       string
	Logout         string
	PasswordReset  string
	PasswordUpdate string
	Resend         string
	Profile        string
	OAuth          string
}

// Controller exposes the session store over JSON REST endpoints. Error
// bodies are shaped as {"message": ...} so the dashboard's shared fetch
// layer can render them.
type Controller struct {
	Debug        bool
	Logger       Logger
	Store        *Store
	Routes       *ControllerRoutes
	ErrorHandler func(ctx router.Context, err error) error
}

// ControllerOption customizes the controller.
type ControllerOption func(*Controller) *Controller

// WithControllerStore wires the session store.
func WithControllerStore(store *Store) ControllerOption {
	return func(c *Controller) *Controller {
		c.Store = store
		return c
	}
}

// WithControllerLogger overrides the default logger.
func WithControllerLogger(logger Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug enables request payload dumps.
func WithControllerDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

// WithControllerErrorHandler overrides the error responder.
func WithControllerErrorHandler(handler func(ctx router.Context, err error) error) ControllerOption {
	return func(c *Controller) *Controller {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

// NewController builds a controller with default routes.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		Logger: defLogger{},
		Routes: &ControllerRoutes{
			Login:          "/auth/login",
			Register:       "/auth/register",
			Logout:         "/auth/logout",
			PasswordReset:  "/auth/password-reset",
			PasswordUpdate: "/auth/password",
			Resend:         "/auth/resend",
			Profile:        "/auth/profile",
			OAuth:          "/auth/oauth",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Store == nil {
		panic("Missing Store in session controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.defaultErrorHandler
	}

	return c
}

// RegisterSessionRoutes mounts the controller on the given router group.
func RegisterSessionRoutes(group RouteRegistrar, opts ...ControllerOption) *Controller {
	c := NewController(opts...)

	group.Post(c.Routes.Login, c.LoginPost)
	group.Post(c.Routes.Register, c.RegisterPost)
	group.Post(c.Routes.Logout, c.LogoutPost)
	group.Post(c.Routes.PasswordReset, c.PasswordResetPost)
	group.Post(c.Routes.PasswordUpdate, c.PasswordUpdatePost)
	group.Post(c.Routes.Resend, c.ResendPost)
	group.Get(c.Routes.Profile, c.ProfileShow)
	group.Patch(c.Routes.Profile, c.ProfileUpdate)
	group.Get(fmt.Sprintf("%s/:provider", c.Routes.OAuth), c.OAuthBegin)

	return c
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (c *Controller) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse login payload"))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"message": err.Error(),
		})
	}

	if c.Debug {
		fmt.Println("======= SESSION LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("============================")
	}

	result, err := c.Store.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, result)
}

// RegistrationRequest payload
type RegistrationRequest struct {
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	CompanyName     string `form:"company_name" json:"company_name"`
	Phone           string `form:"phone_number" json:"phone_number"`
}

// Validate will run validation rules
func (r RegistrationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(validateStringEquals(r.Password)),
		),
		validation.Field(&r.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Required, validation.Length(1, 200)),
	)
}

func validateStringEquals(expected string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != expected {
			return fmt.Errorf("values do not match")
		}
		return nil
	}
}

func (c *Controller) RegisterPost(ctx router.Context) error {
	payload := new(RegistrationRequest)

	if err := ctx.Bind(payload); err != nil {
		c.Logger.Error("register parse payload: %v", err)
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse registration payload"))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"message": err.Error(),
		})
	}

	result, err := c.Store.Signup(ctx.Context(), SignupPayload{
		Email:       payload.Email,
		Password:    payload.Password,
		FirstName:   payload.FirstName,
		LastName:    payload.LastName,
		CompanyName: payload.CompanyName,
		Phone:       payload.Phone,
	})
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusCreated, result)
}

func (c *Controller) LogoutPost(ctx router.Context) error {
	if err := c.Store.Logout(ctx.Context()); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "signed_out",
	})
}

// EmailRequest payload for reset and resend flows.
type EmailRequest struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (c *Controller) PasswordResetPost(ctx router.Context) error {
	payload := new(EmailRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse payload"))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"message": err.Error(),
		})
	}

	if err := c.Store.ResetPassword(ctx.Context(), payload.Email); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "reset_email_sent",
	})
}

// PasswordUpdateRequest payload
type PasswordUpdateRequest struct {
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r PasswordUpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
	)
}

func (c *Controller) PasswordUpdatePost(ctx router.Context) error {
	payload := new(PasswordUpdateRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse payload"))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"message": err.Error(),
		})
	}

	if err := c.Store.UpdatePassword(ctx.Context(), payload.Password); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "password_updated",
	})
}

func (c *Controller) ResendPost(ctx router.Context) error {
	payload := new(EmailRequest)

	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse payload"))
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"message": err.Error(),
		})
	}

	if err := c.Store.ResendVerificationEmail(ctx.Context(), payload.Email); err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"status": "verification_email_sent",
	})
}

func (c *Controller) ProfileShow(ctx router.Context) error {
	user := c.Store.CurrentUser()
	if user == nil {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"message": "authentication required",
		})
	}

	profile, status := c.Store.CurrentProfile()

	return ctx.JSON(router.StatusOK, map[string]any{
		"user":           user,
		"profile":        profile,
		"profile_status": status,
	})
}

func (c *Controller) ProfileUpdate(ctx router.Context) error {
	user := c.Store.CurrentUser()
	if user == nil {
		return ctx.JSON(router.StatusUnauthorized, map[string]string{
			"message": "authentication required",
		})
	}

	payload := new(ProfileUpdates)
	if err := ctx.Bind(payload); err != nil {
		return c.ErrorHandler(ctx, goerrors.Wrap(err, goerrors.CategoryBadInput, "could not parse profile payload"))
	}

	profile, err := c.Store.UpdateProfile(ctx.Context(), *payload)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, profile)
}

func (c *Controller) OAuthBegin(ctx router.Context) error {
	provider := ctx.Param("provider")

	opts := []OAuthOption{}
	if redirectTo := ctx.Query("redirect_url", ""); redirectTo != "" {
		opts = append(opts, WithOAuthRedirectTo(redirectTo))
	}

	redirect, err := c.Store.LoginWithOAuth(provider, opts...)
	if err != nil {
		return c.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(redirect.URL, http.StatusTemporaryRedirect)
}

func (c *Controller) defaultErrorHandler(ctx router.Context, err error) error {
	status := router.StatusInternalServerError

	switch {
	case IsInvalidCredentialsError(err), IsEmailNotConfirmedError(err), IsSessionMissingError(err):
		status = router.StatusUnauthorized
	default:
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			switch richErr.Category {
			case goerrors.CategoryValidation, goerrors.CategoryBadInput:
				status = router.StatusBadRequest
			case goerrors.CategoryAuth:
				status = router.StatusUnauthorized
			case goerrors.CategoryConflict:
				status = router.StatusConflict
			case goerrors.CategoryNotFound:
				status = router.StatusNotFound
			}
		}
	}

	return ctx.JSON(status, map[string]string{
		"message": err.Error(),
	})
}
