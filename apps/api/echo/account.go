package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
)

const passwordResetRequested = "If the email address supplied is associated with an active account on this system, " +
	"an email will arrive in your inbox shortly with instructions to reset your password."

type (
	TokenResponse struct {
		Token string `json:"token"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	MeResponse struct {
		Account  account.Account   `json:"account"`
		Profiles []account.Profile `json:"profiles"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}
)

func (r *PasswordResetRequest) Validate(validate *validator.Validate) error {
	r.Email = core.CleanString(r.Email, true /* lower */)
	return validate.Struct(r)
}

type accountApi struct {
	svc      *account.Service
	validate *validator.Validate
	logger   core.Logger
	metrics  *metrics
}

func registerAccountAPI(g *echo.Group, gt *gate, limit echo.MiddlewareFunc, deps ServerDeps, m *metrics) {
	api := accountApi{
		svc:      deps.AccountSvc,
		validate: deps.Validate,
		logger:   deps.Logger,
		metrics:  m,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login, limit)
	ag.POST("/register", api.register)
	ag.POST("/password-reset", api.resetPassword, limit)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	bearer := gt.require(ModeBearer, anyPrincipal)
	ag.GET("/me", api.me, bearer)
	ag.POST("/token-refresh", api.refreshToken, bearer)
}

// Handlers

func (api *accountApi) login(ctx echo.Context) error {
	var data account.LoginCredentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginCredentials")
	}

	sess, err := api.svc.Login(ctx.Request().Context(), data)
	if err != nil {
		api.metrics.logins.WithLabelValues("failure").Inc()
		return err
	}
	api.metrics.logins.WithLabelValues("success").Inc()
	return ctx.JSON(http.StatusOK, sess)
}

func (api *accountApi) register(ctx echo.Context) error {
	var data account.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}

	sess, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *accountApi) me(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	rctx := ctx.Request().Context()
	acc, err := api.svc.GetByID(rctx, p.Claims.AccountID)
	if err != nil {
		return err
	}
	profiles, err := api.svc.QueryProfiles(rctx, acc.ID)
	if err != nil {
		return errors.Wrap(err, "querying profiles")
	}
	if profiles == nil {
		profiles = []account.Profile{}
	}
	return ctx.JSON(http.StatusOK, MeResponse{Account: acc, Profiles: profiles})
}

func (api *accountApi) refreshToken(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	tok, err := api.svc.RefreshSession(ctx.Request().Context(), p.Claims)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: tok})
}

func (api *accountApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil &&
		!errors.Is(err, account.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset: "+err.Error(), errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: passwordResetRequested})
}

func (api *accountApi) confirmPasswordReset(ctx echo.Context) error {
	var data account.ResetPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetPassword")
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}
