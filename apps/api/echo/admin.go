package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/setup"
)

type (
	AccountProfileResponse struct {
		Account   account.Account `json:"account"`
		Profile   account.Profile `json:"profile"`
		EmailSent *bool           `json:"emailSent,omitempty"`
	}

	EmailSentResponse struct {
		EmailSent bool `json:"emailSent"`
	}
)

type adminApi struct {
	accounts *account.Service
	setupSvc *setup.Service
}

func registerAdminAPI(g *echo.Group, gt *gate, deps ServerDeps) {
	api := adminApi{
		accounts: deps.AccountSvc,
		setupSvc: deps.SetupSvc,
	}

	ag := g.Group("/admin", gt.require(ModeFlexible, accountAdmin))
	ag.POST("/accounts", api.createAccountProfile)
	ag.POST("/profiles/:id/setup-link", api.resendSetupLink)

	sg := g.Group("/system", gt.require(ModeSystemAdmin, Capability{Kinds: []PrincipalKind{KindSystemAdmin}}))
	sg.POST("/accounts", api.provision)
}

// Handlers

func (api *adminApi) createAccountProfile(ctx echo.Context) error {
	var data setup.NewAccountProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccountProfile")
	}

	acc, prof, sent, err := api.setupSvc.CreateAccountProfile(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, AccountProfileResponse{Account: acc, Profile: prof, EmailSent: &sent})
}

func (api *adminApi) resendSetupLink(ctx echo.Context) error {
	sent, err := api.setupSvc.ResendSetupLink(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, EmailSentResponse{EmailSent: sent})
}

func (api *adminApi) provision(ctx echo.Context) error {
	var data account.ProvisionAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProvisionAccount")
	}

	acc, prof, err := api.accounts.Provision(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, AccountProfileResponse{Account: acc, Profile: prof})
}
