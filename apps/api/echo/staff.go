package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/staff"
)

type (
	InvitationResponse struct {
		Invitation staff.Invitation `json:"invitation"`
		EmailSent  *bool            `json:"emailSent,omitempty"`
	}

	InvitationQuery struct {
		Status string `json:"status" query:"status" validate:"omitempty,oneof=pending accepted cancelled expired"`
		Email  string `json:"email" query:"email"`
	}
)

type staffApi struct {
	svc      *staff.Service
	validate *validator.Validate
	metrics  *metrics
}

func registerStaffAPI(g *echo.Group, gt *gate, limit echo.MiddlewareFunc, deps ServerDeps, m *metrics) {
	api := staffApi{
		svc:      deps.StaffSvc,
		validate: deps.Validate,
		metrics:  m,
	}

	sg := g.Group("/staff")

	// un-authed endpoints
	sg.POST("/accept-invitation", api.accept, limit)

	// authed endpoints
	ag := sg.Group("", gt.require(ModeFlexible, staffAdmin))
	ag.POST("/invite", api.invite)
	ag.GET("/invitations", api.query)
	ag.DELETE("/invitations/:id", api.cancel)
	ag.POST("/invitations/:id/resend", api.resend)
}

// Handlers

func (api *staffApi) invite(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}

	var data staff.NewInvitation
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewInvitation")
	}

	inv, sent, err := api.svc.Create(ctx.Request().Context(), data, p.ProfileID())
	if err != nil {
		return err
	}
	api.metrics.invitations.WithLabelValues("created").Inc()
	return ctx.JSON(http.StatusCreated, InvitationResponse{Invitation: inv, EmailSent: &sent})
}

func (api *staffApi) query(ctx echo.Context) error {
	var data InvitationQuery
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to InvitationQuery")
	}
	data.Status = core.CleanString(data.Status, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	invs, err := api.svc.Query(
		ctx.Request().Context(),
		staff.QueryFilter{Status: staff.Status(data.Status), Email: data.Email},
		ordering.Orderings...,
	)
	if err != nil {
		return errors.Wrap(err, "querying invitations")
	}
	if invs == nil {
		invs = []staff.Invitation{}
	}
	return ctx.JSON(http.StatusOK, invs)
}

func (api *staffApi) cancel(ctx echo.Context) error {
	inv, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	api.metrics.invitations.WithLabelValues("cancelled").Inc()
	return ctx.JSON(http.StatusOK, InvitationResponse{Invitation: inv})
}

func (api *staffApi) resend(ctx echo.Context) error {
	inv, sent, err := api.svc.Resend(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	api.metrics.invitations.WithLabelValues("resent").Inc()
	return ctx.JSON(http.StatusOK, InvitationResponse{Invitation: inv, EmailSent: &sent})
}

func (api *staffApi) accept(ctx echo.Context) error {
	var data staff.AcceptInvitation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AcceptInvitation")
	}

	sess, err := api.svc.Accept(ctx.Request().Context(), data)
	if err != nil {
		return err
	}
	api.metrics.invitations.WithLabelValues("accepted").Inc()
	return ctx.JSON(http.StatusCreated, sess)
}
