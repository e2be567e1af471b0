package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/setup"
)

const invalidInput = "invalid input"

// SetupResponse is the outcome of a profile setup. Failures carry a message, and field errors when the input was rejected.
type SetupResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type setupApi struct {
	svc        *setup.Service
	translator ut.Translator
	metrics    *metrics
}

func registerSetupAPI(g *echo.Group, limit echo.MiddlewareFunc, deps ServerDeps, m *metrics) {
	api := setupApi{
		svc:        deps.SetupSvc,
		translator: deps.Translator,
		metrics:    m,
	}

	sg := g.Group("/setup")
	sg.GET("/validate-token", api.validateToken, limit)
	sg.POST("/complete-profile", api.completeProfile)
}

// Handlers

func (api *setupApi) validateToken(ctx echo.Context) error {
	res, err := api.svc.ValidateSetupToken(ctx.Request().Context(), ctx.QueryParam("token"))
	if err != nil {
		return errors.Wrap(err, "validating setup token")
	}
	if !res.Valid {
		return ctx.JSON(http.StatusBadRequest, res)
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *setupApi) completeProfile(ctx echo.Context) error {
	var data setup.CompleteSetup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompleteSetup")
	}

	err := api.svc.CompleteProfileSetup(ctx.Request().Context(), data)
	if err == nil {
		api.metrics.activations.Inc()
		return ctx.JSON(http.StatusOK, SetupResponse{Success: true})
	}

	switch origErr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		return ctx.JSON(http.StatusBadRequest, SetupResponse{
			Message: invalidInput,
			Errors:  fieldErrors(origErr, api.translator),
		})
	case *core.ValidationError:
		res := SetupResponse{Message: origErr.Error()}
		if len(origErr.Fields) > 0 {
			res.Errors = make(map[string]string, len(origErr.Fields))
			for _, fErr := range origErr.Fields {
				res.Errors[fErr.Field] = fErr.Error
			}
			if res.Message == "" {
				res.Message = invalidInput
			}
		}
		return ctx.JSON(http.StatusBadRequest, res)
	}
	return errors.Wrap(err, "completing profile setup")
}
