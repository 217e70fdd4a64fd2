package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/markbook/core/instructor"
)

type (
	LoginResponse struct {
		Token string `json:"token"`
	}

	instructorApi struct {
		svc  *instructor.Service
		auth *authenticator
	}
)

func registerInstructorAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, svc *instructor.Service) {
	api := instructorApi{svc: svc, auth: auth}

	ag := g.Group("/auth")
	ag.POST("/login", api.login)
	ag.POST("/token-refresh", api.refreshToken, jwt)

	g.GET("/instructors/me", api.me, jwt)
}

// Handlers

func (api *instructorApi) login(ctx echo.Context) error {
	var data instructor.LoginCredentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginCredentials")
	}
	token, err := api.auth.login(ctx.Request().Context(), data, api.svc)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *instructorApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refresh(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *instructorApi) me(ctx echo.Context) error {
	ins, err := getContextInstructor(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context instructor")
	}
	return ctx.JSON(http.StatusOK, ins)
}
