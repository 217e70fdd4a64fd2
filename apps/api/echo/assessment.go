package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/markbook/core/assessment"
)

type (
	ScoreEditRequest struct {
		Student   string   `json:"student"`
		Criterion string   `json:"criterion"`
		Value     RawScore `json:"value"`
		Comment   string   `json:"comment"`
	}

	RunningTotalResponse struct {
		Student      string             `json:"student"`
		RunningTotal float64            `json:"running_total"`
		Entries      map[string]float64 `json:"entries"`
	}

	assessmentApi struct {
		svc assessment.Service
	}
)

func registerAssessmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc assessment.Service) {
	api := assessmentApi{svc: svc}

	g.POST("/grading-scales", api.createGradingScale, jwt, adminMiddleware())
	g.POST("/students", api.saveStudents, jwt, adminMiddleware())

	pg := g.Group("/plans", jwt)
	pg.GET("", api.queryPlans)
	pg.POST("", api.createPlan, adminMiddleware())

	// result entry
	dg := pg.Group("/:plan")
	dg.GET("", api.planDetails)
	dg.GET("/students", api.studentRows)
	dg.GET("/students/:student/total", api.runningTotal)
	dg.POST("/scores", api.submitEdit)
	dg.POST("/results", api.markResult)
	dg.GET("/results", api.queryResults)
	dg.GET("/results/:student", api.retrieveResult)
}

// gradedBy names the instructor behind the request.
func gradedBy(ctx echo.Context) string {
	if claims, err := getContextClaims(ctx); err == nil {
		return claims.Username
	}
	return ""
}

// Handlers

func (api *assessmentApi) createGradingScale(ctx echo.Context) error {
	var data assessment.GradingScale
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradingScale")
	}
	gs, err := api.svc.SaveGradingScale(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "saving grading scale")
	}
	return ctx.JSON(http.StatusCreated, gs)
}

func (api *assessmentApi) saveStudents(ctx echo.Context) error {
	var data []assessment.Student
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to []Student")
	}
	if err := api.svc.SaveStudents(ctx.Request().Context(), data...); err != nil {
		return errors.Wrap(err, "saving students")
	}
	if data == nil {
		data = []assessment.Student{}
	}
	return ctx.JSON(http.StatusCreated, data)
}

func (api *assessmentApi) queryPlans(ctx echo.Context) error {
	plans, err := api.svc.QueryAllPlans(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying plans")
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *assessmentApi) createPlan(ctx echo.Context) error {
	var data assessment.NewPlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPlan")
	}
	plan, err := api.svc.CreatePlan(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating plan")
	}
	return ctx.JSON(http.StatusCreated, plan)
}

func (api *assessmentApi) planDetails(ctx echo.Context) error {
	details, err := api.svc.GetPlanDetails(ctx.Request().Context(), ctx.Param("plan"))
	if err != nil {
		return errors.Wrap(err, "getting plan details")
	}
	return ctx.JSON(http.StatusOK, details)
}

func (api *assessmentApi) studentRows(ctx echo.Context) error {
	rows, err := api.svc.GetStudentRows(ctx.Request().Context(), ctx.Param("plan"))
	if err != nil {
		return errors.Wrap(err, "getting student rows")
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *assessmentApi) runningTotal(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	planID, student := ctx.Param("plan"), ctx.Param("student")

	total, err := api.svc.RunningTotal(reqCtx, planID, student)
	if err != nil {
		return errors.Wrap(err, "getting running total")
	}
	entries, err := api.svc.Entries(reqCtx, planID, student)
	if err != nil {
		return errors.Wrap(err, "getting entries")
	}
	return ctx.JSON(http.StatusOK, RunningTotalResponse{Student: student, RunningTotal: total, Entries: entries})
}

func (api *assessmentApi) submitEdit(ctx echo.Context) error {
	var data ScoreEditRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScoreEditRequest")
	}
	res, err := api.svc.SubmitEdit(ctx.Request().Context(), ctx.Param("plan"), assessment.Edit{
		Student:   data.Student,
		Criterion: data.Criterion,
		Value:     string(data.Value),
		Comment:   data.Comment,
		GradedBy:  gradedBy(ctx),
	})
	if err != nil {
		return errors.Wrap(err, "submitting edit")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *assessmentApi) markResult(ctx echo.Context) error {
	var data assessment.ScoreSheet
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScoreSheet")
	}
	data.GradedBy = gradedBy(ctx)

	res, err := api.svc.MarkResult(ctx.Request().Context(), ctx.Param("plan"), data)
	if err != nil {
		return errors.Wrap(err, "marking result")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *assessmentApi) queryResults(ctx echo.Context) error {
	filter := new(assessment.ResultFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []assessment.Result{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	results, err := api.svc.ListResults(ctx.Request().Context(), ctx.Param("plan"), *filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *assessmentApi) retrieveResult(ctx echo.Context) error {
	res, err := api.svc.GetResult(ctx.Request().Context(), ctx.Param("plan"), ctx.Param("student"))
	if err != nil {
		return errors.Wrap(err, "getting result")
	}
	return ctx.JSON(http.StatusOK, res)
}
