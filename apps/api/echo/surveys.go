package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core/survey"
)

type surveyApi struct {
	svc      survey.Service
	validate *validator.Validate
}

// registerSurveyAPI exposes the synced forms to staff. Students read their responses through their threads.
func registerSurveyAPI(g *echo.Group, authed []echo.MiddlewareFunc, opts *Options) {
	api := surveyApi{svc: opts.SurveySvc, validate: opts.Validate}
	staff := append(append([]echo.MiddlewareFunc{}, authed...), staffMiddleware(opts.UserSvc))

	sg := g.Group("/surveys", staff...)
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.GET("/:id/responses", api.queryResponses)

	rg := g.Group("/survey-responses", staff...)
	rg.PUT("/:id/thread", api.linkThread)
	rg.DELETE("/:id/thread", api.unlinkThread)
}

func (api *surveyApi) query(ctx echo.Context) error {
	forms, err := api.svc.QueryForms(ctx.Request().Context(), bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying survey forms")
	}
	if forms == nil {
		forms = []survey.Form{}
	}
	return ctx.JSON(http.StatusOK, forms)
}

func (api *surveyApi) retrieve(ctx echo.Context) error {
	form, err := api.svc.GetForm(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding survey form")
	}
	return ctx.JSON(http.StatusOK, form)
}

func (api *surveyApi) queryResponses(ctx echo.Context) error {
	qp := newQueryParams(ctx)
	filter := &survey.ResponseFilter{
		FormID:        ctx.Param("id"),
		ThreadID:      qp.String("thread_id"),
		Email:         qp.String("email"),
		Linked:        qp.Bool("linked"),
		SubmittedFrom: qp.Time("submitted_from"),
		SubmittedTo:   qp.Time("submitted_to"),
	}
	if err := qp.Err(); err != nil {
		return err
	}

	responses, err := api.svc.QueryResponses(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying survey responses")
	}
	if responses == nil {
		responses = []survey.Response{}
	}
	return ctx.JSON(http.StatusOK, responses)
}

func (api *surveyApi) linkThread(ctx echo.Context) error {
	var data survey.LinkThread
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LinkThread")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	r, err := api.svc.LinkResponse(ctx.Request().Context(), ctx.Param("id"), data.ThreadID)
	if err != nil {
		return errors.Wrap(err, "linking survey response")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *surveyApi) unlinkThread(ctx echo.Context) error {
	r, err := api.svc.UnlinkResponse(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "unlinking survey response")
	}
	return ctx.JSON(http.StatusOK, r)
}
