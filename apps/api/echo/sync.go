package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core/syncrun"
)

type syncApi struct {
	rec syncrun.Recorder
}

func registerSyncAPI(g *echo.Group, authed []echo.MiddlewareFunc, opts *Options) {
	api := syncApi{rec: opts.Recorder}
	mw := append(append([]echo.MiddlewareFunc{}, authed...), superadminMiddleware(opts.UserSvc))

	sg := g.Group("/sync", mw...)
	sg.GET("/runs", api.queryRuns)
	sg.POST("/:kind", api.run)
}

// run executes a sync now. A sync that ran but failed is answered with its (failed) run.
func (api *syncApi) run(ctx echo.Context) error {
	run, err := api.rec.Run(ctx.Request().Context(), ctx.Param("kind"))
	if err != nil && run.ID == "" {
		return errors.Wrap(err, "running sync")
	}
	return ctx.JSON(http.StatusOK, run)
}

func (api *syncApi) queryRuns(ctx echo.Context) error {
	qp := newQueryParams(ctx)
	filter := &syncrun.QueryFilter{
		Kind:   qp.String("kind"),
		Status: qp.String("status"),
		Limit:  qp.Int("limit"),
	}
	if err := qp.Err(); err != nil {
		return err
	}

	runs, err := api.rec.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying sync runs")
	}
	if runs == nil {
		runs = []syncrun.Run{}
	}
	return ctx.JSON(http.StatusOK, runs)
}
