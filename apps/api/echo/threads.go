package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core/survey"
	"github.com/wtlassist/backend/core/thread"
	"github.com/wtlassist/backend/core/user"
)

type threadApi struct {
	svc       thread.Service
	surveySvc survey.Service
	usrSvc    user.Service
	validate  *validator.Validate
}

func registerThreadAPI(g *echo.Group, authed []echo.MiddlewareFunc, opts *Options) {
	api := threadApi{
		svc:       opts.ThreadSvc,
		surveySvc: opts.SurveySvc,
		usrSvc:    opts.UserSvc,
		validate:  opts.Validate,
	}

	tg := g.Group("/threads", authed...)
	tg.GET("", api.query)
	tg.POST("", api.create)
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update)
	tg.DELETE("/:id", api.destroy)
	tg.POST("/:id/lessons", api.linkLessons)
	tg.DELETE("/:id/lessons/:lessonId", api.unlinkLesson)
	tg.GET("/:id/notes", api.queryNotes)
	tg.POST("/:id/notes", api.addNote)
	tg.GET("/:id/tasks", api.queryTasks)
	tg.POST("/:id/tasks", api.createTask)
	tg.GET("/:id/survey-responses", api.querySurveyResponses)

	ng := g.Group("/notes", authed...)
	ng.PUT("/:id", api.updateNote)
	ng.DELETE("/:id", api.destroyNote)

	kg := g.Group("/tasks", authed...)
	kg.GET("/:id", api.retrieveTask)
	kg.PUT("/:id", api.updateTask)
	kg.DELETE("/:id", api.destroyTask)
	kg.POST("/:id/checklist", api.addChecklistItem)
	kg.PUT("/:id/checklist", api.reorderChecklist)

	cg := g.Group("/checklist", authed...)
	cg.PUT("/:id", api.updateChecklistItem)
	cg.POST("/:id/toggle", api.toggleChecklistItem)
	cg.DELETE("/:id", api.destroyChecklistItem)
}

func (api *threadApi) actor(ctx echo.Context) (user.User, error) {
	usr, err := getContextUser(ctx, api.usrSvc)
	return usr, errors.Wrap(err, "getting context user")
}

// Threads

func (api *threadApi) query(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	qp := newQueryParams(ctx)
	filter := &thread.QueryFilter{
		OwnerID:  qp.String("owner_id"),
		Status:   qp.String("status"),
		Search:   qp.String("search"),
		LessonID: qp.String("lesson_id"),
	}
	threads, err := api.svc.QueryThreads(ctx.Request().Context(), actor, filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying threads")
	}
	if threads == nil {
		threads = []thread.Thread{}
	}
	return ctx.JSON(http.StatusOK, threads)
}

func (api *threadApi) create(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	var data thread.NewThread
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewThread")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.CreateThread(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating thread")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *threadApi) retrieve(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	t, err := api.svc.GetThread(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding thread")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *threadApi) update(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	var data thread.UpdateThread
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateThread")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.UpdateThread(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating thread")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *threadApi) destroy(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteThread(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting thread")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *threadApi) linkLessons(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	var data thread.LinkLessons
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LinkLessons")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.LinkLessons(ctx.Request().Context(), actor, ctx.Param("id"), data.LessonIDs)
	if err != nil {
		return errors.Wrap(err, "linking lessons")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *threadApi) unlinkLesson(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	t, err := api.svc.UnlinkLesson(ctx.Request().Context(), actor, ctx.Param("id"), ctx.Param("lessonId"))
	if err != nil {
		return errors.Wrap(err, "unlinking lesson")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *threadApi) querySurveyResponses(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	responses, err := api.surveySvc.ResponsesForThread(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying thread survey responses")
	}
	if responses == nil {
		responses = []survey.Response{}
	}
	return ctx.JSON(http.StatusOK, responses)
}

// Notes

func (api *threadApi) queryNotes(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	notes, err := api.svc.QueryNotes(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying notes")
	}
	if notes == nil {
		notes = []thread.Note{}
	}
	return ctx.JSON(http.StatusOK, notes)
}

func (api *threadApi) addNote(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	var data thread.NewNote
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNote")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	note, err := api.svc.AddNote(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding note")
	}
	return ctx.JSON(http.StatusCreated, note)
}

func (api *threadApi) updateNote(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	var data thread.NewNote
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNote")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	note, err := api.svc.UpdateNote(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating note")
	}
	return ctx.JSON(http.StatusOK, note)
}

func (api *threadApi) destroyNote(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteNote(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting note")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Tasks

func (api *threadApi) queryTasks(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	tasks, err := api.svc.QueryTasks(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying tasks")
	}
	if tasks == nil {
		tasks = []thread.Task{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *threadApi) createTask(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	var data thread.NewTask
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTask")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	task, err := api.svc.CreateTask(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "creating task")
	}
	return ctx.JSON(http.StatusCreated, task)
}

func (api *threadApi) retrieveTask(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	task, err := api.svc.GetTask(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding task")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *threadApi) updateTask(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	var data thread.UpdateTask
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTask")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	task, err := api.svc.UpdateTask(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating task")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *threadApi) destroyTask(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteTask(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting task")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Checklists

func (api *threadApi) addChecklistItem(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	var data thread.NewChecklistItem
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewChecklistItem")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	task, err := api.svc.AddChecklistItem(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding checklist item")
	}
	return ctx.JSON(http.StatusCreated, task)
}

func (api *threadApi) reorderChecklist(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	var data thread.ReorderChecklist
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ReorderChecklist")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	task, err := api.svc.ReorderChecklist(ctx.Request().Context(), actor, ctx.Param("id"), data.ItemIDs)
	if err != nil {
		return errors.Wrap(err, "reordering checklist")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *threadApi) updateChecklistItem(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}

	var data thread.UpdateChecklistItem
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateChecklistItem")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	task, err := api.svc.UpdateChecklistItem(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating checklist item")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *threadApi) toggleChecklistItem(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	task, err := api.svc.ToggleChecklistItem(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "toggling checklist item")
	}
	return ctx.JSON(http.StatusOK, task)
}

func (api *threadApi) destroyChecklistItem(ctx echo.Context) error {
	actor, err := api.actor(ctx)
	if err != nil {
		return err
	}
	task, err := api.svc.DeleteChecklistItem(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deleting checklist item")
	}
	return ctx.JSON(http.StatusOK, task)
}
