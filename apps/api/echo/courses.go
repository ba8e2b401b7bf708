package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core/course"
	"github.com/wtlassist/backend/core/user"
)

type courseApi struct {
	svc    course.Service
	usrSvc user.Service
}

func registerCourseAPI(g *echo.Group, authed []echo.MiddlewareFunc, opts *Options) {
	api := courseApi{svc: opts.CourseSvc, usrSvc: opts.UserSvc}

	cg := g.Group("/courses", authed...)
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)
	cg.GET("/:id/lessons", api.queryLessons)
	cg.GET("/:id/enrollments", api.queryEnrollments, staffMiddleware(api.usrSvc))

	g.GET("/lessons/:id", api.retrieveLesson, authed...)
	g.GET("/me/courses", api.myCourses, authed...)
}

// checkAccess hides the courses a student is not enrolled in.
func (api *courseApi) checkAccess(ctx echo.Context, courseID string) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.IsStaff() {
		return nil
	}
	enrolled, err := api.svc.IsEnrolled(ctx.Request().Context(), courseID, usr.ID)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !enrolled {
		return course.ErrNotFound
	}
	return nil
}

// Handlers

func (api *courseApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	qp := newQueryParams(ctx)
	filter := &course.QueryFilter{
		Search: qp.String("search"),
		Status: qp.String("status"),
	}
	if !usr.IsStaff() {
		filter.UserID = usr.ID
	}

	courses, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course")
	}
	if err = api.checkAccess(ctx, c.ID); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) queryLessons(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	c, err := api.svc.GetByID(rctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding course")
	}
	if err = api.checkAccess(ctx, c.ID); err != nil {
		return err
	}

	lessons, err := api.svc.QueryLessons(rctx, c.ID)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	if lessons == nil {
		lessons = []course.Lesson{}
	}
	return ctx.JSON(http.StatusOK, lessons)
}

func (api *courseApi) queryEnrollments(ctx echo.Context) error {
	enrollments, err := api.svc.QueryEnrollments(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrollments == nil {
		enrollments = []course.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrollments)
}

func (api *courseApi) retrieveLesson(ctx echo.Context) error {
	lesson, err := api.svc.GetLesson(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding lesson")
	}
	if err = api.checkAccess(ctx, lesson.CourseID); err != nil {
		if errors.Cause(err) == course.ErrNotFound {
			return course.ErrLessonNotFound
		}
		return err
	}
	return ctx.JSON(http.StatusOK, lesson)
}

func (api *courseApi) myCourses(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	courses, err := api.svc.CoursesForUser(ctx.Request().Context(), usr.ID, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying user courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}
