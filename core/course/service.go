package course

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/user"
	"github.com/wtlassist/backend/core/wtl"
)

var (
	// errors
	ErrNotFound       = errors.New("course not found")
	ErrLessonNotFound = errors.New("lesson not found")
)

type (
	Repository interface {
		// UpsertCourse inserts or updates a course by its WTL ID and reports whether it was created.
		UpsertCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, bool, error)
		QueryCourses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		GetCourse(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Course, error)

		// UpsertLesson inserts or updates a lesson by its WTL ID and reports whether it was created.
		UpsertLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, bool, error)
		QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Lesson, error)
		GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (Lesson, error)
		// DeleteLessonsExcept deletes the lessons of a course whose WTL IDs are not in keep.
		DeleteLessonsExcept(ctx context.Context, courseID string, keep []int64, exec ...core.DBExecutor) (int, error)

		UpsertEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (bool, error)
		QueryEnrollments(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Enrollment, error)
		// DeleteEnrollmentsExcept deletes the enrollments of a course whose user IDs are not in keep.
		DeleteEnrollmentsExcept(ctx context.Context, courseID string, keep []string, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error)
		GetByID(ctx context.Context, id string) (Course, error)
		QueryLessons(ctx context.Context, courseID string) ([]Lesson, error)
		GetLesson(ctx context.Context, id string) (Lesson, error)
		QueryEnrollments(ctx context.Context, courseID string) ([]Enrollment, error)
		CoursesForUser(ctx context.Context, userID string, ordering []core.DBOrdering) ([]Course, error)
		IsEnrolled(ctx context.Context, courseID, userID string) (bool, error)
		SyncCourses(ctx context.Context) (core.SyncResult, error)
	}

	service struct {
		tx     core.Transactor
		repo   Repository
		usrSvc user.Service
		wtl    wtl.API
		conf   *core.Config
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(
	tx core.Transactor,
	repo Repository,
	usrSvc user.Service,
	wtlAPI wtl.API,
	conf *core.Config,
	logger core.Logger,
) Service {
	return &service{
		tx:     tx,
		repo:   repo,
		usrSvc: usrSvc,
		wtl:    wtlAPI,
		conf:   conf,
		logger: logger,
	}
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Course, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.QueryCourses(ctx, filter, core.CleanOrdering(ordering, Orderings))
}

func (svc *service) GetByID(ctx context.Context, id string) (Course, error) {
	if id == "" {
		return Course{}, ErrNotFound
	}
	return svc.repo.GetCourse(ctx, GetFilter{ID: id})
}

func (svc *service) QueryLessons(ctx context.Context, courseID string) ([]Lesson, error) {
	if _, err := svc.GetByID(ctx, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryLessons(ctx, courseID)
}

func (svc *service) GetLesson(ctx context.Context, id string) (Lesson, error) {
	if id == "" {
		return Lesson{}, ErrLessonNotFound
	}
	return svc.repo.GetLesson(ctx, id)
}

func (svc *service) QueryEnrollments(ctx context.Context, courseID string) ([]Enrollment, error) {
	if _, err := svc.GetByID(ctx, courseID); err != nil {
		return nil, err
	}
	return svc.repo.QueryEnrollments(ctx, courseID)
}

func (svc *service) CoursesForUser(ctx context.Context, userID string, ordering []core.DBOrdering) ([]Course, error) {
	if userID == "" {
		return []Course{}, nil
	}
	return svc.repo.QueryCourses(ctx, &QueryFilter{UserID: userID}, core.CleanOrdering(ordering, Orderings))
}

func (svc *service) IsEnrolled(ctx context.Context, courseID, userID string) (bool, error) {
	enrollments, err := svc.QueryEnrollments(ctx, courseID)
	if err != nil {
		return false, err
	}
	for _, e := range enrollments {
		if e.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}
