package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/course"
)

const (
	coursesTable     = "courses"
	lessonsTable     = "lessons"
	enrollmentsTable = "course_enrollments"

	// xmax is 0 for rows written by the INSERT branch of an upsert
	insertedColumn = "(xmax = 0) AS inserted"
)

var (
	courseColumns = []string{
		"id", "wtl_course_id", "title", "description", "status", "starts_at", "ends_at",
		"last_synced_at", "created_at", "updated_at",
	}
	lessonColumns = []string{
		"id", "course_id", "wtl_lesson_id", "title", "description", "position", "published_at",
		"last_synced_at", "created_at", "updated_at",
	}
	enrollmentColumns = []string{"course_id", "user_id", "role", "created_at", "updated_at"}
)

type courseRow struct {
	ID           string    `db:"id"`
	WTLCourseID  int64     `db:"wtl_course_id"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	Status       string    `db:"status"`
	StartsAt     null.Time `db:"starts_at"`
	EndsAt       null.Time `db:"ends_at"`
	LastSyncedAt null.Time `db:"last_synced_at"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	Inserted     bool      `db:"inserted"`
}

func (r courseRow) course() course.Course {
	return course.Course{
		ID:           r.ID,
		WTLCourseID:  r.WTLCourseID,
		Title:        r.Title,
		Description:  r.Description,
		Status:       r.Status,
		StartsAt:     utcPtr(r.StartsAt),
		EndsAt:       utcPtr(r.EndsAt),
		LastSyncedAt: utcOrZero(r.LastSyncedAt),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type lessonRow struct {
	ID           string    `db:"id"`
	CourseID     string    `db:"course_id"`
	WTLLessonID  int64     `db:"wtl_lesson_id"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	Position     int       `db:"position"`
	PublishedAt  null.Time `db:"published_at"`
	LastSyncedAt null.Time `db:"last_synced_at"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	Inserted     bool      `db:"inserted"`
}

func (r lessonRow) lesson() course.Lesson {
	return course.Lesson{
		ID:           r.ID,
		CourseID:     r.CourseID,
		WTLLessonID:  r.WTLLessonID,
		Title:        r.Title,
		Description:  r.Description,
		Position:     r.Position,
		PublishedAt:  utcPtr(r.PublishedAt),
		LastSyncedAt: utcOrZero(r.LastSyncedAt),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type enrollmentRow struct {
	CourseID  string    `db:"course_id"`
	UserID    string    `db:"user_id"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
	Inserted  bool      `db:"inserted"`
}

type courseRepository struct {
	baseRepository
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(exec core.DBExecutor) course.Repository {
	return &courseRepository{baseRepository{exec: exec}}
}

func (repo courseRepository) UpsertCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, bool, error) {
	q := psql.Insert(coursesTable).
		SetMap(map[string]interface{}{
			"wtl_course_id":  c.WTLCourseID,
			"title":          c.Title,
			"description":    c.Description,
			"status":         c.Status,
			"starts_at":      null.TimeFromPtr(c.StartsAt),
			"ends_at":        null.TimeFromPtr(c.EndsAt),
			"last_synced_at": c.LastSyncedAt.UTC(),
			"created_at":     c.CreatedAt.UTC(),
			"updated_at":     c.UpdatedAt.UTC(),
		}).
		Suffix(`ON CONFLICT (wtl_course_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + strings.Join(courseColumns, ", ") + ", " + insertedColumn)

	row, err := selectOne[courseRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return course.Course{}, false, errors.Wrap(err, "upserting course")
	}
	return row.course(), row.Inserted, nil
}

func (repo courseRepository) QueryCourses(ctx context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]course.Course, error) {
	cols := make([]string, 0, len(courseColumns))
	for _, col := range courseColumns {
		cols = append(cols, "c."+col)
	}
	q := psql.Select(cols...).From(coursesTable + " c")

	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			q = q.Where(sq.Or{sq.ILike{"c.title": val}, sq.ILike{"c.description": val}})
		}
		if filter.Status != "" {
			q = q.Where(sq.Eq{"lower(c.status)": filter.Status})
		}
		if filter.UserID != "" {
			if !isUUID(filter.UserID) {
				return []course.Course{}, nil
			}
			q = q.Join(enrollmentsTable+" e ON e.course_id = c.id").Where(sq.Eq{"e.user_id": filter.UserID})
		}
	}

	prefixed := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		prefixed = append(prefixed, core.DBOrdering{Field: "c." + ord.Field, Ascending: ord.Ascending})
	}
	q = applyOrdering(q, prefixed, "c.starts_at DESC NULLS LAST", "c.title ASC")

	rows, err := selectAll[courseRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.course())
	}
	return courses, nil
}

func (repo courseRepository) GetCourse(ctx context.Context, filter course.GetFilter, exec ...core.DBExecutor) (course.Course, error) {
	q := psql.Select(courseColumns...).From(coursesTable).Limit(1)
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return course.Course{}, course.ErrNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.WTLCourseID > 0:
		q = q.Where(sq.Eq{"wtl_course_id": filter.WTLCourseID})
	default:
		return course.Course{}, course.ErrNotFound
	}

	row, err := selectOne[courseRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return course.Course{}, trapNoRows(err, course.ErrNotFound, "finding course")
	}
	return row.course(), nil
}

func (repo courseRepository) UpsertLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, bool, error) {
	q := psql.Insert(lessonsTable).
		SetMap(map[string]interface{}{
			"course_id":      l.CourseID,
			"wtl_lesson_id":  l.WTLLessonID,
			"title":          l.Title,
			"description":    l.Description,
			"position":       l.Position,
			"published_at":   null.TimeFromPtr(l.PublishedAt),
			"last_synced_at": l.LastSyncedAt.UTC(),
			"created_at":     l.CreatedAt.UTC(),
			"updated_at":     l.UpdatedAt.UTC(),
		}).
		Suffix(`ON CONFLICT (wtl_lesson_id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			position = EXCLUDED.position,
			published_at = EXCLUDED.published_at,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + strings.Join(lessonColumns, ", ") + ", " + insertedColumn)

	row, err := selectOne[lessonRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return course.Lesson{}, false, errors.Wrap(err, "upserting lesson")
	}
	return row.lesson(), row.Inserted, nil
}

func (repo courseRepository) QueryLessons(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Lesson, error) {
	if !isUUID(courseID) {
		return []course.Lesson{}, nil
	}
	q := psql.Select(lessonColumns...).From(lessonsTable).
		Where(sq.Eq{"course_id": courseID}).
		OrderBy("position ASC", "wtl_lesson_id ASC")

	rows, err := selectAll[lessonRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]course.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.lesson())
	}
	return lessons, nil
}

func (repo courseRepository) GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (course.Lesson, error) {
	if !isUUID(id) {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	q := psql.Select(lessonColumns...).From(lessonsTable).Where(sq.Eq{"id": id}).Limit(1)
	row, err := selectOne[lessonRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return course.Lesson{}, trapNoRows(err, course.ErrLessonNotFound, "finding lesson")
	}
	return row.lesson(), nil
}

func (repo courseRepository) DeleteLessonsExcept(ctx context.Context, courseID string, keep []int64, exec ...core.DBExecutor) (int, error) {
	q := psql.Delete(lessonsTable).Where(sq.Eq{"course_id": courseID})
	if len(keep) > 0 {
		q = q.Where(sq.NotEq{"wtl_lesson_id": keep})
	}
	cnt, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return 0, errors.Wrap(err, "deleting stale lessons")
	}
	return cnt, nil
}

func (repo courseRepository) UpsertEnrollment(ctx context.Context, e course.Enrollment, exec ...core.DBExecutor) (bool, error) {
	q := psql.Insert(enrollmentsTable).
		SetMap(map[string]interface{}{
			"course_id":  e.CourseID,
			"user_id":    e.UserID,
			"role":       e.Role,
			"created_at": e.CreatedAt.UTC(),
			"updated_at": e.UpdatedAt.UTC(),
		}).
		Suffix(`ON CONFLICT (course_id, user_id) DO UPDATE SET
			role = EXCLUDED.role,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + strings.Join(enrollmentColumns, ", ") + ", " + insertedColumn)

	row, err := selectOne[enrollmentRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return false, errors.Wrap(err, "upserting enrollment")
	}
	return row.Inserted, nil
}

func (repo courseRepository) QueryEnrollments(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Enrollment, error) {
	if !isUUID(courseID) {
		return []course.Enrollment{}, nil
	}
	q := psql.Select(enrollmentColumns...).From(enrollmentsTable).
		Where(sq.Eq{"course_id": courseID}).
		OrderBy("created_at ASC", "user_id ASC")

	rows, err := selectAll[enrollmentRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrollments := make([]course.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrollments = append(enrollments, course.Enrollment{
			CourseID:  r.CourseID,
			UserID:    r.UserID,
			Role:      r.Role,
			CreatedAt: r.CreatedAt.UTC(),
			UpdatedAt: r.UpdatedAt.UTC(),
		})
	}
	return enrollments, nil
}

func (repo courseRepository) DeleteEnrollmentsExcept(ctx context.Context, courseID string, keep []string, exec ...core.DBExecutor) (int, error) {
	q := psql.Delete(enrollmentsTable).Where(sq.Eq{"course_id": courseID})
	if keep = validUUIDs(keep); len(keep) > 0 {
		q = q.Where(sq.NotEq{"user_id": keep})
	}
	cnt, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return 0, errors.Wrap(err, "deleting stale enrollments")
	}
	return cnt, nil
}
