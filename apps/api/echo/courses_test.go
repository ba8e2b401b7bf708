package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtlassist/backend/core/course"
	"github.com/wtlassist/backend/core/user"
)

func courseID(c course.Course) string { return c.ID }
func lessonID(l course.Lesson) string { return l.ID }

func (env *testEnv) createCourse(t *testing.T, wtlID int64, title, status string, members ...user.User) (course.Course, []course.Lesson) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	c, _, err := env.CourseRepo.UpsertCourse(ctx, course.Course{
		WTLCourseID: wtlID, Title: title, Status: status, LastSyncedAt: now, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	lessons := make([]course.Lesson, 0, 2)
	for i := 1; i <= 2; i++ {
		l, _, err := env.CourseRepo.UpsertLesson(ctx, course.Lesson{
			CourseID: c.ID, WTLLessonID: wtlID*100 + int64(i), Title: title + " lesson", Position: i,
			LastSyncedAt: now, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
		lessons = append(lessons, l)
	}
	for _, m := range members {
		_, err = env.CourseRepo.UpsertEnrollment(ctx, course.Enrollment{
			CourseID: c.ID, UserID: m.ID, Role: user.RoleStudent, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)
	}
	return c, lessons
}

func Test_courseApi(t *testing.T) {
	env := setup(t)
	teacher := env.createUser(t, "teacher", user.RoleTeacher)
	student := env.createUser(t, "student", user.RoleStudent)
	go1, go1Lessons := env.createCourse(t, 1, "Go basics", "published", student)
	sql1, sql1Lessons := env.createCourse(t, 2, "SQL basics", "draft")
	teacherToken := env.token(t, teacher)
	studentToken := env.token(t, student)

	t.Run("query", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/courses", teacherToken, nil)
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, []string{go1.ID, sql1.ID}, ids(decode[[]course.Course](t, rec), courseID))

		rec = env.do(t, http.MethodGet, "/v1/courses?status=DRAFT", teacherToken, nil)
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, []string{sql1.ID}, ids(decode[[]course.Course](t, rec), courseID))

		rec = env.do(t, http.MethodGet, "/v1/courses?ordering=-title", teacherToken, nil)
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, []string{sql1.ID, go1.ID}, ids(decode[[]course.Course](t, rec), courseID))

		// students only see their courses
		rec = env.do(t, http.MethodGet, "/v1/courses", studentToken, nil)
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, []string{go1.ID}, ids(decode[[]course.Course](t, rec), courseID))

		rec = env.do(t, http.MethodGet, "/v1/me/courses", studentToken, nil)
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, []string{go1.ID}, ids(decode[[]course.Course](t, rec), courseID))
	})

	t.Run("retrieve", func(t *testing.T) {
		requireCode(t, env.do(t, http.MethodGet, "/v1/courses/"+sql1.ID, teacherToken, nil), http.StatusOK)
		requireCode(t, env.do(t, http.MethodGet, "/v1/courses/"+go1.ID, studentToken, nil), http.StatusOK)
		requireCode(t, env.do(t, http.MethodGet, "/v1/courses/"+sql1.ID, studentToken, nil), http.StatusNotFound)
		requireCode(t, env.do(t, http.MethodGet, "/v1/courses/unknown", teacherToken, nil), http.StatusNotFound)
	})

	t.Run("lessons", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/courses/"+go1.ID+"/lessons", studentToken, nil)
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, ids(go1Lessons, lessonID), ids(decode[[]course.Lesson](t, rec), lessonID))

		requireCode(t, env.do(t, http.MethodGet, "/v1/courses/"+sql1.ID+"/lessons", studentToken, nil), http.StatusNotFound)

		rec = env.do(t, http.MethodGet, "/v1/lessons/"+go1Lessons[1].ID, studentToken, nil)
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, 2, decode[course.Lesson](t, rec).Position)

		requireCode(t, env.do(t, http.MethodGet, "/v1/lessons/"+sql1Lessons[0].ID, studentToken, nil), http.StatusNotFound)
		requireCode(t, env.do(t, http.MethodGet, "/v1/lessons/"+sql1Lessons[0].ID, teacherToken, nil), http.StatusOK)
	})

	t.Run("enrollments", func(t *testing.T) {
		requireCode(t, env.do(t, http.MethodGet, "/v1/courses/"+go1.ID+"/enrollments", studentToken, nil), http.StatusForbidden)

		rec := env.do(t, http.MethodGet, "/v1/courses/"+go1.ID+"/enrollments", teacherToken, nil)
		requireCode(t, rec, http.StatusOK)
		enrollments := decode[[]course.Enrollment](t, rec)
		require.Len(t, enrollments, 1)
		assert.Equal(t, student.ID, enrollments[0].UserID)
	})
}
