//go:build integration

package sqlxrepos_test

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/course"
	"github.com/wtlassist/backend/core/survey"
	"github.com/wtlassist/backend/core/syncrun"
	"github.com/wtlassist/backend/core/thread"
	"github.com/wtlassist/backend/core/user"
	"github.com/wtlassist/backend/storage/database"
	sqlxrepos "github.com/wtlassist/backend/storage/database/sqlx"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}
}

func openDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	skipIfNoDocker(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("wtlassist"),
		postgres.WithUsername("wtlassist"),
		postgres.WithPassword("wtlassist"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.OpenDSN("postgres", dsn, 5)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db.DB))
	return db
}

func TestRepositories(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	usrRepo := sqlxrepos.NewUserRepository(db)
	courseRepo := sqlxrepos.NewCourseRepository(db)
	threadRepo := sqlxrepos.NewThreadRepository(db)
	surveyRepo := sqlxrepos.NewSurveyRepository(db)
	runRepo := sqlxrepos.NewSyncRunRepository(db)

	var student user.User
	t.Run("users", func(t *testing.T) {
		var err error
		student, err = usrRepo.CreateUser(ctx, user.User{
			Name:      "Ada Student",
			Email:     "ada@example.com",
			IsActive:  true,
			Roles:     []string{user.RoleStudent},
			CreatedAt: now,
			UpdatedAt: now,
		})
		require.NoError(t, err)
		assert.NotEmpty(t, student.ID)
		assert.Equal(t, "", student.Username)
		assert.True(t, student.LastLogin.IsZero())

		// users without username don't collide on the unique constraint
		_, err = usrRepo.CreateUser(ctx, user.User{Name: "Bob", Email: "bob@example.com", IsActive: true, CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)

		_, err = usrRepo.CreateUser(ctx, user.User{Name: "Dup", Email: "ada@example.com", CreatedAt: now, UpdatedAt: now})
		assert.Equal(t, user.ErrEmailExists, err)
		assert.Equal(t, user.ErrEmailExists, usrRepo.CheckUsernameUniqueness(ctx, "", "ada@example.com", nil))
		assert.NoError(t, usrRepo.CheckUsernameUniqueness(ctx, "", "ada@example.com", []user.User{student}))

		users, err := usrRepo.QueryUsers(ctx, &user.QueryFilter{Roles: []string{user.RoleStudent}}, nil)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, student.ID, users[0].ID)

		got, err := usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "ada@example.com"})
		require.NoError(t, err)
		assert.Equal(t, student.ID, got.ID)

		_, err = usrRepo.GetUser(ctx, user.GetFilter{ID: "not-a-uuid"})
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("courses", func(t *testing.T) {
		c, created, err := courseRepo.UpsertCourse(ctx, course.Course{WTLCourseID: 7, Title: "Go 101", LastSyncedAt: now, CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		assert.True(t, created)

		c, created, err = courseRepo.UpsertCourse(ctx, course.Course{WTLCourseID: 7, Title: "Go 102", LastSyncedAt: now, CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "Go 102", c.Title)

		for i, wtlID := range []int64{70, 71} {
			_, _, err = courseRepo.UpsertLesson(ctx, course.Lesson{CourseID: c.ID, WTLLessonID: wtlID, Position: i + 1, CreatedAt: now, UpdatedAt: now})
			require.NoError(t, err)
		}
		cnt, err := courseRepo.DeleteLessonsExcept(ctx, c.ID, []int64{71})
		require.NoError(t, err)
		assert.Equal(t, 1, cnt)

		_, err = courseRepo.UpsertEnrollment(ctx, course.Enrollment{CourseID: c.ID, UserID: student.ID, Role: user.RoleStudent, CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		courses, err := courseRepo.QueryCourses(ctx, &course.QueryFilter{UserID: student.ID}, nil)
		require.NoError(t, err)
		require.Len(t, courses, 1)
		assert.Equal(t, c.ID, courses[0].ID)
	})

	t.Run("threads & surveys", func(t *testing.T) {
		th, err := threadRepo.CreateThread(ctx, thread.Thread{OwnerID: student.ID, Title: "Help", Status: thread.StatusOpen, CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		assert.Empty(t, th.LessonIDs)

		task, err := threadRepo.CreateTask(ctx, thread.Task{ThreadID: th.ID, Title: "Read", Status: thread.TaskTodo, CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		_, err = threadRepo.CreateChecklistItem(ctx, thread.ChecklistItem{TaskID: task.ID, Label: "ch. 1", Position: 1, CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		task, err = threadRepo.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Len(t, task.Checklist, 1)

		form, _, err := surveyRepo.UpsertForm(ctx, survey.Form{GoogleFormID: "form-1", Title: "Feedback", LastSyncedAt: now, CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		require.NoError(t, surveyRepo.ReplaceQuestions(ctx, form.ID, []survey.Question{{QuestionID: "q1", Title: "Why?", Position: 1}}))

		r, created, err := surveyRepo.UpsertResponse(ctx, survey.Response{
			FormID:           form.ID,
			GoogleResponseID: "resp-1",
			RespondentEmail:  "ada@example.com",
			SubmittedAt:      now,
			Answers:          []survey.Answer{{QuestionID: "q1", Question: "Why?", Values: []string{"because"}}},
			CreatedAt:        now,
			UpdatedAt:        now,
		})
		require.NoError(t, err)
		assert.True(t, created)

		threadID, err := surveyRepo.LinkResponseToThread(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, th.ID, threadID)

		// re-syncing the response keeps its thread
		r, created, err = surveyRepo.UpsertResponse(ctx, survey.Response{FormID: form.ID, GoogleResponseID: "resp-1", RespondentEmail: "ada@example.com", CreatedAt: now, UpdatedAt: now})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, th.ID, r.ThreadID)

		linked, err := surveyRepo.QueryResponses(ctx, &survey.ResponseFilter{ThreadID: th.ID}, nil)
		require.NoError(t, err)
		assert.Len(t, linked, 1)
	})

	t.Run("sync runs", func(t *testing.T) {
		run, err := runRepo.CreateRun(ctx, syncrun.Run{Kind: syncrun.KindUsers, Status: syncrun.StatusRunning, StartedAt: now})
		require.NoError(t, err)
		finished := now.Add(time.Second)
		run.Status, run.FinishedAt, run.Errors = syncrun.StatusSucceeded, &finished, []string{"user 3: boom"}
		run, err = runRepo.UpdateRun(ctx, run)
		require.NoError(t, err)
		assert.Equal(t, []string{"user 3: boom"}, run.Errors)

		runs, err := runRepo.QueryRuns(ctx, &syncrun.QueryFilter{Kind: syncrun.KindUsers, Limit: 10}, []core.DBOrdering{{Field: "started_at"}})
		require.NoError(t, err)
		assert.Len(t, runs, 1)
	})

	t.Run("transactions", func(t *testing.T) {
		tx := database.NewTransactor(db)
		err := tx.WithTx(ctx, func(exec core.DBExecutor) error {
			_, err := usrRepo.CreateUser(ctx, user.User{Name: "Ghost", Email: "ghost@example.com", CreatedAt: now, UpdatedAt: now}, exec)
			require.NoError(t, err)
			return user.ErrNotFound
		})
		assert.Equal(t, user.ErrNotFound, err)
		_, err = usrRepo.GetUser(ctx, user.GetFilter{Email: "ghost@example.com"})
		assert.Equal(t, user.ErrNotFound, err)
	})
}
