package echoapi_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtlassist/backend/core/syncrun"
	"github.com/wtlassist/backend/core/user"
	"github.com/wtlassist/backend/core/wtl"
)

func runID(r syncrun.Run) string { return r.ID }

func Test_syncApi(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "admin", user.RoleSuperadmin)
	teacher := env.createUser(t, "teacher", user.RoleTeacher)
	adminToken := env.token(t, admin)

	env.WTL.Users = []wtl.User{
		{ID: 10, Username: "jdoe", Email: "jdoe@test.cd", FirstName: "John", LastName: "Doe", Role: "student", Active: true},
	}

	requireCode(t, env.do(t, http.MethodPost, "/v1/sync/users", env.token(t, teacher), nil), http.StatusForbidden)
	requireCode(t, env.do(t, http.MethodGet, "/v1/sync/runs", env.token(t, teacher), nil), http.StatusForbidden)
	requireCode(t, env.do(t, http.MethodPost, "/v1/sync/lessons", adminToken, nil), http.StatusNotFound)

	rec := env.do(t, http.MethodPost, "/v1/sync/users", adminToken, nil)
	requireCode(t, rec, http.StatusOK)
	usersRun := decode[syncrun.Run](t, rec)
	assert.Equal(t, syncrun.KindUsers, usersRun.Kind)
	assert.Equal(t, syncrun.StatusSucceeded, usersRun.Status)
	assert.Equal(t, 1, usersRun.Created)
	assert.NotNil(t, usersRun.FinishedAt)

	// a failing sync is still recorded and returned
	env.WTL.Errs["ListCourses"] = errors.New("wtl is down")
	rec = env.do(t, http.MethodPost, "/v1/sync/courses", adminToken, nil)
	requireCode(t, rec, http.StatusOK)
	coursesRun := decode[syncrun.Run](t, rec)
	assert.Equal(t, syncrun.StatusFailed, coursesRun.Status)
	assert.Contains(t, coursesRun.Error, "wtl is down")

	rec = env.do(t, http.MethodGet, "/v1/sync/runs", adminToken, nil)
	requireCode(t, rec, http.StatusOK)
	runs := decode[[]syncrun.Run](t, rec)
	require.Len(t, runs, 2)
	assert.ElementsMatch(t, []string{usersRun.ID, coursesRun.ID}, ids(runs, runID))

	rec = env.do(t, http.MethodGet, "/v1/sync/runs?status=failed", adminToken, nil)
	requireCode(t, rec, http.StatusOK)
	assert.Equal(t, []string{coursesRun.ID}, ids(decode[[]syncrun.Run](t, rec), runID))

	rec = env.do(t, http.MethodGet, "/v1/sync/runs?kind=users&limit=1", adminToken, nil)
	requireCode(t, rec, http.StatusOK)
	assert.Equal(t, []string{usersRun.ID}, ids(decode[[]syncrun.Run](t, rec), runID))

	requireCode(t, env.do(t, http.MethodGet, "/v1/sync/runs?limit=many", adminToken, nil), http.StatusBadRequest)
}
