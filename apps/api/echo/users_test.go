package echoapi_test

import (
	"context"
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/wtlassist/backend/apps/api/echo"
	"github.com/wtlassist/backend/core/user"
	emailsvc "github.com/wtlassist/backend/services/email"
)

func userID(u user.User) string { return u.ID }

func Test_userApi_login(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "awesome")
	inactive := createInactiveUser(t, env)

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{name: "missing fields", body: echoapi.LoginRequest{}, wantCode: http.StatusBadRequest},
		{name: "unknown user", body: echoapi.LoginRequest{Username: "nobody", Password: pwd}, wantCode: http.StatusBadRequest, wantErr: "authentication failed"},
		{name: "wrong password", body: echoapi.LoginRequest{Username: "awesome", Password: "nope"}, wantCode: http.StatusBadRequest, wantErr: "authentication failed"},
		{name: "deactivated", body: echoapi.LoginRequest{Username: inactive.Username, Password: pwd}, wantCode: http.StatusForbidden, wantErr: "account deactivated"},
		{name: "by username", body: echoapi.LoginRequest{Username: " AWESOME ", Password: pwd}, wantCode: http.StatusOK},
		{name: "by email", body: echoapi.LoginRequest{Username: usr.Email, Password: pwd}, wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/users/login", "", tt.body)
			requireCode(t, rec, tt.wantCode)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode[httpErr](t, rec).Error)
			}
			if tt.wantCode == http.StatusOK {
				assert.NotEmpty(t, decode[echoapi.LoginResponse](t, rec).Token)
			}
		})
	}

	got, err := env.Users.GetByID(context.Background(), usr.ID)
	require.NoError(t, err)
	assert.False(t, got.LastLogin.IsZero(), "last login is set")
}

func createInactiveUser(t *testing.T, env *testEnv) user.User {
	t.Helper()
	usr := env.createUser(t, "sleepy")
	usr.IsActive = false
	usr, err := env.UserRepo.UpdateUser(context.Background(), usr)
	require.NoError(t, err)
	return usr
}

func Test_userApi_auth(t *testing.T) {
	env := setup(t)
	student := env.createUser(t, "student", user.RoleStudent)
	inactive := createInactiveUser(t, env)

	rec := env.do(t, http.MethodGet, "/v1/users/me", "", nil)
	requireCode(t, rec, http.StatusUnauthorized)
	assert.Equal(t, "missing or malformed jwt", decode[httpErr](t, rec).Error)

	rec = env.do(t, http.MethodGet, "/v1/users/me", "not-a-token", nil)
	requireCode(t, rec, http.StatusUnauthorized)

	rec = env.do(t, http.MethodGet, "/v1/users/me", env.token(t, inactive), nil)
	requireCode(t, rec, http.StatusForbidden)

	rec = env.do(t, http.MethodGet, "/v1/users/me", env.token(t, student), nil)
	requireCode(t, rec, http.StatusOK)
	assert.Equal(t, student.ID, decode[user.User](t, rec).ID)

	// the token of a deleted user is useless
	require.NoError(t, env.Users.Delete(context.Background(), student.ID))
	rec = env.do(t, http.MethodGet, "/v1/users/me", env.token(t, student), nil)
	requireCode(t, rec, http.StatusUnauthorized)
}

func Test_userApi_refreshToken(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "refresher")

	rec := env.do(t, http.MethodPost, "/v1/users/token-refresh", env.token(t, usr), nil)
	requireCode(t, rec, http.StatusOK)
	assert.NotEmpty(t, decode[echoapi.LoginResponse](t, rec).Token)

	// the refresh window is counted from the original login
	claims := echoapi.GetUserClaims(env.Conf, usr, 1)
	token, err := echoapi.GenerateToken(env.Conf, claims)
	require.NoError(t, err)
	rec = env.do(t, http.MethodPost, "/v1/users/token-refresh", token, nil)
	requireCode(t, rec, http.StatusForbidden)
	assert.Equal(t, "refresh has expired", decode[httpErr](t, rec).Error)
}

func Test_userApi_passwordReset(t *testing.T) {
	env := setup(t)
	usr := env.createUser(t, "forgetful")

	for _, email := range []string{"unknown@test.cd", usr.Email} {
		rec := env.do(t, http.MethodPost, "/v1/users/password-reset", "", echoapi.PasswordResetRequest{Email: email})
		requireCode(t, rec, http.StatusOK)
	}
	assert.Empty(t, emailsvc.SentMessagesTo("unknown@test.cd"))
	msgs := emailsvc.SentMessagesTo(usr.Email)
	require.Len(t, msgs, 1)

	m := regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s]+)`).FindStringSubmatch(msgs[0].TextContent)
	require.Len(t, m, 3, msgs[0].TextContent)

	newPwd := "N3w_P@ssw0rd!"
	rec := env.do(t, http.MethodPost, "/v1/users/password-reset-confirm", "", user.ResetUserPassword{
		UID: m[1], Token: "bad-token", Password: newPwd, PasswordConfirm: newPwd,
	})
	requireCode(t, rec, http.StatusBadRequest)

	rec = env.do(t, http.MethodPost, "/v1/users/password-reset-confirm", "", user.ResetUserPassword{
		UID: m[1], Token: m[2], Password: newPwd, PasswordConfirm: newPwd,
	})
	requireCode(t, rec, http.StatusOK)

	rec = env.do(t, http.MethodPost, "/v1/users/login", "", echoapi.LoginRequest{Username: usr.Username, Password: newPwd})
	requireCode(t, rec, http.StatusOK)
}

func Test_userApi_query(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "admin", user.RoleSuperadmin)
	teacher := env.createUser(t, "teacher", user.RoleTeacher)
	student := env.createUser(t, "student", user.RoleStudent)
	inactive := createInactiveUser(t, env)
	adminToken := env.token(t, admin)

	rec := env.do(t, http.MethodGet, "/v1/users", env.token(t, teacher), nil)
	requireCode(t, rec, http.StatusForbidden)
	assert.Equal(t, "permission denied", decode[httpErr](t, rec).Error)

	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "all", path: "/v1/users?ordering=username", want: []string{admin.ID, inactive.ID, student.ID, teacher.ID}},
		{name: "search", path: "/v1/users?search=TEACH", want: []string{teacher.ID}},
		{name: "roles", path: "/v1/users?role=student&role=teacher&ordering=-username", want: []string{teacher.ID, student.ID}},
		{name: "roles (comma)", path: "/v1/users?role=student,superadmin&ordering=username", want: []string{admin.ID, student.ID}},
		{name: "inactive", path: "/v1/users?is_active=false", want: []string{inactive.ID}},
		{name: "not synced", path: "/v1/users?synced=true", want: []string{}},
		{name: "invalid filter", path: "/v1/users?is_active=maybe", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, adminToken, nil)
			requireCode(t, rec, http.StatusOK)
			assert.Equal(t, tt.want, ids(decode[[]user.User](t, rec), userID))
		})
	}
}

func Test_userApi_create(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "admin", user.RoleSuperadmin)
	adminToken := env.token(t, admin)

	rec := env.do(t, http.MethodPost, "/v1/users", adminToken, user.NewUser{Name: "New"})
	requireCode(t, rec, http.StatusBadRequest)
	errs := decode[map[string]string](t, rec)
	assert.Contains(t, errs, "password")

	rec = env.do(t, http.MethodPost, "/v1/users", adminToken, user.NewUser{
		Name: "New", Username: "admin", Password: "Xy9!kq_Lm2#z", PasswordConfirm: "Xy9!kq_Lm2#z",
	})
	requireCode(t, rec, http.StatusBadRequest)
	assert.Equal(t, user.ErrUsernameExists.Error(), decode[map[string]string](t, rec)["username"])

	rec = env.do(t, http.MethodPost, "/v1/users", adminToken, user.NewUser{
		Name: " Newbie ", Email: "NEWBIE@test.cd", Password: "Xy9!kq_Lm2#z", PasswordConfirm: "Xy9!kq_Lm2#z",
		Roles: []string{user.RoleTeacher},
	})
	requireCode(t, rec, http.StatusCreated)
	got := decode[user.User](t, rec)
	assert.Equal(t, "Newbie", got.Name)
	assert.Equal(t, "newbie@test.cd", got.Email)
	assert.Equal(t, []string{user.RoleTeacher}, got.Roles)
	assert.True(t, got.IsActive)
}

func Test_userApi_detail(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "admin", user.RoleSuperadmin)
	student := env.createUser(t, "student", user.RoleStudent)
	other := env.createUser(t, "other", user.RoleStudent)
	adminToken := env.token(t, admin)
	studentToken := env.token(t, student)

	t.Run("retrieve", func(t *testing.T) {
		requireCode(t, env.do(t, http.MethodGet, "/v1/users/"+student.ID, studentToken, nil), http.StatusOK)
		requireCode(t, env.do(t, http.MethodGet, "/v1/users/"+other.ID, studentToken, nil), http.StatusNotFound)
		requireCode(t, env.do(t, http.MethodGet, "/v1/users/"+other.ID, adminToken, nil), http.StatusOK)
		requireCode(t, env.do(t, http.MethodGet, "/v1/users/unknown", adminToken, nil), http.StatusNotFound)
	})

	t.Run("update", func(t *testing.T) {
		active := false
		rec := env.do(t, http.MethodPut, "/v1/users/"+student.ID, studentToken, user.UpdateUser{IsActive: &active})
		requireCode(t, rec, http.StatusForbidden)

		rec = env.do(t, http.MethodPut, "/v1/users/"+student.ID, studentToken, user.UpdateUser{Name: "Renamed"})
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, "Renamed", decode[user.User](t, rec).Name)

		rec = env.do(t, http.MethodPut, "/v1/users/"+other.ID, adminToken, user.UpdateUser{Email: student.Email})
		requireCode(t, rec, http.StatusBadRequest)
		assert.Equal(t, user.ErrEmailExists.Error(), decode[map[string]string](t, rec)["email"])
	})

	t.Run("set roles", func(t *testing.T) {
		// other users are hidden from non superadmins
		rec := env.do(t, http.MethodPut, "/v1/users/"+other.ID+"/roles", studentToken, user.SetUserRoles{Roles: []string{user.RoleTeacher}})
		requireCode(t, rec, http.StatusNotFound)

		rec = env.do(t, http.MethodPut, "/v1/users/"+student.ID+"/roles", studentToken, user.SetUserRoles{Roles: []string{user.RoleSuperadmin}})
		requireCode(t, rec, http.StatusForbidden)

		rec = env.do(t, http.MethodPut, "/v1/users/"+other.ID+"/roles", adminToken, user.SetUserRoles{Roles: []string{"wizard"}})
		requireCode(t, rec, http.StatusBadRequest)

		rec = env.do(t, http.MethodPut, "/v1/users/"+admin.ID+"/roles", adminToken, user.SetUserRoles{Roles: []string{user.RoleTeacher}})
		requireCode(t, rec, http.StatusForbidden)

		rec = env.do(t, http.MethodPut, "/v1/users/"+other.ID+"/roles", adminToken,
			user.SetUserRoles{Roles: []string{user.RoleSuperadmin, user.RoleStudent}})
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, []string{user.RoleStudent, user.RoleSuperadmin}, decode[user.User](t, rec).Roles)
	})

	t.Run("delete", func(t *testing.T) {
		requireCode(t, env.do(t, http.MethodDelete, "/v1/users/"+student.ID, studentToken, nil), http.StatusForbidden)
		requireCode(t, env.do(t, http.MethodDelete, "/v1/users/"+admin.ID, adminToken, nil), http.StatusForbidden)
		requireCode(t, env.do(t, http.MethodDelete, "/v1/users?id="+other.ID+"&id="+admin.ID, adminToken, nil), http.StatusForbidden)
		requireCode(t, env.do(t, http.MethodDelete, "/v1/users/"+student.ID, adminToken, nil), http.StatusNoContent)
		requireCode(t, env.do(t, http.MethodDelete, "/v1/users?id="+other.ID, adminToken, nil), http.StatusNoContent)

		_, err := env.Users.GetByID(context.Background(), other.ID)
		assert.Equal(t, user.ErrNotFound, err)
	})
}

func Test_userApi_roles(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "admin", user.RoleSuperadmin)

	rec := env.do(t, http.MethodGet, "/v1/users/roles", env.token(t, admin), nil)
	requireCode(t, rec, http.StatusOK)
	assert.Equal(t, user.Roles, decode[[]user.Role](t, rec))
}
