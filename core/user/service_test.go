package user_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/user"
	"github.com/wtlassist/backend/core/wtl"
	emailsvc "github.com/wtlassist/backend/services/email"
	testutil "github.com/wtlassist/backend/tests"
)

const pwd = "Sup3r_S3cret!"

func Test_NewUser_Validate(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()
	testutil.CreateUser(t, app.UserRepo, "Taken", "taken", "taken@test.cd", "", nil, true)

	tests := []struct {
		name      string
		nu        user.NewUser
		wantField string
	}{
		{name: "no username nor email", nu: user.NewUser{Name: "A", Password: pwd, PasswordConfirm: pwd}, wantField: "username"},
		{name: "short password", nu: user.NewUser{Name: "A", Username: "abcd", Password: "Ab1!", PasswordConfirm: "Ab1!"}, wantField: "password"},
		{name: "numeric password", nu: user.NewUser{Name: "A", Username: "abcd", Password: "12345678", PasswordConfirm: "12345678"}, wantField: "password"},
		{name: "simple password", nu: user.NewUser{Name: "A", Username: "abcd", Password: "abcdefgh", PasswordConfirm: "abcdefgh"}, wantField: "password"},
		{name: "password like username", nu: user.NewUser{Name: "A", Username: "dragonfly", Password: "Dragonfly1!", PasswordConfirm: "Dragonfly1!"}, wantField: "password"},
		{name: "passwords mismatch", nu: user.NewUser{Name: "A", Username: "abcd", Password: pwd, PasswordConfirm: pwd + "?"}, wantField: "password_confirm"},
		{name: "unknown role", nu: user.NewUser{Name: "A", Username: "abcd", Password: pwd, PasswordConfirm: pwd, Roles: []string{"janitor"}}, wantField: "roles"},
		{name: "username taken", nu: user.NewUser{Name: "A", Username: " TAKEN ", Password: pwd, PasswordConfirm: pwd}, wantField: "username"},
		{name: "email taken", nu: user.NewUser{Name: "A", Email: "Taken@test.cd", Password: pwd, PasswordConfirm: pwd}, wantField: "email"},
		{name: "valid", nu: user.NewUser{Name: " A ", Username: "abcd", Email: "a@test.cd", Password: pwd, PasswordConfirm: pwd, Roles: []string{user.RoleTeacher}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(ctx, app.Validate, app.Users)
			if tt.wantField == "" {
				assert.NoError(t, err)
				assert.Equal(t, "A", tt.nu.Name)
				return
			}
			require.Error(t, err)
			assert.Contains(t, fieldsOf(err), tt.wantField)
		})
	}
}

// fieldsOf lists the fields a validation error is about.
func fieldsOf(err error) []string {
	var fields []string
	var vErrs validator.ValidationErrors
	var cErr *core.ValidationError
	switch {
	case errors.As(err, &vErrs):
		for _, fe := range vErrs {
			fields = append(fields, fe.Field())
		}
	case errors.As(err, &cErr):
		for _, fe := range cErr.Fields {
			fields = append(fields, fe.Field)
		}
	}
	return fields
}

func Test_service(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()

	usr, err := app.Users.Create(ctx, user.NewUser{Name: "Alice", Username: "alice", Email: "alice@test.cd", Password: pwd})
	require.NoError(t, err)
	assert.True(t, usr.IsActive)
	assert.Equal(t, []string{user.RoleStudent}, usr.Roles)
	assert.False(t, usr.IsSynced())
	assert.NoError(t, usr.CheckPassword(pwd))

	t.Run("getters", func(t *testing.T) {
		for _, key := range []string{"alice", "ALICE@test.cd"} {
			got, err := app.Users.GetByUsernameOrEmail(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, usr.ID, got.ID)
		}
		_, err := app.Users.GetByEmail(ctx, "")
		assert.Equal(t, user.ErrNotFound, err)
		_, err = app.Users.GetByID(ctx, "")
		assert.Equal(t, user.ErrNotFound, err)
		_, err = app.Users.GetByWTLID(ctx, 0)
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("roles", func(t *testing.T) {
		got, err := app.Users.SetRoles(ctx, usr, []string{user.RoleSuperadmin, user.RoleTeacher, user.RoleTeacher})
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleTeacher, user.RoleSuperadmin}, got.Roles)
		assert.True(t, got.IsStaff())
		assert.Equal(t, 30, user.MaxRolePriority(got.Roles))
	})

	t.Run("update", func(t *testing.T) {
		inactive := false
		got, err := app.Users.Update(ctx, usr, user.UpdateUser{Name: "Alice B", Username: usr.Username, Email: usr.Email, IsActive: &inactive})
		require.NoError(t, err)
		assert.Equal(t, "Alice B", got.Name)
		assert.False(t, got.IsActive)
		usr = got
	})

	t.Run("password reset", func(t *testing.T) {
		// inactive users get no reset link
		assert.Equal(t, user.ErrNotFound, app.Users.RequestPasswordReset(ctx, usr.Email))

		active := true
		usr, err = app.Users.Update(ctx, usr, user.UpdateUser{Name: usr.Name, Username: usr.Username, Email: usr.Email, IsActive: &active})
		require.NoError(t, err)
		require.NoError(t, app.Users.RequestPasswordReset(ctx, usr.Email))

		msgs := emailsvc.SentMessagesTo(usr.Email)
		require.Len(t, msgs, 1)
		m := regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s]+)`).FindStringSubmatch(msgs[0].TextContent)
		require.Len(t, m, 3)

		newPwd := "An0ther_S3cret!"
		err := app.Users.ResetPassword(ctx, user.ResetUserPassword{UID: m[1], Token: "nope", Password: newPwd, PasswordConfirm: newPwd})
		assert.IsType(t, &core.ValidationError{}, err)
		err = app.Users.ResetPassword(ctx, user.ResetUserPassword{UID: "nope", Token: m[2], Password: newPwd, PasswordConfirm: newPwd})
		assert.IsType(t, &core.ValidationError{}, err)

		require.NoError(t, app.Users.ResetPassword(ctx, user.ResetUserPassword{UID: m[1], Token: m[2], Password: newPwd, PasswordConfirm: newPwd}))
		got, err := app.Users.GetByID(ctx, usr.ID)
		require.NoError(t, err)
		assert.NoError(t, got.CheckPassword(newPwd))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, app.Users.Delete(ctx))
		require.NoError(t, app.Users.Delete(ctx, usr.ID))
		_, err := app.Users.GetByID(ctx, usr.ID)
		assert.ErrorIs(t, err, user.ErrNotFound)
	})
}

func Test_MapWTLRole(t *testing.T) {
	tests := map[string]string{
		"Teacher":     user.RoleTeacher,
		" instructor": user.RoleTeacher,
		"tutor":       user.RoleTeacher,
		"ADMIN":       user.RoleSuperadmin,
		"super_admin": user.RoleSuperadmin,
		"learner":     user.RoleStudent,
		"":            user.RoleStudent,
	}
	for role, want := range tests {
		assert.Equal(t, want, user.MapWTLRole(role), role)
	}
}

func Test_service_SyncUsers(t *testing.T) {
	app := testutil.NewApp(t)
	ctx := context.Background()

	// a local account that WTL knows by email
	local := testutil.CreateUser(t, app.UserRepo, "Mary L", "mary", "mlee@test.cd", pwd, []string{user.RoleSuperadmin}, true)
	// a local account squatting the username of a WTL user
	testutil.CreateUser(t, app.UserRepo, "Other", "jdoe", "other@test.cd", "", nil, true)

	app.WTL.Users = []wtl.User{
		{ID: 1, Username: "JDoe", Email: "JDoe@test.cd", FirstName: "John", LastName: "Doe", Role: "student", Active: true},
		{ID: 2, Username: "mlee", Email: "mlee@test.cd", FirstName: "Mary", LastName: "Lee", Role: "teacher", Active: true},
		{ID: 1, Username: "jdoe", Email: "jdoe@test.cd"}, // duplicate on the next page
		{ID: 0, Username: "ghost"},
		{ID: 3, Email: "nameless@test.cd", Role: "student"},
	}

	res, err := app.Users.SyncUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SyncResult{Created: 2, Updated: 1, Skipped: 1}, res)
	assert.Equal(t, 3, app.WTL.Calls["ListUsers"])

	john, err := app.Users.GetByWTLID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", john.Name)
	assert.Equal(t, "jdoe@test.cd", john.Email)
	assert.Empty(t, john.Username) // taken locally
	assert.True(t, john.IsActive)
	assert.True(t, john.IsSynced())
	assert.False(t, john.LastSyncedAt.IsZero())

	mary, err := app.Users.GetByWTLID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, local.ID, mary.ID)
	assert.Equal(t, "Mary Lee", mary.Name)
	assert.Equal(t, "mary", mary.Username)
	assert.Equal(t, []string{user.RoleTeacher, user.RoleSuperadmin}, mary.Roles) // roles are only added
	assert.NoError(t, mary.CheckPassword(pwd))

	nameless, err := app.Users.GetByWTLID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "nameless@test.cd", nameless.Name)
	assert.False(t, nameless.IsActive)

	t.Run("resync", func(t *testing.T) {
		app.WTL.Users = app.WTL.Users[:2]
		app.WTL.Users[0].Active = false

		res, err := app.Users.SyncUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, core.SyncResult{Updated: 2}, res)

		john, err := app.Users.GetByWTLID(ctx, 1)
		require.NoError(t, err)
		assert.False(t, john.IsActive)
	})

	t.Run("email of another WTL user", func(t *testing.T) {
		app.WTL.Users = []wtl.User{{ID: 4, Email: "jdoe@test.cd", FirstName: "Impostor", Active: true}}

		res, err := app.Users.SyncUsers(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Failed)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], "WTL user 4")
	})

	t.Run("WTL down", func(t *testing.T) {
		app.WTL.Errs["ListUsers"] = errors.New("boom")
		defer delete(app.WTL.Errs, "ListUsers")

		_, err := app.Users.SyncUsers(ctx)
		assert.Error(t, err)
	})
}
