package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	echoapi "github.com/wtlassist/backend/apps/api/echo"
	"github.com/wtlassist/backend/core/user"
	testutil "github.com/wtlassist/backend/tests"
)

const pwd = "Sup3r_S3cret!"

type httpErr struct {
	Error string `json:"error"`
}

type testEnv struct {
	*testutil.App
	srv echoapi.Server
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	app := testutil.NewApp(t)
	srv := echoapi.NewServer(&echoapi.Options{
		DisableReqLogs: true,
		Conf:           app.Conf,
		Logger:         app.Logger,
		Validate:       app.Validate,
		Translator:     app.Translator,
		UserSvc:        app.Users,
		CourseSvc:      app.Courses,
		ThreadSvc:      app.Threads,
		SurveySvc:      app.Surveys,
		Recorder:       app.Recorder,
	})
	return &testEnv{App: app, srv: srv}
}

func (env *testEnv) createUser(t *testing.T, uname string, roles ...string) user.User {
	t.Helper()
	return testutil.CreateUser(t, env.UserRepo, "User "+uname, uname, uname+"@test.cd", pwd, roles, true)
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(env.Conf, echoapi.GetUserClaims(env.Conf, usr))
	require.NoError(t, err)
	return token
}

// do sends a JSON request; body is marshalled unless it already is a []byte.
func (env *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireCode(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	require.Equal(t, code, rec.Code, rec.Body.String())
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, id(item))
	}
	return out
}
