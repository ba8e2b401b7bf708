package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtlassist/backend/core/survey"
	"github.com/wtlassist/backend/core/syncrun"
	"github.com/wtlassist/backend/core/thread"
	"github.com/wtlassist/backend/core/user"
	emailsvc "github.com/wtlassist/backend/services/email"
)

func responseID(r survey.Response) string { return r.ID }

func Test_surveyApi(t *testing.T) {
	env := setup(t)
	admin := env.createUser(t, "admin", user.RoleSuperadmin)
	teacher := env.createUser(t, "teacher", user.RoleTeacher)
	alice := env.createUser(t, "alice", user.RoleStudent)
	adminToken := env.token(t, admin)
	teacherToken := env.token(t, teacher)
	aliceToken := env.token(t, alice)

	aliceThread := env.createThread(t, aliceToken, thread.NewThread{Title: "Week 1 feedback"})

	submitted := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	env.Forms.Forms["form-1"] = survey.RemoteForm{
		ID:    "form-1",
		Title: "Weekly check-in",
		Questions: []survey.RemoteQuestion{
			{ID: "q1", Title: "How was it?", Kind: "text"},
			{ID: "q2", Title: "Rate it", Kind: "scale"},
		},
	}
	env.Forms.Responses["form-1"] = []survey.RemoteResponse{
		{ID: "r1", RespondentEmail: "ALICE@test.cd", SubmittedAt: submitted, Answers: map[string][]string{"q2": {"4"}, "q1": {"Good"}}},
		{ID: "r2", RespondentEmail: "someone@else.cd", SubmittedAt: submitted.Add(time.Hour)},
		{ID: "r3", RespondentEmail: "", SubmittedAt: submitted.Add(2 * time.Hour)},
	}

	// sync
	rec := env.do(t, http.MethodPost, "/v1/sync/"+syncrun.KindSurveys, adminToken, nil)
	requireCode(t, rec, http.StatusOK)
	run := decode[syncrun.Run](t, rec)
	assert.Equal(t, syncrun.StatusSucceeded, run.Status)
	assert.Equal(t, 3, run.Created)

	msgs := emailsvc.SentMessagesTo(alice.Email)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].TextContent, aliceThread.ID)

	requireCode(t, env.do(t, http.MethodGet, "/v1/surveys", aliceToken, nil), http.StatusForbidden)

	rec = env.do(t, http.MethodGet, "/v1/surveys", teacherToken, nil)
	requireCode(t, rec, http.StatusOK)
	forms := decode[[]survey.Form](t, rec)
	require.Len(t, forms, 1)
	form := forms[0]
	assert.Equal(t, "form-1", form.GoogleFormID)

	t.Run("retrieve", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/surveys/"+form.ID, teacherToken, nil)
		requireCode(t, rec, http.StatusOK)
		got := decode[survey.Form](t, rec)
		assert.Equal(t, "Weekly check-in", got.Title)
		require.Len(t, got.Questions, 2)
		assert.Equal(t, "q1", got.Questions[0].QuestionID)

		requireCode(t, env.do(t, http.MethodGet, "/v1/surveys/unknown", teacherToken, nil), http.StatusNotFound)
	})

	var r1, r2 survey.Response
	t.Run("responses", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/surveys/"+form.ID+"/responses", teacherToken, nil)
		requireCode(t, rec, http.StatusOK)
		all := decode[[]survey.Response](t, rec)
		require.Len(t, all, 3)
		// latest submissions first
		r2, r1 = all[1], all[2]
		assert.Equal(t, "r1", r1.GoogleResponseID)
		assert.Equal(t, "alice@test.cd", r1.RespondentEmail)
		assert.Equal(t, aliceThread.ID, r1.ThreadID)
		assert.NotNil(t, r1.LinkedAt)
		require.Len(t, r1.Answers, 2)
		assert.Equal(t, "How was it?", r1.Answers[0].Question)
		assert.Equal(t, []string{"4"}, r1.Answers[1].Values)
		assert.False(t, r2.IsLinked())

		rec = env.do(t, http.MethodGet, "/v1/surveys/"+form.ID+"/responses?linked=false", teacherToken, nil)
		requireCode(t, rec, http.StatusOK)
		assert.Len(t, decode[[]survey.Response](t, rec), 2)

		rec = env.do(t, http.MethodGet, "/v1/surveys/"+form.ID+"/responses?email=Alice@Test.cd", teacherToken, nil)
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, []string{r1.ID}, ids(decode[[]survey.Response](t, rec), responseID))

		rec = env.do(t, http.MethodGet, "/v1/surveys/"+form.ID+"/responses?submitted_from=2026-03-02T10:30:00Z&submitted_to=2026-03-02T11:30:00Z", teacherToken, nil)
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, []string{r2.ID}, ids(decode[[]survey.Response](t, rec), responseID))

		requireCode(t, env.do(t, http.MethodGet, "/v1/surveys/"+form.ID+"/responses?linked=maybe", teacherToken, nil), http.StatusBadRequest)

		// owners read the responses of their threads
		rec = env.do(t, http.MethodGet, "/v1/threads/"+aliceThread.ID+"/survey-responses", aliceToken, nil)
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, []string{r1.ID}, ids(decode[[]survey.Response](t, rec), responseID))
	})

	t.Run("link & unlink", func(t *testing.T) {
		path := "/v1/survey-responses/" + r2.ID + "/thread"

		requireCode(t, env.do(t, http.MethodPut, path, aliceToken, survey.LinkThread{ThreadID: aliceThread.ID}), http.StatusForbidden)
		requireCode(t, env.do(t, http.MethodPut, path, teacherToken, survey.LinkThread{}), http.StatusBadRequest)

		rec := env.do(t, http.MethodPut, path, teacherToken, survey.LinkThread{ThreadID: admin.ID})
		requireCode(t, rec, http.StatusBadRequest)
		assert.Contains(t, decode[map[string]string](t, rec), "thread_id")

		rec = env.do(t, http.MethodPut, path, teacherToken, survey.LinkThread{ThreadID: aliceThread.ID})
		requireCode(t, rec, http.StatusOK)
		got := decode[survey.Response](t, rec)
		assert.Equal(t, aliceThread.ID, got.ThreadID)
		assert.NotNil(t, got.LinkedAt)

		rec = env.do(t, http.MethodDelete, path, teacherToken, nil)
		requireCode(t, rec, http.StatusOK)
		got = decode[survey.Response](t, rec)
		assert.False(t, got.IsLinked())
		assert.Nil(t, got.LinkedAt)

		requireCode(t, env.do(t, http.MethodDelete, "/v1/survey-responses/unknown/thread", teacherToken, nil), http.StatusNotFound)
	})

	t.Run("resync keeps links", func(t *testing.T) {
		emailsvc.ResetSentMessages()
		rec := env.do(t, http.MethodPost, "/v1/sync/"+syncrun.KindSurveys, adminToken, nil)
		requireCode(t, rec, http.StatusOK)
		run := decode[syncrun.Run](t, rec)
		assert.Equal(t, 0, run.Created)
		assert.Equal(t, 3, run.Updated)
		assert.Empty(t, emailsvc.SentMessagesTo(alice.Email))

		rec = env.do(t, http.MethodGet, "/v1/surveys/"+form.ID+"/responses?thread_id="+aliceThread.ID, teacherToken, nil)
		requireCode(t, rec, http.StatusOK)
		assert.Equal(t, []string{r1.ID}, ids(decode[[]survey.Response](t, rec), responseID))
	})
}
