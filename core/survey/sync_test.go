package survey_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/survey"
	"github.com/wtlassist/backend/core/thread"
	"github.com/wtlassist/backend/core/user"
	emailsvc "github.com/wtlassist/backend/services/email"
	testutil "github.com/wtlassist/backend/tests"
)

type fixture struct {
	app     *testutil.App
	alice   user.User
	open    thread.Thread
	closed  thread.Thread
	bobs    thread.Thread
	submits time.Time
}

func setup(t *testing.T) fixture {
	t.Helper()
	app := testutil.NewApp(t)
	ctx := context.Background()

	alice := testutil.CreateUser(t, app.UserRepo, "Alice", "alice", "alice@test.cd", "", []string{user.RoleStudent}, true)
	bob := testutil.CreateUser(t, app.UserRepo, "Bob", "bob", "bob@test.cd", "", []string{user.RoleStudent}, false)

	open, err := app.Threads.CreateThread(ctx, alice, thread.NewThread{Title: "Loops"})
	require.NoError(t, err)
	closed, err := app.Threads.CreateThread(ctx, alice, thread.NewThread{Title: "Maps"})
	require.NoError(t, err)
	// most recently updated, but no longer open
	closed, err = app.Threads.UpdateThread(ctx, alice, closed.ID, thread.UpdateThread{Status: thread.StatusResolved})
	require.NoError(t, err)
	bobs, err := app.Threads.CreateThread(ctx, bob, thread.NewThread{Title: "Slices"})
	require.NoError(t, err)

	submits := time.Date(2026, 9, 14, 10, 0, 0, 0, time.FixedZone("WAT", 3600))
	app.Forms.Forms["form-1"] = survey.RemoteForm{
		ID:          "form-1",
		Title:       " Weekly check-in ",
		Description: "How is it going?",
		Questions: []survey.RemoteQuestion{
			{ID: "q1", Title: "Rating", Kind: "scale"},
			{ID: "q2", Title: "Comment", Kind: "text"},
			{Title: "Section header"},
		},
	}
	app.Forms.Responses["form-1"] = []survey.RemoteResponse{
		{ID: "r1", RespondentEmail: " ALICE@test.cd", SubmittedAt: submits, Answers: map[string][]string{
			"zz": {"?"},
			"q2": {"Fine"},
			"q1": {"4"},
		}},
		{ID: "r2", RespondentEmail: "bob@test.cd", SubmittedAt: submits.Add(time.Hour), Answers: map[string][]string{"q1": nil}},
		{RespondentEmail: "alice@test.cd"},
		{ID: "r4", SubmittedAt: submits.Add(2 * time.Hour)},
	}

	return fixture{app: app, alice: alice, open: open, closed: closed, bobs: bobs, submits: submits}
}

func (f fixture) response(t *testing.T, googleID string) survey.Response {
	t.Helper()
	responses, err := f.app.Surveys.QueryResponses(context.Background(), nil, nil)
	require.NoError(t, err)
	for _, r := range responses {
		if r.GoogleResponseID == googleID {
			return r
		}
	}
	t.Fatalf("response %s not found", googleID)
	return survey.Response{}
}

func Test_service_SyncForm(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.app.Surveys.SyncForm(ctx, " form-1 ")
	require.NoError(t, err)
	assert.Equal(t, core.SyncResult{Created: 3, Skipped: 1}, res)

	forms, err := f.app.Surveys.QueryForms(ctx, nil)
	require.NoError(t, err)
	require.Len(t, forms, 1)
	form, err := f.app.Surveys.GetForm(ctx, forms[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Weekly check-in", form.Title)
	assert.False(t, form.LastSyncedAt.IsZero())
	require.Len(t, form.Questions, 2)
	assert.Equal(t, "q1", form.Questions[0].QuestionID)
	assert.Equal(t, 2, form.Questions[1].Position)

	r1 := f.response(t, "r1")
	assert.Equal(t, "alice@test.cd", r1.RespondentEmail)
	assert.Equal(t, f.submits.UTC(), r1.SubmittedAt)
	assert.Equal(t, []survey.Answer{
		{QuestionID: "q1", Question: "Rating", Values: []string{"4"}},
		{QuestionID: "q2", Question: "Comment", Values: []string{"Fine"}},
		{QuestionID: "zz", Values: []string{"?"}},
	}, r1.Answers)
	// linked to the owner's latest open thread
	assert.Equal(t, f.open.ID, r1.ThreadID)
	assert.NotNil(t, r1.LinkedAt)

	// inactive owners and anonymous responses stay unlinked
	r2 := f.response(t, "r2")
	assert.False(t, r2.IsLinked())
	assert.Equal(t, []string{}, r2.Answers[0].Values)
	assert.False(t, f.response(t, "r4").IsLinked())

	msgs := emailsvc.SentMessagesTo("alice@test.cd")
	require.Len(t, msgs, 1)
	assert.True(t, strings.Contains(msgs[0].TextContent, f.open.ID))
	assert.Empty(t, emailsvc.SentMessagesTo("bob@test.cd"))

	t.Run("resync keeps links", func(t *testing.T) {
		res, err := f.app.Surveys.SyncForm(ctx, "form-1")
		require.NoError(t, err)
		assert.Equal(t, core.SyncResult{Updated: 3, Skipped: 1}, res)
		assert.Equal(t, f.open.ID, f.response(t, "r1").ThreadID)
		assert.Len(t, emailsvc.SentMessagesTo("alice@test.cd"), 1)
	})

	t.Run("manual linking", func(t *testing.T) {
		_, err := f.app.Surveys.LinkResponse(ctx, r2.ID, "00000000-0000-0000-0000-000000000000")
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr), err)
		assert.Equal(t, "thread_id", vErr.Fields[0].Field)

		_, err = f.app.Surveys.LinkResponse(ctx, "", f.bobs.ID)
		assert.Equal(t, survey.ErrResponseNotFound, err)

		linked, err := f.app.Surveys.LinkResponse(ctx, r2.ID, f.bobs.ID)
		require.NoError(t, err)
		assert.Equal(t, f.bobs.ID, linked.ThreadID)

		unlinked, err := f.app.Surveys.UnlinkResponse(ctx, r1.ID)
		require.NoError(t, err)
		assert.False(t, unlinked.IsLinked())
		assert.Nil(t, unlinked.LinkedAt)

		// the next sync links it back and notifies again
		_, err = f.app.Surveys.SyncForm(ctx, "form-1")
		require.NoError(t, err)
		assert.Equal(t, f.open.ID, f.response(t, "r1").ThreadID)
		assert.Len(t, emailsvc.SentMessagesTo("alice@test.cd"), 2)
	})

	t.Run("responses", func(t *testing.T) {
		linked := true
		got, err := f.app.Surveys.QueryResponses(ctx, &survey.ResponseFilter{FormID: form.ID, Linked: &linked}, nil)
		require.NoError(t, err)
		assert.Len(t, got, 2)

		got, err = f.app.Surveys.QueryResponses(ctx, &survey.ResponseFilter{Email: "Bob@test.cd "}, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "r2", got[0].GoogleResponseID)

		_, err = f.app.Surveys.QueryResponses(ctx, &survey.ResponseFilter{FormID: "nope"}, nil)
		assert.Equal(t, survey.ErrNotFound, err)

		mine, err := f.app.Surveys.ResponsesForThread(ctx, f.alice, f.open.ID)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, r1.ID, mine[0].ID)

		_, err = f.app.Surveys.ResponsesForThread(ctx, f.alice, f.bobs.ID)
		assert.Equal(t, thread.ErrNotFound, err)
	})
}

func Test_service_SyncAll(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.app.Surveys.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Created)

	f.app.Forms.Err = errors.New("quota exceeded")
	res, err = f.app.Surveys.SyncAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "quota exceeded")

	_, err = f.app.Surveys.SyncForm(ctx, "  ")
	assert.Equal(t, survey.ErrNotFound, err)

	disabled := survey.NewService(f.app.SurveyRepo, nil, f.app.Threads, f.app.Users, nil, f.app.Conf, f.app.Logger)
	_, err = disabled.SyncAll(ctx)
	assert.Equal(t, survey.ErrFormsDisabled, err)
}
