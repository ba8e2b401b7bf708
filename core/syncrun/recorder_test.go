package syncrun_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/syncrun"
	inmemdb "github.com/wtlassist/backend/storage/database/inmem"
	testutil "github.com/wtlassist/backend/tests"
)

func newRecorder(jobs map[string]syncrun.SyncFunc) syncrun.Recorder {
	conf := core.NewTestConfig()
	return syncrun.NewRecorder(inmemdb.NewSyncRunRepository(inmemdb.Open()), jobs, testutil.NewLogger(conf))
}

func Test_recorder_Run(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	started := make(chan struct{})

	rec := newRecorder(map[string]syncrun.SyncFunc{
		syncrun.KindUsers: func(ctx context.Context) (core.SyncResult, error) {
			return core.SyncResult{Created: 2, Updated: 1}, nil
		},
		syncrun.KindCourses: func(ctx context.Context) (core.SyncResult, error) {
			var res core.SyncResult
			res.Fail(errors.New("course 10: boom"))
			return res, errors.New("wtl is down")
		},
		syncrun.KindSurveys: func(ctx context.Context) (core.SyncResult, error) {
			close(started)
			<-release
			return core.SyncResult{}, nil
		},
	})
	assert.Equal(t, syncrun.AllKinds, rec.Kinds())

	_, err := rec.Run(ctx, "lessons")
	assert.Equal(t, syncrun.ErrUnknownKind, err)

	users, err := rec.Run(ctx, syncrun.KindUsers)
	require.NoError(t, err)
	assert.NotEmpty(t, users.ID)
	assert.Equal(t, syncrun.StatusSucceeded, users.Status)
	assert.Equal(t, 2, users.Created)
	assert.Equal(t, 1, users.Updated)
	assert.Equal(t, []string{}, users.Errors)
	require.NotNil(t, users.FinishedAt)
	assert.False(t, users.FinishedAt.Before(users.StartedAt))

	courses, err := rec.Run(ctx, syncrun.KindCourses)
	assert.EqualError(t, err, "wtl is down")
	assert.NotEmpty(t, courses.ID)
	assert.Equal(t, syncrun.StatusFailed, courses.Status)
	assert.Equal(t, "wtl is down", courses.Error)
	assert.Equal(t, []string{"course 10: boom"}, courses.Errors)

	t.Run("one run per kind", func(t *testing.T) {
		done := make(chan error, 1)
		go func() {
			_, err := rec.Run(ctx, syncrun.KindSurveys)
			done <- err
		}()
		<-started

		_, err := rec.Run(ctx, syncrun.KindSurveys)
		assert.Equal(t, syncrun.ErrAlreadyRunning, err)

		running, err := rec.Query(ctx, &syncrun.QueryFilter{Status: syncrun.StatusRunning}, nil)
		require.NoError(t, err)
		require.Len(t, running, 1)
		assert.Equal(t, syncrun.KindSurveys, running[0].Kind)
		assert.Nil(t, running[0].FinishedAt)

		// other kinds are not blocked
		_, err = rec.Run(ctx, syncrun.KindUsers)
		assert.NoError(t, err)

		close(release)
		require.NoError(t, <-done)
	})

	t.Run("query", func(t *testing.T) {
		runs, err := rec.Query(ctx, nil, nil)
		require.NoError(t, err)
		require.Len(t, runs, 4)
		for i := 1; i < len(runs); i++ {
			assert.False(t, runs[i].StartedAt.After(runs[i-1].StartedAt), "runs are not newest first")
		}

		runs, err = rec.Query(ctx, &syncrun.QueryFilter{Kind: syncrun.KindUsers, Limit: 1}, nil)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, syncrun.KindUsers, runs[0].Kind)
		assert.NotEqual(t, users.ID, runs[0].ID)

		runs, err = rec.Query(ctx, &syncrun.QueryFilter{Status: syncrun.StatusFailed}, nil)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, courses.ID, runs[0].ID)
	})
}

func Test_recorder_Track_cancelled(t *testing.T) {
	rec := newRecorder(nil)
	assert.Empty(t, rec.Kinds())

	ctx, cancel := context.WithCancel(context.Background())
	run, err := rec.Track(ctx, syncrun.KindUsers, func(ctx context.Context) (core.SyncResult, error) {
		cancel()
		return core.SyncResult{Updated: 1}, ctx.Err()
	})
	assert.Equal(t, context.Canceled, err)

	// still saved
	runs, err := rec.Query(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, syncrun.StatusFailed, runs[0].Status)
	assert.Equal(t, 1, runs[0].Updated)
}

func Test_NewScheduler(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Sync.UsersInterval = 10 * time.Millisecond
	conf.Sync.CoursesInterval = 0
	conf.Sync.SurveysInterval = time.Hour

	var users, courses int32
	rec := newRecorder(map[string]syncrun.SyncFunc{
		syncrun.KindUsers: func(ctx context.Context) (core.SyncResult, error) {
			atomic.AddInt32(&users, 1)
			return core.SyncResult{}, nil
		},
		syncrun.KindCourses: func(ctx context.Context) (core.SyncResult, error) {
			atomic.AddInt32(&courses, 1)
			return core.SyncResult{}, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errs := syncrun.NewScheduler(conf, rec, testutil.NewLogger(conf)).ServeBackground(ctx)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&users) >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-errs:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Zero(t, atomic.LoadInt32(&courses))

	runs, err := rec.Query(context.Background(), &syncrun.QueryFilter{Kind: syncrun.KindUsers}, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(runs), 3)
}
