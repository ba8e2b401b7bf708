package syncrun

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core"
)

const defaultQueryLimit = 50

var (
	// errors
	ErrAlreadyRunning = errors.New("a sync of this kind is already running")
	ErrUnknownKind    = errors.New("unknown sync kind")
	ErrRunNotFound    = errors.New("sync run not found")
)

type (
	// SyncFunc is a sync job, eg. user.Service.SyncUsers.
	SyncFunc func(ctx context.Context) (core.SyncResult, error)

	Repository interface {
		CreateRun(ctx context.Context, r Run, exec ...core.DBExecutor) (Run, error)
		UpdateRun(ctx context.Context, r Run, exec ...core.DBExecutor) (Run, error)
		QueryRuns(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Run, error)
	}

	// Recorder runs the sync jobs, at most one per kind at a time, and persists a Run for each.
	Recorder interface {
		Kinds() []string
		Run(ctx context.Context, kind string) (Run, error)
		Track(ctx context.Context, kind string, fn SyncFunc) (Run, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Run, error)
	}

	recorder struct {
		repo   Repository
		jobs   map[string]SyncFunc
		logger core.Logger

		mu      sync.Mutex
		running map[string]bool
	}
)

var _ Recorder = (*recorder)(nil)

// NewRecorder returns a Recorder able to Run the given jobs ({kind: job}).
func NewRecorder(repo Repository, jobs map[string]SyncFunc, logger core.Logger) Recorder {
	return &recorder{
		repo:    repo,
		jobs:    jobs,
		logger:  logger,
		running: make(map[string]bool),
	}
}

func (rec *recorder) Kinds() []string {
	kinds := make([]string, 0, len(rec.jobs))
	for _, kind := range AllKinds {
		if _, ok := rec.jobs[kind]; ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

func (rec *recorder) Run(ctx context.Context, kind string) (Run, error) {
	fn, ok := rec.jobs[kind]
	if !ok {
		return Run{}, ErrUnknownKind
	}
	return rec.Track(ctx, kind, fn)
}

func (rec *recorder) acquire(kind string) bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.running[kind] {
		return false
	}
	rec.running[kind] = true
	return true
}

func (rec *recorder) release(kind string) {
	rec.mu.Lock()
	delete(rec.running, kind)
	rec.mu.Unlock()
}

// Track records a Run around fn. The returned error is fn's error; the Run is returned either way.
func (rec *recorder) Track(ctx context.Context, kind string, fn SyncFunc) (Run, error) {
	if !rec.acquire(kind) {
		return Run{}, ErrAlreadyRunning
	}
	defer rec.release(kind)

	run, err := rec.repo.CreateRun(ctx, Run{
		Kind:      kind,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
		Errors:    []string{},
	})
	if err != nil {
		return Run{}, errors.Wrap(err, "creating sync run")
	}

	result, syncErr := fn(ctx)
	run.finish(result, syncErr, time.Now().UTC())

	// the run is stored even if ctx was cancelled mid-sync
	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if saved, err := rec.repo.UpdateRun(saveCtx, run); err != nil {
		rec.logger.Error("saving sync run", err, map[string]interface{}{"kind": kind})
	} else {
		run = saved
	}

	if syncErr != nil {
		rec.logger.Error("sync failed", syncErr, map[string]interface{}{"kind": kind})
	}
	return run, syncErr
}

func (rec *recorder) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Run, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultQueryLimit
	}
	ordering = core.CleanOrdering(ordering, Orderings)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "started_at"}}
	}
	return rec.repo.QueryRuns(ctx, filter, ordering)
}
