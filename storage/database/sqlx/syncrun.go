package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/syncrun"
)

const syncRunsTable = "sync_runs"

var syncRunColumns = []string{
	"id", "kind", "status", "started_at", "finished_at", "created", "updated", "skipped", "failed", "errors", "error",
}

type syncRunRow struct {
	ID         string         `db:"id"`
	Kind       string         `db:"kind"`
	Status     string         `db:"status"`
	StartedAt  time.Time      `db:"started_at"`
	FinishedAt null.Time      `db:"finished_at"`
	Created    int            `db:"created"`
	Updated    int            `db:"updated"`
	Skipped    int            `db:"skipped"`
	Failed     int            `db:"failed"`
	Errors     pq.StringArray `db:"errors"`
	Error      string         `db:"error"`
}

func (r syncRunRow) run() syncrun.Run {
	errs := []string(r.Errors)
	if errs == nil {
		errs = []string{}
	}
	return syncrun.Run{
		ID:         r.ID,
		Kind:       r.Kind,
		Status:     r.Status,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: utcPtr(r.FinishedAt),
		Created:    r.Created,
		Updated:    r.Updated,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Errors:     errs,
		Error:      r.Error,
	}
}

func syncRunValues(r syncrun.Run) map[string]interface{} {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return map[string]interface{}{
		"kind":        r.Kind,
		"status":      r.Status,
		"started_at":  r.StartedAt.UTC(),
		"finished_at": null.TimeFromPtr(r.FinishedAt),
		"created":     r.Created,
		"updated":     r.Updated,
		"skipped":     r.Skipped,
		"failed":      r.Failed,
		"errors":      pq.StringArray(errs),
		"error":       r.Error,
	}
}

type syncRunRepository struct {
	baseRepository
}

var _ syncrun.Repository = (*syncRunRepository)(nil) // interface compliance check

func NewSyncRunRepository(exec core.DBExecutor) syncrun.Repository {
	return &syncRunRepository{baseRepository{exec: exec}}
}

func (repo syncRunRepository) CreateRun(ctx context.Context, r syncrun.Run, exec ...core.DBExecutor) (syncrun.Run, error) {
	q := psql.Insert(syncRunsTable).
		SetMap(syncRunValues(r)).
		Suffix("RETURNING " + strings.Join(syncRunColumns, ", "))

	row, err := selectOne[syncRunRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return syncrun.Run{}, errors.Wrap(err, "inserting sync run")
	}
	return row.run(), nil
}

func (repo syncRunRepository) UpdateRun(ctx context.Context, r syncrun.Run, exec ...core.DBExecutor) (syncrun.Run, error) {
	if !isUUID(r.ID) {
		return syncrun.Run{}, syncrun.ErrRunNotFound
	}
	q := psql.Update(syncRunsTable).
		SetMap(syncRunValues(r)).
		Where(sq.Eq{"id": r.ID}).
		Suffix("RETURNING " + strings.Join(syncRunColumns, ", "))

	row, err := selectOne[syncRunRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return syncrun.Run{}, trapNoRows(err, syncrun.ErrRunNotFound, "updating sync run")
	}
	return row.run(), nil
}

func (repo syncRunRepository) QueryRuns(ctx context.Context, filter *syncrun.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]syncrun.Run, error) {
	q := psql.Select(syncRunColumns...).From(syncRunsTable)
	if filter != nil {
		if filter.Kind != "" {
			q = q.Where(sq.Eq{"kind": filter.Kind})
		}
		if filter.Status != "" {
			q = q.Where(sq.Eq{"status": filter.Status})
		}
		if filter.Limit > 0 {
			q = q.Limit(uint64(filter.Limit))
		}
	}
	q = applyOrdering(q, ordering, "started_at DESC")

	rows, err := selectAll[syncRunRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return nil, errors.Wrap(err, "querying sync runs")
	}
	runs := make([]syncrun.Run, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, r.run())
	}
	return runs, nil
}
