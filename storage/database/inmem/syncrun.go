package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/syncrun"
)

type syncRunRepository struct {
	db *DB
}

var _ syncrun.Repository = (*syncRunRepository)(nil)

func NewSyncRunRepository(db *DB) syncrun.Repository {
	return &syncRunRepository{db: db}
}

func (repo *syncRunRepository) CreateRun(_ context.Context, r syncrun.Run, _ ...core.DBExecutor) (syncrun.Run, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r.ID = uuid.New().String()
	stored := r
	repo.db.runs[r.ID] = &stored
	return r, nil
}

func (repo *syncRunRepository) UpdateRun(_ context.Context, r syncrun.Run, _ ...core.DBExecutor) (syncrun.Run, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.runs[r.ID]; !ok {
		return syncrun.Run{}, syncrun.ErrRunNotFound
	}
	stored := r
	repo.db.runs[r.ID] = &stored
	return r, nil
}

func (repo *syncRunRepository) QueryRuns(_ context.Context, filter *syncrun.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]syncrun.Run, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	runs := make([]syncrun.Run, 0)
	for _, r := range repo.db.runs {
		if filter != nil {
			if filter.Kind != "" && r.Kind != filter.Kind {
				continue
			}
			if filter.Status != "" && r.Status != filter.Status {
				continue
			}
		}
		runs = append(runs, *r)
	}
	orderBy(runs, ordering, func(a, b syncrun.Run, column string) int {
		switch column {
		case "started_at":
			return cmpTimes(a.StartedAt, b.StartedAt)
		case "finished_at":
			return cmpTimePtrs(a.FinishedAt, b.FinishedAt)
		case "kind":
			return cmpStrings(a.Kind, b.Kind)
		}
		return 0
	})
	if filter != nil && filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}
