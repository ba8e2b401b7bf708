// Package sqlxrepos implements the repositories on postgres with sqlx & squirrel.
package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wtlassist/backend/core"
)

const uniqueViolation = "23505"

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	errNoRows = sql.ErrNoRows
)

type baseRepository struct {
	exec core.DBExecutor
}

func (repo baseRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

// selectAll runs q and scans every row into a T.
func selectAll[T any](ctx context.Context, exec core.DBExecutor, q sq.Sqlizer) ([]T, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]T, 0)
	if err = sqlx.StructScan(rows, &out); err != nil {
		return nil, errors.Wrap(err, "scanning rows")
	}
	return out, nil
}

// selectOne runs q and scans the first row into a T; sql.ErrNoRows when there is none.
func selectOne[T any](ctx context.Context, exec core.DBExecutor, q sq.Sqlizer) (T, error) {
	var zero T
	rows, err := selectAll[T](ctx, exec, q)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, sql.ErrNoRows
	}
	return rows[0], nil
}

func execute(ctx context.Context, exec core.DBExecutor, q sq.Sqlizer) (int, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building query")
	}
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// trapNoRows maps sql.ErrNoRows to notFound and wraps other errors.
func trapNoRows(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// constraintOf returns the violated unique constraint, if err is a unique violation.
func constraintOf(err error) (string, bool) {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func applyOrdering(q sq.SelectBuilder, ordering []core.DBOrdering, fallback ...string) sq.SelectBuilder {
	if len(ordering) == 0 {
		return q.OrderBy(fallback...)
	}
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return q.OrderBy(clauses...)
}

// validUUIDs drops ids that are not UUIDs; postgres would reject the whole query.
func validUUIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	return valid
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func utcOrZero(t null.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
