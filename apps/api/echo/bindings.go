package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core"
)

const orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=a,-b`: a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

func bindOrdering(ctx echo.Context) []core.DBOrdering {
	ordering := new(Ordering)
	ordering.Bind(ctx)
	return ordering.Orderings
}

// queryParams reads typed query parameters. The first parsing error is kept in err.
type queryParams struct {
	ctx echo.Context
	err error
}

func newQueryParams(ctx echo.Context) *queryParams {
	return &queryParams{ctx: ctx}
}

func (qp *queryParams) String(name string) string {
	return strings.TrimSpace(qp.ctx.QueryParam(name))
}

// Strings accepts both `?name=a&name=b` and `?name=a,b`.
func (qp *queryParams) Strings(name string) []string {
	var out []string
	for _, val := range qp.ctx.QueryParams()[name] {
		for _, item := range strings.Split(val, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func (qp *queryParams) Bool(name string) *bool {
	val := qp.String(name)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		qp.fail(name, err)
		return nil
	}
	return &b
}

func (qp *queryParams) Int(name string) int {
	val := qp.String(name)
	if val == "" {
		return 0
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		qp.fail(name, err)
		return 0
	}
	return i
}

// Time accepts RFC 3339 timestamps and plain dates.
func (qp *queryParams) Time(name string) time.Time {
	val := qp.String(name)
	if val == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, val); err == nil {
			return t.UTC()
		}
	}
	qp.fail(name, errors.Errorf("invalid time %q", val))
	return time.Time{}
}

func (qp *queryParams) fail(name string, err error) {
	if qp.err == nil {
		qp.err = core.NewValidationError(err, core.FieldError{Field: name, Error: "invalid value"})
	}
}

func (qp *queryParams) Err() error { return qp.err }
