package syncrun

import (
	"time"

	"github.com/wtlassist/backend/core"
)

// Kinds
const (
	KindUsers   = "users"
	KindCourses = "courses"
	KindSurveys = "surveys"
)

// Statuses
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var AllKinds = []string{KindUsers, KindCourses, KindSurveys}

// Run is one execution of a sync job.
type Run struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"` // UTC
	FinishedAt *time.Time `json:"finished_at"`
	Created    int        `json:"created"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Errors     []string   `json:"errors"`
	Error      string     `json:"error"`
}

func (r *Run) finish(result core.SyncResult, err error, at time.Time) {
	r.FinishedAt = &at
	r.Created = result.Created
	r.Updated = result.Updated
	r.Skipped = result.Skipped
	r.Failed = result.Failed
	r.Errors = result.Errors
	if r.Errors == nil {
		r.Errors = []string{}
	}
	if err != nil {
		r.Status = StatusFailed
		r.Error = err.Error()
	} else {
		r.Status = StatusSucceeded
	}
}

type QueryFilter struct {
	Kind   string
	Status string
	Limit  int
}

// Orderings maps the fields runs can be ordered by to DB columns.
var Orderings = map[string]string{
	"started_at":  "started_at",
	"finished_at": "finished_at",
	"kind":        "kind",
}
