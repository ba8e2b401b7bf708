package course

import (
	"time"

	"github.com/wtlassist/backend/core"
)

type Course struct {
	ID           string     `json:"id"`
	WTLCourseID  int64      `json:"wtl_course_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	StartsAt     *time.Time `json:"starts_at"`
	EndsAt       *time.Time `json:"ends_at"`
	LastSyncedAt time.Time  `json:"last_synced_at"` // UTC
	CreatedAt    time.Time  `json:"created_at"`     // UTC
	UpdatedAt    time.Time  `json:"updated_at"`     // UTC
}

type Lesson struct {
	ID           string     `json:"id"`
	CourseID     string     `json:"course_id"`
	WTLLessonID  int64      `json:"wtl_lesson_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Position     int        `json:"position"`
	PublishedAt  *time.Time `json:"published_at"`
	LastSyncedAt time.Time  `json:"last_synced_at"` // UTC
	CreatedAt    time.Time  `json:"created_at"`     // UTC
	UpdatedAt    time.Time  `json:"updated_at"`     // UTC
}

// Enrollment is a user's membership in a course, as reported by WTL.
type Enrollment struct {
	CourseID  string    `json:"course_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type QueryFilter struct {
	Search string
	Status string
	UserID string // only courses the user is enrolled in
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// GetFilter selects a single course; the first non-empty field wins.
type GetFilter struct {
	ID          string
	WTLCourseID int64
}

// Orderings maps the fields courses can be ordered by to DB columns.
var Orderings = map[string]string{
	"title":      "title",
	"status":     "status",
	"starts_at":  "starts_at",
	"ends_at":    "ends_at",
	"created_at": "created_at",
	"updated_at": "updated_at",
}
