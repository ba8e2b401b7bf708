// Package wtl holds the records served by the external "Web To Learn" API, as the sync services see them.
package wtl

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when WTL answers 404 for a resource.
var ErrNotFound = errors.New("wtl resource not found")

type (
	User struct {
		ID        int64
		Email     string
		Username  string
		FirstName string
		LastName  string
		Role      string
		Active    bool
	}

	Course struct {
		ID          int64
		Title       string
		Description string
		Status      string
		StartsAt    *time.Time
		EndsAt      *time.Time
	}

	Lesson struct {
		ID          int64
		CourseID    int64
		Title       string
		Description string
		Position    int
		PublishedAt *time.Time
	}

	// Member is a user enrolled in a course.
	Member struct {
		UserID int64
		Role   string
	}

	// API is the subset of the WTL REST API the sync services use.
	// Paginated calls are 1-indexed; an empty or short page means there is nothing left.
	API interface {
		Ping(ctx context.Context) error
		ListUsers(ctx context.Context, page, size int) ([]User, error)
		ListCourses(ctx context.Context, page, size int) ([]Course, error)
		ListLessons(ctx context.Context, courseID int64) ([]Lesson, error)
		ListCourseUsers(ctx context.Context, courseID int64) ([]Member, error)
	}
)

// FullName joins first & last names.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}
