package inmemdb

import (
	"context"
	"strings"
	"sync"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/course"
	"github.com/wtlassist/backend/core/survey"
	"github.com/wtlassist/backend/core/syncrun"
	"github.com/wtlassist/backend/core/thread"
	"github.com/wtlassist/backend/core/user"
)

// DB is an in-memory stand-in for the postgres database, used by tests.
// Deletes cascade like the SQL schema does.
type DB struct {
	mu sync.RWMutex

	users         map[string]*user.User
	courses       map[string]*course.Course
	lessons       map[string]*course.Lesson
	enrollments   map[[2]string]*course.Enrollment // {course id, user id}
	threads       map[string]*thread.Thread
	threadLessons map[string]map[string]bool // {thread id: {lesson id}}
	notes         map[string]*thread.Note
	tasks         map[string]*thread.Task
	checklist     map[string]*thread.ChecklistItem
	forms         map[string]*survey.Form
	questions     map[string][]survey.Question // {form id: questions}
	responses     map[string]*survey.Response
	runs          map[string]*syncrun.Run
}

func Open() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		courses:       make(map[string]*course.Course),
		lessons:       make(map[string]*course.Lesson),
		enrollments:   make(map[[2]string]*course.Enrollment),
		threads:       make(map[string]*thread.Thread),
		threadLessons: make(map[string]map[string]bool),
		notes:         make(map[string]*thread.Note),
		tasks:         make(map[string]*thread.Task),
		checklist:     make(map[string]*thread.ChecklistItem),
		forms:         make(map[string]*survey.Form),
		questions:     make(map[string][]survey.Question),
		responses:     make(map[string]*survey.Response),
		runs:          make(map[string]*syncrun.Run),
	}
}

type transactor struct{}

var _ core.Transactor = transactor{}

// NewTransactor returns a Transactor that simply runs fn: the in-memory DB has no rollback.
func NewTransactor() core.Transactor { return transactor{} }

func (transactor) WithTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	return fn(nil)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
