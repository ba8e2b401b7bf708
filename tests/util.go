// Package testutil wires the services on the in-memory storage, with fake WTL & Google Forms APIs.
package testutil

import (
	"context"
	"io"
	"strconv"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/wtlassist/backend/apps/shared"
	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/course"
	"github.com/wtlassist/backend/core/survey"
	"github.com/wtlassist/backend/core/syncrun"
	"github.com/wtlassist/backend/core/thread"
	"github.com/wtlassist/backend/core/user"
	"github.com/wtlassist/backend/core/wtl"
	emailsvc "github.com/wtlassist/backend/services/email"
	logsvc "github.com/wtlassist/backend/services/logger"
	inmemdb "github.com/wtlassist/backend/storage/database/inmem"
)

func NewLogger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(io.Discard, conf)
}

// App holds services sharing one in-memory database.
type App struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	DB         *inmemdb.DB
	WTL        *FakeWTL
	Forms      *FakeForms

	UserRepo   user.Repository
	CourseRepo course.Repository
	ThreadRepo thread.Repository
	SurveyRepo survey.Repository

	Users    user.Service
	Courses  course.Service
	Threads  thread.Service
	Surveys  survey.Service
	Recorder syncrun.Recorder
}

func NewApp(t *testing.T) *App {
	t.Helper()
	conf := core.NewTestConfig()
	conf.GoogleForms.FormIDs = []string{"form-1"}
	logger := NewLogger(conf)
	core.ParseEmailTemplates(conf, logger)
	emailsvc.ResetSentMessages()

	db := inmemdb.Open()
	tx := inmemdb.NewTransactor()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)

	validate, translator := shared.NewValidator()
	app := &App{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		DB:         db,
		WTL:        NewFakeWTL(),
		Forms:      NewFakeForms(),
		UserRepo:   inmemdb.NewUserRepository(db),
		CourseRepo: inmemdb.NewCourseRepository(db),
		ThreadRepo: inmemdb.NewThreadRepository(db),
		SurveyRepo: inmemdb.NewSurveyRepository(db),
	}
	app.Users = user.NewService(tx, app.UserRepo, mailSvc, app.WTL, conf, logger)
	app.Courses = course.NewService(tx, app.CourseRepo, app.Users, app.WTL, conf, logger)
	app.Threads = thread.NewService(tx, app.ThreadRepo, app.Users, app.Courses)
	app.Surveys = survey.NewService(app.SurveyRepo, app.Forms, app.Threads, app.Users, mailSvc, conf, logger)
	app.Recorder = shared.NewRecorder(inmemdb.NewSyncRunRepository(db), &shared.Services{
		Users:   app.Users,
		Courses: app.Courses,
		Threads: app.Threads,
		Surveys: app.Surveys,
	}, logger)
	return app
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// FakeWTL serves WTL records from memory. Errs forces errors per method name.
type FakeWTL struct {
	mu      sync.Mutex
	Users   []wtl.User
	Courses []wtl.Course
	Lessons map[int64][]wtl.Lesson
	Members map[int64][]wtl.Member
	Errs    map[string]error
	Calls   map[string]int
}

var _ wtl.API = (*FakeWTL)(nil)

func NewFakeWTL() *FakeWTL {
	return &FakeWTL{
		Lessons: make(map[int64][]wtl.Lesson),
		Members: make(map[int64][]wtl.Member),
		Errs:    make(map[string]error),
		Calls:   make(map[string]int),
	}
}

func (f *FakeWTL) call(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls[name]++
	return f.Errs[name]
}

func page[T any](items []T, page, size int) []T {
	start := (page - 1) * size
	if page < 1 || start >= len(items) {
		return []T{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return append([]T{}, items[start:end]...)
}

func (f *FakeWTL) Ping(_ context.Context) error { return f.call("Ping") }

func (f *FakeWTL) ListUsers(_ context.Context, p, size int) ([]wtl.User, error) {
	if err := f.call("ListUsers"); err != nil {
		return nil, err
	}
	return page(f.Users, p, size), nil
}

func (f *FakeWTL) ListCourses(_ context.Context, p, size int) ([]wtl.Course, error) {
	if err := f.call("ListCourses"); err != nil {
		return nil, err
	}
	return page(f.Courses, p, size), nil
}

func (f *FakeWTL) ListLessons(_ context.Context, courseID int64) ([]wtl.Lesson, error) {
	if err := f.call("ListLessons"); err != nil {
		return nil, err
	}
	return append([]wtl.Lesson{}, f.Lessons[courseID]...), nil
}

func (f *FakeWTL) ListCourseUsers(_ context.Context, courseID int64) ([]wtl.Member, error) {
	if err := f.call("ListCourseUsers"); err != nil {
		return nil, err
	}
	members, ok := f.Members[courseID]
	if !ok {
		return nil, wtl.ErrNotFound
	}
	return append([]wtl.Member{}, members...), nil
}

// FakeForms serves Google forms & responses from memory, PageSize responses per page.
type FakeForms struct {
	Forms     map[string]survey.RemoteForm
	Responses map[string][]survey.RemoteResponse
	Err       error
}

var _ survey.FormsAPI = (*FakeForms)(nil)

func NewFakeForms() *FakeForms {
	return &FakeForms{
		Forms:     make(map[string]survey.RemoteForm),
		Responses: make(map[string][]survey.RemoteResponse),
	}
}

func (f *FakeForms) GetForm(_ context.Context, formID string) (survey.RemoteForm, error) {
	if f.Err != nil {
		return survey.RemoteForm{}, f.Err
	}
	form, ok := f.Forms[formID]
	if !ok {
		return survey.RemoteForm{}, survey.ErrNotFound
	}
	return form, nil
}

// ListResponses uses the page number as token.
func (f *FakeForms) ListResponses(_ context.Context, formID, pageToken string, pageSize int) (survey.ResponsePage, error) {
	if f.Err != nil {
		return survey.ResponsePage{}, f.Err
	}
	p := 1
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil {
			return survey.ResponsePage{}, err
		}
		p = n
	}
	all := f.Responses[formID]
	rp := survey.ResponsePage{Responses: page(all, p, pageSize)}
	if p*pageSize < len(all) {
		rp.NextPageToken = strconv.Itoa(p + 1)
	}
	return rp, nil
}
