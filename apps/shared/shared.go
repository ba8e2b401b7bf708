// Package shared wires the services the API server and the admin CLI have in common.
package shared

import (
	"context"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/course"
	"github.com/wtlassist/backend/core/survey"
	"github.com/wtlassist/backend/core/syncrun"
	"github.com/wtlassist/backend/core/thread"
	"github.com/wtlassist/backend/core/user"
	"github.com/wtlassist/backend/core/wtl"
	emailsvc "github.com/wtlassist/backend/services/email"
	gformsvc "github.com/wtlassist/backend/services/gforms"
	wtlsvc "github.com/wtlassist/backend/services/wtl"
	"github.com/wtlassist/backend/storage/database"
	sqlxrepos "github.com/wtlassist/backend/storage/database/sqlx"
)

// Services groups the app services built on one database.
type Services struct {
	Users    user.Service
	Courses  course.Service
	Threads  thread.Service
	Surveys  survey.Service
	Recorder syncrun.Recorder
}

// NewValidator returns a validator with every custom validation & translation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	thread.InitValidators(validate, translator)
	return validate, translator
}

// NewEmailService sends through Sendgrid when an API key is configured and prints emails otherwise.
func NewEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.SendgridApiKey == "" || conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// NewWTLAPI returns the WTL REST client behind a circuit breaker.
func NewWTLAPI(conf *core.Config, logger core.Logger) wtl.API {
	return wtlsvc.NewCircuitBreakerClient(wtlsvc.NewClient(conf.WTL), logger)
}

// NewFormsAPI returns nil when no Google credentials are configured; survey syncs then fail with survey.ErrFormsDisabled.
func NewFormsAPI(ctx context.Context, conf *core.Config) (survey.FormsAPI, error) {
	if conf.GoogleForms.CredentialsFile == "" {
		return nil, nil
	}
	client, err := gformsvc.NewClient(ctx, conf.GoogleForms)
	if err != nil {
		return nil, errors.Wrap(err, "creating Google Forms client")
	}
	return client, nil
}

// NewServices builds the services on the SQL repositories.
func NewServices(
	db core.DB,
	wtlAPI wtl.API,
	formsAPI survey.FormsAPI,
	mailSvc core.EmailService,
	conf *core.Config,
	logger core.Logger,
) *Services {
	tx := database.NewTransactor(db)

	svcs := new(Services)
	svcs.Users = user.NewService(tx, sqlxrepos.NewUserRepository(db), mailSvc, wtlAPI, conf, logger)
	svcs.Courses = course.NewService(tx, sqlxrepos.NewCourseRepository(db), svcs.Users, wtlAPI, conf, logger)
	svcs.Threads = thread.NewService(tx, sqlxrepos.NewThreadRepository(db), svcs.Users, svcs.Courses)
	svcs.Surveys = survey.NewService(sqlxrepos.NewSurveyRepository(db), formsAPI, svcs.Threads, svcs.Users, mailSvc, conf, logger)
	svcs.Recorder = NewRecorder(sqlxrepos.NewSyncRunRepository(db), svcs, logger)
	return svcs
}

// NewRecorder registers the sync jobs of svcs.
func NewRecorder(repo syncrun.Repository, svcs *Services, logger core.Logger) syncrun.Recorder {
	return syncrun.NewRecorder(repo, map[string]syncrun.SyncFunc{
		syncrun.KindUsers:   svcs.Users.SyncUsers,
		syncrun.KindCourses: svcs.Courses.SyncCourses,
		syncrun.KindSurveys: svcs.Surveys.SyncAll,
	}, logger)
}
