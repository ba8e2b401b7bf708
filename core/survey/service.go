package survey

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/thread"
	"github.com/wtlassist/backend/core/user"
)

var (
	// errors
	ErrNotFound         = errors.New("survey form not found")
	ErrResponseNotFound = errors.New("survey response not found")
	ErrFormsDisabled    = errors.New("google forms integration is not configured")
)

type (
	// FormsAPI is the subset of the Google Forms API the survey sync uses.
	FormsAPI interface {
		GetForm(ctx context.Context, formID string) (RemoteForm, error)
		// ListResponses returns one page of responses; an empty NextPageToken means it is the last one.
		ListResponses(ctx context.Context, formID, pageToken string, pageSize int) (ResponsePage, error)
	}

	Repository interface {
		// UpsertForm inserts or updates a form by its Google id and reports whether it was created.
		UpsertForm(ctx context.Context, f Form, exec ...core.DBExecutor) (Form, bool, error)
		// ReplaceQuestions sets the questions of a form.
		ReplaceQuestions(ctx context.Context, formID string, questions []Question, exec ...core.DBExecutor) error
		QueryForms(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Form, error)
		// GetForm returns the form with its questions ordered by position.
		GetForm(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Form, error)

		// UpsertResponse inserts or updates a response by its Google id and reports whether it was created.
		// The thread link of an existing response is left untouched.
		UpsertResponse(ctx context.Context, r Response, exec ...core.DBExecutor) (Response, bool, error)
		QueryResponses(ctx context.Context, filter *ResponseFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Response, error)
		GetResponse(ctx context.Context, id string, exec ...core.DBExecutor) (Response, error)
		// LinkResponseToThread runs the `link_survey_response_to_thread` DB function.
		// It returns the ID of the thread the response is linked to, or "" when no thread matched.
		LinkResponseToThread(ctx context.Context, responseID string, exec ...core.DBExecutor) (string, error)
		// SetResponseThread links a response to threadID, or unlinks it when threadID is "".
		SetResponseThread(ctx context.Context, responseID, threadID string, exec ...core.DBExecutor) (Response, error)
	}

	Service interface {
		SyncForm(ctx context.Context, googleFormID string) (core.SyncResult, error)
		SyncAll(ctx context.Context) (core.SyncResult, error)
		QueryForms(ctx context.Context, ordering []core.DBOrdering) ([]Form, error)
		GetForm(ctx context.Context, id string) (Form, error)
		QueryResponses(ctx context.Context, filter *ResponseFilter, ordering []core.DBOrdering) ([]Response, error)
		ResponsesForThread(ctx context.Context, actor user.User, threadID string) ([]Response, error)
		LinkResponse(ctx context.Context, responseID, threadID string) (Response, error)
		UnlinkResponse(ctx context.Context, responseID string) (Response, error)
	}

	service struct {
		repo      Repository
		forms     FormsAPI
		threadSvc thread.Service
		usrSvc    user.Service
		mailSvc   core.EmailService
		conf      *core.Config
		logger    core.Logger
	}
)

var _ Service = (*service)(nil)

// NewService returns the survey service. forms may be nil when Google Forms is not configured;
// syncing then fails with ErrFormsDisabled.
func NewService(
	repo Repository,
	forms FormsAPI,
	threadSvc thread.Service,
	usrSvc user.Service,
	mailSvc core.EmailService,
	conf *core.Config,
	logger core.Logger,
) Service {
	return &service{
		repo:      repo,
		forms:     forms,
		threadSvc: threadSvc,
		usrSvc:    usrSvc,
		mailSvc:   mailSvc,
		conf:      conf,
		logger:    logger,
	}
}

func (svc *service) QueryForms(ctx context.Context, ordering []core.DBOrdering) ([]Form, error) {
	return svc.repo.QueryForms(ctx, core.CleanOrdering(ordering, FormOrderings))
}

func (svc *service) GetForm(ctx context.Context, id string) (Form, error) {
	if id == "" {
		return Form{}, ErrNotFound
	}
	return svc.repo.GetForm(ctx, GetFilter{ID: id})
}

func (svc *service) QueryResponses(ctx context.Context, filter *ResponseFilter, ordering []core.DBOrdering) ([]Response, error) {
	if filter != nil && filter.FormID != "" {
		if _, err := svc.GetForm(ctx, filter.FormID); err != nil {
			return nil, err
		}
	}
	if filter != nil {
		filter.Email = core.CleanString(filter.Email, true /* lower */)
	}
	return svc.repo.QueryResponses(ctx, filter, core.CleanOrdering(ordering, ResponseOrderings))
}

func (svc *service) ResponsesForThread(ctx context.Context, actor user.User, threadID string) ([]Response, error) {
	t, err := svc.threadSvc.GetThread(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryResponses(ctx, &ResponseFilter{ThreadID: t.ID}, []core.DBOrdering{{Field: "submitted_at"}})
}

func (svc *service) getResponse(ctx context.Context, id string) (Response, error) {
	if id == "" {
		return Response{}, ErrResponseNotFound
	}
	return svc.repo.GetResponse(ctx, id)
}

func (svc *service) LinkResponse(ctx context.Context, responseID, threadID string) (Response, error) {
	r, err := svc.getResponse(ctx, responseID)
	if err != nil {
		return Response{}, err
	}
	t, err := svc.threadSvc.GetByID(ctx, threadID)
	if err != nil {
		if errors.Cause(err) == thread.ErrNotFound {
			return Response{}, core.NewValidationError(err, core.FieldError{Field: "thread_id", Error: "thread not found"})
		}
		return Response{}, errors.Wrap(err, "finding thread")
	}
	return svc.repo.SetResponseThread(ctx, r.ID, t.ID)
}

func (svc *service) UnlinkResponse(ctx context.Context, responseID string) (Response, error) {
	r, err := svc.getResponse(ctx, responseID)
	if err != nil {
		return Response{}, err
	}
	return svc.repo.SetResponseThread(ctx, r.ID, "")
}

type surveyLinkedData struct {
	Name        string
	FormTitle   string
	ThreadTitle string
	ThreadID    string
}

// notifyLinked emails the owner of the thread a response was linked to.
func (svc *service) notifyLinked(ctx context.Context, form Form, threadID string) {
	t, err := svc.threadSvc.GetByID(ctx, threadID)
	if err != nil {
		svc.logger.Warn("finding linked thread", err, map[string]interface{}{"thread_id": threadID})
		return
	}
	owner, err := svc.usrSvc.GetByID(ctx, t.OwnerID)
	if err != nil {
		svc.logger.Warn("finding thread owner", err, map[string]interface{}{"thread_id": threadID})
		return
	}
	if owner.Email == "" || !owner.IsActive {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: owner.Name, Address: owner.Email}},
		Subject:      "New survey response on your thread",
		TemplateName: "survey_linked",
		TemplateData: surveyLinkedData{
			Name:        owner.Name,
			FormTitle:   form.Title,
			ThreadTitle: t.Title,
			ThreadID:    t.ID,
		},
	})
}

func nowUTC() time.Time { return time.Now().UTC() }
