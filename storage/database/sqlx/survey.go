package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/survey"
)

const (
	formsTable     = "survey_forms"
	questionsTable = "survey_questions"
	responsesTable = "survey_responses"
)

var (
	formColumns     = []string{"id", "google_form_id", "title", "description", "responder_uri", "last_synced_at", "created_at", "updated_at"}
	questionColumns = []string{"form_id", "question_id", "title", "kind", "position"}
	responseColumns = []string{
		"id", "form_id", "google_response_id", "respondent_email", "submitted_at", "answers",
		"thread_id", "linked_at", "created_at", "updated_at",
	}
)

type formRow struct {
	ID           string    `db:"id"`
	GoogleFormID string    `db:"google_form_id"`
	Title        string    `db:"title"`
	Description  string    `db:"description"`
	ResponderURI string    `db:"responder_uri"`
	LastSyncedAt null.Time `db:"last_synced_at"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	Inserted     bool      `db:"inserted"`
}

func (r formRow) form() survey.Form {
	return survey.Form{
		ID:           r.ID,
		GoogleFormID: r.GoogleFormID,
		Title:        r.Title,
		Description:  r.Description,
		ResponderURI: r.ResponderURI,
		LastSyncedAt: utcOrZero(r.LastSyncedAt),
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type questionRow struct {
	FormID     string `db:"form_id"`
	QuestionID string `db:"question_id"`
	Title      string `db:"title"`
	Kind       string `db:"kind"`
	Position   int    `db:"position"`
}

type responseRow struct {
	ID               string      `db:"id"`
	FormID           string      `db:"form_id"`
	GoogleResponseID string      `db:"google_response_id"`
	RespondentEmail  string      `db:"respondent_email"`
	SubmittedAt      null.Time   `db:"submitted_at"`
	Answers          []byte      `db:"answers"`
	ThreadID         null.String `db:"thread_id"`
	LinkedAt         null.Time   `db:"linked_at"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
	Inserted         bool        `db:"inserted"`
}

func (r responseRow) response() (survey.Response, error) {
	answers := make([]survey.Answer, 0)
	if len(r.Answers) > 0 {
		if err := json.Unmarshal(r.Answers, &answers); err != nil {
			return survey.Response{}, errors.Wrapf(err, "decoding answers of response %s", r.ID)
		}
	}
	return survey.Response{
		ID:               r.ID,
		FormID:           r.FormID,
		GoogleResponseID: r.GoogleResponseID,
		RespondentEmail:  r.RespondentEmail,
		SubmittedAt:      utcOrZero(r.SubmittedAt),
		Answers:          answers,
		ThreadID:         r.ThreadID.String,
		LinkedAt:         utcPtr(r.LinkedAt),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}, nil
}

func responses(rows []responseRow) ([]survey.Response, error) {
	out := make([]survey.Response, 0, len(rows))
	for _, row := range rows {
		r, err := row.response()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

type surveyRepository struct {
	baseRepository
}

var _ survey.Repository = (*surveyRepository)(nil) // interface compliance check

func NewSurveyRepository(exec core.DBExecutor) survey.Repository {
	return &surveyRepository{baseRepository{exec: exec}}
}

func (repo surveyRepository) UpsertForm(ctx context.Context, f survey.Form, exec ...core.DBExecutor) (survey.Form, bool, error) {
	q := psql.Insert(formsTable).
		SetMap(map[string]interface{}{
			"google_form_id": f.GoogleFormID,
			"title":          f.Title,
			"description":    f.Description,
			"responder_uri":  f.ResponderURI,
			"last_synced_at": null.NewTime(f.LastSyncedAt.UTC(), !f.LastSyncedAt.IsZero()),
			"created_at":     f.CreatedAt.UTC(),
			"updated_at":     f.UpdatedAt.UTC(),
		}).
		Suffix(`ON CONFLICT (google_form_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			responder_uri = EXCLUDED.responder_uri,
			last_synced_at = EXCLUDED.last_synced_at,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + strings.Join(formColumns, ", ") + ", " + insertedColumn)

	row, err := selectOne[formRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return survey.Form{}, false, errors.Wrap(err, "upserting form")
	}
	return row.form(), row.Inserted, nil
}

func (repo surveyRepository) ReplaceQuestions(ctx context.Context, formID string, questions []survey.Question, exec ...core.DBExecutor) error {
	if !isUUID(formID) {
		return survey.ErrNotFound
	}
	e := repo.getExec(exec)
	if _, err := execute(ctx, e, psql.Delete(questionsTable).Where(sq.Eq{"form_id": formID})); err != nil {
		return errors.Wrap(err, "deleting questions")
	}
	if len(questions) == 0 {
		return nil
	}

	q := psql.Insert(questionsTable).Columns(questionColumns...)
	for _, question := range questions {
		q = q.Values(formID, question.QuestionID, question.Title, question.Kind, question.Position)
	}
	q = q.Suffix("ON CONFLICT (form_id, question_id) DO NOTHING")
	if _, err := execute(ctx, e, q); err != nil {
		return errors.Wrap(err, "inserting questions")
	}
	return nil
}

func (repo surveyRepository) QueryForms(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]survey.Form, error) {
	q := applyOrdering(psql.Select(formColumns...).From(formsTable), ordering, "title ASC")
	rows, err := selectAll[formRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return nil, errors.Wrap(err, "querying forms")
	}
	forms := make([]survey.Form, 0, len(rows))
	for _, r := range rows {
		forms = append(forms, r.form())
	}
	return forms, nil
}

func (repo surveyRepository) GetForm(ctx context.Context, filter survey.GetFilter, exec ...core.DBExecutor) (survey.Form, error) {
	q := psql.Select(formColumns...).From(formsTable).Limit(1)
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return survey.Form{}, survey.ErrNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.GoogleFormID != "":
		q = q.Where(sq.Eq{"google_form_id": filter.GoogleFormID})
	default:
		return survey.Form{}, survey.ErrNotFound
	}

	row, err := selectOne[formRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return survey.Form{}, trapNoRows(err, survey.ErrNotFound, "finding form")
	}
	form := row.form()

	qq := psql.Select(questionColumns...).From(questionsTable).
		Where(sq.Eq{"form_id": form.ID}).
		OrderBy("position ASC")
	questions, err := selectAll[questionRow](ctx, repo.getExec(exec), qq)
	if err != nil {
		return survey.Form{}, errors.Wrap(err, "querying questions")
	}
	form.Questions = make([]survey.Question, 0, len(questions))
	for _, qr := range questions {
		form.Questions = append(form.Questions, survey.Question(qr))
	}
	return form, nil
}

func (repo surveyRepository) UpsertResponse(ctx context.Context, r survey.Response, exec ...core.DBExecutor) (survey.Response, bool, error) {
	answers := r.Answers
	if answers == nil {
		answers = []survey.Answer{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return survey.Response{}, false, errors.Wrap(err, "encoding answers")
	}

	// thread_id & linked_at are only written by the linking functions
	q := psql.Insert(responsesTable).
		SetMap(map[string]interface{}{
			"form_id":            r.FormID,
			"google_response_id": r.GoogleResponseID,
			"respondent_email":   r.RespondentEmail,
			"submitted_at":       null.NewTime(r.SubmittedAt.UTC(), !r.SubmittedAt.IsZero()),
			"answers":            string(answersJSON),
			"created_at":         r.CreatedAt.UTC(),
			"updated_at":         r.UpdatedAt.UTC(),
		}).
		Suffix(`ON CONFLICT (google_response_id) DO UPDATE SET
			form_id = EXCLUDED.form_id,
			respondent_email = EXCLUDED.respondent_email,
			submitted_at = EXCLUDED.submitted_at,
			answers = EXCLUDED.answers,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + strings.Join(responseColumns, ", ") + ", " + insertedColumn)

	row, err := selectOne[responseRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return survey.Response{}, false, errors.Wrap(err, "upserting response")
	}
	resp, err := row.response()
	return resp, row.Inserted, err
}

func (repo surveyRepository) QueryResponses(ctx context.Context, filter *survey.ResponseFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]survey.Response, error) {
	q := psql.Select(responseColumns...).From(responsesTable)

	if filter != nil {
		if filter.FormID != "" {
			if !isUUID(filter.FormID) {
				return []survey.Response{}, nil
			}
			q = q.Where(sq.Eq{"form_id": filter.FormID})
		}
		if filter.ThreadID != "" {
			if !isUUID(filter.ThreadID) {
				return []survey.Response{}, nil
			}
			q = q.Where(sq.Eq{"thread_id": filter.ThreadID})
		}
		if filter.Email != "" {
			q = q.Where(sq.Eq{"lower(respondent_email)": strings.ToLower(filter.Email)})
		}
		if filter.Linked != nil {
			if *filter.Linked {
				q = q.Where(sq.NotEq{"thread_id": nil})
			} else {
				q = q.Where(sq.Eq{"thread_id": nil})
			}
		}
		if !filter.SubmittedFrom.IsZero() {
			q = q.Where(sq.GtOrEq{"submitted_at": filter.SubmittedFrom.UTC()})
		}
		if !filter.SubmittedTo.IsZero() {
			q = q.Where(sq.LtOrEq{"submitted_at": filter.SubmittedTo.UTC()})
		}
	}
	q = applyOrdering(q, ordering, "submitted_at DESC")

	rows, err := selectAll[responseRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return nil, errors.Wrap(err, "querying responses")
	}
	return responses(rows)
}

func (repo surveyRepository) GetResponse(ctx context.Context, id string, exec ...core.DBExecutor) (survey.Response, error) {
	if !isUUID(id) {
		return survey.Response{}, survey.ErrResponseNotFound
	}
	q := psql.Select(responseColumns...).From(responsesTable).Where(sq.Eq{"id": id}).Limit(1)
	row, err := selectOne[responseRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return survey.Response{}, trapNoRows(err, survey.ErrResponseNotFound, "finding response")
	}
	return row.response()
}

func (repo surveyRepository) LinkResponseToThread(ctx context.Context, responseID string, exec ...core.DBExecutor) (string, error) {
	if !isUUID(responseID) {
		return "", nil
	}
	var threadID null.String
	err := repo.getExec(exec).
		QueryRowContext(ctx, "SELECT link_survey_response_to_thread($1)", responseID).
		Scan(&threadID)
	if err != nil {
		return "", errors.Wrap(err, "linking response to thread")
	}
	return threadID.String, nil
}

func (repo surveyRepository) SetResponseThread(ctx context.Context, responseID, threadID string, exec ...core.DBExecutor) (survey.Response, error) {
	if !isUUID(responseID) {
		return survey.Response{}, survey.ErrResponseNotFound
	}
	q := psql.Update(responsesTable).Set("updated_at", sq.Expr("now()")).Where(sq.Eq{"id": responseID})
	if threadID == "" {
		q = q.Set("thread_id", nil).Set("linked_at", nil)
	} else {
		q = q.Set("thread_id", threadID).Set("linked_at", sq.Expr("now()"))
	}
	q = q.Suffix("RETURNING " + strings.Join(responseColumns, ", "))

	row, err := selectOne[responseRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return survey.Response{}, trapNoRows(err, survey.ErrResponseNotFound, "setting response thread")
	}
	return row.response()
}
