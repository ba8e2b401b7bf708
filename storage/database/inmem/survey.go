package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/survey"
	"github.com/wtlassist/backend/core/thread"
)

type surveyRepository struct {
	db *DB
}

var _ survey.Repository = (*surveyRepository)(nil)

func NewSurveyRepository(db *DB) survey.Repository {
	return &surveyRepository{db: db}
}

func copyResponse(r *survey.Response) survey.Response {
	out := *r
	out.Answers = append([]survey.Answer{}, r.Answers...)
	return out
}

func (repo *surveyRepository) UpsertForm(_ context.Context, f survey.Form, _ ...core.DBExecutor) (survey.Form, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	f.Questions = nil
	for _, existing := range repo.db.forms {
		if existing.GoogleFormID == f.GoogleFormID {
			f.ID = existing.ID
			f.CreatedAt = existing.CreatedAt
			*existing = f
			return f, false, nil
		}
	}
	f.ID = uuid.New().String()
	stored := f
	repo.db.forms[f.ID] = &stored
	return f, true, nil
}

func (repo *surveyRepository) ReplaceQuestions(_ context.Context, formID string, questions []survey.Question, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.forms[formID]; !ok {
		return survey.ErrNotFound
	}
	repo.db.questions[formID] = append([]survey.Question{}, questions...)
	return nil
}

func (repo *surveyRepository) QueryForms(_ context.Context, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]survey.Form, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	forms := make([]survey.Form, 0, len(repo.db.forms))
	for _, f := range repo.db.forms {
		forms = append(forms, *f)
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "title", Ascending: true}}
	}
	orderBy(forms, ordering, func(a, b survey.Form, column string) int {
		switch column {
		case "title":
			return cmpStrings(a.Title, b.Title)
		case "last_synced_at":
			return cmpTimes(a.LastSyncedAt, b.LastSyncedAt)
		case "created_at":
			return cmpTimes(a.CreatedAt, b.CreatedAt)
		}
		return 0
	})
	return forms, nil
}

func (repo *surveyRepository) GetForm(_ context.Context, filter survey.GetFilter, _ ...core.DBExecutor) (survey.Form, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var form *survey.Form
	switch {
	case filter.ID != "":
		form = repo.db.forms[filter.ID]
	case filter.GoogleFormID != "":
		for _, f := range repo.db.forms {
			if f.GoogleFormID == filter.GoogleFormID {
				form = f
				break
			}
		}
	}
	if form == nil {
		return survey.Form{}, survey.ErrNotFound
	}
	out := *form
	out.Questions = append([]survey.Question{}, repo.db.questions[form.ID]...)
	return out, nil
}

func (repo *surveyRepository) UpsertResponse(_ context.Context, r survey.Response, _ ...core.DBExecutor) (survey.Response, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.forms[r.FormID]; !ok {
		return survey.Response{}, false, survey.ErrNotFound
	}
	for _, existing := range repo.db.responses {
		if existing.GoogleResponseID == r.GoogleResponseID {
			existing.FormID = r.FormID
			existing.RespondentEmail = r.RespondentEmail
			existing.SubmittedAt = r.SubmittedAt
			existing.Answers = append([]survey.Answer{}, r.Answers...)
			existing.UpdatedAt = r.UpdatedAt
			return copyResponse(existing), false, nil
		}
	}
	r.ID = uuid.New().String()
	r.ThreadID = ""
	r.LinkedAt = nil
	stored := copyResponse(&r)
	repo.db.responses[r.ID] = &stored
	return copyResponse(&stored), true, nil
}

func (repo *surveyRepository) QueryResponses(_ context.Context, filter *survey.ResponseFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]survey.Response, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	responses := make([]survey.Response, 0)
	for _, r := range repo.db.responses {
		if filter != nil {
			if filter.FormID != "" && r.FormID != filter.FormID {
				continue
			}
			if filter.ThreadID != "" && r.ThreadID != filter.ThreadID {
				continue
			}
			if filter.Email != "" && !strings.EqualFold(r.RespondentEmail, filter.Email) {
				continue
			}
			if filter.Linked != nil && r.IsLinked() != *filter.Linked {
				continue
			}
			if !filter.SubmittedFrom.IsZero() && r.SubmittedAt.Before(filter.SubmittedFrom) {
				continue
			}
			if !filter.SubmittedTo.IsZero() && r.SubmittedAt.After(filter.SubmittedTo) {
				continue
			}
		}
		responses = append(responses, copyResponse(r))
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "submitted_at"}}
	}
	orderBy(responses, ordering, func(a, b survey.Response, column string) int {
		switch column {
		case "submitted_at":
			return cmpTimes(a.SubmittedAt, b.SubmittedAt)
		case "respondent_email":
			return cmpStrings(a.RespondentEmail, b.RespondentEmail)
		case "linked_at":
			return cmpTimePtrs(a.LinkedAt, b.LinkedAt)
		}
		return 0
	})
	return responses, nil
}

func (repo *surveyRepository) GetResponse(_ context.Context, id string, _ ...core.DBExecutor) (survey.Response, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.responses[id]; ok {
		return copyResponse(r), nil
	}
	return survey.Response{}, survey.ErrResponseNotFound
}

// LinkResponseToThread mirrors the link_survey_response_to_thread SQL function.
func (repo *surveyRepository) LinkResponseToThread(_ context.Context, responseID string, _ ...core.DBExecutor) (string, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r, ok := repo.db.responses[responseID]
	if !ok {
		return "", nil
	}
	if r.ThreadID != "" {
		return r.ThreadID, nil
	}
	email := strings.ToLower(r.RespondentEmail)
	if email == "" {
		return "", nil
	}

	var latest *thread.Thread
	for _, t := range repo.db.threads {
		owner, ok := repo.db.users[t.OwnerID]
		if !ok || owner.Email != email || !owner.IsActive || t.Status != thread.StatusOpen {
			continue
		}
		if latest == nil || t.UpdatedAt.After(latest.UpdatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return "", nil
	}

	now := time.Now().UTC()
	r.ThreadID = latest.ID
	r.LinkedAt = &now
	r.UpdatedAt = now
	return latest.ID, nil
}

func (repo *surveyRepository) SetResponseThread(_ context.Context, responseID, threadID string, _ ...core.DBExecutor) (survey.Response, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r, ok := repo.db.responses[responseID]
	if !ok {
		return survey.Response{}, survey.ErrResponseNotFound
	}
	now := time.Now().UTC()
	if threadID == "" {
		r.ThreadID = ""
		r.LinkedAt = nil
	} else {
		if _, ok = repo.db.threads[threadID]; !ok {
			return survey.Response{}, thread.ErrNotFound
		}
		r.ThreadID = threadID
		r.LinkedAt = &now
	}
	r.UpdatedAt = now
	return copyResponse(r), nil
}
