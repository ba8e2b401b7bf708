package survey

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core"
)

const (
	defaultSyncPageSize = 100
	maxResponsePages    = 1000
)

// SyncAll syncs every configured form. A form that fails is counted and the others still run.
func (svc *service) SyncAll(ctx context.Context) (core.SyncResult, error) {
	var result core.SyncResult
	if svc.forms == nil {
		return result, ErrFormsDisabled
	}
	for _, formID := range svc.conf.GoogleForms.FormIDs {
		res, err := svc.SyncForm(ctx, formID)
		result.Merge(res)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			svc.logger.Error("syncing survey form", err, map[string]interface{}{"google_form_id": formID})
			result.Fail(errors.Wrapf(err, "form %s", formID))
		}
	}
	return result, nil
}

// SyncForm mirrors a Google form, its questions and all its responses, then links unlinked
// responses to threads and notifies the owners of newly linked threads.
func (svc *service) SyncForm(ctx context.Context, googleFormID string) (core.SyncResult, error) {
	var result core.SyncResult
	if svc.forms == nil {
		return result, ErrFormsDisabled
	}
	googleFormID = strings.TrimSpace(googleFormID)
	if googleFormID == "" {
		return result, ErrNotFound
	}

	remote, err := svc.forms.GetForm(ctx, googleFormID)
	if err != nil {
		return result, errors.Wrap(err, "fetching form")
	}

	now := nowUTC()
	form, _, err := svc.repo.UpsertForm(ctx, Form{
		GoogleFormID: googleFormID,
		Title:        core.CleanString(remote.Title),
		Description:  strings.TrimSpace(remote.Description),
		ResponderURI: remote.ResponderURI,
		LastSyncedAt: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return result, errors.Wrap(err, "upserting form")
	}

	questions := make([]Question, 0, len(remote.Questions))
	titles := make(map[string]string, len(remote.Questions))
	for i, rq := range remote.Questions {
		if rq.ID == "" {
			continue
		}
		titles[rq.ID] = core.CleanString(rq.Title)
		questions = append(questions, Question{
			FormID:     form.ID,
			QuestionID: rq.ID,
			Title:      titles[rq.ID],
			Kind:       rq.Kind,
			Position:   i + 1,
		})
	}
	if err = svc.repo.ReplaceQuestions(ctx, form.ID, questions); err != nil {
		return result, errors.Wrap(err, "saving questions")
	}
	form.Questions = questions

	size := svc.conf.GoogleForms.PageSize
	if size <= 0 {
		size = defaultSyncPageSize
	}

	var pageToken string
	for page := 1; page <= maxResponsePages; page++ {
		if err = ctx.Err(); err != nil {
			return result, err
		}

		rp, err := svc.forms.ListResponses(ctx, googleFormID, pageToken, size)
		if err != nil {
			return result, errors.Wrapf(err, "listing responses (page %d)", page)
		}
		for _, rr := range rp.Responses {
			svc.syncResponse(ctx, form, titles, rr, &result)
		}

		if rp.NextPageToken == "" || rp.NextPageToken == pageToken {
			break
		}
		pageToken = rp.NextPageToken
	}

	svc.logger.Info("survey form synced", map[string]interface{}{"google_form_id": googleFormID, "result": result})
	return result, nil
}

func (svc *service) syncResponse(ctx context.Context, form Form, titles map[string]string, rr RemoteResponse, result *core.SyncResult) {
	if rr.ID == "" {
		result.Skipped++
		return
	}

	now := nowUTC()
	r, created, err := svc.repo.UpsertResponse(ctx, Response{
		FormID:           form.ID,
		GoogleResponseID: rr.ID,
		RespondentEmail:  core.CleanString(rr.RespondentEmail, true /* lower */),
		SubmittedAt:      rr.SubmittedAt.UTC(),
		Answers:          mapAnswers(form.Questions, titles, rr.Answers),
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		svc.logger.Warn("upserting survey response", err, map[string]interface{}{"google_response_id": rr.ID})
		result.Fail(errors.Wrapf(err, "response %s", rr.ID))
		return
	}
	if created {
		result.Created++
	} else {
		result.Updated++
	}

	if r.IsLinked() {
		return
	}
	threadID, err := svc.repo.LinkResponseToThread(ctx, r.ID)
	if err != nil {
		svc.logger.Warn("linking survey response", err, map[string]interface{}{"response_id": r.ID})
		return
	}
	if threadID != "" {
		svc.notifyLinked(ctx, form, threadID)
	}
}

// mapAnswers orders answers like the form questions; answers to unknown questions come last, sorted by id.
func mapAnswers(questions []Question, titles map[string]string, values map[string][]string) []Answer {
	answers := make([]Answer, 0, len(values))
	done := make(map[string]bool, len(values))
	for _, q := range questions {
		if vals, ok := values[q.QuestionID]; ok {
			answers = append(answers, Answer{QuestionID: q.QuestionID, Question: titles[q.QuestionID], Values: nonNil(vals)})
			done[q.QuestionID] = true
		}
	}

	unknown := make([]string, 0)
	for id := range values {
		if !done[id] {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		answers = append(answers, Answer{QuestionID: id, Values: nonNil(values[id])})
	}
	return answers
}

func nonNil(vals []string) []string {
	if vals == nil {
		return []string{}
	}
	return vals
}
