// Package gformsvc reads Google Forms and their responses with the Forms API.
package gformsvc

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/api/forms/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/survey"
)

const maxPageSize = 5000

var _ survey.FormsAPI = (*Client)(nil) // interface compliance check

type Client struct {
	svc *forms.Service
}

// NewClient authenticates with the service account file of the config; extra options
// (eg. endpoint, http client) are applied after it.
func NewClient(ctx context.Context, conf core.GoogleFormsConfig, opts ...option.ClientOption) (*Client, error) {
	clientOpts := make([]option.ClientOption, 0, len(opts)+2)
	if conf.CredentialsFile != "" {
		clientOpts = append(clientOpts,
			option.WithCredentialsFile(conf.CredentialsFile),
			option.WithScopes(forms.FormsBodyReadonlyScope, forms.FormsResponsesReadonlyScope),
		)
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := forms.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating forms service")
	}
	return &Client{svc: svc}, nil
}

func (c *Client) GetForm(ctx context.Context, formID string) (survey.RemoteForm, error) {
	f, err := c.svc.Forms.Get(formID).Context(ctx).Do()
	if err != nil {
		return survey.RemoteForm{}, trapNotFound(err, "getting form "+formID)
	}

	rf := survey.RemoteForm{
		ID:           f.FormId,
		ResponderURI: f.ResponderUri,
		Questions:    make([]survey.RemoteQuestion, 0, len(f.Items)),
	}
	if f.Info != nil {
		rf.Title = f.Info.Title
		if rf.Title == "" {
			rf.Title = f.Info.DocumentTitle
		}
		rf.Description = f.Info.Description
	}

	for _, item := range f.Items {
		if item == nil {
			continue
		}
		switch {
		case item.QuestionItem != nil && item.QuestionItem.Question != nil:
			q := item.QuestionItem.Question
			rf.Questions = append(rf.Questions, survey.RemoteQuestion{ID: q.QuestionId, Title: item.Title, Kind: questionKind(q)})
		case item.QuestionGroupItem != nil:
			// grids: one question per row
			for _, q := range item.QuestionGroupItem.Questions {
				if q == nil {
					continue
				}
				title := item.Title
				if q.RowQuestion != nil && q.RowQuestion.Title != "" {
					title += " [" + q.RowQuestion.Title + "]"
				}
				rf.Questions = append(rf.Questions, survey.RemoteQuestion{ID: q.QuestionId, Title: title, Kind: "grid"})
			}
		}
	}
	return rf, nil
}

func questionKind(q *forms.Question) string {
	switch {
	case q.ChoiceQuestion != nil:
		return strings.ToLower(q.ChoiceQuestion.Type)
	case q.TextQuestion != nil:
		if q.TextQuestion.Paragraph {
			return "paragraph"
		}
		return "text"
	case q.ScaleQuestion != nil:
		return "scale"
	case q.DateQuestion != nil:
		return "date"
	case q.TimeQuestion != nil:
		return "time"
	case q.FileUploadQuestion != nil:
		return "file_upload"
	case q.RowQuestion != nil:
		return "grid"
	}
	return ""
}

func (c *Client) ListResponses(ctx context.Context, formID, pageToken string, pageSize int) (survey.ResponsePage, error) {
	call := c.svc.Forms.Responses.List(formID).Context(ctx)
	if pageSize > 0 {
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}
		call = call.PageSize(int64(pageSize))
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	res, err := call.Do()
	if err != nil {
		return survey.ResponsePage{}, trapNotFound(err, "listing responses of form "+formID)
	}

	rp := survey.ResponsePage{
		Responses:     make([]survey.RemoteResponse, 0, len(res.Responses)),
		NextPageToken: res.NextPageToken,
	}
	for _, r := range res.Responses {
		if r == nil {
			continue
		}
		rp.Responses = append(rp.Responses, survey.RemoteResponse{
			ID:              r.ResponseId,
			RespondentEmail: r.RespondentEmail,
			SubmittedAt:     submittedAt(r),
			Answers:         answerValues(r.Answers),
		})
	}
	return rp, nil
}

// submittedAt is the last submission time, or the creation time of responses never edited.
func submittedAt(r *forms.FormResponse) time.Time {
	for _, ts := range []string{r.LastSubmittedTime, r.CreateTime} {
		if ts == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// answerValues flattens answers to {question id: values}. File uploads are reported by file name.
func answerValues(answers map[string]forms.Answer) map[string][]string {
	values := make(map[string][]string, len(answers))
	for id, a := range answers {
		if a.QuestionId != "" {
			id = a.QuestionId
		}
		vals := make([]string, 0)
		if a.TextAnswers != nil {
			for _, ta := range a.TextAnswers.Answers {
				if ta != nil {
					vals = append(vals, ta.Value)
				}
			}
		}
		if a.FileUploadAnswers != nil {
			for _, fa := range a.FileUploadAnswers.Answers {
				if fa != nil {
					vals = append(vals, fa.FileName)
				}
			}
		}
		values[id] = vals
	}
	return values
}

func trapNotFound(err error, msg string) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && gErr.Code == http.StatusNotFound {
		return errors.Wrap(survey.ErrNotFound, msg)
	}
	return errors.Wrap(err, msg)
}
