package survey

import (
	"time"

	"github.com/go-playground/validator/v10"
)

type Form struct {
	ID           string     `json:"id"`
	GoogleFormID string     `json:"google_form_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ResponderURI string     `json:"responder_uri"`
	Questions    []Question `json:"questions,omitempty"`
	LastSyncedAt time.Time  `json:"last_synced_at"` // UTC
	CreatedAt    time.Time  `json:"created_at"`     // UTC
	UpdatedAt    time.Time  `json:"updated_at"`     // UTC
}

type Question struct {
	FormID     string `json:"form_id"`
	QuestionID string `json:"question_id"` // Google Forms question id
	Title      string `json:"title"`
	Kind       string `json:"kind"`
	Position   int    `json:"position"`
}

type Response struct {
	ID               string     `json:"id"`
	FormID           string     `json:"form_id"`
	GoogleResponseID string     `json:"google_response_id"`
	RespondentEmail  string     `json:"respondent_email"`
	SubmittedAt      time.Time  `json:"submitted_at"` // UTC
	Answers          []Answer   `json:"answers"`
	ThreadID         string     `json:"thread_id"`
	LinkedAt         *time.Time `json:"linked_at"`
	CreatedAt        time.Time  `json:"created_at"` // UTC
	UpdatedAt        time.Time  `json:"updated_at"` // UTC
}

func (r Response) IsLinked() bool { return r.ThreadID != "" }

// Answer is a response value mapped to its question. Question is empty for unknown question ids.
type Answer struct {
	QuestionID string   `json:"question_id"`
	Question   string   `json:"question"`
	Values     []string `json:"values"`
}

// Remote records, as served by the forms API.
type (
	RemoteForm struct {
		ID           string
		Title        string
		Description  string
		ResponderURI string
		Questions    []RemoteQuestion // in form order
	}

	RemoteQuestion struct {
		ID    string
		Title string
		Kind  string
	}

	RemoteResponse struct {
		ID              string
		RespondentEmail string
		SubmittedAt     time.Time
		Answers         map[string][]string // {question id: values}
	}

	ResponsePage struct {
		Responses     []RemoteResponse
		NextPageToken string
	}
)

type LinkThread struct {
	ThreadID string `json:"thread_id" validate:"required,uuid"`
}

func (lt *LinkThread) Validate(validate *validator.Validate) error { return validate.Struct(lt) }

type ResponseFilter struct {
	FormID        string
	ThreadID      string
	Email         string
	Linked        *bool
	SubmittedFrom time.Time
	SubmittedTo   time.Time
}

// GetFilter selects a single form; the first non-empty field wins.
type GetFilter struct {
	ID           string
	GoogleFormID string
}

// FormOrderings maps the fields forms can be ordered by to DB columns.
var FormOrderings = map[string]string{
	"title":          "title",
	"last_synced_at": "last_synced_at",
	"created_at":     "created_at",
}

// ResponseOrderings maps the fields responses can be ordered by to DB columns.
var ResponseOrderings = map[string]string{
	"submitted_at":     "submitted_at",
	"respondent_email": "respondent_email",
	"linked_at":        "linked_at",
}
