package thread

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/wtlassist/backend/core"
)

// Thread statuses
const (
	StatusOpen     = "open"
	StatusResolved = "resolved"
	StatusArchived = "archived"
)

// Task statuses
const (
	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
)

var (
	AllStatuses     = []string{StatusOpen, StatusResolved, StatusArchived}
	AllTaskStatuses = []string{TaskTodo, TaskInProgress, TaskDone}
)

// Thread is a discussion owned by a (student) user, optionally linked to lessons.
type Thread struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	AuthorID  string    `json:"author_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	LessonIDs []string  `json:"lesson_ids"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type Note struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

type Task struct {
	ID          string          `json:"id"`
	ThreadID    string          `json:"thread_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	DueAt       *time.Time      `json:"due_at"`
	AssigneeID  string          `json:"assignee_id"`
	Checklist   []ChecklistItem `json:"checklist"`
	CreatedAt   time.Time       `json:"created_at"` // UTC
	UpdatedAt   time.Time       `json:"updated_at"` // UTC
}

type ChecklistItem struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Label     string    `json:"label"`
	Done      bool      `json:"done"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

// syncStatus applies the checklist rule: a task with a fully checked checklist is done,
// a done task with an unchecked item is back in progress. It reports whether Status changed.
func (t *Task) syncStatus() bool {
	if len(t.Checklist) == 0 {
		return false
	}
	allDone := true
	for _, item := range t.Checklist {
		if !item.Done {
			allDone = false
			break
		}
	}
	switch {
	case allDone && t.Status != TaskDone:
		t.Status = TaskDone
	case !allDone && t.Status == TaskDone:
		t.Status = TaskInProgress
	default:
		return false
	}
	return true
}

type NewThread struct {
	OwnerID   string   `json:"owner_id"`
	Title     string   `json:"title" validate:"required,max=200"`
	Body      string   `json:"body"`
	LessonIDs []string `json:"lesson_ids" validate:"omitempty,dive,uuid"`
}

func (nt *NewThread) Validate(validate *validator.Validate) error {
	nt.OwnerID = core.CleanString(nt.OwnerID)
	nt.Title = core.CleanString(nt.Title)
	return validate.Struct(nt)
}

type UpdateThread struct {
	Title  string  `json:"title" validate:"omitempty,max=200"`
	Body   *string `json:"body"`
	Status string  `json:"status" validate:"omitempty,threadstatus"`
}

func (ut *UpdateThread) Validate(validate *validator.Validate) error {
	ut.Title = core.CleanString(ut.Title)
	ut.Status = core.CleanString(ut.Status, true /* lower */)
	return validate.Struct(ut)
}

type LinkLessons struct {
	LessonIDs []string `json:"lesson_ids" validate:"required,min=1,dive,uuid"`
}

func (ll *LinkLessons) Validate(validate *validator.Validate) error { return validate.Struct(ll) }

type NewNote struct {
	Body string `json:"body" validate:"required"`
}

func (nn *NewNote) Validate(validate *validator.Validate) error {
	nn.Body = core.CleanString(nn.Body)
	return validate.Struct(nn)
}

type NewTask struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at"`
	AssigneeID  string     `json:"assignee_id" validate:"omitempty,uuid"`
	Checklist   []string   `json:"checklist" validate:"omitempty,dive,required"`
}

func (nt *NewTask) Validate(validate *validator.Validate) error {
	nt.Title = core.CleanString(nt.Title)
	for i := range nt.Checklist {
		nt.Checklist[i] = core.CleanString(nt.Checklist[i])
	}
	return validate.Struct(nt)
}

type UpdateTask struct {
	Title       string     `json:"title" validate:"omitempty,max=200"`
	Description *string    `json:"description"`
	Status      string     `json:"status" validate:"omitempty,taskstatus"`
	DueAt       *time.Time `json:"due_at"`
	AssigneeID  *string    `json:"assignee_id"` // "" unassigns
}

func (ut *UpdateTask) Validate(validate *validator.Validate) error {
	ut.Title = core.CleanString(ut.Title)
	ut.Status = core.CleanString(ut.Status, true /* lower */)
	if err := validate.Struct(ut); err != nil {
		return err
	}
	if ut.AssigneeID != nil {
		id := core.CleanString(*ut.AssigneeID)
		if _, err := uuid.Parse(id); id != "" && err != nil {
			return core.NewFieldError("assignee_id", "assignee_id must be a valid id")
		}
		ut.AssigneeID = &id
	}
	return nil
}

type NewChecklistItem struct {
	Label string `json:"label" validate:"required,max=500"`
}

func (ni *NewChecklistItem) Validate(validate *validator.Validate) error {
	ni.Label = core.CleanString(ni.Label)
	return validate.Struct(ni)
}

type UpdateChecklistItem struct {
	Label *string `json:"label" validate:"omitempty,max=500"` // blank labels are ignored
	Done  *bool   `json:"done"`
}

func (ui *UpdateChecklistItem) Validate(validate *validator.Validate) error {
	if ui.Label != nil {
		label := core.CleanString(*ui.Label)
		ui.Label = &label
	}
	return validate.Struct(ui)
}

type ReorderChecklist struct {
	ItemIDs []string `json:"item_ids" validate:"required,min=1,dive,uuid"`
}

func (rc *ReorderChecklist) Validate(validate *validator.Validate) error { return validate.Struct(rc) }

type QueryFilter struct {
	OwnerID  string
	Status   string
	Search   string
	LessonID string
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// Orderings maps the fields threads can be ordered by to DB columns.
var Orderings = map[string]string{
	"title":      "title",
	"status":     "status",
	"created_at": "created_at",
	"updated_at": "updated_at",
}
