package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/thread"
)

const (
	threadsTable       = "threads"
	threadLessonsTable = "thread_lessons"
	notesTable         = "thread_notes"
	tasksTable         = "tasks"
	checklistTable     = "checklist_items"

	lessonIDsColumn = `COALESCE((SELECT array_agg(tl.lesson_id::text ORDER BY tl.lesson_id)
		FROM thread_lessons tl WHERE tl.thread_id = t.id), '{}') AS lesson_ids`
)

var (
	threadColumns    = []string{"id", "owner_id", "author_id", "title", "body", "status", "created_at", "updated_at"}
	noteColumns      = []string{"id", "thread_id", "author_id", "body", "created_at", "updated_at"}
	taskColumns      = []string{"id", "thread_id", "title", "description", "status", "due_at", "assignee_id", "created_at", "updated_at"}
	checklistColumns = []string{"id", "task_id", "label", "done", "position", "created_at", "updated_at"}
)

type threadRow struct {
	ID        string         `db:"id"`
	OwnerID   string         `db:"owner_id"`
	AuthorID  null.String    `db:"author_id"`
	Title     string         `db:"title"`
	Body      string         `db:"body"`
	Status    string         `db:"status"`
	LessonIDs pq.StringArray `db:"lesson_ids"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r threadRow) thread() thread.Thread {
	lessonIDs := []string(r.LessonIDs)
	if lessonIDs == nil {
		lessonIDs = []string{}
	}
	return thread.Thread{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		AuthorID:  r.AuthorID.String,
		Title:     r.Title,
		Body:      r.Body,
		Status:    r.Status,
		LessonIDs: lessonIDs,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type noteRow struct {
	ID        string      `db:"id"`
	ThreadID  string      `db:"thread_id"`
	AuthorID  null.String `db:"author_id"`
	Body      string      `db:"body"`
	CreatedAt time.Time   `db:"created_at"`
	UpdatedAt time.Time   `db:"updated_at"`
}

func (r noteRow) note() thread.Note {
	return thread.Note{
		ID:        r.ID,
		ThreadID:  r.ThreadID,
		AuthorID:  r.AuthorID.String,
		Body:      r.Body,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type taskRow struct {
	ID          string      `db:"id"`
	ThreadID    string      `db:"thread_id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	Status      string      `db:"status"`
	DueAt       null.Time   `db:"due_at"`
	AssigneeID  null.String `db:"assignee_id"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (r taskRow) task() thread.Task {
	return thread.Task{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		DueAt:       utcPtr(r.DueAt),
		AssigneeID:  r.AssigneeID.String,
		Checklist:   []thread.ChecklistItem{},
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type checklistRow struct {
	ID        string    `db:"id"`
	TaskID    string    `db:"task_id"`
	Label     string    `db:"label"`
	Done      bool      `db:"done"`
	Position  int       `db:"position"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r checklistRow) item() thread.ChecklistItem {
	return thread.ChecklistItem{
		ID:        r.ID,
		TaskID:    r.TaskID,
		Label:     r.Label,
		Done:      r.Done,
		Position:  r.Position,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type threadRepository struct {
	baseRepository
}

var _ thread.Repository = (*threadRepository)(nil) // interface compliance check

func NewThreadRepository(exec core.DBExecutor) thread.Repository {
	return &threadRepository{baseRepository{exec: exec}}
}

func nullUUID(id string) null.String {
	return null.NewString(id, id != "")
}

// Threads

func (repo threadRepository) selectThreads() sq.SelectBuilder {
	cols := make([]string, 0, len(threadColumns)+1)
	for _, col := range threadColumns {
		cols = append(cols, "t."+col)
	}
	return psql.Select(append(cols, lessonIDsColumn)...).From(threadsTable + " t")
}

func (repo threadRepository) CreateThread(ctx context.Context, t thread.Thread, exec ...core.DBExecutor) (thread.Thread, error) {
	q := psql.Insert(threadsTable).
		SetMap(map[string]interface{}{
			"owner_id":   t.OwnerID,
			"author_id":  nullUUID(t.AuthorID),
			"title":      t.Title,
			"body":       t.Body,
			"status":     t.Status,
			"created_at": t.CreatedAt.UTC(),
			"updated_at": t.UpdatedAt.UTC(),
		}).
		Suffix("RETURNING " + strings.Join(threadColumns, ", ") + ", '{}'::text[] AS lesson_ids")

	row, err := selectOne[threadRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return thread.Thread{}, errors.Wrap(err, "inserting thread")
	}
	return row.thread(), nil
}

func (repo threadRepository) QueryThreads(ctx context.Context, filter *thread.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]thread.Thread, error) {
	q := repo.selectThreads()

	if filter != nil {
		if filter.OwnerID != "" {
			if !isUUID(filter.OwnerID) {
				return []thread.Thread{}, nil
			}
			q = q.Where(sq.Eq{"t.owner_id": filter.OwnerID})
		}
		if filter.Status != "" {
			q = q.Where(sq.Eq{"t.status": filter.Status})
		}
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			q = q.Where(sq.Or{sq.ILike{"t.title": val}, sq.ILike{"t.body": val}})
		}
		if filter.LessonID != "" {
			if !isUUID(filter.LessonID) {
				return []thread.Thread{}, nil
			}
			q = q.Where(sq.Expr("EXISTS (SELECT 1 FROM thread_lessons tl WHERE tl.thread_id = t.id AND tl.lesson_id = ?)", filter.LessonID))
		}
	}

	prefixed := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		prefixed = append(prefixed, core.DBOrdering{Field: "t." + ord.Field, Ascending: ord.Ascending})
	}
	q = applyOrdering(q, prefixed, "t.updated_at DESC")

	rows, err := selectAll[threadRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return nil, errors.Wrap(err, "querying threads")
	}
	threads := make([]thread.Thread, 0, len(rows))
	for _, r := range rows {
		threads = append(threads, r.thread())
	}
	return threads, nil
}

func (repo threadRepository) GetThread(ctx context.Context, id string, exec ...core.DBExecutor) (thread.Thread, error) {
	if !isUUID(id) {
		return thread.Thread{}, thread.ErrNotFound
	}
	row, err := selectOne[threadRow](ctx, repo.getExec(exec), repo.selectThreads().Where(sq.Eq{"t.id": id}).Limit(1))
	if err != nil {
		return thread.Thread{}, trapNoRows(err, thread.ErrNotFound, "finding thread")
	}
	return row.thread(), nil
}

func (repo threadRepository) UpdateThread(ctx context.Context, t thread.Thread, exec ...core.DBExecutor) (thread.Thread, error) {
	if !isUUID(t.ID) {
		return thread.Thread{}, thread.ErrNotFound
	}
	q := psql.Update(threadsTable).
		SetMap(map[string]interface{}{
			"title":      t.Title,
			"body":       t.Body,
			"status":     t.Status,
			"updated_at": t.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": t.ID})

	cnt, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return thread.Thread{}, errors.Wrap(err, "updating thread")
	}
	if cnt == 0 {
		return thread.Thread{}, thread.ErrNotFound
	}
	return repo.GetThread(ctx, t.ID, exec...)
}

func (repo threadRepository) DeleteThread(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return repo.deleteByID(ctx, threadsTable, id, thread.ErrNotFound, "deleting thread", exec...)
}

func (repo threadRepository) AddThreadLessons(ctx context.Context, threadID string, lessonIDs []string, exec ...core.DBExecutor) error {
	if len(lessonIDs) == 0 {
		return nil
	}
	q := psql.Insert(threadLessonsTable).Columns("thread_id", "lesson_id")
	for _, id := range lessonIDs {
		q = q.Values(threadID, id)
	}
	q = q.Suffix("ON CONFLICT (thread_id, lesson_id) DO NOTHING")

	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return errors.Wrap(err, "linking lessons")
	}
	return nil
}

func (repo threadRepository) RemoveThreadLesson(ctx context.Context, threadID, lessonID string, exec ...core.DBExecutor) error {
	if !isUUID(threadID) || !isUUID(lessonID) {
		return nil
	}
	q := psql.Delete(threadLessonsTable).Where(sq.Eq{"thread_id": threadID, "lesson_id": lessonID})
	if _, err := execute(ctx, repo.getExec(exec), q); err != nil {
		return errors.Wrap(err, "unlinking lesson")
	}
	return nil
}

// Notes

func (repo threadRepository) CreateNote(ctx context.Context, n thread.Note, exec ...core.DBExecutor) (thread.Note, error) {
	q := psql.Insert(notesTable).
		SetMap(map[string]interface{}{
			"thread_id":  n.ThreadID,
			"author_id":  nullUUID(n.AuthorID),
			"body":       n.Body,
			"created_at": n.CreatedAt.UTC(),
			"updated_at": n.UpdatedAt.UTC(),
		}).
		Suffix("RETURNING " + strings.Join(noteColumns, ", "))

	row, err := selectOne[noteRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return thread.Note{}, errors.Wrap(err, "inserting note")
	}
	return row.note(), nil
}

func (repo threadRepository) QueryNotes(ctx context.Context, threadID string, exec ...core.DBExecutor) ([]thread.Note, error) {
	if !isUUID(threadID) {
		return []thread.Note{}, nil
	}
	q := psql.Select(noteColumns...).From(notesTable).Where(sq.Eq{"thread_id": threadID}).OrderBy("created_at ASC")
	rows, err := selectAll[noteRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return nil, errors.Wrap(err, "querying notes")
	}
	notes := make([]thread.Note, 0, len(rows))
	for _, r := range rows {
		notes = append(notes, r.note())
	}
	return notes, nil
}

func (repo threadRepository) GetNote(ctx context.Context, id string, exec ...core.DBExecutor) (thread.Note, error) {
	if !isUUID(id) {
		return thread.Note{}, thread.ErrNoteNotFound
	}
	q := psql.Select(noteColumns...).From(notesTable).Where(sq.Eq{"id": id}).Limit(1)
	row, err := selectOne[noteRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return thread.Note{}, trapNoRows(err, thread.ErrNoteNotFound, "finding note")
	}
	return row.note(), nil
}

func (repo threadRepository) UpdateNote(ctx context.Context, n thread.Note, exec ...core.DBExecutor) (thread.Note, error) {
	if !isUUID(n.ID) {
		return thread.Note{}, thread.ErrNoteNotFound
	}
	q := psql.Update(notesTable).
		Set("body", n.Body).
		Set("updated_at", n.UpdatedAt.UTC()).
		Where(sq.Eq{"id": n.ID}).
		Suffix("RETURNING " + strings.Join(noteColumns, ", "))

	row, err := selectOne[noteRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return thread.Note{}, trapNoRows(err, thread.ErrNoteNotFound, "updating note")
	}
	return row.note(), nil
}

func (repo threadRepository) DeleteNote(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return repo.deleteByID(ctx, notesTable, id, thread.ErrNoteNotFound, "deleting note", exec...)
}

// Tasks

func (repo threadRepository) CreateTask(ctx context.Context, t thread.Task, exec ...core.DBExecutor) (thread.Task, error) {
	q := psql.Insert(tasksTable).
		SetMap(map[string]interface{}{
			"thread_id":   t.ThreadID,
			"title":       t.Title,
			"description": t.Description,
			"status":      t.Status,
			"due_at":      null.TimeFromPtr(t.DueAt),
			"assignee_id": nullUUID(t.AssigneeID),
			"created_at":  t.CreatedAt.UTC(),
			"updated_at":  t.UpdatedAt.UTC(),
		}).
		Suffix("RETURNING " + strings.Join(taskColumns, ", "))

	row, err := selectOne[taskRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return thread.Task{}, errors.Wrap(err, "inserting task")
	}
	return row.task(), nil
}

// withChecklists loads the checklist items of tasks.
func (repo threadRepository) withChecklists(ctx context.Context, rows []taskRow, exec []core.DBExecutor) ([]thread.Task, error) {
	tasks := make([]thread.Task, 0, len(rows))
	if len(rows) == 0 {
		return tasks, nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	q := psql.Select(checklistColumns...).From(checklistTable).
		Where(sq.Eq{"task_id": ids}).
		OrderBy("position ASC", "created_at ASC")
	items, err := selectAll[checklistRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return nil, errors.Wrap(err, "querying checklist items")
	}
	byTask := make(map[string][]thread.ChecklistItem, len(rows))
	for _, item := range items {
		byTask[item.TaskID] = append(byTask[item.TaskID], item.item())
	}

	for _, r := range rows {
		t := r.task()
		if checklist, ok := byTask[t.ID]; ok {
			t.Checklist = checklist
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (repo threadRepository) QueryTasks(ctx context.Context, threadID string, exec ...core.DBExecutor) ([]thread.Task, error) {
	if !isUUID(threadID) {
		return []thread.Task{}, nil
	}
	q := psql.Select(taskColumns...).From(tasksTable).Where(sq.Eq{"thread_id": threadID}).OrderBy("created_at ASC")
	rows, err := selectAll[taskRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	return repo.withChecklists(ctx, rows, exec)
}

func (repo threadRepository) GetTask(ctx context.Context, id string, exec ...core.DBExecutor) (thread.Task, error) {
	if !isUUID(id) {
		return thread.Task{}, thread.ErrTaskNotFound
	}
	q := psql.Select(taskColumns...).From(tasksTable).Where(sq.Eq{"id": id}).Limit(1)
	row, err := selectOne[taskRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return thread.Task{}, trapNoRows(err, thread.ErrTaskNotFound, "finding task")
	}
	tasks, err := repo.withChecklists(ctx, []taskRow{row}, exec)
	if err != nil {
		return thread.Task{}, err
	}
	return tasks[0], nil
}

func (repo threadRepository) UpdateTask(ctx context.Context, t thread.Task, exec ...core.DBExecutor) (thread.Task, error) {
	if !isUUID(t.ID) {
		return thread.Task{}, thread.ErrTaskNotFound
	}
	q := psql.Update(tasksTable).
		SetMap(map[string]interface{}{
			"title":       t.Title,
			"description": t.Description,
			"status":      t.Status,
			"due_at":      null.TimeFromPtr(t.DueAt),
			"assignee_id": nullUUID(t.AssigneeID),
			"updated_at":  t.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": t.ID})

	cnt, err := execute(ctx, repo.getExec(exec), q)
	if err != nil {
		return thread.Task{}, errors.Wrap(err, "updating task")
	}
	if cnt == 0 {
		return thread.Task{}, thread.ErrTaskNotFound
	}
	return repo.GetTask(ctx, t.ID, exec...)
}

func (repo threadRepository) DeleteTask(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return repo.deleteByID(ctx, tasksTable, id, thread.ErrTaskNotFound, "deleting task", exec...)
}

// Checklists

func (repo threadRepository) CreateChecklistItem(ctx context.Context, item thread.ChecklistItem, exec ...core.DBExecutor) (thread.ChecklistItem, error) {
	q := psql.Insert(checklistTable).
		SetMap(map[string]interface{}{
			"task_id":    item.TaskID,
			"label":      item.Label,
			"done":       item.Done,
			"position":   item.Position,
			"created_at": item.CreatedAt.UTC(),
			"updated_at": item.UpdatedAt.UTC(),
		}).
		Suffix("RETURNING " + strings.Join(checklistColumns, ", "))

	row, err := selectOne[checklistRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return thread.ChecklistItem{}, errors.Wrap(err, "inserting checklist item")
	}
	return row.item(), nil
}

func (repo threadRepository) GetChecklistItem(ctx context.Context, id string, exec ...core.DBExecutor) (thread.ChecklistItem, error) {
	if !isUUID(id) {
		return thread.ChecklistItem{}, thread.ErrChecklistItemNotFound
	}
	q := psql.Select(checklistColumns...).From(checklistTable).Where(sq.Eq{"id": id}).Limit(1)
	row, err := selectOne[checklistRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return thread.ChecklistItem{}, trapNoRows(err, thread.ErrChecklistItemNotFound, "finding checklist item")
	}
	return row.item(), nil
}

func (repo threadRepository) UpdateChecklistItem(ctx context.Context, item thread.ChecklistItem, exec ...core.DBExecutor) (thread.ChecklistItem, error) {
	if !isUUID(item.ID) {
		return thread.ChecklistItem{}, thread.ErrChecklistItemNotFound
	}
	q := psql.Update(checklistTable).
		SetMap(map[string]interface{}{
			"label":      item.Label,
			"done":       item.Done,
			"position":   item.Position,
			"updated_at": item.UpdatedAt.UTC(),
		}).
		Where(sq.Eq{"id": item.ID}).
		Suffix("RETURNING " + strings.Join(checklistColumns, ", "))

	row, err := selectOne[checklistRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return thread.ChecklistItem{}, trapNoRows(err, thread.ErrChecklistItemNotFound, "updating checklist item")
	}
	return row.item(), nil
}

func (repo threadRepository) DeleteChecklistItem(ctx context.Context, id string, exec ...core.DBExecutor) error {
	return repo.deleteByID(ctx, checklistTable, id, thread.ErrChecklistItemNotFound, "deleting checklist item", exec...)
}

func (repo threadRepository) deleteByID(ctx context.Context, table, id string, notFound error, msg string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return notFound
	}
	cnt, err := execute(ctx, repo.getExec(exec), psql.Delete(table).Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if cnt == 0 {
		return notFound
	}
	return nil
}
