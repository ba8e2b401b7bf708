package thread

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/course"
	"github.com/wtlassist/backend/core/user"
)

var (
	// errors
	ErrNotFound              = errors.New("thread not found")
	ErrNoteNotFound          = errors.New("note not found")
	ErrTaskNotFound          = errors.New("task not found")
	ErrChecklistItemNotFound = errors.New("checklist item not found")
	ErrForbidden             = errors.New("you do not have permission to perform this action")
)

type (
	Repository interface {
		CreateThread(ctx context.Context, t Thread, exec ...core.DBExecutor) (Thread, error)
		// QueryThreads applies AND operation on available QueryFilter fields.
		QueryThreads(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Thread, error)
		GetThread(ctx context.Context, id string, exec ...core.DBExecutor) (Thread, error)
		UpdateThread(ctx context.Context, t Thread, exec ...core.DBExecutor) (Thread, error)
		DeleteThread(ctx context.Context, id string, exec ...core.DBExecutor) error
		AddThreadLessons(ctx context.Context, threadID string, lessonIDs []string, exec ...core.DBExecutor) error
		RemoveThreadLesson(ctx context.Context, threadID, lessonID string, exec ...core.DBExecutor) error

		CreateNote(ctx context.Context, n Note, exec ...core.DBExecutor) (Note, error)
		QueryNotes(ctx context.Context, threadID string, exec ...core.DBExecutor) ([]Note, error)
		GetNote(ctx context.Context, id string, exec ...core.DBExecutor) (Note, error)
		UpdateNote(ctx context.Context, n Note, exec ...core.DBExecutor) (Note, error)
		DeleteNote(ctx context.Context, id string, exec ...core.DBExecutor) error

		// Tasks are returned with their checklist ordered by position.
		CreateTask(ctx context.Context, t Task, exec ...core.DBExecutor) (Task, error)
		QueryTasks(ctx context.Context, threadID string, exec ...core.DBExecutor) ([]Task, error)
		GetTask(ctx context.Context, id string, exec ...core.DBExecutor) (Task, error)
		UpdateTask(ctx context.Context, t Task, exec ...core.DBExecutor) (Task, error)
		DeleteTask(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateChecklistItem(ctx context.Context, item ChecklistItem, exec ...core.DBExecutor) (ChecklistItem, error)
		GetChecklistItem(ctx context.Context, id string, exec ...core.DBExecutor) (ChecklistItem, error)
		UpdateChecklistItem(ctx context.Context, item ChecklistItem, exec ...core.DBExecutor) (ChecklistItem, error)
		DeleteChecklistItem(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	// Service enforces thread access rules: students only reach the threads they own,
	// teachers & superadmins reach every thread.
	Service interface {
		CreateThread(ctx context.Context, actor user.User, nt NewThread) (Thread, error)
		QueryThreads(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Thread, error)
		GetThread(ctx context.Context, actor user.User, id string) (Thread, error)
		// GetByID skips the access rules; for internal use.
		GetByID(ctx context.Context, id string) (Thread, error)
		UpdateThread(ctx context.Context, actor user.User, id string, ut UpdateThread) (Thread, error)
		DeleteThread(ctx context.Context, actor user.User, id string) error
		LinkLessons(ctx context.Context, actor user.User, threadID string, lessonIDs []string) (Thread, error)
		UnlinkLesson(ctx context.Context, actor user.User, threadID, lessonID string) (Thread, error)

		AddNote(ctx context.Context, actor user.User, threadID string, nn NewNote) (Note, error)
		QueryNotes(ctx context.Context, actor user.User, threadID string) ([]Note, error)
		UpdateNote(ctx context.Context, actor user.User, noteID string, un NewNote) (Note, error)
		DeleteNote(ctx context.Context, actor user.User, noteID string) error

		CreateTask(ctx context.Context, actor user.User, threadID string, nt NewTask) (Task, error)
		QueryTasks(ctx context.Context, actor user.User, threadID string) ([]Task, error)
		GetTask(ctx context.Context, actor user.User, taskID string) (Task, error)
		UpdateTask(ctx context.Context, actor user.User, taskID string, ut UpdateTask) (Task, error)
		DeleteTask(ctx context.Context, actor user.User, taskID string) error

		// checklist operations return the parent task with its (possibly updated) status
		AddChecklistItem(ctx context.Context, actor user.User, taskID string, ni NewChecklistItem) (Task, error)
		ToggleChecklistItem(ctx context.Context, actor user.User, itemID string) (Task, error)
		UpdateChecklistItem(ctx context.Context, actor user.User, itemID string, ui UpdateChecklistItem) (Task, error)
		DeleteChecklistItem(ctx context.Context, actor user.User, itemID string) (Task, error)
		ReorderChecklist(ctx context.Context, actor user.User, taskID string, itemIDs []string) (Task, error)
	}

	service struct {
		tx        core.Transactor
		repo      Repository
		usrSvc    user.Service
		courseSvc course.Service
	}
)

var _ Service = (*service)(nil)

func NewService(tx core.Transactor, repo Repository, usrSvc user.Service, courseSvc course.Service) Service {
	return &service{
		tx:        tx,
		repo:      repo,
		usrSvc:    usrSvc,
		courseSvc: courseSvc,
	}
}

func canView(actor user.User, t Thread) bool {
	return actor.IsStaff() || t.OwnerID == actor.ID
}

// Threads

func (svc *service) CreateThread(ctx context.Context, actor user.User, nt NewThread) (Thread, error) {
	ownerID := actor.ID
	if nt.OwnerID != "" && nt.OwnerID != actor.ID {
		if !actor.IsStaff() {
			return Thread{}, ErrForbidden
		}
		owner, err := svc.usrSvc.GetByID(ctx, nt.OwnerID)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return Thread{}, core.NewValidationError(err, core.FieldError{Field: "owner_id", Error: "user not found"})
			}
			return Thread{}, errors.Wrap(err, "finding owner")
		}
		ownerID = owner.ID
	}
	if err := svc.checkLessons(ctx, nt.LessonIDs); err != nil {
		return Thread{}, err
	}

	now := time.Now().UTC()
	t := Thread{
		OwnerID:   ownerID,
		AuthorID:  actor.ID,
		Title:     nt.Title,
		Body:      nt.Body,
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := svc.tx.WithTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if t, err = svc.repo.CreateThread(ctx, t, exec); err != nil {
			return err
		}
		if len(nt.LessonIDs) > 0 {
			if err = svc.repo.AddThreadLessons(ctx, t.ID, dedupe(nt.LessonIDs), exec); err != nil {
				return err
			}
		}
		t, err = svc.repo.GetThread(ctx, t.ID, exec)
		return err
	})
	if err != nil {
		return Thread{}, errors.Wrap(err, "creating thread")
	}
	return t, nil
}

func (svc *service) QueryThreads(ctx context.Context, actor user.User, filter *QueryFilter, ordering []core.DBOrdering) ([]Thread, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	filter.Clean()
	if !actor.IsStaff() {
		filter.OwnerID = actor.ID
	}
	return svc.repo.QueryThreads(ctx, filter, core.CleanOrdering(ordering, Orderings))
}

func (svc *service) GetByID(ctx context.Context, id string) (Thread, error) {
	if id == "" {
		return Thread{}, ErrNotFound
	}
	return svc.repo.GetThread(ctx, id)
}

// GetThread hides threads the actor cannot see behind ErrNotFound.
func (svc *service) GetThread(ctx context.Context, actor user.User, id string) (Thread, error) {
	t, err := svc.GetByID(ctx, id)
	if err != nil {
		return Thread{}, err
	}
	if !canView(actor, t) {
		return Thread{}, ErrNotFound
	}
	return t, nil
}

func (svc *service) UpdateThread(ctx context.Context, actor user.User, id string, ut UpdateThread) (Thread, error) {
	t, err := svc.GetThread(ctx, actor, id)
	if err != nil {
		return Thread{}, err
	}
	if ut.Title != "" {
		t.Title = ut.Title
	}
	if ut.Body != nil {
		t.Body = *ut.Body
	}
	if ut.Status != "" {
		t.Status = ut.Status
	}
	t.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateThread(ctx, t)
}

func (svc *service) DeleteThread(ctx context.Context, actor user.User, id string) error {
	t, err := svc.GetThread(ctx, actor, id)
	if err != nil {
		return err
	}
	if t.OwnerID != actor.ID && !actor.IsSuperadmin() {
		return ErrForbidden
	}
	return svc.repo.DeleteThread(ctx, t.ID)
}

func (svc *service) LinkLessons(ctx context.Context, actor user.User, threadID string, lessonIDs []string) (Thread, error) {
	t, err := svc.GetThread(ctx, actor, threadID)
	if err != nil {
		return Thread{}, err
	}
	if err = svc.checkLessons(ctx, lessonIDs); err != nil {
		return Thread{}, err
	}
	if err = svc.repo.AddThreadLessons(ctx, t.ID, dedupe(lessonIDs)); err != nil {
		return Thread{}, err
	}
	return svc.touch(ctx, t.ID)
}

func (svc *service) UnlinkLesson(ctx context.Context, actor user.User, threadID, lessonID string) (Thread, error) {
	t, err := svc.GetThread(ctx, actor, threadID)
	if err != nil {
		return Thread{}, err
	}
	if err = svc.repo.RemoveThreadLesson(ctx, t.ID, lessonID); err != nil {
		return Thread{}, err
	}
	return svc.touch(ctx, t.ID)
}

// touch bumps the thread's UpdatedAt and returns it.
func (svc *service) touch(ctx context.Context, threadID string, exec ...core.DBExecutor) (Thread, error) {
	t, err := svc.repo.GetThread(ctx, threadID, exec...)
	if err != nil {
		return Thread{}, err
	}
	t.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateThread(ctx, t, exec...)
}

func (svc *service) checkLessons(ctx context.Context, lessonIDs []string) error {
	for _, id := range lessonIDs {
		if _, err := svc.courseSvc.GetLesson(ctx, id); err != nil {
			if errors.Cause(err) == course.ErrLessonNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "lesson_ids", Error: "lesson not found: " + id})
			}
			return errors.Wrap(err, "finding lesson")
		}
	}
	return nil
}

// Notes

func (svc *service) AddNote(ctx context.Context, actor user.User, threadID string, nn NewNote) (Note, error) {
	t, err := svc.GetThread(ctx, actor, threadID)
	if err != nil {
		return Note{}, err
	}
	now := time.Now().UTC()
	n := Note{
		ThreadID:  t.ID,
		AuthorID:  actor.ID,
		Body:      nn.Body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = svc.tx.WithTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if n, err = svc.repo.CreateNote(ctx, n, exec); err != nil {
			return err
		}
		_, err = svc.touch(ctx, t.ID, exec)
		return err
	})
	if err != nil {
		return Note{}, errors.Wrap(err, "adding note")
	}
	return n, nil
}

func (svc *service) QueryNotes(ctx context.Context, actor user.User, threadID string) ([]Note, error) {
	t, err := svc.GetThread(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryNotes(ctx, t.ID)
}

// editableNote returns the note if the actor is its author or a superadmin.
func (svc *service) editableNote(ctx context.Context, actor user.User, noteID string) (Note, error) {
	if noteID == "" {
		return Note{}, ErrNoteNotFound
	}
	n, err := svc.repo.GetNote(ctx, noteID)
	if err != nil {
		return Note{}, err
	}
	if _, err = svc.GetThread(ctx, actor, n.ThreadID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Note{}, ErrNoteNotFound
		}
		return Note{}, err
	}
	if n.AuthorID != actor.ID && !actor.IsSuperadmin() {
		return Note{}, ErrForbidden
	}
	return n, nil
}

func (svc *service) UpdateNote(ctx context.Context, actor user.User, noteID string, un NewNote) (Note, error) {
	n, err := svc.editableNote(ctx, actor, noteID)
	if err != nil {
		return Note{}, err
	}
	n.Body = un.Body
	n.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateNote(ctx, n)
}

func (svc *service) DeleteNote(ctx context.Context, actor user.User, noteID string) error {
	n, err := svc.editableNote(ctx, actor, noteID)
	if err != nil {
		return err
	}
	return svc.repo.DeleteNote(ctx, n.ID)
}

// Tasks

func (svc *service) CreateTask(ctx context.Context, actor user.User, threadID string, nt NewTask) (Task, error) {
	t, err := svc.GetThread(ctx, actor, threadID)
	if err != nil {
		return Task{}, err
	}
	if err = svc.checkAssignee(ctx, nt.AssigneeID); err != nil {
		return Task{}, err
	}

	now := time.Now().UTC()
	task := Task{
		ThreadID:    t.ID,
		Title:       nt.Title,
		Description: nt.Description,
		Status:      TaskTodo,
		DueAt:       utcPtr(nt.DueAt),
		AssigneeID:  nt.AssigneeID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = svc.tx.WithTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if task, err = svc.repo.CreateTask(ctx, task, exec); err != nil {
			return err
		}
		for i, label := range nt.Checklist {
			item := ChecklistItem{TaskID: task.ID, Label: label, Position: i + 1, CreatedAt: now, UpdatedAt: now}
			if _, err = svc.repo.CreateChecklistItem(ctx, item, exec); err != nil {
				return err
			}
		}
		if task, err = svc.repo.GetTask(ctx, task.ID, exec); err != nil {
			return err
		}
		_, err = svc.touch(ctx, t.ID, exec)
		return err
	})
	if err != nil {
		return Task{}, errors.Wrap(err, "creating task")
	}
	return task, nil
}

func (svc *service) QueryTasks(ctx context.Context, actor user.User, threadID string) ([]Task, error) {
	t, err := svc.GetThread(ctx, actor, threadID)
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryTasks(ctx, t.ID)
}

func (svc *service) GetTask(ctx context.Context, actor user.User, taskID string) (Task, error) {
	if taskID == "" {
		return Task{}, ErrTaskNotFound
	}
	task, err := svc.repo.GetTask(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	if _, err = svc.GetThread(ctx, actor, task.ThreadID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Task{}, ErrTaskNotFound
		}
		return Task{}, err
	}
	return task, nil
}

func (svc *service) UpdateTask(ctx context.Context, actor user.User, taskID string, ut UpdateTask) (Task, error) {
	task, err := svc.GetTask(ctx, actor, taskID)
	if err != nil {
		return Task{}, err
	}
	if ut.Title != "" {
		task.Title = ut.Title
	}
	if ut.Description != nil {
		task.Description = *ut.Description
	}
	if ut.Status != "" {
		task.Status = ut.Status
	}
	if ut.DueAt != nil {
		task.DueAt = utcPtr(ut.DueAt)
	}
	if ut.AssigneeID != nil {
		if err = svc.checkAssignee(ctx, *ut.AssigneeID); err != nil {
			return Task{}, err
		}
		task.AssigneeID = *ut.AssigneeID
	}
	// a checklist overrides the requested status
	task.syncStatus()
	task.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateTask(ctx, task)
}

func (svc *service) DeleteTask(ctx context.Context, actor user.User, taskID string) error {
	task, err := svc.GetTask(ctx, actor, taskID)
	if err != nil {
		return err
	}
	return svc.repo.DeleteTask(ctx, task.ID)
}

func (svc *service) checkAssignee(ctx context.Context, assigneeID string) error {
	if assigneeID == "" {
		return nil
	}
	if _, err := svc.usrSvc.GetByID(ctx, assigneeID); err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "assignee_id", Error: "user not found"})
		}
		return errors.Wrap(err, "finding assignee")
	}
	return nil
}

// Checklists

func (svc *service) AddChecklistItem(ctx context.Context, actor user.User, taskID string, ni NewChecklistItem) (Task, error) {
	task, err := svc.GetTask(ctx, actor, taskID)
	if err != nil {
		return Task{}, err
	}
	position := 1
	for _, item := range task.Checklist {
		if item.Position >= position {
			position = item.Position + 1
		}
	}
	now := time.Now().UTC()
	return svc.mutateChecklist(ctx, task.ID, func(exec core.DBExecutor) error {
		item := ChecklistItem{TaskID: task.ID, Label: ni.Label, Position: position, CreatedAt: now, UpdatedAt: now}
		_, err := svc.repo.CreateChecklistItem(ctx, item, exec)
		return err
	})
}

// checklistItem returns the item and its task, if the actor can see the task.
func (svc *service) checklistItem(ctx context.Context, actor user.User, itemID string) (ChecklistItem, Task, error) {
	if itemID == "" {
		return ChecklistItem{}, Task{}, ErrChecklistItemNotFound
	}
	item, err := svc.repo.GetChecklistItem(ctx, itemID)
	if err != nil {
		return ChecklistItem{}, Task{}, err
	}
	task, err := svc.GetTask(ctx, actor, item.TaskID)
	if err != nil {
		if errors.Cause(err) == ErrTaskNotFound {
			return ChecklistItem{}, Task{}, ErrChecklistItemNotFound
		}
		return ChecklistItem{}, Task{}, err
	}
	return item, task, nil
}

func (svc *service) ToggleChecklistItem(ctx context.Context, actor user.User, itemID string) (Task, error) {
	item, _, err := svc.checklistItem(ctx, actor, itemID)
	if err != nil {
		return Task{}, err
	}
	done := !item.Done
	return svc.UpdateChecklistItem(ctx, actor, itemID, UpdateChecklistItem{Done: &done})
}

func (svc *service) UpdateChecklistItem(ctx context.Context, actor user.User, itemID string, ui UpdateChecklistItem) (Task, error) {
	item, task, err := svc.checklistItem(ctx, actor, itemID)
	if err != nil {
		return Task{}, err
	}
	if ui.Label != nil && *ui.Label != "" {
		item.Label = *ui.Label
	}
	if ui.Done != nil {
		item.Done = *ui.Done
	}
	item.UpdatedAt = time.Now().UTC()
	return svc.mutateChecklist(ctx, task.ID, func(exec core.DBExecutor) error {
		_, err := svc.repo.UpdateChecklistItem(ctx, item, exec)
		return err
	})
}

func (svc *service) DeleteChecklistItem(ctx context.Context, actor user.User, itemID string) (Task, error) {
	item, task, err := svc.checklistItem(ctx, actor, itemID)
	if err != nil {
		return Task{}, err
	}
	return svc.mutateChecklist(ctx, task.ID, func(exec core.DBExecutor) error {
		return svc.repo.DeleteChecklistItem(ctx, item.ID, exec)
	})
}

// ReorderChecklist sets item positions following itemIDs; it must list every item of the task exactly once.
func (svc *service) ReorderChecklist(ctx context.Context, actor user.User, taskID string, itemIDs []string) (Task, error) {
	task, err := svc.GetTask(ctx, actor, taskID)
	if err != nil {
		return Task{}, err
	}

	items := make(map[string]ChecklistItem, len(task.Checklist))
	for _, item := range task.Checklist {
		items[item.ID] = item
	}
	if len(itemIDs) != len(items) || len(dedupe(itemIDs)) != len(itemIDs) {
		return Task{}, core.NewFieldError("item_ids", "item_ids must list every checklist item once")
	}
	for _, id := range itemIDs {
		if _, ok := items[id]; !ok {
			return Task{}, core.NewFieldError("item_ids", "unknown checklist item: "+id)
		}
	}

	now := time.Now().UTC()
	return svc.mutateChecklist(ctx, task.ID, func(exec core.DBExecutor) error {
		for i, id := range itemIDs {
			item := items[id]
			if item.Position == i+1 {
				continue
			}
			item.Position = i + 1
			item.UpdatedAt = now
			if _, err := svc.repo.UpdateChecklistItem(ctx, item, exec); err != nil {
				return err
			}
		}
		return nil
	})
}

// mutateChecklist runs fn then re-applies the checklist rule to the task, in one transaction.
func (svc *service) mutateChecklist(ctx context.Context, taskID string, fn func(exec core.DBExecutor) error) (Task, error) {
	var task Task
	err := svc.tx.WithTx(ctx, func(exec core.DBExecutor) error {
		if err := fn(exec); err != nil {
			return err
		}
		var err error
		if task, err = svc.repo.GetTask(ctx, taskID, exec); err != nil {
			return err
		}
		task.UpdatedAt = time.Now().UTC()
		task.syncStatus()
		if task, err = svc.repo.UpdateTask(ctx, task, exec); err != nil {
			return err
		}
		_, err = svc.touch(ctx, task.ThreadID, exec)
		return err
	})
	if err != nil {
		return Task{}, errors.Wrap(err, "updating checklist")
	}
	return task, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
