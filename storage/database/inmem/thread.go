package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/thread"
)

type threadRepository struct {
	db *DB
}

var _ thread.Repository = (*threadRepository)(nil)

func NewThreadRepository(db *DB) thread.Repository {
	return &threadRepository{db: db}
}

// thread returns a copy of a stored thread with its lesson ids. The caller holds the lock.
func (db *DB) thread(t *thread.Thread) thread.Thread {
	out := *t
	out.LessonIDs = make([]string, 0, len(db.threadLessons[t.ID]))
	for id := range db.threadLessons[t.ID] {
		out.LessonIDs = append(out.LessonIDs, id)
	}
	sort.Strings(out.LessonIDs)
	return out
}

// deleteThread removes a thread and what depends on it. The caller holds the lock.
func (db *DB) deleteThread(id string) {
	delete(db.threads, id)
	delete(db.threadLessons, id)
	for nid, n := range db.notes {
		if n.ThreadID == id {
			delete(db.notes, nid)
		}
	}
	for tid, t := range db.tasks {
		if t.ThreadID == id {
			db.deleteTask(tid)
		}
	}
	for _, r := range db.responses {
		if r.ThreadID == id {
			r.ThreadID = ""
			r.LinkedAt = nil
		}
	}
}

func (db *DB) deleteTask(id string) {
	delete(db.tasks, id)
	for cid, item := range db.checklist {
		if item.TaskID == id {
			delete(db.checklist, cid)
		}
	}
}

// task returns a copy of a stored task with its checklist. The caller holds the lock.
func (db *DB) task(t *thread.Task) thread.Task {
	out := *t
	out.Checklist = make([]thread.ChecklistItem, 0)
	for _, item := range db.checklist {
		if item.TaskID == t.ID {
			out.Checklist = append(out.Checklist, *item)
		}
	}
	orderBy(out.Checklist, []core.DBOrdering{{Field: "position", Ascending: true}, {Field: "created_at", Ascending: true}},
		func(a, b thread.ChecklistItem, column string) int {
			if column == "position" {
				return cmpInts(a.Position, b.Position)
			}
			return cmpTimes(a.CreatedAt, b.CreatedAt)
		})
	return out
}

// Threads

func (repo *threadRepository) CreateThread(_ context.Context, t thread.Thread, _ ...core.DBExecutor) (thread.Thread, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	t.ID = uuid.New().String()
	stored := t
	stored.LessonIDs = nil
	repo.db.threads[t.ID] = &stored
	return repo.db.thread(&stored), nil
}

func (repo *threadRepository) QueryThreads(_ context.Context, filter *thread.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]thread.Thread, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	threads := make([]thread.Thread, 0)
	for _, t := range repo.db.threads {
		if filter != nil {
			if filter.OwnerID != "" && t.OwnerID != filter.OwnerID {
				continue
			}
			if filter.Status != "" && t.Status != filter.Status {
				continue
			}
			if filter.Search != "" && !(containsFold(t.Title, filter.Search) || containsFold(t.Body, filter.Search)) {
				continue
			}
			if filter.LessonID != "" && !repo.db.threadLessons[t.ID][filter.LessonID] {
				continue
			}
		}
		threads = append(threads, repo.db.thread(t))
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "updated_at"}}
	}
	orderBy(threads, ordering, func(a, b thread.Thread, column string) int {
		switch column {
		case "title":
			return cmpStrings(a.Title, b.Title)
		case "status":
			return cmpStrings(a.Status, b.Status)
		case "created_at":
			return cmpTimes(a.CreatedAt, b.CreatedAt)
		case "updated_at":
			return cmpTimes(a.UpdatedAt, b.UpdatedAt)
		}
		return 0
	})
	return threads, nil
}

func (repo *threadRepository) GetThread(_ context.Context, id string, _ ...core.DBExecutor) (thread.Thread, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.threads[id]; ok {
		return repo.db.thread(t), nil
	}
	return thread.Thread{}, thread.ErrNotFound
}

func (repo *threadRepository) UpdateThread(_ context.Context, t thread.Thread, _ ...core.DBExecutor) (thread.Thread, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.threads[t.ID]
	if !ok {
		return thread.Thread{}, thread.ErrNotFound
	}
	stored.Title = t.Title
	stored.Body = t.Body
	stored.Status = t.Status
	stored.UpdatedAt = t.UpdatedAt
	return repo.db.thread(stored), nil
}

func (repo *threadRepository) DeleteThread(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.threads[id]; !ok {
		return thread.ErrNotFound
	}
	repo.db.deleteThread(id)
	return nil
}

func (repo *threadRepository) AddThreadLessons(_ context.Context, threadID string, lessonIDs []string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.threads[threadID]; !ok {
		return thread.ErrNotFound
	}
	lessons, ok := repo.db.threadLessons[threadID]
	if !ok {
		lessons = make(map[string]bool)
		repo.db.threadLessons[threadID] = lessons
	}
	for _, id := range lessonIDs {
		lessons[id] = true
	}
	return nil
}

func (repo *threadRepository) RemoveThreadLesson(_ context.Context, threadID, lessonID string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.threadLessons[threadID], lessonID)
	return nil
}

// Notes

func (repo *threadRepository) CreateNote(_ context.Context, n thread.Note, _ ...core.DBExecutor) (thread.Note, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n.ID = uuid.New().String()
	stored := n
	repo.db.notes[n.ID] = &stored
	return n, nil
}

func (repo *threadRepository) QueryNotes(_ context.Context, threadID string, _ ...core.DBExecutor) ([]thread.Note, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	notes := make([]thread.Note, 0)
	for _, n := range repo.db.notes {
		if n.ThreadID == threadID {
			notes = append(notes, *n)
		}
	}
	orderBy(notes, []core.DBOrdering{{Field: "created_at", Ascending: true}}, func(a, b thread.Note, _ string) int {
		return cmpTimes(a.CreatedAt, b.CreatedAt)
	})
	return notes, nil
}

func (repo *threadRepository) GetNote(_ context.Context, id string, _ ...core.DBExecutor) (thread.Note, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if n, ok := repo.db.notes[id]; ok {
		return *n, nil
	}
	return thread.Note{}, thread.ErrNoteNotFound
}

func (repo *threadRepository) UpdateNote(_ context.Context, n thread.Note, _ ...core.DBExecutor) (thread.Note, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.notes[n.ID]
	if !ok {
		return thread.Note{}, thread.ErrNoteNotFound
	}
	stored.Body = n.Body
	stored.UpdatedAt = n.UpdatedAt
	return *stored, nil
}

func (repo *threadRepository) DeleteNote(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.notes[id]; !ok {
		return thread.ErrNoteNotFound
	}
	delete(repo.db.notes, id)
	return nil
}

// Tasks

func (repo *threadRepository) CreateTask(_ context.Context, t thread.Task, _ ...core.DBExecutor) (thread.Task, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.threads[t.ThreadID]; !ok {
		return thread.Task{}, thread.ErrNotFound
	}
	t.ID = uuid.New().String()
	stored := t
	stored.Checklist = nil
	repo.db.tasks[t.ID] = &stored
	return repo.db.task(&stored), nil
}

func (repo *threadRepository) QueryTasks(_ context.Context, threadID string, _ ...core.DBExecutor) ([]thread.Task, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	tasks := make([]thread.Task, 0)
	for _, t := range repo.db.tasks {
		if t.ThreadID == threadID {
			tasks = append(tasks, repo.db.task(t))
		}
	}
	orderBy(tasks, []core.DBOrdering{{Field: "created_at", Ascending: true}}, func(a, b thread.Task, _ string) int {
		return cmpTimes(a.CreatedAt, b.CreatedAt)
	})
	return tasks, nil
}

func (repo *threadRepository) GetTask(_ context.Context, id string, _ ...core.DBExecutor) (thread.Task, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if t, ok := repo.db.tasks[id]; ok {
		return repo.db.task(t), nil
	}
	return thread.Task{}, thread.ErrTaskNotFound
}

func (repo *threadRepository) UpdateTask(_ context.Context, t thread.Task, _ ...core.DBExecutor) (thread.Task, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.tasks[t.ID]
	if !ok {
		return thread.Task{}, thread.ErrTaskNotFound
	}
	stored.Title = t.Title
	stored.Description = t.Description
	stored.Status = t.Status
	stored.DueAt = t.DueAt
	stored.AssigneeID = t.AssigneeID
	stored.UpdatedAt = t.UpdatedAt
	return repo.db.task(stored), nil
}

func (repo *threadRepository) DeleteTask(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tasks[id]; !ok {
		return thread.ErrTaskNotFound
	}
	repo.db.deleteTask(id)
	return nil
}

// Checklists

func (repo *threadRepository) CreateChecklistItem(_ context.Context, item thread.ChecklistItem, _ ...core.DBExecutor) (thread.ChecklistItem, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.tasks[item.TaskID]; !ok {
		return thread.ChecklistItem{}, thread.ErrTaskNotFound
	}
	item.ID = uuid.New().String()
	stored := item
	repo.db.checklist[item.ID] = &stored
	return item, nil
}

func (repo *threadRepository) GetChecklistItem(_ context.Context, id string, _ ...core.DBExecutor) (thread.ChecklistItem, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if item, ok := repo.db.checklist[id]; ok {
		return *item, nil
	}
	return thread.ChecklistItem{}, thread.ErrChecklistItemNotFound
}

func (repo *threadRepository) UpdateChecklistItem(_ context.Context, item thread.ChecklistItem, _ ...core.DBExecutor) (thread.ChecklistItem, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	stored, ok := repo.db.checklist[item.ID]
	if !ok {
		return thread.ChecklistItem{}, thread.ErrChecklistItemNotFound
	}
	stored.Label = item.Label
	stored.Done = item.Done
	stored.Position = item.Position
	stored.UpdatedAt = item.UpdatedAt
	return *stored, nil
}

func (repo *threadRepository) DeleteChecklistItem(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.checklist[id]; !ok {
		return thread.ErrChecklistItemNotFound
	}
	delete(repo.db.checklist, id)
	return nil
}
