package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) UpsertCourse(_ context.Context, c course.Course, _ ...core.DBExecutor) (course.Course, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.courses {
		if existing.WTLCourseID == c.WTLCourseID {
			c.ID = existing.ID
			c.CreatedAt = existing.CreatedAt
			*existing = c
			return c, false, nil
		}
	}
	c.ID = uuid.New().String()
	stored := c
	repo.db.courses[c.ID] = &stored
	return c, true, nil
}

func (repo *courseRepository) QueryCourses(_ context.Context, filter *course.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, c := range repo.db.courses {
		if filter != nil {
			if filter.Search != "" && !(containsFold(c.Title, filter.Search) || containsFold(c.Description, filter.Search)) {
				continue
			}
			if filter.Status != "" && c.Status != filter.Status {
				continue
			}
			if filter.UserID != "" {
				if _, ok := repo.db.enrollments[[2]string{c.ID, filter.UserID}]; !ok {
					continue
				}
			}
		}
		courses = append(courses, *c)
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "title", Ascending: true}}
	}
	orderBy(courses, ordering, func(a, b course.Course, column string) int {
		switch column {
		case "title":
			return cmpStrings(a.Title, b.Title)
		case "status":
			return cmpStrings(a.Status, b.Status)
		case "starts_at":
			return cmpTimePtrs(a.StartsAt, b.StartsAt)
		case "ends_at":
			return cmpTimePtrs(a.EndsAt, b.EndsAt)
		case "created_at":
			return cmpTimes(a.CreatedAt, b.CreatedAt)
		case "updated_at":
			return cmpTimes(a.UpdatedAt, b.UpdatedAt)
		}
		return 0
	})
	return courses, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, filter course.GetFilter, _ ...core.DBExecutor) (course.Course, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if c, ok := repo.db.courses[filter.ID]; ok {
			return *c, nil
		}
		return course.Course{}, course.ErrNotFound
	}
	if filter.WTLCourseID > 0 {
		for _, c := range repo.db.courses {
			if c.WTLCourseID == filter.WTLCourseID {
				return *c, nil
			}
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) UpsertLesson(_ context.Context, l course.Lesson, _ ...core.DBExecutor) (course.Lesson, bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.courses[l.CourseID]; !ok {
		return course.Lesson{}, false, course.ErrNotFound
	}
	for _, existing := range repo.db.lessons {
		if existing.WTLLessonID == l.WTLLessonID {
			l.ID = existing.ID
			l.CreatedAt = existing.CreatedAt
			*existing = l
			return l, false, nil
		}
	}
	l.ID = uuid.New().String()
	stored := l
	repo.db.lessons[l.ID] = &stored
	return l, true, nil
}

func (repo *courseRepository) QueryLessons(_ context.Context, courseID string, _ ...core.DBExecutor) ([]course.Lesson, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	lessons := make([]course.Lesson, 0)
	for _, l := range repo.db.lessons {
		if l.CourseID == courseID {
			lessons = append(lessons, *l)
		}
	}
	orderBy(lessons, []core.DBOrdering{{Field: "position", Ascending: true}, {Field: "title", Ascending: true}},
		func(a, b course.Lesson, column string) int {
			if column == "position" {
				return cmpInts(a.Position, b.Position)
			}
			return cmpStrings(a.Title, b.Title)
		})
	return lessons, nil
}

func (repo *courseRepository) GetLesson(_ context.Context, id string, _ ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if l, ok := repo.db.lessons[id]; ok {
		return *l, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) DeleteLessonsExcept(_ context.Context, courseID string, keep []int64, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	kept := make(map[int64]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var cnt int
	for id, l := range repo.db.lessons {
		if l.CourseID == courseID && !kept[l.WTLLessonID] {
			delete(repo.db.lessons, id)
			for _, lessons := range repo.db.threadLessons {
				delete(lessons, id)
			}
			cnt++
		}
	}
	return cnt, nil
}

func (repo *courseRepository) UpsertEnrollment(_ context.Context, e course.Enrollment, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := [2]string{e.CourseID, e.UserID}
	if existing, ok := repo.db.enrollments[key]; ok {
		existing.Role = e.Role
		existing.UpdatedAt = e.UpdatedAt
		return false, nil
	}
	stored := e
	repo.db.enrollments[key] = &stored
	return true, nil
}

func (repo *courseRepository) QueryEnrollments(_ context.Context, courseID string, _ ...core.DBExecutor) ([]course.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	enrollments := make([]course.Enrollment, 0)
	for key, e := range repo.db.enrollments {
		if key[0] == courseID {
			enrollments = append(enrollments, *e)
		}
	}
	orderBy(enrollments, []core.DBOrdering{{Field: "created_at", Ascending: true}, {Field: "user_id", Ascending: true}},
		func(a, b course.Enrollment, column string) int {
			if column == "created_at" {
				return cmpTimes(a.CreatedAt, b.CreatedAt)
			}
			return cmpStrings(a.UserID, b.UserID)
		})
	return enrollments, nil
}

func (repo *courseRepository) DeleteEnrollmentsExcept(_ context.Context, courseID string, keep []string, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var cnt int
	for key := range repo.db.enrollments {
		if key[0] == courseID && !kept[key[1]] {
			delete(repo.db.enrollments, key)
			cnt++
		}
	}
	return cnt, nil
}
