package course

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/user"
	"github.com/wtlassist/backend/core/wtl"
)

const defaultSyncPageSize = 100

// SyncCourses pulls every WTL course page by page and mirrors it locally with its lessons and enrollments.
// Lessons missing upstream are deleted; members that are not mirrored users are skipped.
// A course whose lessons or members cannot be fetched is counted as failed and left untouched.
func (svc *service) SyncCourses(ctx context.Context) (core.SyncResult, error) {
	var result core.SyncResult

	size := svc.conf.WTL.PageSize
	if size <= 0 {
		size = defaultSyncPageSize
	}

	seen := make(map[int64]bool)
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		remote, err := svc.wtl.ListCourses(ctx, page, size)
		if err != nil {
			return result, errors.Wrapf(err, "listing WTL courses (page %d)", page)
		}

		fresh := 0
		for _, rc := range remote {
			if rc.ID <= 0 {
				result.Skipped++
				continue
			}
			if seen[rc.ID] {
				continue
			}
			seen[rc.ID] = true
			fresh++

			res, err := svc.syncCourse(ctx, rc)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return result, ctxErr
				}
				svc.logger.Warn("syncing WTL course", err, map[string]interface{}{"wtl_course_id": rc.ID})
				result.Fail(errors.Wrapf(err, "WTL course %d", rc.ID))
				continue
			}
			result.Merge(res)
		}

		if len(remote) < size || fresh == 0 {
			break
		}
	}

	svc.logger.Info("WTL courses synced", map[string]interface{}{"result": result})
	return result, nil
}

func (svc *service) syncCourse(ctx context.Context, rc wtl.Course) (core.SyncResult, error) {
	var result core.SyncResult

	lessons, err := svc.wtl.ListLessons(ctx, rc.ID)
	if err != nil {
		return result, errors.Wrap(err, "listing lessons")
	}
	// without a members endpoint the current enrollments are kept
	members, err := svc.wtl.ListCourseUsers(ctx, rc.ID)
	hasMembers := err == nil
	if err != nil && errors.Cause(err) != wtl.ErrNotFound {
		return result, errors.Wrap(err, "listing members")
	}
	enrollments, skipped, err := svc.resolveMembers(ctx, members)
	if err != nil {
		return result, err
	}
	result.Skipped += skipped

	now := time.Now().UTC()
	err = svc.tx.WithTx(ctx, func(exec core.DBExecutor) error {
		c, created, err := svc.repo.UpsertCourse(ctx, Course{
			WTLCourseID:  rc.ID,
			Title:        core.CleanString(rc.Title),
			Description:  strings.TrimSpace(rc.Description),
			Status:       core.CleanString(rc.Status, true /* lower */),
			StartsAt:     utcPtr(rc.StartsAt),
			EndsAt:       utcPtr(rc.EndsAt),
			LastSyncedAt: now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "upserting course")
		}
		count(&result, created)

		keep := make([]int64, 0, len(lessons))
		for i, rl := range lessons {
			if rl.ID <= 0 {
				result.Skipped++
				continue
			}
			position := rl.Position
			if position <= 0 {
				position = i + 1
			}
			_, created, err := svc.repo.UpsertLesson(ctx, Lesson{
				CourseID:     c.ID,
				WTLLessonID:  rl.ID,
				Title:        core.CleanString(rl.Title),
				Description:  strings.TrimSpace(rl.Description),
				Position:     position,
				PublishedAt:  utcPtr(rl.PublishedAt),
				LastSyncedAt: now,
				CreatedAt:    now,
				UpdatedAt:    now,
			}, exec)
			if err != nil {
				return errors.Wrapf(err, "upserting lesson %d", rl.ID)
			}
			count(&result, created)
			keep = append(keep, rl.ID)
		}
		if _, err = svc.repo.DeleteLessonsExcept(ctx, c.ID, keep, exec); err != nil {
			return errors.Wrap(err, "pruning stale lessons")
		}

		if !hasMembers {
			return nil
		}
		userIDs := make([]string, 0, len(enrollments))
		for _, e := range enrollments {
			e.CourseID = c.ID
			e.CreatedAt, e.UpdatedAt = now, now
			created, err := svc.repo.UpsertEnrollment(ctx, e, exec)
			if err != nil {
				return errors.Wrap(err, "upserting enrollment")
			}
			count(&result, created)
			userIDs = append(userIDs, e.UserID)
		}
		if _, err = svc.repo.DeleteEnrollmentsExcept(ctx, c.ID, userIDs, exec); err != nil {
			return errors.Wrap(err, "pruning stale enrollments")
		}
		return nil
	})
	if err != nil {
		return core.SyncResult{}, err
	}
	return result, nil
}

// resolveMembers maps WTL members to local users. Unknown members are counted, not returned.
func (svc *service) resolveMembers(ctx context.Context, members []wtl.Member) ([]Enrollment, int, error) {
	var skipped int
	seen := make(map[string]bool, len(members))
	enrollments := make([]Enrollment, 0, len(members))
	for _, m := range members {
		usr, err := svc.usrSvc.GetByWTLID(ctx, m.UserID)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				skipped++
				continue
			}
			return nil, 0, errors.Wrapf(err, "finding user %d", m.UserID)
		}
		if seen[usr.ID] {
			continue
		}
		seen[usr.ID] = true
		enrollments = append(enrollments, Enrollment{UserID: usr.ID, Role: user.MapWTLRole(m.Role)})
	}
	return enrollments, skipped, nil
}

func count(result *core.SyncResult, created bool) {
	if created {
		result.Created++
	} else {
		result.Updated++
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
