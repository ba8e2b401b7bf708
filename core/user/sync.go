package user

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/wtl"
)

const defaultSyncPageSize = 100

var errWTLIDConflict = errors.New("email is already linked to another WTL user")

type syncOutcome int

const (
	outcomeSkipped syncOutcome = iota
	outcomeCreated
	outcomeUpdated
)

// MapWTLRole converts a WTL role name to a local role. Unknown roles map to RoleStudent.
func MapWTLRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "teacher", "instructor", "trainer", "tutor":
		return RoleTeacher
	case "admin", "administrator", "superadmin", "super_admin":
		return RoleSuperadmin
	default:
		return RoleStudent
	}
}

// SyncUsers pulls every WTL user page by page and upserts local users.
// Users are matched by WTL ID first, then by email. Local roles are never removed.
func (svc *service) SyncUsers(ctx context.Context) (core.SyncResult, error) {
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

		remote, err := svc.wtl.ListUsers(ctx, page, size)
		if err != nil {
			return result, errors.Wrapf(err, "listing WTL users (page %d)", page)
		}

		fresh := 0
		for _, ru := range remote {
			if ru.ID > 0 {
				if seen[ru.ID] {
					continue
				}
				seen[ru.ID] = true
			}
			fresh++

			outcome, err := svc.syncUser(ctx, ru)
			if err != nil {
				svc.logger.Warn("syncing WTL user", err, map[string]interface{}{"wtl_user_id": ru.ID})
				result.Fail(errors.Wrapf(err, "WTL user %d", ru.ID))
				continue
			}
			switch outcome {
			case outcomeCreated:
				result.Created++
			case outcomeUpdated:
				result.Updated++
			default:
				result.Skipped++
			}
		}

		// a page smaller than requested is the last one; a page of already seen users means the API ignores paging
		if len(remote) < size || fresh == 0 {
			break
		}
	}

	svc.logger.Info("WTL users synced", map[string]interface{}{"result": result})
	return result, nil
}

func (svc *service) syncUser(ctx context.Context, ru wtl.User) (syncOutcome, error) {
	if ru.ID <= 0 {
		return outcomeSkipped, nil
	}

	email := core.CleanString(ru.Email, true /* lower */)
	uname := core.CleanString(ru.Username, true /* lower */)
	name := core.CleanString(ru.FullName())
	if name == "" {
		name = uname
	}
	if name == "" {
		name = email
	}
	if name == "" {
		return outcomeSkipped, nil
	}
	role := MapWTLRole(ru.Role)
	now := time.Now().UTC()

	outcome := outcomeSkipped
	err := svc.tx.WithTx(ctx, func(exec core.DBExecutor) error {
		usr, err := svc.repo.GetUser(ctx, GetFilter{WTLUserID: ru.ID}, exec)
		if errors.Cause(err) == ErrNotFound && email != "" {
			usr, err = svc.repo.GetUser(ctx, GetFilter{Email: email}, exec)
			if err == nil && usr.WTLUserID != nil && *usr.WTLUserID != ru.ID {
				return errWTLIDConflict
			}
		}

		switch {
		case errors.Cause(err) == ErrNotFound:
			if uname != "" && svc.repo.CheckUsernameUniqueness(ctx, uname, "", nil, exec) != nil {
				uname = ""
			}
			wtlID := ru.ID
			usr = User{
				WTLUserID:    &wtlID,
				Name:         name,
				Username:     uname,
				Email:        email,
				IsActive:     ru.Active,
				Roles:        []string{role},
				CreatedAt:    now,
				UpdatedAt:    now,
				LastSyncedAt: now,
			}
			if _, err = svc.repo.CreateUser(ctx, usr, exec); err != nil {
				return errors.Wrap(err, "creating user")
			}
			outcome = outcomeCreated
			return nil
		case err != nil:
			return errors.Wrap(err, "finding user")
		}

		wtlID := ru.ID
		usr.WTLUserID = &wtlID
		usr.Name = name
		usr.IsActive = ru.Active
		usr.AddRole(role)
		if email != "" && email != usr.Email &&
			svc.repo.CheckUsernameUniqueness(ctx, "", email, []User{usr}, exec) == nil {
			usr.Email = email
		}
		if usr.Username == "" && uname != "" &&
			svc.repo.CheckUsernameUniqueness(ctx, uname, "", []User{usr}, exec) == nil {
			usr.Username = uname
		}
		usr.UpdatedAt = now
		usr.LastSyncedAt = now
		if _, err = svc.repo.UpdateUser(ctx, usr, exec); err != nil {
			return errors.Wrap(err, "updating user")
		}
		outcome = outcomeUpdated
		return nil
	})
	return outcome, err
}
