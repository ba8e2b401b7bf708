package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func copyUser(u *user.User) user.User {
	usr := *u
	usr.Roles = append([]string{}, u.Roles...)
	if u.WTLUserID != nil {
		id := *u.WTLUserID
		usr.WTLUserID = &id
	}
	return usr
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers []user.User, _ ...core.DBExecutor) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	usr.ID = uuid.New().String()
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	stored := copyUser(&usr)
	repo.db.users[usr.ID] = &stored
	return copyUser(&stored), nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, u := range repo.db.users {
		if filter != nil && !matchUser(u, filter) {
			continue
		}
		users = append(users, copyUser(u))
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	orderBy(users, ordering, func(a, b user.User, column string) int {
		switch column {
		case "name":
			return cmpStrings(a.Name, b.Name)
		case "username":
			return cmpStrings(a.Username, b.Username)
		case "email":
			return cmpStrings(a.Email, b.Email)
		case "is_active":
			return cmpBools(a.IsActive, b.IsActive)
		case "created_at":
			return cmpTimes(a.CreatedAt, b.CreatedAt)
		case "updated_at":
			return cmpTimes(a.UpdatedAt, b.UpdatedAt)
		case "last_login":
			return cmpTimes(a.LastLogin, b.LastLogin)
		}
		return 0
	})
	return users, nil
}

func matchUser(u *user.User, filter *user.QueryFilter) bool {
	if filter.Search != "" &&
		!(containsFold(u.Name, filter.Search) || containsFold(u.Username, filter.Search) || containsFold(u.Email, filter.Search)) {
		return false
	}
	if len(filter.Roles) > 0 {
		var found bool
		for _, role := range filter.Roles {
			if u.HasRole(role) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && u.IsActive != *filter.IsActive {
		return false
	}
	if filter.Synced != nil && u.IsSynced() != *filter.Synced {
		return false
	}
	if !filter.CreatedFrom.IsZero() && u.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && u.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if u, ok := repo.db.users[filter.ID]; ok {
			return copyUser(u), nil
		}
		return user.User{}, user.ErrNotFound
	}

	var match func(u *user.User) bool
	switch {
	case filter.WTLUserID > 0:
		match = func(u *user.User) bool { return u.WTLUserID != nil && *u.WTLUserID == filter.WTLUserID }
	case filter.Username != "":
		match = func(u *user.User) bool { return u.Username == filter.Username }
	case filter.Email != "":
		match = func(u *user.User) bool { return u.Email == filter.Email }
	case filter.UsernameOrEmail != "":
		match = func(u *user.User) bool { return u.Username == filter.UsernameOrEmail || u.Email == filter.UsernameOrEmail }
	default:
		return user.User{}, user.ErrNotFound
	}
	for _, u := range repo.db.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if usr.UpdatedAt.IsZero() {
		usr.UpdatedAt = time.Now().UTC()
	}
	stored := copyUser(&usr)
	repo.db.users[usr.ID] = &stored
	return copyUser(&stored), nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.users[id]; !ok {
			continue
		}
		delete(repo.db.users, id)
		cnt++

		// cascades
		for key := range repo.db.enrollments {
			if key[1] == id {
				delete(repo.db.enrollments, key)
			}
		}
		for tid, t := range repo.db.threads {
			if t.OwnerID == id {
				repo.db.deleteThread(tid)
			} else if t.AuthorID == id {
				t.AuthorID = ""
			}
		}
		for _, n := range repo.db.notes {
			if n.AuthorID == id {
				n.AuthorID = ""
			}
		}
		for _, t := range repo.db.tasks {
			if t.AssigneeID == id {
				t.AssigneeID = ""
			}
		}
	}
	return cnt, nil
}
