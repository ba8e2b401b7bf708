package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/user"
)

const usersTable = "users"

var userColumns = []string{
	"id", "wtl_user_id", "name", "username", "email", "is_active", "roles", "password_hash",
	"created_at", "updated_at", "last_login", "last_synced_at",
}

type userRow struct {
	ID           string         `db:"id"`
	WTLUserID    null.Int64     `db:"wtl_user_id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash null.Bytes     `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
	LastSyncedAt null.Time      `db:"last_synced_at"`
}

func (r userRow) user() user.User {
	usr := user.User{
		ID:           r.ID,
		WTLUserID:    r.WTLUserID.Ptr(),
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email.String,
		IsActive:     r.IsActive,
		Roles:        []string(r.Roles),
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    utcOrZero(r.LastLogin),
		LastSyncedAt: utcOrZero(r.LastSyncedAt),
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	return usr
}

func userValues(usr user.User) map[string]interface{} {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return map[string]interface{}{
		"wtl_user_id":    null.Int64FromPtr(usr.WTLUserID),
		"name":           usr.Name,
		"username":       null.NewString(usr.Username, usr.Username != ""),
		"email":          null.NewString(usr.Email, usr.Email != ""),
		"is_active":      usr.IsActive,
		"roles":          pq.StringArray(roles),
		"password_hash":  null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		"updated_at":     usr.UpdatedAt.UTC(),
		"last_login":     null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
		"last_synced_at": null.NewTime(usr.LastSyncedAt.UTC(), !usr.LastSyncedAt.IsZero()),
	}
}

type userRepository struct {
	baseRepository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{baseRepository{exec: exec}}
}

// trapUniqueErr maps unique violations on username & email to user errors.
func (repo userRepository) trapUniqueErr(err error, msg string) error {
	if constraint, ok := constraintOf(err); ok {
		switch {
		case strings.Contains(constraint, "username"):
			return user.ErrUsernameExists
		case strings.Contains(constraint, "email"):
			return user.ErrEmailExists
		}
	}
	return errors.Wrap(err, msg)
}

func (repo userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	or := sq.Or{}
	if username != "" {
		or = append(or, sq.Eq{"username": username})
	}
	if email != "" {
		or = append(or, sq.Eq{"email": email})
	}
	if len(or) == 0 {
		return nil
	}

	q := psql.Select("username", "email").From(usersTable).Where(or).Limit(1)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q = q.Where(sq.NotEq{"id": ids})
	}

	type match struct {
		Username null.String `db:"username"`
		Email    null.String `db:"email"`
	}
	m, err := selectOne[match](ctx, repo.getExec(exec), q)
	if err != nil {
		if err = trapNoRows(err, nil, "checking user uniqueness"); err != nil {
			return err
		}
		return nil
	}
	if username != "" && m.Username.String == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	values := userValues(usr)
	values["id"] = uuid.New().String()
	values["created_at"] = usr.CreatedAt.UTC()

	q := psql.Insert(usersTable).SetMap(values).Suffix("RETURNING " + strings.Join(userColumns, ", "))
	row, err := selectOne[userRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return user.User{}, repo.trapUniqueErr(err, "inserting user")
	}
	return row.user(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	q := psql.Select(userColumns...).From(usersTable)

	if filter != nil {
		// users with Name, Username or Email matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			q = q.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"username": val}, sq.ILike{"email": val}})
		}
		// users with any of the provided roles
		if len(filter.Roles) > 0 {
			q = q.Where(sq.Expr("roles && ?", pq.StringArray(filter.Roles)))
		}
		if filter.IsActive != nil {
			q = q.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if filter.Synced != nil {
			if *filter.Synced {
				q = q.Where(sq.NotEq{"wtl_user_id": nil})
			} else {
				q = q.Where(sq.Eq{"wtl_user_id": nil})
			}
		}
		if !filter.CreatedFrom.IsZero() {
			q = q.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
		}
		if !filter.CreatedTo.IsZero() {
			q = q.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
		}
	}
	q = applyOrdering(q, ordering, "created_at DESC")

	rows, err := selectAll[userRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	q := psql.Select(userColumns...).From(usersTable).Limit(1)

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.WTLUserID > 0:
		q = q.Where(sq.Eq{"wtl_user_id": filter.WTLUserID})
	case filter.Username != "":
		q = q.Where(sq.Eq{"username": filter.Username})
	case filter.Email != "":
		q = q.Where(sq.Eq{"email": filter.Email})
	case filter.UsernameOrEmail != "":
		q = q.Where(sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}})
	default:
		return user.User{}, user.ErrNotFound
	}

	row, err := selectOne[userRow](ctx, repo.getExec(exec), q)
	if err != nil {
		return user.User{}, trapNoRows(err, user.ErrNotFound, "finding user")
	}
	return row.user(), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if _, err := uuid.Parse(usr.ID); err != nil {
		return user.User{}, user.ErrNotFound
	}
	q := psql.Update(usersTable).
		SetMap(userValues(usr)).
		Where(sq.Eq{"id": usr.ID}).
		Suffix("RETURNING " + strings.Join(userColumns, ", "))

	row, err := selectOne[userRow](ctx, repo.getExec(exec), q)
	if err != nil {
		if errors.Cause(err) == errNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, repo.trapUniqueErr(err, "updating user")
	}
	return row.user(), nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	ids = validUUIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	cnt, err := execute(ctx, repo.getExec(exec), psql.Delete(usersTable).Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return cnt, nil
}
