package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/wtlassist/backend/core"
)

// Roles
const (
	RoleStudent    = "student"
	RoleTeacher    = "teacher"
	RoleSuperadmin = "superadmin"
)

var (
	AllRoles = []string{RoleStudent, RoleTeacher, RoleSuperadmin}

	rolePriorities = map[string]int{
		RoleSuperadmin: 30,
		RoleTeacher:    11,
		RoleStudent:    1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Super Admin", Value: RoleSuperadmin},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string    `json:"id"`
	WTLUserID    *int64    `json:"wtl_user_id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`     // UTC
	UpdatedAt    time.Time `json:"updated_at"`     // UTC
	LastLogin    time.Time `json:"last_login"`     // UTC
	LastSyncedAt time.Time `json:"last_synced_at"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

// CheckPassword fails for users without a password (eg. users imported from WTL that never reset it).
func (u *User) CheckPassword(pwd string) error {
	if len(u.PasswordHash) == 0 {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) HasRole(role string) bool {
	return core.ContainsString(u.Roles, role)
}

func (u *User) IsSuperadmin() bool {
	return u.HasRole(RoleSuperadmin)
}

func (u *User) IsTeacher() bool {
	return u.HasRole(RoleTeacher)
}

func (u *User) IsStudent() bool {
	return u.HasRole(RoleStudent)
}

// IsStaff reports whether the user can see other users' threads.
func (u *User) IsStaff() bool {
	return u.IsTeacher() || u.IsSuperadmin()
}

func (u *User) IsSynced() bool {
	return u.WTLUserID != nil
}

// AddRole adds `role` if missing and keeps roles sorted by priority.
func (u *User) AddRole(role string) {
	if u.HasRole(role) {
		return
	}
	roles := append([]string{}, u.Roles...)
	roles = append(roles, role)
	u.Roles = make([]string, 0, len(roles))
	for _, r := range AllRoles {
		if core.ContainsString(roles, r) {
			u.Roles = append(u.Roles, r)
		}
	}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	uname := core.CleanString(uu.Username, true /* lower */)
	if uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	email := core.CleanString(uu.Email, true /* lower */)
	if email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

// SetUserRoles is the payload superadmins use to change someone's roles.
type SetUserRoles struct {
	Roles []string `json:"roles" validate:"required,min=1,allroles"`
}

func (sr *SetUserRoles) Validate(validate *validator.Validate) error { return validate.Struct(sr) }

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp *ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search      string
	Roles       []string
	IsActive    *bool
	Synced      *bool
	CreatedFrom time.Time
	CreatedTo   time.Time
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.Synced == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single user; the first non-empty field wins.
type GetFilter struct {
	ID              string
	WTLUserID       int64
	Username        string
	Email           string
	UsernameOrEmail string
}

// Orderings maps the fields users can be ordered by to DB columns.
var Orderings = map[string]string{
	"name":       "name",
	"username":   "username",
	"email":      "email",
	"is_active":  "is_active",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"last_login": "last_login",
}
