package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/user"
)

// addUser creates a user, or activates & updates the password and roles of the user
// already using uname or email.
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)

	usr, err := cli.usrSvc.GetByUsernameOrEmail(ctx, uname)
	if errors.Cause(err) == user.ErrNotFound {
		usr, err = cli.usrSvc.GetByUsernameOrEmail(ctx, email)
	}

	switch {
	case errors.Cause(err) == user.ErrNotFound:
		if name == "" {
			name = uname
		}
		nu := user.NewUser{
			Name:            name,
			Username:        uname,
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           roles,
		}
		if err = nu.Validate(ctx, cli.validate, cli.usrSvc); err != nil {
			return err
		}
		if usr, err = cli.usrSvc.Create(ctx, nu); err != nil {
			return errors.Wrap(err, "creating user")
		}
		fmt.Printf("user %q created\n", usr.Username)
		return nil
	case err != nil:
		return err
	}

	nu := user.NewUser{
		Name:            usr.Name,
		Username:        usr.Username,
		Email:           usr.Email,
		Password:        pwd,
		PasswordConfirm: pwd,
		Roles:           roles,
	}
	if err = cli.validate.Struct(nu); err != nil {
		return err
	}
	for _, role := range usr.Roles {
		if !core.ContainsString(roles, role) {
			roles = append(roles, role)
		}
	}
	active := true
	usr, err = cli.usrSvc.Update(ctx, usr, user.UpdateUser{
		Name:     usr.Name,
		Username: usr.Username,
		Email:    usr.Email,
		IsActive: &active,
		Roles:    roles,
		Password: pwd,
	})
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	fmt.Printf("user %q updated\n", usr.Username)
	return nil
}
