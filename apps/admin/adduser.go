package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/user"
)

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(name, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	email = core.CleanString(email, true /* lower */)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	exists := err == nil
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:      core.CleanString(name),
			Email:     email,
			AvatarURL: user.AvatarURL(name),
			Roles:     []string{user.RoleLearner},
			Level:     1,
			BranchID:  cli.conf.DefaultBranchID,
			CreatedAt: now,
		}
	}
	if isAdmin {
		usr.Roles = user.AllRoles
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}
