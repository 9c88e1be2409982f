package main

import (
	"context"
	"time"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/user"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err := cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
