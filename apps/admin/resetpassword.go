package main

import (
	"context"

	"github.com/trezcool/markbook/core/instructor"
)

func (cli *commandLine) resetPassword(uname, pwd string) error {
	ctx := context.Background()
	ins, err := cli.insSvc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return err
	}
	_, err = cli.insSvc.ResetPassword(ctx, ins.ID, instructor.ResetPassword{Password: pwd, PasswordConfirm: pwd})
	return err
}

func (cli *commandLine) addInstructor(name, uname, email, pwd string, isAdmin bool) error {
	ins, err := cli.insSvc.Create(context.Background(), instructor.NewInstructor{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
		IsAdmin:         isAdmin,
	})
	if err != nil {
		return err
	}
	cli.printf("instructor %q created (id: %s)\n", ins.Username, ins.ID)
	return nil
}
