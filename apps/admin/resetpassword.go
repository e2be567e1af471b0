package main

import (
	"context"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	return cli.accountSvc.SetPassword(context.Background(), email, pwd)
}
