package main

import (
	"context"
	"fmt"

	"github.com/trezcool/academia/core/account"
)

// provision creates an account with an active profile of any type, bypassing invitations.
func (cli *commandLine) provision(pa account.ProvisionAccount) error {
	acc, prof, err := cli.accountSvc.Provision(context.Background(), pa)
	if err != nil {
		return cli.describe(err)
	}
	_, _ = fmt.Fprintf(cli.out, "created account %s (%s) with %s profile %s\n", acc.ID, acc.Email, prof.Type, prof.ID)
	return nil
}
