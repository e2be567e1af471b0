package main

import (
	"context"
	"fmt"

	"github.com/trezcool/academia/core/staff"
)

// invite sends a staff invitation on behalf of the system admin.
func (cli *commandLine) invite(ni staff.NewInvitation) error {
	inv, sent, err := cli.staffSvc.Create(context.Background(), ni, nil)
	if err != nil {
		return cli.describe(err)
	}
	_, _ = fmt.Fprintf(cli.out, "invited %s as %s (invitation %s, expires %s)\n",
		inv.Email, inv.Role, inv.ID, inv.ExpiresAt.Format("2006-01-02 15:04 MST"))
	if !sent {
		_, _ = fmt.Fprintln(cli.out, "warning: the invitation email could not be sent, use resend from the API")
	}
	return nil
}
