package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/staff"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db         *sql.DB // nil with the memory engine
	accountSvc *account.Service
	staffSvc   *staff.Service
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	_, _ = fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset an account's password")
	_, _ = fmt.Fprintln(cli.out, "  provision -email EMAIL -first NAME -last NAME -type TYPE - create an active account")
	_, _ = fmt.Fprintln(cli.out, "  invite -email EMAIL -first NAME -last NAME -role ROLE - invite a staff member")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The account's email. The password will be prompted next.")

	provisionCmd := flag.NewFlagSet("provision", flag.ContinueOnError)
	provisionEmail := provisionCmd.String("email", "", "The account's email. The password will be prompted next.")
	provisionFirst := provisionCmd.String("first", "", "The profile's first name.")
	provisionLast := provisionCmd.String("last", "", "The profile's last name.")
	provisionType := provisionCmd.String("type", string(account.TypeAdmin), "The profile type.")

	inviteCmd := flag.NewFlagSet("invite", flag.ContinueOnError)
	inviteEmail := inviteCmd.String("email", "", "The invitee's email.")
	inviteFirst := inviteCmd.String("first", "", "The invitee's first name.")
	inviteLast := inviteCmd.String("last", "", "The invitee's last name.")
	inviteRole := inviteCmd.String("role", string(account.TypeTeacher), "The staff role.")

	for _, fs := range []*flag.FlagSet{resetPasswordCmd, provisionCmd, inviteCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "provision":
		if err := provisionCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *provisionEmail == "" {
			provisionCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.provision(account.ProvisionAccount{
			Email:       *provisionEmail,
			Password:    pwd,
			FirstName:   *provisionFirst,
			LastName:    *provisionLast,
			ProfileType: account.ProfileType(*provisionType),
		})

	case "invite":
		if err := inviteCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *inviteEmail == "" {
			inviteCmd.Usage()
			return errHelp
		}
		return cli.invite(staff.NewInvitation{
			Email:     *inviteEmail,
			FirstName: *inviteFirst,
			LastName:  *inviteLast,
			Role:      account.ProfileType(*inviteRole),
		})

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	return string(pwd), err
}

// describe flattens validation errors into a single line.
func (cli *commandLine) describe(err error) error {
	var msgs []string

	var vErrs validator.ValidationErrors
	var appErr *core.ValidationError
	switch {
	case errors.As(err, &vErrs):
		for _, fe := range vErrs {
			msgs = append(msgs, fe.Field()+": "+fe.Translate(cli.translator))
		}
	case errors.As(err, &appErr):
		for _, fe := range appErr.Fields {
			msgs = append(msgs, fe.Field+": "+fe.Error)
		}
	default:
		return err
	}

	sort.Strings(msgs)
	return errors.New("invalid input: " + strings.Join(msgs, "; "))
}
