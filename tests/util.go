// Package testutil wires the services on top of the in-memory store for tests.
package testutil

import (
	"context"
	"io/ioutil"
	"log"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/setup"
	"github.com/trezcool/academia/core/staff"
	"github.com/trezcool/academia/core/token"
	appfs "github.com/trezcool/academia/fs"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
)

// DefaultPassword satisfies the password policy and resembles none of the attributes used by the tests.
const DefaultPassword = "LolC@t123"

var initOnce sync.Once

type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	DB         *inmemdb.DB
	AccRepo    account.Repository
	StaffRepo  staff.Repository
	Tokens     *token.Service
	Mailer     *emailsvc.ConsoleServiceMock
	Validate   *validator.Validate
	Translator ut.Translator
	AccountSvc *account.Service
	StaffSvc   *staff.Service
	SetupSvc   *setup.Service
}

// NewEnv returns services backed by a fresh in-memory store, a recording mailer and the test configuration.
func NewEnv() *Env {
	conf := core.NewTestConfig()
	lgr := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "TEST : ", log.LstdFlags), conf)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	account.InitValidators(validate, translator)
	staff.InitValidators(validate, translator)
	setup.InitValidators(validate, translator)

	initOnce.Do(func() {
		core.ParseEmailTemplates(appfs.FS, "templates/email", conf, lgr)
		account.LoadCommonPasswords(appfs.FS, "assets/common-passwords.txt.gz", lgr)
	})

	db := inmemdb.Open()
	env := &Env{
		Conf:       conf,
		Logger:     lgr,
		DB:         db,
		AccRepo:    inmemdb.NewAccountRepository(db),
		StaffRepo:  inmemdb.NewStaffRepository(db),
		Tokens:     token.NewService(conf.SecretKey, conf.AppName),
		Mailer:     emailsvc.NewConsoleServiceMock(conf, lgr),
		Validate:   validate,
		Translator: translator,
	}
	env.AccountSvc = account.NewService(db, env.AccRepo, env.Tokens, env.Mailer, validate, conf)
	env.StaffSvc = staff.NewService(db, env.StaffRepo, env.AccountSvc, env.Mailer, validate, conf, lgr)
	env.SetupSvc = setup.NewService(db, env.AccRepo, env.AccountSvc, env.Tokens, env.Mailer, validate, conf, lgr)
	return env
}

// Reset empties the store and the mailer.
func (env *Env) Reset() {
	env.DB.Reset()
	env.Mailer.Reset()
}

// CreateAccount stores an Account with one Profile. An empty pwd creates an account without password.
func CreateAccount(
	t *testing.T,
	env *Env,
	email, pwd, firstName, lastName string,
	pt account.ProfileType,
	isActive bool,
) (account.Account, account.Profile) {
	acc := account.Account{Email: email, EmailVerified: pwd != ""}
	if pwd != "" {
		if err := acc.SetPassword(pwd); err != nil {
			t.Fatalf("CreateAccount() failed: %v", err)
		}
	}
	acc, prof, err := env.AccountSvc.CreateWithProfile(
		context.Background(),
		acc,
		account.Profile{Type: pt, FirstName: firstName, LastName: lastName, IsActive: isActive},
	)
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	return acc, prof
}

// SessionToken issues a session token for acc.
func SessionToken(t *testing.T, env *Env, acc account.Account) string {
	tok, err := env.Tokens.IssueSession(acc.ID, acc.Email, env.Conf.Auth.SessionTokenTTL)
	if err != nil {
		t.Fatalf("SessionToken() failed: %v", err)
	}
	return tok
}

// SetupToken issues a setup token for prof, valid for ttl.
func SetupToken(t *testing.T, env *Env, acc account.Account, prof account.Profile, ttl time.Duration) string {
	tok, err := env.Tokens.IssueSetup(acc.ID, prof.ID, acc.Email, string(prof.Type), ttl)
	if err != nil {
		t.Fatalf("SetupToken() failed: %v", err)
	}
	return tok
}

// CreateInvitation invites email as role through the staff service, on behalf of the system admin.
func CreateInvitation(t *testing.T, env *Env, email, firstName, lastName string, role account.ProfileType) staff.Invitation {
	inv, _, err := env.StaffSvc.Create(context.Background(), staff.NewInvitation{
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Role:      role,
	}, nil)
	if err != nil {
		t.Fatalf("CreateInvitation() failed: %v", err)
	}
	return inv
}

// InvitationToken returns the secret token of the invitation id.
func InvitationToken(t *testing.T, env *Env, id string) string {
	inv, err := env.StaffRepo.GetInvitation(context.Background(), id)
	if err != nil {
		t.Fatalf("InvitationToken() failed: %v", err)
	}
	return inv.Token
}
