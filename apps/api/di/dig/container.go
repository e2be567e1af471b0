package dig_container

import (
	"context"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/setup"
	"github.com/trezcool/academia/core/staff"
	"github.com/trezcool/academia/core/token"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/services/ratelimit"
	"github.com/trezcool/academia/storage"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	Tokens     *token.Service
	AccountSvc *account.Service
	StaffSvc   *staff.Service
	SetupSvc   *setup.Service
	Limiter    ratelimit.Limiter
	Validate   *validator.Validate
	Translator ut.Translator
}

type repositories struct {
	dig.Out
	DB          core.Transactor
	AccountRepo account.Repository
	StaffRepo   staff.Repository
}

func newConfig() (*core.Config, error) {
	conf := core.NewConfig()
	return conf, conf.Validate()
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newStore(conf *core.Config, loggerParam DBLoggerParam) (*storage.Store, error) {
	st, err := storage.Open(conf, loggerParam.Logger)
	return st, errors.Wrap(err, "setting up database")
}

func newRepositories(st *storage.Store) repositories {
	return repositories{DB: st.DB, AccountRepo: st.AccountRepo, StaffRepo: st.StaffRepo}
}

func newTokenService(conf *core.Config) *token.Service {
	return token.NewService(conf.SecretKey, conf.AppName)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newLimiter(conf *core.Config) (ratelimit.Limiter, error) {
	return ratelimit.New(context.Background(), conf)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Tokens:     p.Tokens,
		AccountSvc: p.AccountSvc,
		StaffSvc:   p.StaffSvc,
		SetupSvc:   p.SetupSvc,
		Limiter:    p.Limiter,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(newConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStore))
	must(c.Provide(newRepositories))
	must(c.Provide(newTokenService))
	must(c.Provide(newEmailService))
	must(c.Provide(newLimiter))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(account.NewService))
	must(c.Provide(staff.NewService))
	must(c.Provide(setup.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
