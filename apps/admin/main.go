package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/staff"
	"github.com/trezcool/academia/core/token"
	appfs "github.com/trezcool/academia/fs"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage"
	"github.com/trezcool/academia/storage/database"
	inmemdb "github.com/trezcool/academia/storage/database/inmem"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	errAndDie(conf.Validate())
	appLogger := logsvc.NewRollbarLogger(logger, conf)

	// set up DB
	var db *sql.DB
	var st *storage.Store
	if conf.Database.Engine == core.EngineMemory {
		st = storage.NewMemoryStore(inmemdb.Open())
	} else {
		var err error
		db, err = database.Open(conf)
		errAndDie(err)
		errAndDie(db.Ping())
		st = storage.NewSQLStore(db)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, appLogger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, appLogger)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	account.InitValidators(validate, translator)
	staff.InitValidators(validate, translator)
	core.ParseEmailTemplates(appfs.FS, "templates/email", conf, appLogger)
	account.LoadCommonPasswords(appfs.FS, "assets/common-passwords.txt.gz", appLogger)

	accSvc := account.NewService(st.DB, st.AccountRepo, token.NewService(conf.SecretKey, conf.AppName), mailSvc, validate, conf)

	// start CLI
	cli := commandLine{
		db:         db,
		accountSvc: accSvc,
		staffSvc:   staff.NewService(st.DB, st.StaffRepo, accSvc, mailSvc, validate, conf, appLogger),
		translator: translator,
		out:        os.Stdout,
	}
	err := cli.run(os.Args)

	_ = mailSvc.Close()
	_ = st.Close()
	_ = appLogger.Close()

	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
