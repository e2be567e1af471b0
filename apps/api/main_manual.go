package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/setup"
	"github.com/trezcool/academia/core/staff"
	"github.com/trezcool/academia/core/token"
	appfs "github.com/trezcool/academia/fs"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/services/ratelimit"
	"github.com/trezcool/academia/storage"
)

const (
	templatesDir        = "templates/email"
	commonPasswordsFile = "assets/common-passwords.txt.gz"
)

func startManual() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	if err := conf.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer func() { _ = logger.Close() }()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	st, err := storage.Open(conf, dbLogger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = st.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	defer func() { _ = mailSvc.Close() }()

	limiter, err := ratelimit.New(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up rate limiter: %v", err), err)
	}
	defer func() { _ = limiter.Close() }()

	validate := validator.New()
	translator := core.NewTranslator()

	tokens := token.NewService(conf.SecretKey, conf.AppName)
	accSvc := account.NewService(st.DB, st.AccountRepo, tokens, mailSvc, validate, conf)
	staffSvc := staff.NewService(st.DB, st.StaffRepo, accSvc, mailSvc, validate, conf, logger)
	setupSvc := setup.NewService(st.DB, st.AccountRepo, accSvc, tokens, mailSvc, validate, conf, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.InitValidators(validate, translator)
	account.InitValidators(validate, translator)
	staff.InitValidators(validate, translator)
	setup.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, templatesDir, conf, logger)

	account.LoadCommonPasswords(appfs.FS, commonPasswordsFile, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("dbEngine").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Tokens:     tokens,
			AccountSvc: accSvc,
			StaffSvc:   staffSvc,
			SetupSvc:   setupSvc,
			Limiter:    limiter,
			Validate:   validate,
			Translator: translator,
		},
	)

	go func() {
		server.Start()
	}()

	waitForShutdown(server, conf, logger)
}

// waitForShutdown blocks until the server fails or a shutdown signal arrives.
func waitForShutdown(server *echoapi.Server, conf *core.Config, logger core.Logger) {
	select {
	case err := <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
