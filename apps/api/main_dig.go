package main

import (
	"expvar"
	"fmt"
	"log"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	dig_container "github.com/trezcool/academia/apps/api/di/dig"
	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/setup"
	"github.com/trezcool/academia/core/staff"
	appfs "github.com/trezcool/academia/fs"
	"github.com/trezcool/academia/services/ratelimit"
	"github.com/trezcool/academia/storage"
)

func startWithDig() {
	c := dig_container.New()

	must(c.Invoke(func(
		conf *core.Config,
		apiLogger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		st *storage.Store,
		mailSvc core.EmailService,
		limiter ratelimit.Limiter,
		validate *validator.Validate,
		translator ut.Translator,
		server *echoapi.Server,
	) {
		// =========================================================================
		// Initialize App

		apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))

		core.InitValidators(validate, translator)
		account.InitValidators(validate, translator)
		staff.InitValidators(validate, translator)
		setup.InitValidators(validate, translator)

		core.ParseEmailTemplates(appfs.FS, templatesDir, conf, apiLogger)

		account.LoadCommonPasswords(appfs.FS, commonPasswordsFile, apiLogger)

		dbLogger := dbLoggerParam.Logger
		defer func() {
			if err := st.Close(); err != nil {
				dbLogger.Error("Failed to close", err)
			}
		}()
		defer func() { _ = mailSvc.Close() }()
		defer func() { _ = limiter.Close() }()
		defer apiLogger.Info("Application stopped")

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
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		waitForShutdown(server, conf, apiLogger)
	}))
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
