package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/rollbar/rollbar-go"

	echoapi "github.com/wtlassist/backend/apps/api/echo"
	"github.com/wtlassist/backend/apps/shared"
	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/syncrun"
	"github.com/wtlassist/backend/core/user"
	logsvc "github.com/wtlassist/backend/services/logger"
	"github.com/wtlassist/backend/storage/database"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(os.Stderr, conf)
	defer rollbar.Close()

	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("setting up database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()
	if err = database.Migrate(db.DB); err != nil {
		logger.Fatal("migrating database", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	formsAPI, err := shared.NewFormsAPI(ctx, conf)
	if err != nil {
		logger.Fatal("setting up Google Forms", err)
	}
	if formsAPI == nil {
		logger.Warn("Google Forms credentials not set: survey sync disabled")
	}
	mailSvc := shared.NewEmailService(conf, logger)
	svcs := shared.NewServices(db, shared.NewWTLAPI(conf, logger), formsAPI, mailSvc, conf, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : %s", conf))
	defer logger.Info("Application stopped")

	validate, translator := shared.NewValidator()
	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error("debug server closed", err)
		}
	}()

	// =========================================================================
	// Start Sync Scheduler

	if conf.Sync.Enabled {
		schedErrs := syncrun.NewScheduler(conf, svcs.Recorder, logger).ServeBackground(ctx)
		go func() {
			if err := <-schedErrs; err != nil && err != context.Canceled {
				logger.Error("sync scheduler stopped", err)
			}
		}()
	}

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(&echoapi.Options{
		Address: conf.Server.Address,
		SignalShutdown: func() {
			select {
			case shutdown <- syscall.SIGTERM:
			default: // already shutting down
			}
		},
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    svcs.Users,
		CourseSvc:  svcs.Courses,
		ThreadSvc:  svcs.Threads,
		SurveySvc:  svcs.Surveys,
		Recorder:   svcs.Recorder,
	})

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("API listening on " + conf.Server.Address)
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		if err != nil {
			logger.Error("server error", err)
		}

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		cancel() // stops the scheduler

		// give outstanding requests a deadline for completion
		stopCtx, stop := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer stop()

		if err = server.Stop(stopCtx); err != nil {
			logger.Error("could not stop server gracefully", err)
		}
	}
}
