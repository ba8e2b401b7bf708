package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rollbar/rollbar-go"

	"github.com/wtlassist/backend/apps/shared"
	"github.com/wtlassist/backend/core"
	"github.com/wtlassist/backend/core/user"
	logsvc "github.com/wtlassist/backend/services/logger"
	"github.com/wtlassist/backend/storage/database"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(os.Stderr, conf)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("setting up database", err)
	}

	formsAPI, err := shared.NewFormsAPI(context.Background(), conf)
	if err != nil {
		logger.Fatal("setting up Google Forms", err)
	}
	mailSvc := shared.NewEmailService(conf, logger)
	svcs := shared.NewServices(db, shared.NewWTLAPI(conf, logger), formsAPI, mailSvc, conf, logger)

	validate, _ := shared.NewValidator()
	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		usrSvc:   svcs.Users,
		recorder: svcs.Recorder,
		validate: validate,
	}
	err = cli.run(os.Args)
	if err != nil && err != errHelp {
		fmt.Printf("\nerror: %s\n", err)
	}

	rollbar.Close()
	_ = db.Close()
	if err != nil {
		os.Exit(1)
	}
}
