package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/markbook/core"
	"github.com/trezcool/markbook/core/assessment"
	"github.com/trezcool/markbook/core/instructor"
	emailsvc "github.com/trezcool/markbook/services/email"
	logsvc "github.com/trezcool/markbook/services/logger"
	"github.com/trezcool/markbook/storage/database"
	sqlxrepos "github.com/trezcool/markbook/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger = logsvc.NewRollbarLogger(stdLogger, conf)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)

	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	assessment.InitValidators(validate, translator)
	instructor.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)
	assessmentSvc, err := assessment.NewService(
		conf,
		sqlxrepos.NewAssessmentRepository(db),
		validate,
		translator,
		logger,
		emailsvc.NewConsoleService(conf, logger),
	)
	errAndDie(err)

	// start CLI
	cli := commandLine{
		db:            db,
		engine:        conf.Database.Engine,
		out:           os.Stdout,
		insSvc:        instructor.NewService(sqlxrepos.NewInstructorRepository(db), validate),
		assessmentSvc: assessmentSvc,
	}
	err = cli.run(os.Args)
	assessmentSvc.Wait()
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}

func (cli *commandLine) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cli.out, format, args...)
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
