package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/markbook/core/assessment"
	"github.com/trezcool/markbook/core/instructor"
	"github.com/trezcool/markbook/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Run      // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db            *sqlx.DB
	engine        string
	out           io.Writer
	insSvc        *instructor.Service
	assessmentSvc assessment.Service
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	_, _ = fmt.Fprintln(cli.out, "  addinstructor -name NAME -username USERNAME -email EMAIL [-admin] - create an instructor")
	_, _ = fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset instructor's password")
	_, _ = fmt.Fprintln(cli.out, "  importplan -file FILE - import grading scales, students and plans from a YAML file")
	_, _ = fmt.Fprintln(cli.out, "  report -plan PLAN - print the results of an assessment plan")
}

// readPassword prompts for a password. An empty password means help is needed.
func (cli *commandLine) readPassword(prompt string) (string, error) {
	_, _ = fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addInstructorCmd := flag.NewFlagSet("addinstructor", flag.ContinueOnError)
	addInstructorName := addInstructorCmd.String("name", "", "The instructor's full name.")
	addInstructorUname := addInstructorCmd.String("username", "", "The instructor's username. The password will be prompted next.")
	addInstructorEmail := addInstructorCmd.String("email", "", "The instructor's email.")
	addInstructorAdmin := addInstructorCmd.Bool("admin", false, "Whether the instructor can manage plans, grading scales and students.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The instructor's username or email. The password will be prompted next.")

	importPlanCmd := flag.NewFlagSet("importplan", flag.ContinueOnError)
	importPlanFile := importPlanCmd.String("file", "", "Path of the YAML file to import.")

	reportCmd := flag.NewFlagSet("report", flag.ContinueOnError)
	reportPlan := reportCmd.String("plan", "", "The assessment plan's id.")

	for _, fs := range []*flag.FlagSet{addInstructorCmd, resetPasswordCmd, importPlanCmd, reportCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "addinstructor":
		if err := addInstructorCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addInstructorUname == "" || *addInstructorEmail == "" {
			addInstructorCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addInstructorCmd.Usage()
			return errHelp
		}
		name := *addInstructorName
		if name == "" {
			name = *addInstructorUname
		}
		return cli.addInstructor(name, *addInstructorUname, *addInstructorEmail, pwd, *addInstructorAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "importplan":
		if err := importPlanCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *importPlanFile == "" {
			importPlanCmd.Usage()
			return errHelp
		}
		return cli.importPlan(*importPlanFile)

	case "report":
		if err := reportCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *reportPlan == "" {
			reportCmd.Usage()
			return errHelp
		}
		return cli.report(*reportPlan)

	default:
		cli.printUsage()
		return errHelp
	}
}
