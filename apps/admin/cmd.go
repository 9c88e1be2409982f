package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/curriculum"
	"github.com/trezcool/tallman/core/seed"
	"github.com/trezcool/tallman/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp  = errors.New("help provided")
	errNoSQL = errors.New("migrations need the postgres storage driver")
)

type commandLine struct {
	db        *sql.DB // nil with the memory driver
	usrRepo   user.Repository
	seeder    *seed.Seeder
	architect *curriculum.Architect
	conf      *core.Config
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...)")
	fmt.Println("  adduser -email EMAIL -name NAME [-admin] - create or update an active user")
	fmt.Println("  resetpassword -email EMAIL - reset user's password")
	fmt.Println("  bootstrap - install the base curriculum, default badges and seed admin")
	fmt.Println("  generate -topic TOPIC | -bulk - draft courses with the curriculum architect")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant every role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	generateCmd := flag.NewFlagSet("generate", flag.ContinueOnError)
	generateTopic := generateCmd.String("topic", "", "Draft a single course on this topic.")
	generateBulk := generateCmd.Bool("bulk", false, "Draft one course per bootstrap topic.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "bootstrap":
		return cli.bootstrap()

	case "generate":
		if err := generateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if (*generateTopic == "") == !*generateBulk {
			generateCmd.Usage()
			return errHelp
		}
		return cli.generate(*generateTopic, *generateBulk)

	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
