package main

import (
	"log"
	"os"

	"github.com/trezcool/tallman/apps/container"
	"github.com/trezcool/tallman/core"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	c, err := container.New(conf, "ADMIN : ", container.WithoutMigrations())
	if err != nil {
		logger.Fatalf("setting up dependencies: %v", err)
	}

	// start CLI
	cli := commandLine{
		db:        c.DB,
		usrRepo:   c.UserRepo,
		seeder:    c.Seeder,
		architect: c.Architect,
		conf:      conf,
	}
	err = cli.run(os.Args)
	c.Close()
	c.Logger.Close(conf.Server.ShutdownTimeout)
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
