package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/trezcool/tallman/apps/api/echo"
	"github.com/trezcool/tallman/apps/container"
	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/services/scheduler"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	c, err := container.New(conf, "API : ")
	if err != nil {
		log.Fatalf("setting up dependencies: %v", err)
	}
	logger := c.Logger
	defer logger.Close(conf.Server.ShutdownTimeout)
	defer c.Close()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	if _, err = c.Seeder.Run(context.Background()); err != nil {
		logger.Error(fmt.Sprintf("seeding: %v", err), err)
	}

	if conf.Scheduler.Enabled {
		sched := schedsvc.New(c.ReportSvc, c.UserSvc, c.MailSvc, conf, logger)
		if err = sched.Start(); err != nil {
			logger.Error(fmt.Sprintf("starting scheduler: %v", err), err)
		} else {
			defer sched.Stop()
		}
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Storage.Driver)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			Validate:       c.Validate,
			Translator:     c.Translator,
			UserSvc:        c.UserSvc,
			CourseSvc:      c.CourseSvc,
			EnrollmentSvc:  c.EnrollmentSvc,
			AchievementSvc: c.AchievementSvc,
			MentorshipSvc:  c.MentorshipSvc,
			ForumSvc:       c.ForumSvc,
			ReportSvc:      c.ReportSvc,
			Architect:      c.Architect,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// a running generation stops at the next step
		if c.Architect.Abort() {
			if _, err = c.Architect.Wait(ctx); err != nil {
				logger.Warn(fmt.Sprintf("curriculum run still active: %v", err))
			}
		}

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
