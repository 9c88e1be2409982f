// Package container builds the dependency graph shared by the API server and the admin CLI.
package container

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/achievement"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/curriculum"
	"github.com/trezcool/tallman/core/enrollment"
	"github.com/trezcool/tallman/core/forum"
	"github.com/trezcool/tallman/core/mentorship"
	"github.com/trezcool/tallman/core/report"
	"github.com/trezcool/tallman/core/seed"
	"github.com/trezcool/tallman/core/user"
	"github.com/trezcool/tallman/services/ai"
	"github.com/trezcool/tallman/services/email"
	"github.com/trezcool/tallman/services/logger"
	"github.com/trezcool/tallman/storage/database"
	"github.com/trezcool/tallman/storage/database/dummy"
	"github.com/trezcool/tallman/storage/database/sqlx"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type (
	repositories struct {
		users        user.Repository
		courses      course.Repository
		enrollments  enrollment.Repository
		achievements achievement.Repository
		mentorships  mentorship.Repository
		posts        forum.Repository
	}

	// Option tweaks how New sets up the dependencies.
	Option func(*Container)

	Container struct {
		Conf       *core.Config
		Logger     *logsvc.RollbarLogger
		DBLogger   *logsvc.RollbarLogger
		DB         *sql.DB // nil with the memory driver
		MailSvc    core.EmailService
		Validate   *validator.Validate
		Translator ut.Translator
		UserRepo   user.Repository

		UserSvc        *user.Service
		CourseSvc      *course.Service
		EnrollmentSvc  *enrollment.Service
		AchievementSvc *achievement.Service
		MentorshipSvc  *mentorship.Service
		ForumSvc       *forum.Service
		ReportSvc      *report.Service
		Architect      *curriculum.Architect
		Seeder         *seed.Seeder

		skipMigrations bool
	}
)

// WithoutMigrations leaves the database schema as is. The admin CLI migrates on demand.
func WithoutMigrations() Option {
	return func(c *Container) { c.skipMigrations = true }
}

func newLogger(prefix string, conf *core.Config) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// setUpDB creates the database when missing and applies the pending migrations unless `migrate` is false.
func setUpDB(conf *core.Config, migrate bool) (*sql.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if !migrate {
		return db, nil
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (c *Container) openRepositories() (repositories, error) {
	switch c.Conf.Storage.Driver {
	case DriverMemory:
		db, err := dummydb.Open(c.Conf.Storage.QuotaBytes)
		if err != nil {
			return repositories{}, errors.Wrap(err, "opening memory storage")
		}
		c.DBLogger.Info(fmt.Sprintf("memory storage opened, quota: %d bytes", c.Conf.Storage.QuotaBytes))
		return repositories{
			users:        dummydb.NewUserRepository(db),
			courses:      dummydb.NewCourseRepository(db),
			enrollments:  dummydb.NewEnrollmentRepository(db),
			achievements: dummydb.NewAchievementRepository(db),
			mentorships:  dummydb.NewMentorshipRepository(db),
			posts:        dummydb.NewForumRepository(db),
		}, nil

	case DriverPostgres, "":
		db, err := setUpDB(c.Conf, !c.skipMigrations)
		if err != nil {
			return repositories{}, errors.Wrap(err, "setting up database")
		}
		c.DB = db
		xdb := sqlxrepos.NewDB(db)
		return repositories{
			users:        sqlxrepos.NewUserRepository(xdb),
			courses:      sqlxrepos.NewCourseRepository(xdb),
			enrollments:  sqlxrepos.NewEnrollmentRepository(xdb),
			achievements: sqlxrepos.NewAchievementRepository(xdb),
			mentorships:  sqlxrepos.NewMentorshipRepository(xdb),
			posts:        sqlxrepos.NewForumRepository(xdb),
		}, nil

	default:
		return repositories{}, errors.Errorf("unknown storage driver %q", c.Conf.Storage.Driver)
	}
}

// New wires every service. The API logger prints with `prefix`.
func New(conf *core.Config, prefix string, opts ...Option) (*Container, error) {
	c := &Container{
		Conf:       conf,
		Logger:     newLogger(prefix, conf),
		DBLogger:   newLogger("DB : ", conf),
		Validate:   validator.New(),
		Translator: core.NewTranslator(),
	}
	for _, opt := range opts {
		opt(c)
	}

	core.InitValidators(c.Validate, c.Translator)
	user.InitValidators(c.Validate, c.Translator)
	course.InitValidators(c.Validate, c.Translator)

	if err := core.ParseEmailTemplates(); err != nil {
		return nil, errors.Wrap(err, "parsing email templates")
	}
	user.LoadCommonPasswords(c.Logger)

	repos, err := c.openRepositories()
	if err != nil {
		return nil, err
	}

	c.UserRepo = repos.users
	c.MailSvc = newEmailService(conf, c.Logger)
	c.UserSvc = user.NewService(repos.users, c.MailSvc, conf)
	c.CourseSvc = course.NewService(repos.courses)
	c.EnrollmentSvc = enrollment.NewService(repos.enrollments, c.CourseSvc, c.UserSvc, c.Logger)
	c.AchievementSvc = achievement.NewService(repos.achievements, c.UserSvc, c.EnrollmentSvc, c.MailSvc, c.Logger)
	c.EnrollmentSvc.SetListener(c.AchievementSvc)
	c.MentorshipSvc = mentorship.NewService(repos.mentorships, c.UserSvc)
	c.ForumSvc = forum.NewService(repos.posts)
	c.ReportSvc = report.NewService(c.UserSvc, c.CourseSvc, c.EnrollmentSvc, c.AchievementSvc)
	c.Architect = curriculum.NewArchitect(aisvc.NewOpenAIClient(conf.AI), c.CourseSvc, conf.AI, c.Logger)
	c.Seeder = seed.New(c.CourseSvc, c.AchievementSvc, c.ForumSvc, c.UserSvc, conf, c.Logger)
	return c, nil
}

// Close releases the database connection, if any.
func (c *Container) Close() {
	if c.DB == nil {
		return
	}
	if err := c.DB.Close(); err != nil {
		c.DBLogger.Error("Failed to close", err)
	}
}
