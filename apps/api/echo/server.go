package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/achievement"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/curriculum"
	"github.com/trezcool/tallman/core/enrollment"
	"github.com/trezcool/tallman/core/forum"
	"github.com/trezcool/tallman/core/mentorship"
	"github.com/trezcool/tallman/core/report"
	"github.com/trezcool/tallman/core/user"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		UserSvc        *user.Service
		CourseSvc      *course.Service
		EnrollmentSvc  *enrollment.Service
		AchievementSvc *achievement.Service
		MentorshipSvc  *mentorship.Service
		ForumSvc       *forum.Service
		ReportSvc      *report.Service
		Architect      *curriculum.Architect
	}

	Server struct {
		ServerDeps
		app      *echo.Echo
		shutdown chan os.Signal
		errors   chan error
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		ServerDeps: deps,
		app:        echo.New(),
		shutdown:   make(chan os.Signal, 1),
		errors:     make(chan error, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.Conf.Debug || s.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{s.Conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.Logger, s.Translator, s.signalShutdown)
	s.app.Debug = s.Conf.Debug

	s.app.GET("/", s.home)

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(jwtConfig(s.Conf))

	registerUserAPI(g, jwt, s.ServerDeps)
	registerCatalogAPI(g, jwt, s.ServerDeps)
	registerPlayerAPI(g, jwt, s.ServerDeps)
	registerCurriculumAPI(g, jwt, s.ServerDeps)
	registerAchievementAPI(g, jwt, s.ServerDeps)
	registerMentorshipAPI(g, jwt, s.ServerDeps)
	registerForumAPI(g, jwt, s.ServerDeps)
	registerReportAPI(g, jwt, s.ServerDeps)
}

// Start listens on the configured address. Failures are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.Conf.AppName+" API!")
}
