package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/achievement"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/curriculum"
	"github.com/trezcool/tallman/core/enrollment"
	"github.com/trezcool/tallman/core/forum"
	"github.com/trezcool/tallman/core/seed"
	"github.com/trezcool/tallman/core/user"
	"github.com/trezcool/tallman/services/email"
	"github.com/trezcool/tallman/storage/database/dummy"
	"github.com/trezcool/tallman/tests"
)

var (
	usrRepo   user.Repository
	courseSvc *course.Service
)

func setup(t *testing.T) *commandLine {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Seed = core.SeedConfig{}
	conf.AI.BootstrapTopics = []string{"Pole Climbing", "Trench Shoring"}
	logger := testutil.NewLogger()

	// set up DB & services
	db, err := dummydb.Open(0)
	require.NoError(t, err)
	usrRepo = dummydb.NewUserRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	courseSvc = course.NewService(dummydb.NewCourseRepository(db))
	enrollSvc := enrollment.NewService(dummydb.NewEnrollmentRepository(db), courseSvc, usrSvc, logger)
	achSvc := achievement.NewService(dummydb.NewAchievementRepository(db), usrSvc, enrollSvc, mailSvc, logger)

	// start CLI
	return &commandLine{
		db:        new(sql.DB),
		usrRepo:   usrRepo,
		seeder:    seed.New(courseSvc, achSvc, forum.NewService(dummydb.NewForumRepository(db)), usrSvc, conf, logger),
		architect: curriculum.NewArchitect(outlineOnly{}, courseSvc, conf.AI, logger),
		conf:      conf,
	}
}

// outlineOnly drafts a one lesson course per topic.
type outlineOnly struct{}

func (outlineOnly) GenerateOutline(_ context.Context, topic string) (curriculum.Outline, error) {
	return curriculum.Outline{
		Title:       topic,
		Description: "About " + topic,
		Modules: []curriculum.OutlineModule{
			{ModuleTitle: "Basics", Lessons: []curriculum.OutlineLesson{{LessonTitle: "Intro", LessonType: "document", Duration: 15}}},
		},
	}, nil
}

func (outlineOnly) GenerateLesson(_ context.Context, req curriculum.LessonRequest) (curriculum.LessonDetails, error) {
	return curriculum.LessonDetails{Content: "# " + req.LessonTitle}, nil
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			switch {
			case tt.wantErr != nil:
				assert.Equal(t, tt.wantErr, err)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Equal(t, tt.wantErrStr, err.Error())
				}
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	runCLITests(t, cli, []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "mentorship_notes", "sql"}},
	})

	cli.db = nil
	runCLITests(t, cli, []cliTest{
		{name: "memory storage", args: []string{"migrate", "up"}, wantErr: errNoSQL},
	})
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()
	existing := testutil.CreateUser(t, usrRepo, "Olga Operator", "olga@tallmanequipment.com", "0ld-Passw0rd!", []string{user.RoleLearner}, false)

	mockPassword("")
	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "email but no name", args: []string{"adduser", "-email", "new@tallmanequipment.com"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-email", "new@tallmanequipment.com", "-name", "New"}, wantErr: errHelp},
	})

	mockPassword("Fr3sh-Start!")
	runCLITests(t, cli, []cliTest{
		{name: "new learner", args: []string{"adduser", "-email", " Nate@TallmanEquipment.com ", "-name", "Nate New"}},
		{name: "existing user promoted", args: []string{"adduser", "-email", existing.Email, "-name", "ignored", "-admin"}},
	})

	usr, err := usrRepo.GetUser(ctx, user.GetFilter{Email: "nate@tallmanequipment.com"})
	require.NoError(t, err)
	assert.Equal(t, "Nate New", usr.Name)
	assert.Equal(t, []string{user.RoleLearner}, usr.Roles)
	assert.Equal(t, cli.conf.DefaultBranchID, usr.BranchID)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("Fr3sh-Start!"))

	usr, err = usrRepo.GetUser(ctx, user.GetFilter{ID: existing.ID})
	require.NoError(t, err)
	assert.Equal(t, "Olga Operator", usr.Name)
	assert.ElementsMatch(t, user.AllRoles, usr.Roles)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("Fr3sh-Start!"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Rita Rigger", "rita@tallmanequipment.com", "0ld-Passw0rd!", []string{user.RoleLearner}, true)

	mockPassword("")
	runCLITests(t, cli, []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", usr.Email}, wantErr: errHelp},
	})

	for _, tt := range []struct {
		name    string
		email   string
		pwd     string
		wantErr error
	}{
		{name: "user not found", email: "lol@tallmanequipment.com", pwd: "lol", wantErr: user.ErrNotFound},
		{name: "reset", email: usr.Email, pwd: "N3w-Passw0rd!"},
		{name: "email is normalized", email: "  RITA@tallmanequipment.com", pwd: "N3wer-Passw0rd!"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			mockPassword(tt.pwd)
			err := cli.run([]string{"admin", "resetpassword", "-email", tt.email})
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(tt.pwd))
		})
	}
}

func Test_commandLine_bootstrap(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	require.NoError(t, cli.run([]string{"admin", "bootstrap"}))
	courses, err := courseSvc.Query(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, courses)

	// idempotent
	require.NoError(t, cli.run([]string{"admin", "bootstrap"}))
	again, err := courseSvc.Query(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, again, len(courses))
}

func Test_commandLine_generate(t *testing.T) {
	cli := setup(t)
	ctx := context.Background()

	runCLITests(t, cli, []cliTest{
		{name: "no args", args: []string{"generate"}, wantErr: errHelp},
		{name: "topic and bulk", args: []string{"generate", "-topic", "Cranes", "-bulk"}, wantErr: errHelp},
		{name: "blank topic", args: []string{"generate", "-topic", "   "}, wantErr: curriculum.ErrTopicRequired},
		{name: "single", args: []string{"generate", "-topic", "Bucket Trucks"}},
	})
	st := cli.architect.Status()
	assert.Equal(t, curriculum.StateCompleted, st.State)
	require.Len(t, st.CourseIDs, 1)

	c, err := courseSvc.Get(ctx, st.CourseIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Bucket Trucks", c.Name)
	assert.Equal(t, course.StatusPublished, c.Status)

	require.NoError(t, cli.run([]string{"admin", "generate", "-bulk"}))
	st = cli.architect.Status()
	assert.Equal(t, curriculum.StateCompleted, st.State)
	assert.Equal(t, 2, st.CourseTotal)
	assert.Len(t, st.CourseIDs, 2)
}
