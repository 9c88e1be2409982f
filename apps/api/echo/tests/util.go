package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/tallman/apps/api/echo"
	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/achievement"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/curriculum"
	"github.com/trezcool/tallman/core/enrollment"
	"github.com/trezcool/tallman/core/forum"
	"github.com/trezcool/tallman/core/mentorship"
	"github.com/trezcool/tallman/core/report"
	"github.com/trezcool/tallman/core/user"
	"github.com/trezcool/tallman/services/email"
	"github.com/trezcool/tallman/storage/database/dummy"
	"github.com/trezcool/tallman/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	conf       *core.Config
	app        *Server
	usrRepo    user.Repository
	courseRepo course.Repository
	mailSvc    *emailsvc.ConsoleServiceMock
	usrSvc     *user.Service
	enrollSvc  *enrollment.Service
	achSvc     *achievement.Service
	mentorSvc  *mentorship.Service
	forumSvc   *forum.Service
	architect  *curriculum.Architect
	content    *fakeContent
}

// setup wires a server on an empty in-memory database. A positive `quotaBytes` bounds its size.
func setup(t *testing.T, quotaBytes ...int) *fixture {
	t.Helper()
	conf := core.NewTestConfig()
	logger := testutil.NewLogger()

	quota := 0
	if len(quotaBytes) > 0 {
		quota = quotaBytes[0]
	}
	db, err := dummydb.Open(quota)
	require.NoError(t, err)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)

	f := &fixture{
		conf:       conf,
		usrRepo:    dummydb.NewUserRepository(db),
		courseRepo: dummydb.NewCourseRepository(db),
		mailSvc:    emailsvc.NewConsoleServiceMock(conf),
		content:    &fakeContent{},
	}
	f.usrSvc = user.NewService(f.usrRepo, f.mailSvc, conf)
	courseSvc := course.NewService(f.courseRepo)
	f.enrollSvc = enrollment.NewService(dummydb.NewEnrollmentRepository(db), courseSvc, f.usrSvc, logger)
	f.achSvc = achievement.NewService(dummydb.NewAchievementRepository(db), f.usrSvc, f.enrollSvc, f.mailSvc, logger)
	f.enrollSvc.SetListener(f.achSvc)
	f.mentorSvc = mentorship.NewService(dummydb.NewMentorshipRepository(db), f.usrSvc)
	f.forumSvc = forum.NewService(dummydb.NewForumRepository(db))
	f.architect = curriculum.NewArchitect(f.content, courseSvc, conf.AI, logger)

	f.app = NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        f.usrSvc,
		CourseSvc:      courseSvc,
		EnrollmentSvc:  f.enrollSvc,
		AchievementSvc: f.achSvc,
		MentorshipSvc:  f.mentorSvc,
		ForumSvc:       f.forumSvc,
		ReportSvc:      report.NewService(f.usrSvc, courseSvc, f.enrollSvc, f.achSvc),
		Architect:      f.architect,
	})
	t.Cleanup(func() {
		_, _ = f.architect.Wait(context.Background())
		_ = f.app.Close()
	})
	return f
}

func (f *fixture) createUser(t *testing.T, name, email string, roles ...string) user.User {
	t.Helper()
	return testutil.CreateUser(t, f.usrRepo, name, email, "", roles, true)
}

func (f *fixture) createCourse(t *testing.T, id string, status ...course.Status) course.Course {
	t.Helper()
	c := testutil.SampleCourse(id)
	if len(status) > 0 {
		c.Status = status[0]
	}
	return testutil.CreateCourse(t, f.courseRepo, c)
}

func (f *fixture) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(f.conf, GetUserClaims(f.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func (f *fixture) serve(req *http.Request, rec *httptest.ResponseRecorder) {
	f.app.ServeHTTP(rec, req)
}

// do sends a JSON request and returns the recorded response.
func (f *fixture) do(method, path, token string, body ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, body...)
	f.serve(req, rec)
	return rec
}

// fakeContent drafts every lesson instantly. `block`, when set, holds the outline until closed.
type fakeContent struct {
	mu      sync.Mutex
	block   chan struct{}
	topics  []string
	limited int // outline calls answered with a rate limit before succeeding
}

var _ curriculum.ContentClient = (*fakeContent)(nil)

func (fc *fakeContent) GenerateOutline(ctx context.Context, topic string) (curriculum.Outline, error) {
	fc.mu.Lock()
	block := fc.block
	fc.topics = append(fc.topics, topic)
	limited := fc.limited > 0
	if limited {
		fc.limited--
	}
	fc.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return curriculum.Outline{}, ctx.Err()
		}
	}
	if limited {
		return curriculum.Outline{}, curriculum.ErrRateLimited
	}
	return curriculum.Outline{
		Title:       topic + " Operations",
		Description: "Field guide to " + topic,
		Modules: []curriculum.OutlineModule{
			{ModuleTitle: "Fundamentals", Lessons: []curriculum.OutlineLesson{
				{LessonTitle: "Overview", LessonType: "document", Duration: 30},
				{LessonTitle: "Checkpoint", LessonType: "quiz", Duration: 10},
			}},
		},
	}, nil
}

func (fc *fakeContent) GenerateLesson(_ context.Context, req curriculum.LessonRequest) (curriculum.LessonDetails, error) {
	if req.Type == course.LessonQuiz {
		return curriculum.LessonDetails{QuizQuestions: []course.QuizQuestion{
			{Question: "Is " + req.CourseTitle + " safe?", Options: []string{"Yes", "No"}, CorrectIndex: 0},
		}}, nil
	}
	return curriculum.LessonDetails{Content: "# " + req.LessonTitle}, nil
}

func (fc *fakeContent) Topics() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return append([]string{}, fc.topics...)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	if _, ok := j2.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

// checkCodeAndData compares the status code, and the body when `tt.wantData` is set.
func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, f *fixture, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		if tt.method == "" {
			tt.method = http.MethodGet
		}
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			f.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}
