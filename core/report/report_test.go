package report_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/tallman/core"
	"github.com/trezcool/tallman/core/achievement"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/enrollment"
	"github.com/trezcool/tallman/core/report"
	"github.com/trezcool/tallman/core/user"
	"github.com/trezcool/tallman/services/email"
	"github.com/trezcool/tallman/storage/database/dummy"
	"github.com/trezcool/tallman/tests"
)

func buildReport(t *testing.T) report.Report {
	t.Helper()
	ctx := context.Background()
	conf := core.NewTestConfig()
	db, err := dummydb.Open(0)
	require.NoError(t, err)
	logger := testutil.NewLogger()
	mailSvc := emailsvc.NewConsoleServiceMock(conf)

	usrRepo := dummydb.NewUserRepository(db)
	courseRepo := dummydb.NewCourseRepository(db)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	courseSvc := course.NewService(courseRepo)
	enrSvc := enrollment.NewService(dummydb.NewEnrollmentRepository(db), courseSvc, usrSvc, logger)
	achSvc := achievement.NewService(dummydb.NewAchievementRepository(db), usrSvc, enrSvc, mailSvc, logger)
	enrSvc.SetListener(achSvc)

	learner := []string{user.RoleLearner}
	ann := testutil.CreateUser(t, usrRepo, "Ann", "ann@tallmanequipment.com", "", learner, true)
	bob := testutil.CreateUser(t, usrRepo, "Bob", "bob@tallmanequipment.com", "", learner, true)
	testutil.CreateUser(t, usrRepo, "Hal", "hal@tallmanequipment.com", "", []string{user.RoleHold}, true)
	bob.BranchID = "br_columbus"
	_, err = usrRepo.UpdateUser(ctx, bob)
	require.NoError(t, err)

	popular := testutil.CreateCourse(t, courseRepo, testutil.SampleCourse("c_popular"))
	testutil.CreateCourse(t, courseRepo, testutil.SampleCourse("c_quiet"))

	// Ann completes the course, Bob reads one lesson
	e, _, err := enrSvc.Enroll(ctx, ann, popular.ID)
	require.NoError(t, err)
	lessons := popular.Lessons()
	for _, l := range lessons[:2] {
		_, err = enrSvc.CompleteLesson(ctx, e.ID, l.ID)
		require.NoError(t, err)
	}
	_, err = enrSvc.RecordQuizAttempt(ctx, e.ID, lessons[2].ID, []int{0, 1, 2})
	require.NoError(t, err)

	e, _, err = enrSvc.Enroll(ctx, bob, popular.ID)
	require.NoError(t, err)
	_, err = enrSvc.CompleteLesson(ctx, e.ID, lessons[0].ID)
	require.NoError(t, err)

	rep, err := report.NewService(usrSvc, courseSvc, enrSvc, achSvc).Build(ctx)
	require.NoError(t, err)
	return rep
}

func TestService_Build(t *testing.T) {
	rep := buildReport(t)

	assert.Equal(t, 3, rep.TotalUsers)
	assert.Equal(t, 2, rep.ActiveLearners)
	assert.Equal(t, 1, rep.PendingApprovals)
	assert.Equal(t, 2, rep.Enrollments)
	assert.Equal(t, 1, rep.Completions)
	assert.Equal(t, 50, rep.AvgCompletionRate)
	assert.Equal(t, 1, rep.CertificatesIssued)
	assert.Equal(t, 4*enrollment.LessonPoints, rep.PointsIssued)

	require.Len(t, rep.Courses, 2)
	assert.Equal(t, report.CourseRow{
		CourseID:    "c_popular",
		Name:        "Sample c_popular",
		Status:      course.StatusPublished,
		Enrolled:    2,
		Completed:   1,
		AvgProgress: 67, // (100 + 33) / 2
	}, rep.Courses[0])
	assert.Equal(t, 0, rep.Courses[1].Enrolled)

	require.Len(t, rep.Branches, len(user.Branches))
	assert.Equal(t, report.BranchRow{BranchID: "br_addison", Name: "Tallman-Addison", Users: 2, Points: 30, Completions: 1}, rep.Branches[0])
	assert.Equal(t, report.BranchRow{BranchID: "br_columbus", Name: "Tallman-Columbus", Users: 1, Points: 10}, rep.Branches[1])
}

func TestWriteXLSX(t *testing.T) {
	rep := buildReport(t)

	var buf bytes.Buffer
	require.NoError(t, report.WriteXLSX(&buf, rep))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{report.SheetSummary, report.SheetCourses, report.SheetBranches}, f.GetSheetList())

	summary, err := f.GetRows(report.SheetSummary)
	require.NoError(t, err)
	require.Len(t, summary, 10)
	assert.Equal(t, []string{"Metric", "Value"}, summary[0])
	assert.Equal(t, []string{"Total users", "3"}, summary[2])
	assert.Equal(t, []string{"Average completion rate (%)", "50"}, summary[7])

	courses, err := f.GetRows(report.SheetCourses)
	require.NoError(t, err)
	require.Len(t, courses, 3)
	assert.Equal(t, []string{"c_popular", "Sample c_popular", "published", "2", "1", "67"}, courses[1])

	branches, err := f.GetRows(report.SheetBranches)
	require.NoError(t, err)
	assert.Len(t, branches, 1+len(user.Branches))
}
