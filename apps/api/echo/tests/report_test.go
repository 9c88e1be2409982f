package tests

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/tallman/core/report"
	"github.com/trezcool/tallman/core/user"
)

func Test_reportApi(t *testing.T) {
	f := setup(t)
	admin := f.createUser(t, "Ada Admin", "ada@tallmanequipment.com", user.RoleAdmin)
	lena := f.createUser(t, "Lena Learner", "lena@tallmanequipment.com", user.RoleLearner)
	f.createUser(t, "Hal Hold", "hal@tallmanequipment.com", user.RoleHold)
	c := f.createCourse(t, "c_sample")

	ctx := context.Background()
	e, _, err := f.enrollSvc.Enroll(ctx, lena, c.ID)
	require.NoError(t, err)
	_, err = f.enrollSvc.CompleteLesson(ctx, e.ID, c.Lessons()[0].ID)
	require.NoError(t, err)

	token := f.getToken(t, admin)
	runHTTPTests(t, f, []httpTest{
		{name: "admin required", path: "/api/reports", token: f.getToken(t, lena), wantCode: http.StatusForbidden},
		{name: "admin required (xlsx)", path: "/api/reports/xlsx", token: f.getToken(t, lena), wantCode: http.StatusForbidden},
	})

	rec := f.do(http.MethodGet, "/api/reports", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep report.Report
	decode(t, rec, &rep)
	assert.Equal(t, 3, rep.TotalUsers)
	assert.Equal(t, 2, rep.ActiveLearners)
	assert.Equal(t, 1, rep.PendingApprovals)
	assert.Equal(t, 1, rep.Enrollments)
	assert.Equal(t, 0, rep.Completions)
	require.Len(t, rep.Courses, 1)
	assert.Equal(t, 33, rep.Courses[0].AvgProgress)

	rec = f.do(http.MethodGet, "/api/reports/xlsx", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, report.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), `attachment; filename="training-report-`))

	xf, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer xf.Close()
	assert.Equal(t, []string{report.SheetSummary, report.SheetCourses, report.SheetBranches}, xf.GetSheetList())
}
