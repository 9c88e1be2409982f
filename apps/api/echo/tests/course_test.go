package tests

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tallman/apps/api/echo"
	"github.com/trezcool/tallman/core/course"
	"github.com/trezcool/tallman/core/user"
)

func Test_catalogApi_query(t *testing.T) {
	f := setup(t)
	admin := f.createUser(t, "Ada Admin", "ada@tallmanequipment.com", user.RoleAdmin)
	instructor := f.createUser(t, "Ivan Instructor", "ivan@tallmanequipment.com", user.RoleInstructor)
	learner := f.createUser(t, "Lena Learner", "lena@tallmanequipment.com", user.RoleLearner)

	rope := f.createCourse(t, "c_rope")
	draft := f.createCourse(t, "c_draft", course.StatusDraft)
	archived := f.createCourse(t, "c_archived", course.StatusArchived)
	warehouse := editCourse(t, f, "c_warehouse", func(c *course.Course) {
		c.Name = "Warehouse Management"
		c.CategoryID = "business"
		c.Difficulty = course.DifficultyAdvanced
	})

	learnerToken := f.getToken(t, learner)
	adminToken := f.getToken(t, admin)

	runHTTPTests(t, f, []httpTest{
		{name: "auth required", path: "/api/courses", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "categories are public", path: "/api/categories", wantData: marchallObj(t, course.Categories)},
		{name: "learners only see published", path: "/api/courses", token: learnerToken, wantData: marchallList(t, rope, warehouse)},
		{
			name: "learners cannot ask for drafts", path: "/api/courses?status=draft", token: learnerToken,
			wantData: marchallList(t, rope, warehouse),
		},
		{name: "staff see everything", path: "/api/courses", token: f.getToken(t, instructor), wantData: marchallList(t, rope, draft, archived, warehouse)},
		{name: "status filter", path: "/api/courses?status=draft,archived", token: adminToken, wantData: marchallList(t, draft, archived)},
		{name: "search", path: "/api/courses?search=WAREHOUSE", token: learnerToken, wantData: marchallList(t, warehouse)},
		{name: "category", path: "/api/courses?category_id=business", token: learnerToken, wantData: marchallList(t, warehouse)},
		{name: "difficulty", path: "/api/courses?difficulty=advanced", token: learnerToken, wantData: marchallList(t, warehouse)},
		{name: "no match", path: "/api/courses?search=zzz", token: learnerToken, wantData: marchallList(t)},
		{name: "retrieve", path: "/api/courses/c_rope", token: learnerToken, wantData: marchallObj(t, rope)},
		{
			name: "drafts are hidden from learners", path: "/api/courses/c_draft", token: learnerToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "course not found"}),
		},
		{name: "drafts are visible to staff", path: "/api/courses/c_draft", token: f.getToken(t, instructor), wantData: marchallObj(t, draft)},
		{name: "unknown", path: "/api/courses/c_nope", token: adminToken, wantCode: http.StatusNotFound},
	})
}

func editCourse(t *testing.T, f *fixture, id string, edit func(c *course.Course)) course.Course {
	t.Helper()
	c, err := f.courseRepo.GetCourse(context.Background(), f.createCourse(t, id).ID)
	require.NoError(t, err)
	edit(&c)
	c, err = f.courseRepo.SaveCourse(context.Background(), c)
	require.NoError(t, err)
	return c
}

func Test_catalogApi_manage(t *testing.T) {
	f := setup(t)
	admin := f.createUser(t, "Ada Admin", "ada@tallmanequipment.com", user.RoleAdmin)
	instructor := f.createUser(t, "Ivan Instructor", "ivan@tallmanequipment.com", user.RoleInstructor)
	adminToken := f.getToken(t, admin)

	newCourse := course.SaveCourse{
		Name:       "Bucket Truck Inspection",
		CategoryID: "safety",
		Status:     course.StatusPublished,
		Rating:     4,
		Modules: []course.Module{{Title: "Walkaround", Lessons: []course.Lesson{
			{Title: "Checklist", Type: course.LessonDocument, Content: "Inspect the boom."},
			{Title: "Audit", Type: course.LessonQuiz, QuizQuestions: []course.QuizQuestion{
				{Question: "Inspect daily?", Options: []string{"Yes", "No"}, CorrectIndex: 0},
			}},
		}}},
	}

	runHTTPTests(t, f, []httpTest{
		{
			name: "admin required", method: http.MethodPost, path: "/api/courses", token: f.getToken(t, instructor),
			body: marchallObj(t, newCourse), wantCode: http.StatusForbidden,
		},
		{
			name: "invalid category", method: http.MethodPost, path: "/api/courses", token: adminToken,
			body: []byte(`{"course_name": "X", "category_id": "cooking"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "name required", method: http.MethodPost, path: "/api/courses", token: adminToken,
			body:     []byte(`{"category_id": "safety"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"course_name": "this field is required"}),
		},
		{
			name: "quiz answer out of range", method: http.MethodPost, path: "/api/courses", token: adminToken,
			body: []byte(`{"course_name": "X", "category_id": "safety", "modules": [{"module_title": "M", "lessons": [
				{"lesson_title": "Q", "lesson_type": "quiz", "quiz_questions": [{"question": "?", "options": ["a", "b"], "correct_index": 5}]}
			]}]}`),
			wantCode: http.StatusBadRequest,
		},
	})

	rec := f.do(http.MethodPost, "/api/courses", adminToken, marchallObj(t, newCourse))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created course.Course
	decode(t, rec, &created)
	assert.True(t, strings.HasPrefix(created.ID, "c_bucket_truck_inspection"), created.ID)
	assert.Equal(t, course.DifficultyBeginner, created.Difficulty)
	require.Len(t, created.Modules, 1)
	require.Len(t, created.Modules[0].Lessons, 2)
	assert.NotEmpty(t, created.Modules[0].Lessons[1].ID)
	assert.Equal(t, created.Modules[0].ID, created.Modules[0].Lessons[1].ModuleID)

	// duplicated id
	dup := newCourse
	dup.ID = created.ID
	rec = f.do(http.MethodPost, "/api/courses", adminToken, marchallObj(t, dup))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	upd := newCourse
	upd.Name = "Bucket Truck Inspection II"
	upd.Status = course.StatusArchived
	rec = f.do(http.MethodPut, "/api/courses/"+created.ID, adminToken, marchallObj(t, upd))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated course.Course
	decode(t, rec, &updated)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Bucket Truck Inspection II", updated.Name)
	assert.Equal(t, course.StatusArchived, updated.Status)

	rec = f.do(http.MethodDelete, "/api/courses/"+created.ID, adminToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(http.MethodGet, "/api/courses/"+created.ID, adminToken)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// base courses stay
	base := editCourse(t, f, "c_testing", func(c *course.Course) { c.IsBase = true })
	rec = f.do(http.MethodDelete, "/api/courses/"+base.ID, adminToken)
	assert.Equal(t, http.StatusConflict, rec.Code)
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), marchallObj(t, httpErr{Error: course.ErrBaseCourse.Error()}))
	require.NoError(t, err)
	assert.True(t, ok, rec.Body.String())
}

func Test_catalogApi_resetEnrollments(t *testing.T) {
	f := setup(t)
	admin := f.createUser(t, "Ada Admin", "ada@tallmanequipment.com", user.RoleAdmin)
	learner := f.createUser(t, "Lena Learner", "lena@tallmanequipment.com", user.RoleLearner)
	c := f.createCourse(t, "c_sample")

	ctx := context.Background()
	e, _, err := f.enrollSvc.Enroll(ctx, learner, c.ID)
	require.NoError(t, err)
	_, err = f.enrollSvc.CompleteLesson(ctx, e.ID, c.Lessons()[0].ID)
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/api/courses/c_sample/reset-enrollments", f.getToken(t, learner))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/courses/c_sample/reset-enrollments", f.getToken(t, admin))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.ResetResponse
	decode(t, rec, &resp)
	assert.Equal(t, 1, resp.Reset)

	e, err = f.enrollSvc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, e.ProgressPercent)
	assert.Empty(t, e.CompletedLessonIDs)
}

func Test_catalogApi_storageQuota(t *testing.T) {
	f := setup(t, 4096)
	admin := f.createUser(t, "Ada Admin", "ada@tallmanequipment.com", user.RoleAdmin)

	big := course.SaveCourse{
		Name:       "Encyclopedia",
		CategoryID: "safety",
		Modules: []course.Module{{Title: "Everything", Lessons: []course.Lesson{
			{Title: "Volume I", Content: strings.Repeat("Lockout tagout. ", 512)},
		}}},
	}
	rec := f.do(http.MethodPost, "/api/courses", f.getToken(t, admin), marchallObj(t, big))
	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), marchallObj(t, httpErr{Error: echoapi.StorageQuotaMessage}))
	require.NoError(t, err)
	assert.True(t, ok, rec.Body.String())
}
