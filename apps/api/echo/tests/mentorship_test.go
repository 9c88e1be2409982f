package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tallman/core/mentorship"
	"github.com/trezcool/tallman/core/user"
)

func Test_mentorshipApi(t *testing.T) {
	f := setup(t)
	admin := f.createUser(t, "Ada Admin", "ada@tallmanequipment.com", user.RoleAdmin)
	ivan := f.createUser(t, "Ivan Instructor", "ivan@tallmanequipment.com", user.RoleInstructor)
	iris := f.createUser(t, "Iris Instructor", "iris@tallmanequipment.com", user.RoleInstructor)
	lena := f.createUser(t, "Lena Learner", "lena@tallmanequipment.com", user.RoleLearner)
	leo := f.createUser(t, "Leo Learner", "leo@tallmanequipment.com", user.RoleLearner)
	ivanToken := f.getToken(t, ivan)

	session := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	newLog := func(menteeID, topic string) []byte {
		return marchallObj(t, mentorship.NewLog{MenteeID: menteeID, Topic: topic, DurationMinutes: 45, SessionDate: session})
	}

	runHTTPTests(t, f, []httpTest{
		{name: "auth required", path: "/api/mentorship", wantCode: http.StatusUnauthorized},
		{
			name: "learners cannot log sessions", method: http.MethodPost, path: "/api/mentorship",
			token: f.getToken(t, lena), body: newLog(leo.ID, "Knots"), wantCode: http.StatusForbidden,
		},
		{
			name: "unknown mentee", method: http.MethodPost, path: "/api/mentorship", token: ivanToken,
			body: newLog("nobody", "Knots"), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"mentee_id": "mentee not found"}),
		},
		{
			name: "duration bounds", method: http.MethodPost, path: "/api/mentorship", token: ivanToken,
			body: []byte(`{"mentee_id": "` + lena.ID + `", "topic": "Knots", "duration_minutes": 0}`), wantCode: http.StatusBadRequest,
		},
	})

	create := func(token string, body []byte) mentorship.Log {
		rec := f.do(http.MethodPost, "/api/mentorship", token, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var l mentorship.Log
		decode(t, rec, &l)
		return l
	}
	knots := create(ivanToken, newLog(lena.ID, "  Knots  "))
	assert.Equal(t, ivan.ID, knots.MentorID)
	assert.Equal(t, "Knots", knots.Topic)
	assert.True(t, session.Equal(knots.SessionDate))
	gloves := create(f.getToken(t, iris), newLog(leo.ID, "Glove testing"))

	runHTTPTests(t, f, []httpTest{
		{name: "staff see all", path: "/api/mentorship", token: ivanToken, wantData: marchallList(t, knots, gloves)},
		{name: "by mentor", path: "/api/mentorship?mentor_id=" + iris.ID, token: ivanToken, wantData: marchallList(t, gloves)},
		{name: "by mentee", path: "/api/mentorship?mentee_id=" + lena.ID, token: ivanToken, wantData: marchallList(t, knots)},
		{name: "learners see their sessions", path: "/api/mentorship", token: f.getToken(t, leo), wantData: marchallList(t, gloves)},
		{
			name: "learners cannot peek", path: "/api/mentorship?mentee_id=" + lena.ID, token: f.getToken(t, leo),
			wantData: marchallList(t, gloves),
		},
		{
			name: "only the mentor deletes", method: http.MethodDelete, path: "/api/mentorship/" + gloves.ID, token: ivanToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: mentorship.ErrForbidden.Error()}),
		},
		{name: "mentor deletes", method: http.MethodDelete, path: "/api/mentorship/" + knots.ID, token: ivanToken, wantCode: http.StatusNoContent},
		{name: "admin deletes", method: http.MethodDelete, path: "/api/mentorship/" + gloves.ID, token: f.getToken(t, admin), wantCode: http.StatusNoContent},
		{name: "gone", method: http.MethodDelete, path: "/api/mentorship/" + gloves.ID, token: f.getToken(t, admin), wantCode: http.StatusNotFound},
		{name: "empty", path: "/api/mentorship", token: ivanToken, wantData: marchallList(t)},
	})
}
