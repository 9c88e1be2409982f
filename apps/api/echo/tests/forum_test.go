package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tallman/core/forum"
	"github.com/trezcool/tallman/core/user"
)

func Test_forumApi(t *testing.T) {
	f := setup(t)
	admin := f.createUser(t, "Ada Admin", "ada@tallmanequipment.com", user.RoleAdmin)
	ivan := f.createUser(t, "Ivan Instructor", "ivan@tallmanequipment.com", user.RoleInstructor)
	lena := f.createUser(t, "Lena Learner", "lena@tallmanequipment.com", user.RoleLearner)
	leo := f.createUser(t, "Leo Learner", "leo@tallmanequipment.com", user.RoleLearner)
	hold := f.createUser(t, "Hal Hold", "hal@tallmanequipment.com", user.RoleHold)
	lenaToken := f.getToken(t, lena)

	announcement, err := f.forumSvc.Import(context.Background(), forum.Post{
		ID:         "p_announcement",
		AuthorName: "Richard Tallman",
		Title:      "Audit week",
		Content:    "Bring your logs.",
		Category:   "General",
		CreatedAt:  time.Now().Add(-24 * time.Hour).UTC(),
	})
	require.NoError(t, err)

	runHTTPTests(t, f, []httpTest{
		{name: "auth required", path: "/api/forum", wantCode: http.StatusUnauthorized},
		{name: "channels", path: "/api/forum/channels", token: lenaToken, wantData: marchallObj(t, forum.Channels)},
		{
			name: "on hold cannot post", method: http.MethodPost, path: "/api/forum", token: f.getToken(t, hold),
			body: []byte(`{"title": "Hi", "content": "Hello"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "title required", method: http.MethodPost, path: "/api/forum", token: lenaToken,
			body: []byte(`{"title": "  ", "content": "Hello"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown channel", method: http.MethodPost, path: "/api/forum", token: lenaToken,
			body:     []byte(`{"title": "Hi", "content": "Hello", "category": "Gossip"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"category": "unknown channel"}),
		},
	})

	rec := f.do(http.MethodPost, "/api/forum", lenaToken, []byte(`{"title": " Sleeve storage ", "content": "Where do we keep Class 2 sleeves?", "category": "HV Testing"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var question forum.Post
	decode(t, rec, &question)
	assert.Equal(t, "Sleeve storage", question.Title)
	assert.Equal(t, lena.ID, question.AuthorID)
	assert.Equal(t, lena.Name, question.AuthorName)
	assert.False(t, question.IsPinned)

	list := func(path string) []string {
		t.Helper()
		rec := f.do(http.MethodGet, path, lenaToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var posts []forum.Post
		decode(t, rec, &posts)
		ids := make([]string, 0, len(posts))
		for _, p := range posts {
			ids = append(ids, p.ID)
		}
		return ids
	}
	assert.Equal(t, []string{question.ID, announcement.ID}, list("/api/forum"), "newest first")
	assert.Equal(t, []string{announcement.ID}, list("/api/forum?category=General"))

	runHTTPTests(t, f, []httpTest{
		{name: "learners cannot pin", method: http.MethodPut, path: "/api/forum/" + announcement.ID + "/pin", token: lenaToken, wantCode: http.StatusForbidden},
		{name: "pin unknown", method: http.MethodPut, path: "/api/forum/p_missing/pin", token: f.getToken(t, ivan), wantCode: http.StatusNotFound},
		{name: "staff pin", method: http.MethodPut, path: "/api/forum/" + announcement.ID + "/pin", token: f.getToken(t, ivan)},
	})
	assert.Equal(t, []string{announcement.ID, question.ID}, list("/api/forum"), "pinned first")

	rec = f.do(http.MethodPut, "/api/forum/"+announcement.ID+"/pin", f.getToken(t, ivan), []byte(`{"is_pinned": false}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{question.ID, announcement.ID}, list("/api/forum"))

	runHTTPTests(t, f, []httpTest{
		{
			name: "only the author deletes", method: http.MethodDelete, path: "/api/forum/" + question.ID, token: f.getToken(t, leo),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: forum.ErrForbidden.Error()}),
		},
		{name: "author deletes", method: http.MethodDelete, path: "/api/forum/" + question.ID, token: lenaToken, wantCode: http.StatusNoContent},
		{name: "admin deletes", method: http.MethodDelete, path: "/api/forum/" + announcement.ID, token: f.getToken(t, admin), wantCode: http.StatusNoContent},
		{name: "gone", method: http.MethodDelete, path: "/api/forum/" + announcement.ID, token: f.getToken(t, admin), wantCode: http.StatusNotFound},
		{name: "empty", path: "/api/forum", token: lenaToken, wantData: marchallList(t)},
	})
}
