package tests

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tallman/apps/api/echo"
	"github.com/trezcool/tallman/core/user"
	"github.com/trezcool/tallman/tests"
)

const testPassword = "Gr1d-L0ck!Vault"

func Test_userApi_login(t *testing.T) {
	f := setup(t)
	lena := testutil.CreateUser(t, f.usrRepo, "Lena Learner", "lena@tallmanequipment.com", testPassword, []string{user.RoleLearner}, true)
	testutil.CreateUser(t, f.usrRepo, "Otto Off", "otto@tallmanequipment.com", testPassword, []string{user.RoleLearner}, false)

	body := func(email, pwd string) []byte {
		return marchallObj(t, echoapi.LoginRequest{Email: email, Password: pwd})
	}
	failed := marchallObj(t, httpErr{Error: "authentication failed"})

	runHTTPTests(t, f, []httpTest{
		{
			name: "missing fields", method: http.MethodPost, path: "/api/users/login", body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown email", method: http.MethodPost, path: "/api/users/login",
			body: body("nobody@tallmanequipment.com", testPassword), wantCode: http.StatusBadRequest, wantData: failed,
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/api/users/login",
			body: body(lena.Email, "nope"), wantCode: http.StatusBadRequest, wantData: failed,
		},
		{
			name: "deactivated", method: http.MethodPost, path: "/api/users/login",
			body: body("otto@tallmanequipment.com", testPassword), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	rec := f.do(http.MethodPost, "/api/users/login", "", body(" LENA@tallmanequipment.com ", testPassword))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, lena.ID, resp.User.ID)
	assert.False(t, resp.User.LastLogin.IsZero())

	rec = f.do(http.MethodGet, "/api/users/me", resp.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me user.User
	decode(t, rec, &me)
	assert.Equal(t, lena.Email, me.Email)
}

func Test_userApi_signup(t *testing.T) {
	f := setup(t)
	testutil.CreateUser(t, f.usrRepo, "Taken", "taken@tallmanequipment.com", "", []string{user.RoleLearner}, true)

	signup := func(name, email, pwd string) []byte {
		return marchallObj(t, user.Signup{Name: name, Email: email, Password: pwd, PasswordConfirm: pwd})
	}

	runHTTPTests(t, f, []httpTest{
		{
			name: "foreign domain", method: http.MethodPost, path: "/api/users/signup",
			body: signup("Eve", "eve@gmail.com", testPassword), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "Enrollment requires a @tallmanequipment.com domain."}),
		},
		{
			name: "email taken", method: http.MethodPost, path: "/api/users/signup",
			body: signup("Taken Again", "taken@tallmanequipment.com", testPassword), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{
			name: "weak password", method: http.MethodPost, path: "/api/users/signup",
			body: signup("Weak", "weak@tallmanequipment.com", "12345678"), wantCode: http.StatusBadRequest,
		},
	})

	rec := f.do(http.MethodPost, "/api/users/signup", "", signup("Nina New", "nina@tallmanequipment.com", testPassword))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var usr user.User
	decode(t, rec, &usr)
	assert.Equal(t, []string{user.RoleHold}, usr.Roles)
	assert.Equal(t, f.conf.DefaultBranchID, usr.BranchID)
	assert.Len(t, f.mailSvc.SentMessages(), 1)

	// accounts on hold can sign in but cannot learn yet
	rec = f.do(http.MethodPost, "/api/users/login", "", marchallObj(t, echoapi.LoginRequest{Email: usr.Email, Password: testPassword}))
	require.Equal(t, http.StatusOK, rec.Code)
	var login echoapi.LoginResponse
	decode(t, rec, &login)

	f.createCourse(t, "c_sample")
	rec = f.do(http.MethodPost, "/api/courses/c_sample/enroll", login.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), marchallObj(t, httpErr{Error: "account pending approval"}))
	require.NoError(t, err)
	assert.True(t, ok, rec.Body.String())
}

func Test_userApi_query(t *testing.T) {
	f := setup(t)
	admin := f.createUser(t, "Ada Admin", "ada@tallmanequipment.com", user.RoleAdmin)
	learner := f.createUser(t, "Lena Learner", "lena@tallmanequipment.com", user.RoleLearner)
	instructor := f.createUser(t, "Ivan Instructor", "ivan@tallmanequipment.com", user.RoleInstructor)
	hold := f.createUser(t, "Hal Hold", "hal@tallmanequipment.com", user.RoleHold)
	columbus := user.User{
		Name: "Cole Columbus", Email: "cole@tallmanequipment.com", Roles: []string{user.RoleLearner},
		Level: 1, BranchID: "br_columbus", IsActive: false, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	columbus, err := f.usrRepo.CreateUser(context.Background(), columbus)
	require.NoError(t, err)

	token := f.getToken(t, admin)
	path := func(params ...string) string {
		v := make(url.Values)
		for i := 0; i+1 < len(params); i += 2 {
			v.Add(params[i], params[i+1])
		}
		return "/api/users?" + v.Encode()
	}

	runHTTPTests(t, f, []httpTest{
		{name: "auth required", path: "/api/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: "/api/users", token: f.getToken(t, learner),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "all", path: path("ordering", "name"), token: token, wantData: marchallList(t, admin, columbus, hold, instructor, learner)},
		{name: "search", path: path("search", "LEN"), token: token, wantData: marchallList(t, learner)},
		{name: "search (unknown)", path: path("search", "zzz"), token: token, wantData: marchallList(t)},
		{
			name: "roles", path: path("role", user.RoleInstructor+","+user.RoleHold, "ordering", "-name"), token: token,
			wantData: marchallList(t, instructor, hold),
		},
		{name: "branch", path: path("branch_id", "br_columbus"), token: token, wantData: marchallList(t, columbus)},
		{name: "inactive", path: path("is_active", "false"), token: token, wantData: marchallList(t, columbus)},
		{name: "roles list", path: "/api/users/roles", token: token, wantData: marchallObj(t, user.Roles)},
		{name: "branches are public", path: "/api/branches", wantData: marchallObj(t, user.Branches)},
	})
}

func Test_userApi_update(t *testing.T) {
	f := setup(t)
	super := f.createUser(t, "Sam Super", "sam@tallmanequipment.com", user.RoleSuperAdmin)
	admin := f.createUser(t, "Ada Admin", "ada@tallmanequipment.com", user.RoleAdmin)
	learner := f.createUser(t, "Lena Learner", "lena@tallmanequipment.com", user.RoleLearner)
	hold := f.createUser(t, "Hal Hold", "hal@tallmanequipment.com", user.RoleHold)

	bTrue, bFalse := true, false
	runHTTPTests(t, f, []httpTest{
		{
			name: "other users are hidden", method: http.MethodGet, path: "/api/users/" + admin.ID,
			token: f.getToken(t, learner), wantCode: http.StatusNotFound,
		},
		{
			name: "learner cannot change own roles", method: http.MethodPut, path: "/api/users/" + learner.ID,
			token: f.getToken(t, learner), body: marchallObj(t, user.UpdateUser{Roles: []string{user.RoleAdmin}}),
			wantCode: http.StatusForbidden,
		},
		{
			name: "learner cannot reactivate", method: http.MethodPut, path: "/api/users/" + learner.ID,
			token: f.getToken(t, learner), body: marchallObj(t, user.UpdateUser{IsActive: &bTrue}),
			wantCode: http.StatusForbidden,
		},
		{
			name: "admin cannot grant super admin", method: http.MethodPut, path: "/api/users/" + hold.ID,
			token: f.getToken(t, admin), body: marchallObj(t, user.UpdateUser{Roles: []string{user.RoleSuperAdmin}}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "admin cannot demote a super admin", method: http.MethodPut, path: "/api/users/" + super.ID,
			token: f.getToken(t, admin), body: marchallObj(t, user.UpdateUser{Roles: []string{user.RoleLearner}, IsActive: &bFalse}),
			wantCode: http.StatusForbidden,
		},
		{
			name: "unknown branch", method: http.MethodPut, path: "/api/users/" + hold.ID,
			token: f.getToken(t, admin), body: marchallObj(t, user.UpdateUser{BranchID: "br_atlantis"}),
			wantCode: http.StatusBadRequest,
		},
	})

	untouched, err := f.usrSvc.GetByID(context.Background(), super.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleSuperAdmin}, untouched.Roles)
	assert.True(t, untouched.IsActive)

	rec := f.do(http.MethodPut, "/api/users/"+learner.ID, f.getToken(t, learner), marchallObj(t, user.UpdateUser{Name: "Lena L."}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr user.User
	decode(t, rec, &usr)
	assert.Equal(t, "Lena L.", usr.Name)

	// approving a pending account
	rec = f.do(http.MethodPut, "/api/users/"+hold.ID, f.getToken(t, admin),
		marchallObj(t, user.UpdateUser{Roles: []string{user.RoleLearner}, BranchID: "br_columbus"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &usr)
	assert.Equal(t, []string{user.RoleLearner}, usr.Roles)
	assert.Equal(t, "br_columbus", usr.BranchID)

	rec = f.do(http.MethodPut, "/api/users/"+admin.ID, f.getToken(t, super), marchallObj(t, user.UpdateUser{Roles: []string{user.RoleSuperAdmin}}))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func Test_userApi_destroy(t *testing.T) {
	f := setup(t)
	super := f.createUser(t, "Sam Super", "sam@tallmanequipment.com", user.RoleSuperAdmin)
	admin := f.createUser(t, "Ada Admin", "ada@tallmanequipment.com", user.RoleAdmin)
	learner := f.createUser(t, "Lena Learner", "lena@tallmanequipment.com", user.RoleLearner)
	hold := f.createUser(t, "Hal Hold", "hal@tallmanequipment.com", user.RoleHold)
	adminToken := f.getToken(t, admin)

	runHTTPTests(t, f, []httpTest{
		{
			name: "learner cannot delete", method: http.MethodDelete, path: "/api/users/" + learner.ID,
			token: f.getToken(t, learner), wantCode: http.StatusForbidden,
		},
		{name: "not yourself", method: http.MethodDelete, path: "/api/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "not a higher role", method: http.MethodDelete, path: "/api/users/" + super.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "not yourself (bulk)", method: http.MethodDelete, path: "/api/users?id=" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "deleted", method: http.MethodDelete, path: "/api/users/" + learner.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "gone", method: http.MethodGet, path: "/api/users/" + learner.ID, token: adminToken, wantCode: http.StatusNotFound},
		{name: "not a higher role (bulk)", method: http.MethodDelete, path: "/api/users?id=" + hold.ID + "," + super.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "bulk", method: http.MethodDelete, path: "/api/users?id=" + hold.ID + ",u_unknown", token: adminToken, wantCode: http.StatusNoContent},
	})

	_, err := f.usrSvc.GetByID(context.Background(), super.ID)
	assert.NoError(t, err, "a refused bulk delete removes nobody")

	_, err = f.usrSvc.GetByID(context.Background(), hold.ID)
	assert.Equal(t, user.ErrNotFound, err)

	// tokens of deleted users are refused
	rec := f.do(http.MethodGet, "/api/users/me", f.getToken(t, learner))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func Test_userApi_refreshToken(t *testing.T) {
	f := setup(t)
	learner := f.createUser(t, "Lena Learner", "lena@tallmanequipment.com", user.RoleLearner)
	otto := testutil.CreateUser(t, f.usrRepo, "Otto Off", "otto@tallmanequipment.com", "", []string{user.RoleLearner}, false)

	now := time.Now()
	expired := echoapi.GetUserClaims(f.conf, learner, now.Add(-2*f.conf.Server.JWTRefreshExpirationDelta).Unix())
	expiredToken, err := echoapi.GenerateToken(f.conf, expired)
	require.NoError(t, err)

	badSig, err := jwt.NewWithClaims(jwt.SigningMethodHS256, echoapi.GetUserClaims(f.conf, learner)).SignedString([]byte("other-key"))
	require.NoError(t, err)

	runHTTPTests(t, f, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/api/users/token-refresh", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "bad signature", method: http.MethodPost, path: "/api/users/token-refresh", token: badSig, wantCode: http.StatusUnauthorized},
		{
			name: "inactive user", method: http.MethodPost, path: "/api/users/token-refresh", token: f.getToken(t, otto),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "refresh period expired", method: http.MethodPost, path: "/api/users/token-refresh", token: expiredToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
	})

	rec := f.do(http.MethodPost, "/api/users/token-refresh", f.getToken(t, learner))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.LoginResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Nil(t, resp.User)
}

func Test_userApi_passwordReset(t *testing.T) {
	f := setup(t)
	f.createUser(t, "Lena Learner", "lena@tallmanequipment.com", user.RoleLearner)

	for _, email := range []string{"lena@tallmanequipment.com", "ghost@tallmanequipment.com"} {
		rec := f.do(http.MethodPost, "/api/users/password-reset", "", marchallObj(t, echoapi.PasswordResetRequest{Email: email}))
		assert.Equal(t, http.StatusOK, rec.Code, email)
	}
	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "lena@tallmanequipment.com", sent[0].To[0].Address)

	rec := f.do(http.MethodPost, "/api/users/password-reset-confirm", "",
		marchallObj(t, user.ResetUserPassword{Token: "bad", UID: "bad", Password: testPassword, PasswordConfirm: testPassword}))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}
