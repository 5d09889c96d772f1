package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/proleap/backend/apps/api/echo"
	"github.com/proleap/backend/core/progress"
	"github.com/proleap/backend/core/user"
	"github.com/proleap/backend/testutil"
)

func signInBody(t *testing.T, email, pwd string) []byte {
	return marchallObj(t, echoapi.SignInRequest{Email: email, Password: pwd})
}

func Test_authApi_signIn(t *testing.T) {
	app := newTestApp(t)
	testutil.CreateUser(t, app.UserRepo, "sleeper", user.RoleUser, testutil.Inactive)
	testutil.CreateUser(t, app.UserRepo, "newbie", user.RoleUser, testutil.Unverified)

	app.run(t, []httpTest{
		{
			name:     "unknown email",
			method:   http.MethodPost,
			path:     "/api/sign-in",
			body:     signInBody(t, "nobody@test.com", testutil.Password),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "user not found"}),
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/api/sign-in",
			body:     signInBody(t, "learner@test.com", "wrong-pwd"),
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, httpErr{Error: "invalid credentials"}),
		},
		{
			name:     "deactivated",
			method:   http.MethodPost,
			path:     "/api/sign-in",
			body:     signInBody(t, "sleeper@test.com", testutil.Password),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name:     "missing password",
			method:   http.MethodPost,
			path:     "/api/sign-in",
			body:     []byte(`{"email": "learner@test.com"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unverified may sign in",
			method:   http.MethodPost,
			path:     "/api/sign-in",
			body:     signInBody(t, "newbie@test.com", testutil.Password),
			wantCode: http.StatusOK,
		},
	})

	t.Run("no batch yet", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/sign-in", "", signInBody(t, " Learner@Test.com ", testutil.Password))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := unmarshal[echoapi.SignInResponse](t, rec)
		assert.Equal(t, app.usr.ID, resp.UserID)
		assert.Equal(t, "learner", resp.Username)
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)
		assert.Nil(t, resp.BatchID)
		assert.Nil(t, resp.BatchName)

		usr, err := app.Users.GetByID(context.Background(), app.usr.ID)
		require.NoError(t, err)
		assert.True(t, usr.LastLogin.Valid)
	})

	t.Run("latest batch", func(t *testing.T) {
		ctx := context.Background()
		clock := testutil.NewClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
		b1 := testutil.CreateBatch(t, app.Services, "Spring")
		b2 := testutil.CreateBatch(t, app.Services, "Summer")

		_, err := app.Progress.Upsert(ctx, progress.LevelBatch, progress.Key{UserID: app.usr.ID, ContainerID: b2.ID}, progress.Patch{})
		require.NoError(t, err)
		clock.Advance(time.Minute)
		_, err = app.Progress.Upsert(ctx, progress.LevelBatch, progress.Key{UserID: app.usr.ID, ContainerID: b1.ID}, progress.Patch{})
		require.NoError(t, err)

		rec := app.do(http.MethodPost, "/api/sign-in", "", signInBody(t, "learner@test.com", testutil.Password))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := unmarshal[echoapi.SignInResponse](t, rec)
		require.NotNil(t, resp.BatchID)
		require.NotNil(t, resp.BatchName)
		assert.Equal(t, b1.ID, *resp.BatchID)
		assert.Equal(t, "Spring", *resp.BatchName)
	})

	t.Run("latest batch deleted", func(t *testing.T) {
		ctx := context.Background()
		clock := testutil.NewClock(t, time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))
		b := testutil.CreateBatch(t, app.Services, "Autumn")
		a := testutil.CreateActivity(t, app.Services, b.ID, 1)
		clock.Advance(time.Minute)
		_, err := app.Progress.Upsert(ctx, progress.LevelBatch, progress.Key{UserID: app.usr.ID, ContainerID: b.ID}, progress.Patch{})
		require.NoError(t, err)

		adminToken := app.token(t, app.admin)
		rec := app.do(http.MethodDelete, "/api/batches/"+itoa(b.ID), adminToken)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = app.do(http.MethodGet, "/api/activities/"+itoa(a.ID), adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = app.do(http.MethodPost, "/api/sign-in", "", signInBody(t, "learner@test.com", testutil.Password))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := unmarshal[echoapi.SignInResponse](t, rec)
		if resp.BatchID != nil {
			assert.NotEqual(t, b.ID, *resp.BatchID)
		}
	})
}

func Test_authApi_refresh(t *testing.T) {
	app := newTestApp(t)
	refresh, err := app.srv.Tokens().Refresh(app.usr)
	require.NoError(t, err)

	body := func(token string) []byte {
		return marchallObj(t, echoapi.RefreshRequest{RefreshToken: token})
	}
	invalid := marchallObj(t, httpErr{Error: "invalid or expired token"})

	app.run(t, []httpTest{
		{
			name:     "access token refused",
			method:   http.MethodPost,
			path:     "/api/token-refresh",
			body:     body(app.token(t, app.usr)),
			wantCode: http.StatusUnauthorized,
			wantData: invalid,
		},
		{
			name:     "garbage",
			method:   http.MethodPost,
			path:     "/api/token-refresh",
			body:     body("not.a.token"),
			wantCode: http.StatusUnauthorized,
			wantData: invalid,
		},
		{
			name:     "missing token",
			method:   http.MethodPost,
			path:     "/api/token-refresh",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("refresh token", func(t *testing.T) {
		rec := app.do(http.MethodPost, "/api/token-refresh", "", body(refresh))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := unmarshal[echoapi.RefreshResponse](t, rec)
		claims, err := app.srv.Tokens().Parse(resp.AccessToken)
		require.NoError(t, err)
		id, err := claims.UserID()
		require.NoError(t, err)
		assert.Equal(t, app.usr.ID, id)

		// the new token opens the API
		rec = app.do(http.MethodGet, "/api/users/"+itoa(app.usr.ID), resp.AccessToken)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestAuthentication(t *testing.T) {
	app := newTestApp(t)
	refresh, err := app.srv.Tokens().Refresh(app.admin)
	require.NoError(t, err)
	sleeper := testutil.CreateUser(t, app.UserRepo, "sleeper", user.RoleAdmin, testutil.Inactive)
	newbie := testutil.CreateUser(t, app.UserRepo, "newbie", user.RoleAdmin, testutil.Unverified)

	ghost := testutil.CreateUser(t, app.UserRepo, "ghost", user.RoleAdmin)
	ghostToken := app.token(t, ghost)
	require.NoError(t, app.Users.Delete(context.Background(), ghost.ID))

	app.run(t, []httpTest{
		{
			name:     "missing token",
			method:   http.MethodGet,
			path:     "/api/batches",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "refresh token as access token",
			method:   http.MethodGet,
			path:     "/api/batches",
			token:    refresh,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "deactivated",
			method:   http.MethodGet,
			path:     "/api/batches",
			token:    app.token(t, sleeper),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name:     "unverified",
			method:   http.MethodGet,
			path:     "/api/batches",
			token:    app.token(t, newbie),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account not verified"}),
		},
		{
			name:     "deleted user",
			method:   http.MethodGet,
			path:     "/api/batches",
			token:    ghostToken,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "ok",
			method:   http.MethodGet,
			path:     "/api/batches",
			token:    app.token(t, app.admin),
			wantCode: http.StatusOK,
			wantData: marchallList(t),
		},
	})
}

func TestHome(t *testing.T) {
	app := newTestApp(t)
	rec := app.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to ProLeap API!", rec.Body.String())
}
