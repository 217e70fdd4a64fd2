package echoapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/markbook/apps/api/echo"
	"github.com/trezcool/markbook/core/instructor"
	"github.com/trezcool/markbook/tests"
)

func TestInstructorApi_login(t *testing.T) {
	app := setup(t)
	jane := testutil.CreateInstructor(t, app.insRepo, "Jane", "jane", "jane@school.test", "Gr8-Mark!ng", false, true)
	testutil.CreateInstructor(t, app.insRepo, "Old", "old", "old@school.test", "Gr8-Mark!ng", false, false)

	authFailed := marshalObj(t, httpErr{Error: "authentication failed"})
	tests := []httpTest{
		{name: "missing credentials", body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"username": "this field is required", "password": "this field is required"})},
		{name: "unknown", body: []byte(`{"username": "nobody", "password": "Gr8-Mark!ng"}`), wantCode: http.StatusBadRequest, wantData: authFailed},
		{name: "wrong password", body: []byte(`{"username": "jane", "password": "nope"}`), wantCode: http.StatusBadRequest, wantData: authFailed},
		{name: "inactive", body: []byte(`{"username": "old", "password": "Gr8-Mark!ng"}`), wantCode: http.StatusBadRequest, wantData: authFailed},
		{name: "by email", body: []byte(`{"username": "jane@school.test", "password": "Gr8-Mark!ng"}`), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/login"

		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt)
			checkCodeAndData(t, tt, rec)
			if tt.wantCode != http.StatusOK {
				return
			}

			var resp LoginResponse
			decode(t, rec, &resp)
			claims := new(Claims)
			_, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
				return []byte(app.conf.SecretKey), nil
			})
			require.NoError(t, err)
			assert.Equal(t, jane.ID, claims.Subject)
			assert.Equal(t, "jane", claims.Username)
			assert.False(t, claims.IsAdmin)

			ins, err := app.insRepo.GetInstructorByID(context.Background(), jane.ID)
			require.NoError(t, err)
			assert.False(t, ins.LastLogin.IsZero())
		})
	}
}

func TestInstructorApi_refreshToken(t *testing.T) {
	app := setup(t)
	jane := testutil.CreateInstructor(t, app.insRepo, "Jane", "jane", "jane@school.test", "", false, true)
	old := testutil.CreateInstructor(t, app.insRepo, "Old", "old", "old@school.test", "", false, false)
	ghost := instructor.Instructor{ID: "ghost", Username: "ghost"}

	unrefreshable := NewClaims(app.conf, jane, time.Now().Add(-2*app.conf.Server.JWTRefreshExpirationDelta).Unix())
	unrefreshableToken, err := GenerateToken(app.conf, unrefreshable)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "invalid token", token: "lol", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, httpErr{Error: "invalid or expired jwt"})},
		{name: "unknown instructor", token: app.getToken(t, ghost), wantCode: http.StatusUnauthorized, wantData: marshalObj(t, httpErr{Error: "instructor not authenticated"})},
		{name: "inactive instructor", token: app.getToken(t, old), wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "account deactivated"})},
		{name: "refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "refresh has expired"})},
		{name: "refreshed", token: app.getToken(t, jane), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt)
			checkCodeAndData(t, tt, rec)
			if tt.wantCode == http.StatusOK {
				var resp LoginResponse
				decode(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
			}
		})
	}
}

func TestInstructorApi_me(t *testing.T) {
	app := setup(t)
	jane := testutil.CreateInstructor(t, app.insRepo, "Jane", "jane", "jane@school.test", "", true, true)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "me", token: app.getToken(t, jane), wantCode: http.StatusOK, wantData: marshalObj(t, jane)},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		tt.path = "/v1/instructors/me"

		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, app.do(tt))
		})
	}
}
