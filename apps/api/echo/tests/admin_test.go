package tests

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/setup"
	"github.com/trezcool/academia/services/ratelimit"
	"github.com/trezcool/academia/tests"
)

func Test_adminApi_createAccountProfile(t *testing.T) {
	env.Reset()

	adminAcc, _ := testutil.CreateAccount(t, env, "boss@test.cd", testutil.DefaultPassword, "Bea", "Kabasele", account.TypeAdmin, true)
	managerAcc, _ := testutil.CreateAccount(t, env, "manager@test.cd", testutil.DefaultPassword, "Max", "Mutombo", account.TypeManager, true)
	data := setup.NewAccountProfile{Email: "kid@test.cd", FirstName: "Kiki", LastName: "Mayele", ProfileType: account.TypeStudent}

	tests := []httpTest{
		{name: "auth required", body: marchallObj(t, data), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errAuthRequired)},
		{
			name: "manager refused", body: marchallObj(t, data), token: testutil.SessionToken(t, env, managerAcc),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermDenied),
		},
		{
			name: "invalid profile type", body: marchallObj(t, setup.NewAccountProfile{Email: "x@test.cd", FirstName: "X", LastName: "Y", ProfileType: "lol"}),
			token: testutil.SessionToken(t, env, adminAcc), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"profileType": "invalid profile type"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodPost
			tt.path = "/api/admin/accounts"
			checkCodeAndData(t, tt, serve(tt))
		})
	}

	var created AccountProfileResponse
	t.Run("admin", func(t *testing.T) {
		env.Mailer.Reset()
		req, rec := newAuthRequest(http.MethodPost, "/api/admin/accounts", testutil.SessionToken(t, env, adminAcc), marchallObj(t, data))
		app.ServeHTTP(rec, req)
		checkCode(t, httpTest{wantCode: http.StatusCreated}, rec)

		unmarshalBody(t, rec, &created)
		assert.Equal(t, data.Email, created.Account.Email)
		assert.False(t, created.Profile.IsActive)
		require.NotNil(t, created.EmailSent)
		assert.True(t, *created.EmailSent)

		msg, sent := env.Mailer.LastMessage()
		require.True(t, sent)
		assert.Equal(t, data.Email, msg.To[0].Address)
		assert.Contains(t, msg.TextContent, "/setup-profile?token=")

		// the emailed link is valid
		i := strings.Index(msg.TextContent, "token=")
		tok, err := url.QueryUnescape(strings.Fields(msg.TextContent[i+len("token="):])[0])
		require.NoError(t, err)
		req, rec = newRequest(http.MethodGet, "/api/setup/validate-token?token="+url.QueryEscape(tok))
		app.ServeHTTP(rec, req)
		checkCode(t, httpTest{wantCode: http.StatusOK}, rec)
	})

	t.Run("account exists", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/admin/accounts?"+sysAdminQuery(), marchallObj(t, data))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": account.ErrEmailExists.Error()}),
		}, rec)
	})

	t.Run("resend setup link", func(t *testing.T) {
		tests := []httpTest{
			{
				name: "pending profile", path: "/api/admin/profiles/" + created.Profile.ID + "/setup-link?" + sysAdminQuery(),
				wantCode: http.StatusOK, wantData: marchallObj(t, EmailSentResponse{EmailSent: true}),
			},
			{
				name: "unknown profile", path: "/api/admin/profiles/lol/setup-link?" + sysAdminQuery(),
				wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound),
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.method = http.MethodPost
				checkCodeAndData(t, tt, serve(tt))
			})
		}
	})
}

func Test_adminApi_resendSetupLink_activeProfile(t *testing.T) {
	env.Reset()

	_, prof := testutil.CreateAccount(t, env, "done@test.cd", testutil.DefaultPassword, "Dede", "Mbenza", account.TypeAdult, true)

	tt := httpTest{
		method: http.MethodPost, path: "/api/admin/profiles/" + prof.ID + "/setup-link?" + sysAdminQuery(),
		wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "profile already activated"}),
	}
	checkCodeAndData(t, tt, serve(tt))
}

func Test_adminApi_provision(t *testing.T) {
	env.Reset()

	data := account.ProvisionAccount{
		Email:       "first.admin@test.cd",
		Password:    testutil.DefaultPassword,
		FirstName:   "Fifi",
		LastName:    "Mbemba",
		ProfileType: account.TypeAdmin,
	}
	acc, _ := testutil.CreateAccount(t, env, "admin@test.cd", testutil.DefaultPassword, "Ada", "Mwamba", account.TypeAdmin, true)

	tests := []httpTest{
		{name: "credentials required", body: marchallObj(t, data), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errInvalidSysCred)},
		{
			name: "bearer not accepted", body: marchallObj(t, data), token: testutil.SessionToken(t, env, acc),
			wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errInvalidSysCred),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodPost
			tt.path = "/api/system/accounts"
			checkCodeAndData(t, tt, serve(tt))
		})
	}

	t.Run("system admin", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/system/accounts", sysAdminBody(t, data))
		app.ServeHTTP(rec, req)
		checkCode(t, httpTest{wantCode: http.StatusCreated}, rec)

		var res AccountProfileResponse
		unmarshalBody(t, rec, &res)
		assert.True(t, res.Account.EmailVerified)
		assert.True(t, res.Profile.IsActive)
		assert.Equal(t, account.TypeAdmin, res.Profile.Type)
		assert.Nil(t, res.EmailSent)

		req, rec = newRequest(http.MethodPost, "/api/auth/login", marchallObj(t, account.LoginCredentials{Email: data.Email, Password: data.Password}))
		app.ServeHTTP(rec, req)
		checkCode(t, httpTest{wantCode: http.StatusOK}, rec)
	})
}

func Test_server_rateLimit(t *testing.T) {
	env.Reset()

	limited := newServer(ratelimit.NewMemoryLimiter(2, time.Hour))
	body := marchallObj(t, PasswordResetRequest{Email: "ghost@test.cd"})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req, rec := newRequest(http.MethodPost, "/api/auth/password-reset", body)
		limited.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// other routes keep their own budget
	req, rec := newRequest(http.MethodPost, "/api/auth/login", marchallObj(t, account.LoginCredentials{Email: "ghost@test.cd", Password: "x"}))
	limited.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req, rec = newRequest(http.MethodGet, "/metrics")
	limited.ServeHTTP(rec, req)
	checkCode(t, httpTest{wantCode: http.StatusOK}, rec)
	assert.Contains(t, rec.Body.String(), `academia_rate_limited_total{route="/api/auth/password-reset"} 1`)
	assert.Contains(t, rec.Body.String(), `academia_logins_total{result="failure"} 1`)
}

func Test_server_home(t *testing.T) {
	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to "+env.Conf.AppName+" API!", rec.Body.String())
}
