package tests

import (
	"net/http"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/tests"
)

func Test_accountApi_login(t *testing.T) {
	env.Reset()

	acc, _ := testutil.CreateAccount(t, env, "joe@test.cd", testutil.DefaultPassword, "Joe", "Kabila", account.TypeAdult, true)
	testutil.CreateAccount(t, env, "pending@test.cd", testutil.DefaultPassword, "Pat", "Lumumba", account.TypeTeacher, false)

	invalidCreds := marchallObj(t, httpErr{Error: "invalid credentials"})

	tests := []httpTest{
		{
			name: "email required", body: marchallObj(t, account.LoginCredentials{Password: testutil.DefaultPassword}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": "this field is required"}),
		},
		{
			name: "unknown email", body: marchallObj(t, account.LoginCredentials{Email: "nobody@test.cd", Password: testutil.DefaultPassword}),
			wantCode: http.StatusUnauthorized, wantData: invalidCreds,
		},
		{
			name: "wrong password", body: marchallObj(t, account.LoginCredentials{Email: acc.Email, Password: "Wr0ng!pass"}),
			wantCode: http.StatusUnauthorized, wantData: invalidCreds,
		},
		{
			name: "profile not activated", body: marchallObj(t, account.LoginCredentials{Email: "pending@test.cd", Password: testutil.DefaultPassword}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account not activated"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/api/auth/login", tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("success (case-insensitive email)", func(t *testing.T) {
		body := marchallObj(t, account.LoginCredentials{Email: "JOE@test.cd", Password: testutil.DefaultPassword})
		req, rec := newRequest(http.MethodPost, "/api/auth/login", body)
		app.ServeHTTP(rec, req)
		checkCode(t, httpTest{wantCode: http.StatusOK}, rec)

		var sess account.Session
		unmarshalBody(t, rec, &sess)
		assert.NotEmpty(t, sess.Token)
		assert.Equal(t, acc.ID, sess.Account.ID)
		require.NotNil(t, sess.Profile)
		assert.Equal(t, account.TypeAdult, sess.Profile.Type)
		assert.False(t, sess.Account.LastLogin.IsZero())

		claims, err := env.Tokens.VerifySession(sess.Token)
		require.NoError(t, err)
		assert.Equal(t, acc.ID, claims.AccountID)
	})
}

func Test_accountApi_register(t *testing.T) {
	env.Reset()

	data := account.NewAccount{
		Email:           "Mama@Test.cd",
		Password:        testutil.DefaultPassword,
		PasswordConfirm: testutil.DefaultPassword,
		FirstName:       "Mama",
		LastName:        "Tshala",
	}

	req, rec := newRequest(http.MethodPost, "/api/auth/register", marchallObj(t, data))
	app.ServeHTTP(rec, req)
	checkCode(t, httpTest{wantCode: http.StatusCreated}, rec)

	var sess account.Session
	unmarshalBody(t, rec, &sess)
	assert.Equal(t, "mama@test.cd", sess.Account.Email)
	require.NotNil(t, sess.Profile)
	assert.Equal(t, account.TypeAdult, sess.Profile.Type)
	assert.True(t, sess.Profile.IsActive)

	tests := []httpTest{
		{
			name: "account exists", body: marchallObj(t, data), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": account.ErrEmailExists.Error()}),
		},
		{
			name: "staff type refused",
			body: marchallObj(t, account.NewAccount{
				Email:           "intruder@test.cd",
				Password:        testutil.DefaultPassword,
				PasswordConfirm: testutil.DefaultPassword,
				FirstName:       "Ivan",
				LastName:        "Trudeau",
				ProfileType:     account.TypeAdmin,
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"profileType": "profile type must be one of student, parent or adult"}),
		},
		{
			name: "weak password",
			body: marchallObj(t, account.NewAccount{
				Email:           "weak@test.cd",
				Password:        "12345678",
				PasswordConfirm: "12345678",
				FirstName:       "Willy",
				LastName:        "Kasongo",
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"password": "password cannot be entirely numeric"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/api/auth/register", tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_accountApi_me(t *testing.T) {
	env.Reset()

	acc, prof := testutil.CreateAccount(t, env, "me@test.cd", testutil.DefaultPassword, "Moise", "Tshombe", account.TypeParent, true)

	tests := []httpTest{
		{name: "token required", path: "/api/auth/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "invalid token", path: "/api/auth/me", token: "lol", wantCode: http.StatusForbidden, wantData: marchallObj(t, errInvalidToken)},
		{
			name: "setup token refused", path: "/api/auth/me", token: testutil.SetupToken(t, env, acc, prof, env.Conf.Auth.SetupTokenTTL),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errInvalidToken),
		},
		{
			name: "success", path: "/api/auth/me", token: testutil.SessionToken(t, env, acc),
			wantCode: http.StatusOK, wantData: marchallObj(t, MeResponse{Account: acc, Profiles: []account.Profile{prof}}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, serve(tt))
		})
	}
}

func Test_accountApi_refreshToken(t *testing.T) {
	env.Reset()

	acc, _ := testutil.CreateAccount(t, env, "fresh@test.cd", testutil.DefaultPassword, "Fred", "Mbuyi", account.TypeStudent, true)

	req, rec := newAuthRequest(http.MethodPost, "/api/auth/token-refresh", testutil.SessionToken(t, env, acc))
	app.ServeHTTP(rec, req)
	checkCode(t, httpTest{wantCode: http.StatusOK}, rec)

	var res TokenResponse
	unmarshalBody(t, rec, &res)
	claims, err := env.Tokens.VerifySession(res.Token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, claims.AccountID)
}

func Test_accountApi_resetPassword(t *testing.T) {
	env.Reset()

	acc, _ := testutil.CreateAccount(t, env, "forgetful@test.cd", testutil.DefaultPassword, "Felix", "Tshisekedi", account.TypeAdult, true)
	success := marchallObj(t, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})

	tests := []httpTest{
		{
			name: "email required", body: marchallObj(t, PasswordResetRequest{}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"email": "this field is required"}),
		},
		{name: "unknown email", body: marchallObj(t, PasswordResetRequest{Email: "ghost@test.cd"}), wantCode: http.StatusOK, wantData: success},
		{name: "known email", body: marchallObj(t, PasswordResetRequest{Email: acc.Email}), wantCode: http.StatusOK, wantData: success, extra: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.Mailer.Reset()
			req, rec := newRequest(http.MethodPost, "/api/auth/password-reset", tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			msg, sent := env.Mailer.LastMessage()
			if tt.extra == nil {
				assert.False(t, sent)
				return
			}
			require.True(t, sent)
			assert.Equal(t, acc.Email, msg.To[0].Address)
			assert.Equal(t, "Felix Tshisekedi", msg.To[0].Name)
			assert.Regexp(t, regexp.MustCompile(`/password-reset/.+/.+`), msg.TextContent)
		})
	}
}

func Test_accountApi_confirmPasswordReset(t *testing.T) {
	env.Reset()

	tests := []httpTest{
		{
			name: "invalid uid",
			body: marchallObj(t, account.ResetPassword{
				Token:           "lol-cat",
				UID:             "lol",
				Password:        "N3w!passwd",
				PasswordConfirm: "N3w!passwd",
			}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"uid": "invalid value"}),
		},
		{
			name:     "password required",
			body:     marchallObj(t, account.ResetPassword{Token: "lol-cat", UID: "lol"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"password":        "this field is required",
				"passwordConfirm": "this field is required",
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/api/auth/password-reset-confirm", tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
