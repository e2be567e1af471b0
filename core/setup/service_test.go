package setup_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/setup"
	"github.com/trezcool/academia/tests"
)

var env = testutil.NewEnv()

func TestService_ValidateSetupToken(t *testing.T) {
	env.Reset()
	ctx := context.Background()

	acc, prof := testutil.CreateAccount(t, env, "pupil@test.cd", "", "Pu", "Pil", account.TypeStudent, false)
	other, _ := testutil.CreateAccount(t, env, "other@test.cd", "", "Ot", "Her", account.TypeStudent, false)

	tests := []struct {
		name    string
		tok     string
		wantMsg string
	}{
		{name: "garbage", tok: "lol", wantMsg: setup.ErrInvalidSetupLink.Error()},
		{name: "expired", tok: testutil.SetupToken(t, env, acc, prof, -1), wantMsg: setup.ErrInvalidSetupLink.Error()},
		{name: "session token", tok: testutil.SessionToken(t, env, acc), wantMsg: setup.ErrInvalidSetupLink.Error()},
		{name: "profile of another account", tok: testutil.SetupToken(t, env, other, prof, env.Conf.Auth.SetupTokenTTL), wantMsg: setup.ErrNotFound.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := env.SetupSvc.ValidateSetupToken(ctx, tt.tok)
			require.NoError(t, err)
			assert.False(t, v.Valid)
			assert.Equal(t, tt.wantMsg, v.Message)
			assert.Nil(t, v.Data)
		})
	}

	v, err := env.SetupSvc.ValidateSetupToken(ctx, testutil.SetupToken(t, env, acc, prof, env.Conf.Auth.SetupTokenTTL))
	require.NoError(t, err)
	assert.True(t, v.Valid)
	require.NotNil(t, v.Data)
	assert.Equal(t, prof.ID, v.Data.ProfileID)
	assert.Equal(t, "pupil@test.cd", v.Data.Email)
}

// a profile is activated once: validate, complete, then both refuse the same link
func TestService_CompleteProfileSetup_once(t *testing.T) {
	env.Reset()
	ctx := context.Background()

	acc, prof := testutil.CreateAccount(t, env, "once@test.cd", "", "On", "Ce", account.TypeParent, false)
	tok := testutil.SetupToken(t, env, acc, prof, env.Conf.Auth.SetupTokenTTL)

	v, err := env.SetupSvc.ValidateSetupToken(ctx, tok)
	require.NoError(t, err)
	require.True(t, v.Valid)

	require.NoError(t, env.SetupSvc.CompleteProfileSetup(ctx, setup.CompleteSetup{
		Token: tok, Password: testutil.DefaultPassword, PreferredContactMethod: "EMAIL",
	}))

	err = env.SetupSvc.CompleteProfileSetup(ctx, setup.CompleteSetup{
		Token: tok, Password: "0ther!Passwd", PreferredContactMethod: account.ContactEmail,
	})
	assert.True(t, errors.Is(err, setup.ErrAlreadyActivated), "err = %v", err)

	v, err = env.SetupSvc.ValidateSetupToken(ctx, tok)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, setup.ErrAlreadyActivated.Error(), v.Message)

	stored, err := env.AccountSvc.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.NoError(t, stored.CheckPassword(testutil.DefaultPassword))

	sess, err := env.AccountSvc.Login(ctx, account.LoginCredentials{Email: acc.Email, Password: testutil.DefaultPassword})
	require.NoError(t, err)
	assert.Equal(t, account.ContactEmail, sess.Profile.PreferredContactMethod)
}

func TestService_CompleteProfileSetup_concurrent(t *testing.T) {
	env.Reset()

	acc, prof := testutil.CreateAccount(t, env, "rush@test.cd", "", "Ru", "Sh", account.TypeAdult, false)
	tok := testutil.SetupToken(t, env, acc, prof, env.Conf.Auth.SetupTokenTTL)

	const n = 6
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.SetupSvc.CompleteProfileSetup(context.Background(), setup.CompleteSetup{
				Token: tok, Password: testutil.DefaultPassword, PreferredContactMethod: account.ContactEmail,
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, errors.Is(err, setup.ErrAlreadyActivated), "err = %v", err)
	}
	assert.Equal(t, 1, successes)
}

func TestService_CompleteProfileSetup_phone(t *testing.T) {
	env.Reset()
	ctx := context.Background()

	acc, prof := testutil.CreateAccount(t, env, "phone@test.cd", "", "Pho", "Ne", account.TypeAdult, false)
	tok := testutil.SetupToken(t, env, acc, prof, env.Conf.Auth.SetupTokenTTL)

	err := env.SetupSvc.CompleteProfileSetup(ctx, setup.CompleteSetup{
		Token: tok, Password: testutil.DefaultPassword, PreferredContactMethod: account.ContactSMS, Phone: "12",
	})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "err = %v", err)
	assert.True(t, errors.Is(err, setup.ErrInvalidPhone))
	assert.Equal(t, "phone", vErr.Fields[0].Field)

	// the rejected attempt left the profile pending
	require.NoError(t, env.SetupSvc.CompleteProfileSetup(ctx, setup.CompleteSetup{
		Token: tok, Password: testutil.DefaultPassword, PreferredContactMethod: account.ContactSMS, Phone: "+1 201-555-0123",
	}))
	profiles, err := env.AccountSvc.QueryProfiles(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "+12015550123", profiles[0].ContactPhone)
}

func TestService_CreateAccountProfile(t *testing.T) {
	env.Reset()
	ctx := context.Background()

	acc, prof, sent, err := env.SetupSvc.CreateAccountProfile(ctx, setup.NewAccountProfile{
		Email: "New.Kid@test.cd", FirstName: "New", LastName: "Kid", ProfileType: "Student",
	})
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Equal(t, "new.kid@test.cd", acc.Email)
	assert.False(t, acc.HasPassword())
	assert.False(t, prof.IsActive)
	assert.Equal(t, account.TypeStudent, prof.Type)

	msg, ok := env.Mailer.LastMessage()
	require.True(t, ok)
	assert.Equal(t, "New Kid", msg.To[0].Name)

	// no login before setup
	_, err = env.AccountSvc.Login(ctx, account.LoginCredentials{Email: acc.Email, Password: testutil.DefaultPassword})
	assert.Equal(t, account.ErrInvalidCredentials, err)

	env.Mailer.FailWith(errors.New("mailbox full"))
	sent, err = env.SetupSvc.ResendSetupLink(ctx, prof.ID)
	require.NoError(t, err)
	assert.False(t, sent)
	env.Mailer.FailWith(nil)

	_, err = env.SetupSvc.ResendSetupLink(ctx, "lol")
	assert.True(t, errors.Is(err, account.ErrProfileNotFound), "err = %v", err)
}
