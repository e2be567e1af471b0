package staff_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/staff"
	"github.com/trezcool/academia/tests"
)

var env = testutil.NewEnv()

func accept(tok string) staff.AcceptInvitation {
	return staff.AcceptInvitation{Token: tok, Password: testutil.DefaultPassword, ConfirmPassword: testutil.DefaultPassword}
}

func TestService_Create(t *testing.T) {
	env.Reset()
	ctx := context.Background()
	testutil.CreateAccount(t, env, "taken@test.cd", testutil.DefaultPassword, "Tata", "Nzeza", account.TypeAdult, true)

	tests := []struct {
		name    string
		ni      staff.NewInvitation
		wantErr error
	}{
		{name: "account exists", ni: staff.NewInvitation{Email: "Taken@test.cd", FirstName: "T", LastName: "N", Role: account.TypeTeacher}, wantErr: staff.ErrDuplicateAccount},
		{name: "student role", ni: staff.NewInvitation{Email: "kid@test.cd", FirstName: "K", LastName: "M", Role: account.TypeStudent}},
		{name: "parent role", ni: staff.NewInvitation{Email: "mum@test.cd", FirstName: "M", LastName: "M", Role: account.TypeParent}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.StaffSvc.Create(ctx, tt.ni, nil)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
			}
		})
	}

	t.Run("admin role", func(t *testing.T) {
		inv, sent, err := env.StaffSvc.Create(ctx, staff.NewInvitation{Email: " Boss@Test.cd ", FirstName: "Bo", LastName: "Ss", Role: "ADMIN"}, nil)
		require.NoError(t, err)
		assert.True(t, sent)
		assert.Equal(t, "boss@test.cd", inv.Email)
		assert.Equal(t, account.TypeAdmin, inv.Role)
		assert.Equal(t, staff.StatusPending, inv.Status)
		assert.Nil(t, inv.InvitedBy)
		assert.Equal(t, env.Conf.Auth.InvitationTTL, inv.ExpiresAt.Sub(inv.InvitedAt))
		assert.NotEmpty(t, inv.Token)
	})
}

func TestService_Create_duplicatePending(t *testing.T) {
	env.Reset()
	ctx := context.Background()

	inv := testutil.CreateInvitation(t, env, "dup@test.cd", "Dudu", "Pepe", account.TypeTeacher)

	_, _, err := env.StaffSvc.Create(ctx, staff.NewInvitation{Email: "DUP@test.cd", FirstName: "D", LastName: "P", Role: account.TypeManager}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, staff.ErrDuplicatePendingInvitation))
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "email", vErr.Fields[0].Field)

	// allowed again once the pending one is cancelled
	_, err = env.StaffSvc.Cancel(ctx, inv.ID)
	require.NoError(t, err)
	again, _, err := env.StaffSvc.Create(ctx, staff.NewInvitation{Email: "dup@test.cd", FirstName: "D", LastName: "P", Role: account.TypeManager}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, inv.ID, again.ID)
}

func TestService_Create_emailFailure(t *testing.T) {
	env.Reset()
	env.Mailer.FailWith(errors.New("smtp down"))
	defer env.Mailer.Reset()

	inv, sent, err := env.StaffSvc.Create(context.Background(), staff.NewInvitation{
		Email: "offline@test.cd", FirstName: "Off", LastName: "Line", Role: account.TypeTeacher,
	}, nil)
	require.NoError(t, err)
	assert.False(t, sent)

	stored, err := env.StaffSvc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, staff.StatusPending, stored.Status)
}

func TestService_Cancel(t *testing.T) {
	env.Reset()
	ctx := context.Background()

	inv := testutil.CreateInvitation(t, env, "gone@test.cd", "Gogo", "Ne", account.TypeTeacher)
	cancelled, err := env.StaffSvc.Cancel(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, staff.StatusCancelled, cancelled.Status)

	for name, id := range map[string]string{"already cancelled": inv.ID, "unknown": "lol"} {
		t.Run(name, func(t *testing.T) {
			_, err := env.StaffSvc.Cancel(ctx, id)
			assert.True(t, errors.Is(err, staff.ErrNotFound), "err = %v", err)
		})
	}

	_, err = env.StaffSvc.Accept(ctx, accept(inv.Token))
	assert.True(t, errors.Is(err, staff.ErrInvalidOrExpiredInvitation))
}

// the full lifecycle of an invitation, through a resend
func TestService_lifecycle(t *testing.T) {
	env.Reset()
	ctx := context.Background()

	inv := testutil.CreateInvitation(t, env, "jane@x.org", "Jane", "Doe", account.TypeTeacher)
	oldTok := testutil.InvitationToken(t, env, inv.ID)

	resent, sent, err := env.StaffSvc.Resend(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, sent)
	newTok := testutil.InvitationToken(t, env, inv.ID)
	assert.NotEqual(t, oldTok, newTok)
	assert.False(t, resent.ExpiresAt.Before(inv.ExpiresAt))

	_, err = env.StaffSvc.Accept(ctx, accept(oldTok))
	assert.True(t, errors.Is(err, staff.ErrInvalidOrExpiredInvitation))

	sess, err := env.StaffSvc.Accept(ctx, accept(newTok))
	require.NoError(t, err)
	assert.True(t, sess.Account.EmailVerified)

	claims, err := env.Tokens.VerifySession(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.Account.ID, claims.AccountID)
	assert.Equal(t, "jane@x.org", claims.Email)

	accepted, err := env.StaffSvc.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, staff.StatusAccepted, accepted.Status)
	require.NotNil(t, accepted.AcceptedAt)

	login, err := env.AccountSvc.Login(ctx, account.LoginCredentials{Email: "jane@x.org", Password: testutil.DefaultPassword})
	require.NoError(t, err)
	require.NotNil(t, login.Profile)
	assert.Equal(t, account.TypeTeacher, login.Profile.Type)
	assert.True(t, login.Profile.IsActive)

	// processed invitations can no longer be resent or accepted
	_, _, err = env.StaffSvc.Resend(ctx, inv.ID)
	assert.True(t, errors.Is(err, staff.ErrNotFound))
	_, err = env.StaffSvc.Accept(ctx, accept(newTok))
	assert.True(t, errors.Is(err, staff.ErrInvalidOrExpiredInvitation))
}

func TestService_Accept_passwords(t *testing.T) {
	env.Reset()
	ctx := context.Background()
	tok := testutil.CreateInvitation(t, env, "picky@test.cd", "Pi", "Cky", account.TypeManager).Token

	_, err := env.StaffSvc.Accept(ctx, staff.AcceptInvitation{Token: tok, Password: testutil.DefaultPassword, ConfirmPassword: "0ther!Pass"})
	assert.True(t, errors.Is(err, staff.ErrPasswordMismatch))

	_, err = env.StaffSvc.Accept(ctx, staff.AcceptInvitation{Token: tok, Password: "password", ConfirmPassword: "password"})
	assert.Error(t, err)

	// a rejected password leaves the invitation pending
	_, err = env.StaffSvc.Accept(ctx, accept(tok))
	assert.NoError(t, err)
}

func TestService_Accept_concurrent(t *testing.T) {
	env.Reset()
	tok := testutil.CreateInvitation(t, env, "race@test.cd", "Ra", "Ce", account.TypeTeacher).Token

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.StaffSvc.Accept(context.Background(), accept(tok))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else {
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.True(t, errors.Is(err, staff.ErrInvalidOrExpiredInvitation), "err = %v", err)
	}

	acc, err := env.AccountSvc.GetByEmail(context.Background(), "race@test.cd")
	require.NoError(t, err)
	profiles, err := env.AccountSvc.QueryProfiles(context.Background(), acc.ID)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}

func TestService_lazyExpiry(t *testing.T) {
	env.Reset()
	ctx := context.Background()

	inv := testutil.CreateInvitation(t, env, "late@test.cd", "La", "Te", account.TypeTeacher)
	fresh := testutil.CreateInvitation(t, env, "early@test.cd", "Ea", "Rly", account.TypeTeacher)
	_, err := env.StaffSvc.Cancel(ctx, fresh.ID)
	require.NoError(t, err)

	staff.NowFunc = func() time.Time { return inv.ExpiresAt.Add(time.Second) }
	defer func() { staff.NowFunc = time.Now }()

	invs, err := env.StaffSvc.Query(ctx, staff.QueryFilter{Status: staff.StatusExpired})
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, inv.ID, invs[0].ID)
	assert.Equal(t, staff.StatusPending, invs[0].Status)
	assert.True(t, invs[0].Expired)

	// still listed as pending
	invs, err = env.StaffSvc.Query(ctx, staff.QueryFilter{Status: staff.StatusPending})
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.True(t, invs[0].Expired)

	_, err = env.StaffSvc.Accept(ctx, accept(inv.Token))
	assert.True(t, errors.Is(err, staff.ErrInvalidOrExpiredInvitation))

	// resending renews an expired, still pending invitation
	resent, _, err := env.StaffSvc.Resend(ctx, inv.ID)
	require.NoError(t, err)
	assert.False(t, resent.Expired)
	_, err = env.StaffSvc.Accept(ctx, accept(resent.Token))
	assert.NoError(t, err)
}
