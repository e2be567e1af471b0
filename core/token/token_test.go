package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueVerify(t *testing.T) {
	svc := NewService("secret", "Academia")
	other := NewService("other-secret", "Academia")

	validToken, err := svc.IssueSession("acc-1", "jane@x.org", time.Hour)
	require.NoError(t, err)

	expiredToken, err := svc.IssueSession("acc-1", "jane@x.org", 0)
	require.NoError(t, err)

	foreignToken, err := other.IssueSession("acc-1", "jane@x.org", time.Hour)
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{AccountID: "acc-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	parts := strings.Split(validToken, ".")
	tamperedToken := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "no token", wantErr: ErrInvalidToken},
		{name: "garbage", token: "lmaooolol", wantErr: ErrInvalidToken},
		{name: "tampered payload", token: tamperedToken, wantErr: ErrInvalidToken},
		{name: "foreign secret", token: foreignToken, wantErr: ErrInvalidToken},
		{name: "alg none", token: noneToken, wantErr: ErrInvalidToken},
		{name: "zero ttl", token: expiredToken, wantErr: ErrExpiredToken},
		{name: "valid token", token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := svc.Verify(tt.token)
			if err != tt.wantErr {
				t.Fatalf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				assert.Equal(t, "acc-1", claims.AccountID)
				assert.Equal(t, "jane@x.org", claims.Email)
				assert.Equal(t, TypeSession, claims.TokenType)
			}
		})
	}
}

func TestVerifyExpiry(t *testing.T) {
	svc := NewService("secret", "Academia")
	defer func() { NowFunc = time.Now }()

	tok, err := svc.IssueSetup("acc-1", "prof-1", "t@test.cd", "teacher", 7*24*time.Hour)
	require.NoError(t, err)

	NowFunc = func() time.Time { return time.Now().Add(6 * 24 * time.Hour) }
	claims, err := svc.VerifySetup(tok)
	require.NoError(t, err)
	assert.Equal(t, "prof-1", claims.ProfileID)
	assert.Equal(t, "teacher", claims.ProfileType)

	NowFunc = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err = svc.VerifySetup(tok)
	assert.Equal(t, ErrExpiredToken, err)
}

func TestVerifyType(t *testing.T) {
	svc := NewService("secret", "Academia")

	session, err := svc.IssueSession("acc-1", "t@test.cd", time.Hour)
	require.NoError(t, err)
	setup, err := svc.IssueSetup("acc-1", "prof-1", "t@test.cd", "teacher", time.Hour)
	require.NoError(t, err)

	_, err = svc.VerifySetup(session)
	assert.Equal(t, ErrInvalidToken, err, "session token accepted as setup token")

	_, err = svc.VerifySession(setup)
	assert.Equal(t, ErrInvalidToken, err, "setup token accepted as session token")

	_, err = svc.VerifySession(session)
	assert.NoError(t, err)
}

func TestIssueSessionKeepsOrigIssuedAt(t *testing.T) {
	svc := NewService("secret", "Academia")
	orig := time.Now().Add(-2 * time.Hour).Unix()

	tok, err := svc.IssueSession("acc-1", "t@test.cd", time.Hour, orig)
	require.NoError(t, err)

	claims, err := svc.VerifySession(tok)
	require.NoError(t, err)
	assert.Equal(t, orig, claims.OrigIssuedAt)
	assert.Equal(t, "acc-1", claims.Subject)
}
