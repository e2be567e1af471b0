// Package token issues and verifies the signed, time-limited tokens used for sessions and profile setup links.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Token types
const (
	TypeSession   = "session"
	TypeUserSetup = "user_setup"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")

	signingMethod = jwt.SigningMethodHS256
)

// Claims is the payload carried by every token.
type Claims struct {
	AccountID    string `json:"accountId"`
	Email        string `json:"email"`
	TokenType    string `json:"tokenType"`
	ProfileID    string `json:"profileId,omitempty"`
	ProfileType  string `json:"profileType,omitempty"`
	OrigIssuedAt int64  `json:"oriat,omitempty"`
	jwt.RegisteredClaims
}

// Service signs tokens with a process-wide secret. It holds no other state.
type Service struct {
	secret   []byte
	issuer   string
	audience string
}

func NewService(secret, issuer string) *Service {
	return &Service{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: "Academia",
	}
}

// Issue encodes claims with an expiry of now+ttl and signs them.
// A ttl <= 0 produces a token that is already expired.
func (svc *Service) Issue(claims Claims, ttl time.Duration) (string, error) {
	now := NowFunc().UTC()
	if claims.OrigIssuedAt == 0 {
		claims.OrigIssuedAt = now.Unix()
	}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    svc.issuer,
		Subject:   claims.AccountID,
		Audience:  jwt.ClaimStrings{svc.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	ss, err := jwt.NewWithClaims(signingMethod, claims).SignedString(svc.secret)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// Verify checks the signature and expiry of tok. It fails closed with ErrInvalidToken or ErrExpiredToken.
func (svc *Service) Verify(tok string) (*Claims, error) {
	if tok == "" {
		return nil, ErrInvalidToken
	}

	claims := new(Claims)
	parsed, err := jwt.ParseWithClaims(
		tok,
		claims,
		func(*jwt.Token) (interface{}, error) { return svc.secret, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(svc.issuer),
		jwt.WithAudience(svc.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(NowFunc),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.AccountID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueSession returns a session token for the account.
// origIssuedAt carries the issue time of the first token of a refreshed session.
func (svc *Service) IssueSession(accountID, email string, ttl time.Duration, origIssuedAt ...int64) (string, error) {
	claims := Claims{AccountID: accountID, Email: email, TokenType: TypeSession}
	if len(origIssuedAt) > 0 {
		claims.OrigIssuedAt = origIssuedAt[0]
	}
	return svc.Issue(claims, ttl)
}

// IssueSetup returns a profile setup token.
func (svc *Service) IssueSetup(accountID, profileID, email, profileType string, ttl time.Duration) (string, error) {
	return svc.Issue(Claims{
		AccountID:   accountID,
		ProfileID:   profileID,
		Email:       email,
		TokenType:   TypeUserSetup,
		ProfileType: profileType,
	}, ttl)
}

// VerifySession verifies tok and checks it is a session token.
func (svc *Service) VerifySession(tok string) (*Claims, error) {
	return svc.verifyType(tok, TypeSession)
}

// VerifySetup verifies tok and checks it is a profile setup token.
func (svc *Service) VerifySetup(tok string) (*Claims, error) {
	claims, err := svc.verifyType(tok, TypeUserSetup)
	if err != nil {
		return nil, err
	}
	if claims.ProfileID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (svc *Service) verifyType(tok, typ string) (*Claims, error) {
	claims, err := svc.Verify(tok)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != typ {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
