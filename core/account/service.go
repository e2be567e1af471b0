package account

import (
	"context"
	"fmt"
	"net/mail"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/token"
)

var (
	// errors
	ErrNotFound           = errors.New("account not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrEmailExists        = errors.New("an account with this email already exists")
	ErrAlreadyActivated   = errors.New("profile already activated")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotActivated       = errors.New("account not activated")
	ErrRefreshExpired     = errors.New("refresh has expired")

	dummyHash     []byte
	dummyHashOnce sync.Once
)

type (
	Repository interface {
		// CreateAccount fails with ErrEmailExists if the (lower-cased) email is taken.
		CreateAccount(ctx context.Context, acc Account) (Account, error)
		GetAccount(ctx context.Context, filter GetFilter) (Account, error)
		// UpdateAccount saves the mutable fields of acc: password hash, phone, verified flags and timestamps.
		UpdateAccount(ctx context.Context, acc Account) (Account, error)

		CreateProfile(ctx context.Context, p Profile) (Profile, error)
		GetProfile(ctx context.Context, id string) (Profile, error)
		QueryProfiles(ctx context.Context, accountID string) ([]Profile, error)
		// ActivateProfile applies the one-way PENDING -> ACTIVE transition.
		// It fails with ErrAlreadyActivated if the profile is active already, ErrProfileNotFound if missing.
		ActivateProfile(ctx context.Context, act ProfileActivation) (Profile, error)
	}

	Service struct {
		db       core.Transactor
		repo     Repository
		tokens   *token.Service
		mailSvc  core.EmailService
		validate *validator.Validate
		conf     *core.Config
		resetGen resetTokenGenerator
	}
)

func NewService(
	db core.Transactor,
	repo Repository,
	tokens *token.Service,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		tokens:   tokens,
		mailSvc:  mailSvc,
		validate: validate,
		conf:     conf,
		resetGen: resetTokenGenerator{
			secretKey: []byte(conf.SecretKey),
			timeout:   conf.Auth.PasswordResetTimeoutDelta,
		},
	}
}

func (svc *Service) GetByID(ctx context.Context, id string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccount(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *Service) QueryProfiles(ctx context.Context, accountID string) ([]Profile, error) {
	return svc.repo.QueryProfiles(ctx, accountID)
}

// CheckEmailAvailable returns ErrEmailExists if an Account already holds email.
func (svc *Service) CheckEmailAvailable(ctx context.Context, email string) error {
	_, err := svc.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return ErrEmailExists
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return errors.Wrap(err, "finding account by email")
	}
}

// CreateWithProfile creates acc and its first profile p in one transaction.
func (svc *Service) CreateWithProfile(ctx context.Context, acc Account, p Profile) (Account, Profile, error) {
	now := time.Now().UTC()
	acc.ID = uuid.NewString()
	acc.Email = core.CleanString(acc.Email, true /* lower */)
	acc.CreatedAt, acc.UpdatedAt = now, now

	p.ID = uuid.NewString()
	p.AccountID = acc.ID
	if p.ContactEmail == "" {
		p.ContactEmail = acc.Email
	}
	p.CreatedAt, p.UpdatedAt = now, now

	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if acc, err = svc.repo.CreateAccount(ctx, acc); err != nil {
			return err
		}
		p, err = svc.repo.CreateProfile(ctx, p)
		return err
	})
	if err != nil {
		return Account{}, Profile{}, err
	}
	return acc, p, nil
}

// NewSession issues a session token for acc.
func (svc *Service) NewSession(acc Account, profiles []Profile, origIssuedAt ...int64) (Session, error) {
	tok, err := svc.tokens.IssueSession(acc.ID, acc.Email, svc.conf.Auth.SessionTokenTTL, origIssuedAt...)
	if err != nil {
		return Session{}, errors.Wrap(err, "issuing session token")
	}
	return Session{
		Token:    tok,
		Account:  acc,
		Profile:  PrimaryProfile(profiles),
		Profiles: profiles,
	}, nil
}

func (svc *Service) Login(ctx context.Context, creds LoginCredentials) (Session, error) {
	if err := creds.Validate(svc.validate); err != nil {
		return Session{}, err
	}

	acc, err := svc.repo.GetAccount(ctx, GetFilter{Email: creds.Email})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// same cost as a real check so response times do not reveal known emails
			dummyHashOnce.Do(func() { dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy"), bcrypt.DefaultCost) })
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(creds.Password))
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, errors.Wrap(err, "finding account by email")
	}
	if err = acc.CheckPassword(creds.Password); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	profiles, err := svc.repo.QueryProfiles(ctx, acc.ID)
	if err != nil {
		return Session{}, errors.Wrap(err, "querying profiles")
	}
	if len(profiles) > 0 && !HasActiveProfile(profiles) {
		return Session{}, ErrNotActivated
	}

	acc.LastLogin = time.Now().UTC()
	if acc, err = svc.repo.UpdateAccount(ctx, acc); err != nil {
		return Session{}, errors.Wrap(err, "setting lastLogin")
	}
	return svc.NewSession(acc, profiles)
}

// Register creates a self-service Account with an active member Profile and logs it in.
func (svc *Service) Register(ctx context.Context, na NewAccount) (Session, error) {
	if err := na.Validate(svc.validate); err != nil {
		return Session{}, err
	}

	acc := Account{Email: na.Email}
	if err := acc.SetPassword(na.Password); err != nil {
		return Session{}, errors.Wrap(err, "hashing password")
	}
	prof := Profile{
		Type:      na.ProfileType,
		FirstName: na.FirstName,
		LastName:  na.LastName,
		IsActive:  true,
	}

	acc, prof, err := svc.CreateWithProfile(ctx, acc, prof)
	if err != nil {
		return Session{}, emailExistsAsValidationError(err)
	}
	return svc.NewSession(acc, []Profile{prof})
}

// Provision creates a ready-to-use Account with an active Profile of any type.
func (svc *Service) Provision(ctx context.Context, pa ProvisionAccount) (Account, Profile, error) {
	if err := pa.Validate(svc.validate); err != nil {
		return Account{}, Profile{}, err
	}

	acc := Account{Email: pa.Email, EmailVerified: true}
	if err := acc.SetPassword(pa.Password); err != nil {
		return Account{}, Profile{}, errors.Wrap(err, "hashing password")
	}
	prof := Profile{
		Type:      pa.ProfileType,
		FirstName: pa.FirstName,
		LastName:  pa.LastName,
		IsActive:  true,
	}

	acc, prof, err := svc.CreateWithProfile(ctx, acc, prof)
	if err != nil {
		return Account{}, Profile{}, emailExistsAsValidationError(err)
	}
	return acc, prof, nil
}

// RefreshSession issues a new session token for the claims of a still valid session,
// as long as the refresh window opened by the first token of the session has not passed.
func (svc *Service) RefreshSession(ctx context.Context, claims *token.Claims) (string, error) {
	if time.Now().After(time.Unix(claims.OrigIssuedAt, 0).Add(svc.conf.Auth.SessionRefreshTTL)) {
		return "", ErrRefreshExpired
	}

	acc, err := svc.repo.GetAccount(ctx, GetFilter{ID: claims.AccountID})
	if err != nil {
		return "", errors.Wrap(err, "finding account by ID")
	}
	profiles, err := svc.repo.QueryProfiles(ctx, acc.ID)
	if err != nil {
		return "", errors.Wrap(err, "querying profiles")
	}
	if len(profiles) > 0 && !HasActiveProfile(profiles) {
		return "", ErrNotActivated
	}

	sess, err := svc.NewSession(acc, profiles, claims.OrigIssuedAt)
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}

// RequestPasswordReset emails a password reset link to the account holding email.
// Accounts that never set a password are ignored.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !acc.HasPassword() {
		return ErrNotFound
	}

	name := acc.Email
	if profiles, err := svc.repo.QueryProfiles(ctx, acc.ID); err == nil {
		if p := PrimaryProfile(profiles); p != nil {
			name = p.FullName()
		}
	}

	uid := EncodeUID(acc)
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: name, Address: acc.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name": name,
			"URL":  fmt.Sprintf("%s/password-reset/%s/%s", svc.conf.FrontendBaseURL, uid, svc.resetGen.makeToken(acc)),
		},
	})
	return nil
}

// ResetPassword sets a new password using a token sent by RequestPasswordReset.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetPassword) error {
	if err := rp.Validate(svc.validate); err != nil {
		return err
	}

	invalidValue := "invalid value"
	id, err := decodeUID(rp.UID)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "uid", Error: invalidValue})
	}
	acc, err := svc.repo.GetAccount(ctx, GetFilter{ID: id})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return core.NewValidationError(err, core.FieldError{Field: "uid", Error: invalidValue})
		}
		return errors.Wrap(err, "finding account by ID")
	}
	if err = svc.resetGen.verifyToken(acc, rp.Token); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "token", Error: invalidValue})
	}

	if err = acc.SetPassword(rp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	acc.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateAccount(ctx, acc)
	return errors.Wrap(err, "updating account")
}

// SetPassword overrides the password of the account holding email.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err = acc.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	acc.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateAccount(ctx, acc)
	return errors.Wrap(err, "updating account")
}

func emailExistsAsValidationError(err error) error {
	if errors.Is(err, ErrEmailExists) {
		return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
	}
	return err
}
