// Package setup activates profiles created by administrators once their owner has chosen a password.
package setup

import (
	"context"
	"net/mail"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
	"github.com/trezcool/academia/core/token"
)

var (
	// errors
	ErrInvalidSetupLink = errors.New("invalid or expired setup link")
	ErrNotFound         = errors.New("account or profile not found")
	ErrAlreadyActivated = errors.New("profile already activated")
	ErrInvalidPhone     = errors.New("invalid phone number")
)

type Service struct {
	db       core.Transactor
	repo     account.Repository
	accounts *account.Service
	tokens   *token.Service
	mailSvc  core.EmailService
	validate *validator.Validate
	conf     *core.Config
	logger   core.Logger
}

func NewService(
	db core.Transactor,
	repo account.Repository,
	accounts *account.Service,
	tokens *token.Service,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		accounts: accounts,
		tokens:   tokens,
		mailSvc:  mailSvc,
		validate: validate,
		conf:     conf,
		logger:   logger,
	}
}

// ValidateSetupToken reports whether tok can still activate its profile.
// Only store failures are returned as errors.
func (svc *Service) ValidateSetupToken(ctx context.Context, tok string) (Validation, error) {
	claims, err := svc.tokens.VerifySetup(tok)
	if err != nil {
		return Validation{Message: ErrInvalidSetupLink.Error()}, nil
	}

	acc, prof, err := svc.lookup(ctx, claims)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyActivated):
		return Validation{Message: err.Error()}, nil
	default:
		return Validation{}, err
	}

	return Validation{
		Valid: true,
		Data: &Data{
			AccountID:   acc.ID,
			ProfileID:   prof.ID,
			Email:       acc.Email,
			ProfileType: prof.Type,
			FirstName:   prof.FirstName,
			LastName:    prof.LastName,
		},
	}, nil
}

// CompleteProfileSetup sets the account password and activates the profile of cs.Token.
// The checks of ValidateSetupToken are repeated inside the transaction, so only one request can activate a profile.
func (svc *Service) CompleteProfileSetup(ctx context.Context, cs CompleteSetup) error {
	claims, err := svc.tokens.VerifySetup(cs.Token)
	if err != nil {
		return core.NewValidationError(ErrInvalidSetupLink)
	}

	cs.attrs = []string{claims.Email}
	if err = cs.Validate(svc.validate); err != nil {
		return err
	}
	phone, err := svc.normalizePhone(cs)
	if err != nil {
		return err
	}

	var hashed account.Account
	if err = hashed.SetPassword(cs.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}

	return svc.db.WithinTx(ctx, func(ctx context.Context) error {
		acc, prof, err := svc.lookup(ctx, claims)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyActivated) {
				return core.NewValidationError(err)
			}
			return err
		}

		now := time.Now().UTC()
		_, err = svc.repo.ActivateProfile(ctx, account.ProfileActivation{
			ProfileID:              prof.ID,
			PreferredContactMethod: cs.PreferredContactMethod,
			ContactPhone:           phone,
			At:                     now,
		})
		if err != nil {
			if errors.Is(err, account.ErrAlreadyActivated) {
				return core.NewValidationError(ErrAlreadyActivated)
			}
			return errors.Wrap(err, "activating profile")
		}

		acc.PasswordHash = hashed.PasswordHash
		if phone != "" {
			acc.Phone = phone
		}
		acc.UpdatedAt = now
		_, err = svc.repo.UpdateAccount(ctx, acc)
		return errors.Wrap(err, "updating account")
	})
}

// CreateAccountProfile creates an Account without password and an inactive Profile,
// then emails the setup link to its owner.
func (svc *Service) CreateAccountProfile(ctx context.Context, nap NewAccountProfile) (account.Account, account.Profile, bool, error) {
	if err := nap.Validate(svc.validate); err != nil {
		return account.Account{}, account.Profile{}, false, err
	}

	acc, prof, err := svc.accounts.CreateWithProfile(
		ctx,
		account.Account{Email: nap.Email},
		account.Profile{Type: nap.ProfileType, FirstName: nap.FirstName, LastName: nap.LastName},
	)
	if err != nil {
		if errors.Is(err, account.ErrEmailExists) {
			return account.Account{}, account.Profile{}, false, core.NewValidationError(
				err, core.FieldError{Field: "email", Error: err.Error()},
			)
		}
		return account.Account{}, account.Profile{}, false, errors.Wrap(err, "creating account")
	}
	return acc, prof, svc.sendSetupLink(ctx, acc, prof), nil
}

// ResendSetupLink emails a new setup link for an inactive profile.
// It fails with ErrAlreadyActivated for an active profile.
func (svc *Service) ResendSetupLink(ctx context.Context, profileID string) (bool, error) {
	prof, err := svc.repo.GetProfile(ctx, profileID)
	if err != nil {
		return false, err
	}
	if prof.IsActive {
		return false, core.NewValidationError(ErrAlreadyActivated)
	}
	acc, err := svc.repo.GetAccount(ctx, account.GetFilter{ID: prof.AccountID})
	if err != nil {
		return false, errors.Wrap(err, "finding account by ID")
	}
	return svc.sendSetupLink(ctx, acc, prof), nil
}

// lookup loads the account and profile named by claims and checks that the profile is still pending.
func (svc *Service) lookup(ctx context.Context, claims *token.Claims) (account.Account, account.Profile, error) {
	acc, err := svc.repo.GetAccount(ctx, account.GetFilter{ID: claims.AccountID})
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return account.Account{}, account.Profile{}, ErrNotFound
		}
		return account.Account{}, account.Profile{}, errors.Wrap(err, "finding account by ID")
	}
	prof, err := svc.repo.GetProfile(ctx, claims.ProfileID)
	if err != nil {
		if errors.Is(err, account.ErrProfileNotFound) {
			return account.Account{}, account.Profile{}, ErrNotFound
		}
		return account.Account{}, account.Profile{}, errors.Wrap(err, "finding profile by ID")
	}
	if prof.AccountID != acc.ID {
		return account.Account{}, account.Profile{}, ErrNotFound
	}
	if prof.IsActive {
		return account.Account{}, account.Profile{}, ErrAlreadyActivated
	}
	return acc, prof, nil
}

// normalizePhone returns cs.Phone in E.164 format. A phone is required for phone and sms contact.
func (svc *Service) normalizePhone(cs CompleteSetup) (string, error) {
	if cs.Phone == "" {
		if cs.PreferredContactMethod == account.ContactPhone || cs.PreferredContactMethod == account.ContactSMS {
			return "", core.NewValidationError(
				errors.New("phone required"), core.FieldError{Field: "phone", Error: "this field is required"},
			)
		}
		return "", nil
	}

	num, err := phonenumbers.Parse(cs.Phone, svc.conf.PhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", core.NewValidationError(ErrInvalidPhone, core.FieldError{Field: "phone", Error: ErrInvalidPhone.Error()})
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// sendSetupLink emails a fresh setup link for prof and reports whether it was delivered.
func (svc *Service) sendSetupLink(ctx context.Context, acc account.Account, prof account.Profile) bool {
	tok, err := svc.tokens.IssueSetup(acc.ID, prof.ID, acc.Email, string(prof.Type), svc.conf.Auth.SetupTokenTTL)
	if err != nil {
		svc.logger.Error("setup.Service.sendSetupLink: "+err.Error(), err, acc.LogPerson())
		return false
	}

	name := prof.FullName()
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: name, Address: acc.Email}},
		Subject:      "Set up your " + svc.conf.AppName + " profile",
		TemplateName: "profile_setup",
		TemplateData: map[string]interface{}{
			"Name":        name,
			"ProfileType": string(prof.Type),
			"URL":         svc.conf.FrontendBaseURL + "/setup-profile?token=" + url.QueryEscape(tok),
		},
	}
	if err = svc.mailSvc.Send(ctx, msg); err != nil {
		svc.logger.Error("setup.Service.sendSetupLink: "+err.Error(), err, acc.LogPerson())
		return false
	}
	return true
}
