package staff

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/mail"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound                   = errors.New("invitation not found")
	ErrDuplicateAccount           = errors.New("an account with this email already exists")
	ErrDuplicatePendingInvitation = errors.New("a pending invitation already exists for this email")
	ErrPasswordMismatch           = errors.New("passwords do not match")
	ErrInvalidOrExpiredInvitation = errors.New("invalid or expired invitation")

	tokenLen = 32
)

type (
	Repository interface {
		// CreateInvitation fails with ErrDuplicatePendingInvitation if a pending invitation exists for inv.Email.
		CreateInvitation(ctx context.Context, inv Invitation) (Invitation, error)
		GetInvitation(ctx context.Context, id string) (Invitation, error)
		QueryInvitations(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Invitation, error)

		// ClaimPendingInvitation transitions the invitation holding token from pending to accepted,
		// provided it has not expired at `at`. It fails with ErrNotFound otherwise.
		ClaimPendingInvitation(ctx context.Context, token string, at time.Time) (Invitation, error)
		// CancelPendingInvitation transitions a pending invitation to cancelled, else fails with ErrNotFound.
		CancelPendingInvitation(ctx context.Context, id string, at time.Time) (Invitation, error)
		// RotatePendingInvitationToken replaces the token and expiry of a pending invitation, else fails with ErrNotFound.
		RotatePendingInvitationToken(ctx context.Context, id, token string, expiresAt, at time.Time) (Invitation, error)
	}

	Service struct {
		db       core.Transactor
		repo     Repository
		accounts *account.Service
		mailSvc  core.EmailService
		validate *validator.Validate
		conf     *core.Config
		logger   core.Logger
	}
)

// orderings accepted by Query, mapped to store columns
var invitationOrderings = map[string]string{
	"email":     "email",
	"role":      "role",
	"status":    "status",
	"invitedAt": "invited_at",
	"expiresAt": "expires_at",
}

func NewService(
	db core.Transactor,
	repo Repository,
	accounts *account.Service,
	mailSvc core.EmailService,
	validate *validator.Validate,
	conf *core.Config,
	logger core.Logger,
) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		accounts: accounts,
		mailSvc:  mailSvc,
		validate: validate,
		conf:     conf,
		logger:   logger,
	}
}

// Create records a pending invitation for ni and emails its link.
// A delivery failure does not undo the invitation: it is reported through emailSent.
func (svc *Service) Create(ctx context.Context, ni NewInvitation, inviterProfileID *string) (Invitation, bool, error) {
	if err := ni.Validate(svc.validate); err != nil {
		return Invitation{}, false, err
	}

	if err := svc.accounts.CheckEmailAvailable(ctx, ni.Email); err != nil {
		if errors.Is(err, account.ErrEmailExists) {
			return Invitation{}, false, emailValidationError(ErrDuplicateAccount)
		}
		return Invitation{}, false, err
	}

	tok, err := newToken()
	if err != nil {
		return Invitation{}, false, errors.Wrap(err, "generating invitation token")
	}

	now := NowFunc().UTC()
	inv := Invitation{
		ID:        uuid.NewString(),
		Email:     ni.Email,
		FirstName: ni.FirstName,
		LastName:  ni.LastName,
		Role:      ni.Role,
		Status:    StatusPending,
		InvitedBy: inviterProfileID,
		InvitedAt: now,
		ExpiresAt: now.Add(svc.conf.Auth.InvitationTTL),
		UpdatedAt: now,
		Token:     tok,
	}
	if inv, err = svc.repo.CreateInvitation(ctx, inv); err != nil {
		if errors.Is(err, ErrDuplicatePendingInvitation) {
			return Invitation{}, false, emailValidationError(err)
		}
		return Invitation{}, false, errors.Wrap(err, "creating invitation")
	}
	return inv, svc.sendInvitation(ctx, inv), nil
}

func (svc *Service) Get(ctx context.Context, id string) (Invitation, error) {
	inv, err := svc.repo.GetInvitation(ctx, id)
	if err != nil {
		return Invitation{}, err
	}
	inv.setExpired(NowFunc())
	return inv, nil
}

// Query lists invitations. Pending invitations past their expiry keep their status and are flagged as expired.
func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Invitation, error) {
	filter.Email = core.CleanString(filter.Email, true /* lower */)
	filter.Now = NowFunc().UTC()
	if len(orderings) > 0 {
		orderings = core.FilterOrderings(orderings, invitationOrderings)
	}

	invs, err := svc.repo.QueryInvitations(ctx, filter, orderings...)
	if err != nil {
		return nil, errors.Wrap(err, "querying invitations")
	}
	for i := range invs {
		invs[i].setExpired(filter.Now)
	}
	return invs, nil
}

// Cancel transitions a pending invitation to cancelled.
// Unknown and already processed invitations both fail with ErrNotFound.
func (svc *Service) Cancel(ctx context.Context, id string) (Invitation, error) {
	inv, err := svc.repo.CancelPendingInvitation(ctx, id, NowFunc().UTC())
	if err != nil {
		return Invitation{}, err
	}
	return inv, nil
}

// Resend rotates the token of a pending invitation, renews its expiry and emails the new link.
func (svc *Service) Resend(ctx context.Context, id string) (Invitation, bool, error) {
	tok, err := newToken()
	if err != nil {
		return Invitation{}, false, errors.Wrap(err, "generating invitation token")
	}

	now := NowFunc().UTC()
	inv, err := svc.repo.RotatePendingInvitationToken(ctx, id, tok, now.Add(svc.conf.Auth.InvitationTTL), now)
	if err != nil {
		return Invitation{}, false, err
	}
	return inv, svc.sendInvitation(ctx, inv), nil
}

// Accept claims the invitation holding ai.Token and creates its Account and active staff Profile
// in one transaction, then opens a session for the new Account.
func (svc *Service) Accept(ctx context.Context, ai AcceptInvitation) (account.Session, error) {
	if ai.Password != ai.ConfirmPassword {
		return account.Session{}, core.NewValidationError(
			ErrPasswordMismatch,
			core.FieldError{Field: "confirmPassword", Error: ErrPasswordMismatch.Error()},
		)
	}
	if err := ai.Validate(svc.validate); err != nil {
		return account.Session{}, err
	}

	acc := account.Account{EmailVerified: acceptedEmailVerified}
	if err := acc.SetPassword(ai.Password); err != nil {
		return account.Session{}, errors.Wrap(err, "hashing password")
	}

	var prof account.Profile
	err := svc.db.WithinTx(ctx, func(ctx context.Context) error {
		inv, err := svc.repo.ClaimPendingInvitation(ctx, ai.Token, NowFunc().UTC())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return core.NewValidationError(ErrInvalidOrExpiredInvitation)
			}
			return errors.Wrap(err, "claiming invitation")
		}

		acc.Email = inv.Email
		acc, prof, err = svc.accounts.CreateWithProfile(ctx, acc, account.Profile{
			Type:      inv.Role,
			FirstName: inv.FirstName,
			LastName:  inv.LastName,
			IsActive:  true,
		})
		if err != nil {
			if errors.Is(err, account.ErrEmailExists) {
				return emailValidationError(ErrDuplicateAccount)
			}
			return errors.Wrap(err, "creating account")
		}
		return nil
	})
	if err != nil {
		return account.Session{}, err
	}
	return svc.accounts.NewSession(acc, []account.Profile{prof})
}

// sendInvitation emails the invitation link to its recipient and reports whether it was delivered.
func (svc *Service) sendInvitation(ctx context.Context, inv Invitation) bool {
	name := core.CleanString(inv.FirstName + " " + inv.LastName)
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: name, Address: inv.Email}},
		Subject:      "You are invited to join " + svc.conf.AppName,
		TemplateName: "staff_invitation",
		TemplateData: map[string]interface{}{
			"Name":      name,
			"Role":      string(inv.Role),
			"ExpiresAt": inv.ExpiresAt.Format("Jan 2, 2006 15:04 MST"),
			"URL":       svc.conf.FrontendBaseURL + "/accept-invitation?token=" + url.QueryEscape(inv.Token),
		},
	}
	if err := svc.mailSvc.Send(ctx, msg); err != nil {
		svc.logger.Error(
			"staff.Service.sendInvitation: "+err.Error(), err,
			map[string]interface{}{"invitationId": inv.ID},
		)
		return false
	}
	return true
}

// newToken returns an opaque random invitation token.
func newToken() (string, error) {
	b := make([]byte, tokenLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func emailValidationError(err error) error {
	return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
}
