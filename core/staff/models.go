package staff

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
)

type Status string

// Invitation statuses
const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusCancelled Status = "cancelled"

	// StatusExpired is never stored: a pending invitation is expired once ExpiresAt has passed.
	StatusExpired Status = "expired"
)

// acceptedEmailVerified is the email-verified flag of accounts created by accepting an invitation.
// Delivery of the invitation email is taken as proof of ownership of the address.
const acceptedEmailVerified = true

type Invitation struct {
	ID         string              `json:"id"`
	Email      string              `json:"email"`
	FirstName  string              `json:"firstName"`
	LastName   string              `json:"lastName"`
	Role       account.ProfileType `json:"role"`
	Status     Status              `json:"status"`
	Expired    bool                `json:"expired"`   // derived
	InvitedBy  *string             `json:"invitedBy"` // profile ID, nil for system admins
	InvitedAt  time.Time           `json:"invitedAt"` // UTC
	ExpiresAt  time.Time           `json:"expiresAt"` // UTC
	AcceptedAt *time.Time          `json:"acceptedAt"`
	UpdatedAt  time.Time           `json:"updatedAt"` // UTC
	Token      string              `json:"-"`
}

// IsExpired reports whether inv is pending past its expiry at now.
func (inv *Invitation) IsExpired(now time.Time) bool {
	return inv.Status == StatusPending && !now.Before(inv.ExpiresAt)
}

func (inv *Invitation) setExpired(now time.Time) {
	inv.Expired = inv.IsExpired(now)
}

// NewInvitation contains information needed to invite a staff member.
type NewInvitation struct {
	Email     string              `json:"email" validate:"required,email"`
	FirstName string              `json:"firstName" validate:"required,notblank"`
	LastName  string              `json:"lastName" validate:"required,notblank"`
	Role      account.ProfileType `json:"role" validate:"required,staffrole"`
}

func (ni *NewInvitation) Validate(validate *validator.Validate) error {
	ni.Email = core.CleanString(ni.Email, true /* lower */)
	ni.FirstName = core.CleanString(ni.FirstName)
	ni.LastName = core.CleanString(ni.LastName)
	ni.Role = account.ProfileType(core.CleanString(string(ni.Role), true /* lower */))
	return validate.Struct(ni)
}

type AcceptInvitation struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

func (ai AcceptInvitation) NewPassword() (string, []string) { return ai.Password, nil }

func (ai AcceptInvitation) Validate(validate *validator.Validate) error { return validate.Struct(ai) }

type QueryFilter struct {
	Status Status    // StatusExpired selects pending invitations past their expiry
	Email  string    // case-insensitive substring
	Now    time.Time // reference time for StatusExpired
}
