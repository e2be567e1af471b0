package setup

import (
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
)

// Validation is the outcome of checking a setup token.
// Message tells a dead link apart from a profile that was already set up.
type Validation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
	Data    *Data  `json:"data,omitempty"`
}

type Data struct {
	AccountID   string              `json:"accountId"`
	ProfileID   string              `json:"profileId"`
	Email       string              `json:"email"`
	ProfileType account.ProfileType `json:"profileType"`
	FirstName   string              `json:"firstName"`
	LastName    string              `json:"lastName"`
}

// CompleteSetup contains information needed to activate a profile.
type CompleteSetup struct {
	Token                  string `json:"token" validate:"required"`
	Password               string `json:"password" validate:"required"`
	PreferredContactMethod string `json:"preferredContactMethod" validate:"required,contactmethod"`
	Phone                  string `json:"phone,omitempty"`

	attrs []string // compared with Password
}

func (cs CompleteSetup) NewPassword() (string, []string) { return cs.Password, cs.attrs }

func (cs *CompleteSetup) Validate(validate *validator.Validate) error {
	cs.PreferredContactMethod = core.CleanString(cs.PreferredContactMethod, true /* lower */)
	cs.Phone = core.CleanString(cs.Phone)
	return validate.Struct(cs)
}

// NewAccountProfile contains information needed to create an Account whose Profile is set up by its owner.
type NewAccountProfile struct {
	Email       string              `json:"email" validate:"required,email"`
	FirstName   string              `json:"firstName" validate:"required,notblank"`
	LastName    string              `json:"lastName" validate:"required,notblank"`
	ProfileType account.ProfileType `json:"profileType" validate:"required,profiletype"`
}

func (nap *NewAccountProfile) Validate(validate *validator.Validate) error {
	nap.Email = core.CleanString(nap.Email, true /* lower */)
	nap.FirstName = core.CleanString(nap.FirstName)
	nap.LastName = core.CleanString(nap.LastName)
	nap.ProfileType = account.ProfileType(core.CleanString(string(nap.ProfileType), true /* lower */))
	return validate.Struct(nap)
}
