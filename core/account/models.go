package account

import (
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/academia/core"
)

type ProfileType string

// Profile types
const (
	TypeStudent ProfileType = "student"
	TypeParent  ProfileType = "parent"
	TypeAdult   ProfileType = "adult"
	TypeTeacher ProfileType = "teacher"
	TypeAdmin   ProfileType = "admin"
	TypeManager ProfileType = "manager"
)

// Contact methods
const (
	ContactEmail = "email"
	ContactPhone = "phone"
	ContactSMS   = "sms"
)

var (
	AllTypes       = []ProfileType{TypeStudent, TypeParent, TypeAdult, TypeTeacher, TypeAdmin, TypeManager}
	StaffTypes     = []ProfileType{TypeAdmin, TypeTeacher, TypeManager}
	SelfServeTypes = []ProfileType{TypeStudent, TypeParent, TypeAdult}
	ContactMethods = []string{ContactEmail, ContactPhone, ContactSMS}
	typePriorities = map[ProfileType]int{
		// Staff: 30 - 11
		TypeAdmin:   30,
		TypeManager: 25,
		TypeTeacher: 11,

		// Members: 10 - 1
		TypeAdult:   10,
		TypeParent:  5,
		TypeStudent: 1,
	}
)

func (pt ProfileType) IsValid() bool { return typePriorities[pt] > 0 }

func (pt ProfileType) IsStaff() bool { return typePriorities[pt] > 10 }

func TypePriority(pt ProfileType) int {
	return typePriorities[pt]
}

type Account struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	PhoneVerified bool      `json:"phoneVerified"`
	PasswordHash  []byte    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"` // UTC
	UpdatedAt     time.Time `json:"updatedAt"` // UTC
	LastLogin     time.Time `json:"lastLogin"` // UTC
}

func (acc *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	acc.PasswordHash = hash
	return nil
}

func (acc *Account) CheckPassword(pwd string) error {
	if len(acc.PasswordHash) == 0 {
		return bcrypt.ErrMismatchedHashAndPassword
	}
	return bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(pwd))
}

// HasPassword reports whether the account can log in with a password.
func (acc *Account) HasPassword() bool { return len(acc.PasswordHash) > 0 }

func (acc *Account) LogPerson() core.LogPerson {
	return core.LogPerson{ID: acc.ID, Email: acc.Email}
}

type Profile struct {
	ID                     string      `json:"id"`
	AccountID              string      `json:"accountId"`
	Type                   ProfileType `json:"type"`
	FirstName              string      `json:"firstName"`
	LastName               string      `json:"lastName"`
	PreferredName          string      `json:"preferredName,omitempty"`
	ContactEmail           string      `json:"contactEmail,omitempty"`
	ContactPhone           string      `json:"contactPhone,omitempty"`
	PreferredContactMethod string      `json:"preferredContactMethod,omitempty"`
	IsActive               bool        `json:"isActive"`
	CreatedAt              time.Time   `json:"createdAt"` // UTC
	UpdatedAt              time.Time   `json:"updatedAt"` // UTC
}

func (p *Profile) FullName() string {
	if p.PreferredName != "" {
		return p.PreferredName
	}
	return core.CleanString(p.FirstName + " " + p.LastName)
}

// PrimaryProfile returns the active profile with the highest type priority.
func PrimaryProfile(profiles []Profile) *Profile {
	var primary *Profile
	for i := range profiles {
		p := profiles[i]
		if !p.IsActive {
			continue
		}
		if primary == nil || TypePriority(p.Type) > TypePriority(primary.Type) {
			primary = &p
		}
	}
	return primary
}

// HasActiveProfile reports whether profiles hold an active profile of one of types (any type if none given).
func HasActiveProfile(profiles []Profile, types ...ProfileType) bool {
	for _, p := range profiles {
		if !p.IsActive {
			continue
		}
		if len(types) == 0 {
			return true
		}
		for _, t := range types {
			if p.Type == t {
				return true
			}
		}
	}
	return false
}

// ProfileActivation is the one-way PENDING -> ACTIVE transition of a profile.
type ProfileActivation struct {
	ProfileID              string
	PreferredContactMethod string
	ContactPhone           string // left unchanged when empty
	At                     time.Time
}

// Session is returned to clients after a successful authentication.
type Session struct {
	Token    string    `json:"token"`
	Account  Account   `json:"account"`
	Profile  *Profile  `json:"profile,omitempty"`
	Profiles []Profile `json:"profiles,omitempty"`
}

type GetFilter struct {
	ID    string
	Email string
}

// NewAccount contains information needed to self-register an Account.
type NewAccount struct {
	Email           string      `json:"email" validate:"required,email"`
	Password        string      `json:"password" validate:"required"`
	PasswordConfirm string      `json:"passwordConfirm" validate:"required,eqfield=Password"`
	FirstName       string      `json:"firstName" validate:"required,notblank"`
	LastName        string      `json:"lastName" validate:"required,notblank"`
	ProfileType     ProfileType `json:"profileType" validate:"omitempty,selfservetype"`
}

func (na NewAccount) NewPassword() (string, []string) {
	return na.Password, []string{na.Email, na.FirstName, na.LastName}
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.FirstName = core.CleanString(na.FirstName)
	na.LastName = core.CleanString(na.LastName)
	if na.ProfileType == "" {
		na.ProfileType = TypeAdult
	}
	return validate.Struct(na)
}

// ProvisionAccount creates a ready-to-use Account with an active Profile of any type.
type ProvisionAccount struct {
	Email       string      `json:"email" validate:"required,email"`
	Password    string      `json:"password" validate:"required"`
	FirstName   string      `json:"firstName" validate:"required,notblank"`
	LastName    string      `json:"lastName" validate:"required,notblank"`
	ProfileType ProfileType `json:"profileType" validate:"required,profiletype"`
}

func (pa ProvisionAccount) NewPassword() (string, []string) {
	return pa.Password, []string{pa.Email, pa.FirstName, pa.LastName}
}

func (pa *ProvisionAccount) Validate(validate *validator.Validate) error {
	pa.Email = core.CleanString(pa.Email, true /* lower */)
	pa.FirstName = core.CleanString(pa.FirstName)
	pa.LastName = core.CleanString(pa.LastName)
	return validate.Struct(pa)
}

type ResetPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"passwordConfirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetPassword) NewPassword() (string, []string) { return rp.Password, nil }

func (rp ResetPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type LoginCredentials struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (lc *LoginCredentials) Validate(validate *validator.Validate) error {
	lc.Email = core.CleanString(lc.Email, true /* lower */)
	return validate.Struct(lc)
}
