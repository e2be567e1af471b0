package staff

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
)

var (
	staffRoleTag  = "staffrole"
	staffRoleText = "role must be one of admin, teacher or manager"
)

// InitValidators registers the staff validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(staffRoleTag, staffRoleValidation)
	core.RegisterCustomTranslation(validate, translator, staffRoleTag, staffRoleText)

	account.RegisterPasswordPolicy(validate, AcceptInvitation{})
}

func staffRoleValidation(fl validator.FieldLevel) bool {
	return account.ProfileType(fl.Field().String()).IsStaff()
}
