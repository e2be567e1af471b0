package setup

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/account"
)

var (
	contactMethodTag  = "contactmethod"
	contactMethodText = "contact method must be one of email, phone or sms"
)

// InitValidators registers the setup validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(contactMethodTag, contactMethodValidation)
	core.RegisterCustomTranslation(validate, translator, contactMethodTag, contactMethodText)

	account.RegisterPasswordPolicy(validate, CompleteSetup{})
}

func contactMethodValidation(fl validator.FieldLevel) bool {
	method := fl.Field().String()
	for _, m := range account.ContactMethods {
		if method == m {
			return true
		}
	}
	return false
}
