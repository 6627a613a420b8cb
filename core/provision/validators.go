package provision

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tutorhub/core"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	provModeTag  = "provmode"
	provModeText = "mode must be one of invite, password"
)

func init() {
	validate, translator = core.NewValidator()

	_ = validate.RegisterValidation(provModeTag, provModeValidation)
	core.RegisterCustomTranslation(validate, translator, provModeTag, provModeText)
}

// provModeValidation checks that the field is a known Mode
func provModeValidation(fl validator.FieldLevel) bool {
	switch mode := fl.Field().Interface().(type) {
	case Mode:
		return mode.Valid()
	case string:
		return Mode(mode).Valid()
	}
	return false
}

// Validate checks the run config and returns a *core.ValidationError describing every invalid field.
func (cfg RunConfig) Validate() error {
	return core.TranslateValidationError(validate.Struct(cfg), translator)
}
