package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	alphaNumUnderTag   = "alphanum_"
	alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)

	// overridden default texts, keyed by tag
	translationOverrides = map[string]string{
		"required":      "this field is required",
		"required_with": "this field is required",
		"uuid":          "{0} must be a valid id",
	}
)

// NewTranslator returns the english translator used for validation errors.
func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// InitValidators registers the shared validators and the english translations.
// Field names in errors are the JSON names.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(alphaNumUnderTag, func(fl validator.FieldLevel) bool {
		return alphaNumUnderRegex.MatchString(fl.Field().String())
	})
	RegisterCustomTranslation(validate, translator, alphaNumUnderTag, "only alphanumeric characters and underscores are allowed")

	for tag, text := range translationOverrides {
		RegisterCustomTranslation(validate, translator, tag, text, true)
	}
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
// The text may reference the field name as {0}.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// OneOf validates that a string field holds one of values, eg. a known status.
func OneOf(values []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return ContainsString(values, fl.Field().String())
	}
}
