package thread

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/wtlassist/backend/core"
)

var (
	statusTag  = "threadstatus"
	statusText = "invalid thread status"

	taskStatusTag  = "taskstatus"
	taskStatusText = "invalid task status"
)

// InitValidators registers the thread validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, core.OneOf(AllStatuses))
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	_ = validate.RegisterValidation(taskStatusTag, core.OneOf(AllTaskStatuses))
	core.RegisterCustomTranslation(validate, translator, taskStatusTag, taskStatusText)
}

