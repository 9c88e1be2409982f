package course

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tallman/core"
)

var (
	categoryTag  = "category"
	categoryText = "unknown category"

	correctIndexTag  = "correctidx"
	correctIndexText = "correct_index must point to one of the options"
)

// InitValidators registers the course validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(categoryTag, categoryValidation)
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)

	validate.RegisterStructValidation(quizQuestionValidation, QuizQuestion{})
	core.RegisterCustomTranslation(validate, translator, correctIndexTag, correctIndexText)
}

func categoryValidation(fl validator.FieldLevel) bool {
	_, ok := GetCategory(fl.Field().String())
	return ok
}

func quizQuestionValidation(sl validator.StructLevel) {
	q := sl.Current().Interface().(QuizQuestion)
	if q.CorrectIndex >= len(q.Options) {
		sl.ReportError(q.CorrectIndex, "correct_index", "CorrectIndex", correctIndexTag, "")
	}
}
