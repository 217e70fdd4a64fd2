package assessment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/markbook/core"
)

var (
	requiredTag = "required" // translation registered by core.InitValidators

	uniqueCriteriaTag  = "unique_criteria"
	uniqueCriteriaText = "criteria must be unique within a plan"

	uniqueGradesTag  = "unique_grades"
	uniqueGradesText = "grade codes must be unique within a grading scale"

	criterionRangeTag  = "criterion_range"
	criterionRangeText = "score is out of the criterion's range"

	unknownCriterionTag  = "unknown_criterion"
	unknownCriterionText = "unknown assessment criterion"

	studentGroupTag  = "student_group"
	studentGroupText = "student is not a member of the plan's student group"
)

// InitValidators registers the assessment struct rules and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(planStructValidation, NewPlan{})
	core.RegisterCustomTranslation(validate, translator, uniqueCriteriaTag, uniqueCriteriaText)

	validate.RegisterStructValidation(scaleStructValidation, GradingScale{})
	core.RegisterCustomTranslation(validate, translator, uniqueGradesTag, uniqueGradesText)

	core.RegisterCustomTranslation(validate, translator, criterionRangeTag, criterionRangeText)
	core.RegisterCustomTranslation(validate, translator, unknownCriterionTag, unknownCriterionText)
	core.RegisterCustomTranslation(validate, translator, studentGroupTag, studentGroupText)
}

// planStructValidation checks that no two criteria of a NewPlan share an id.
func planStructValidation(sl validator.StructLevel) {
	np := sl.Current().Interface().(NewPlan)
	seen := make(map[string]bool, len(np.Criteria))
	for _, c := range np.Criteria {
		if seen[c.ID] {
			sl.ReportError(np.Criteria, "criteria", "Criteria", uniqueCriteriaTag, c.ID)
			return
		}
		seen[c.ID] = true
	}
}

func scaleStructValidation(sl validator.StructLevel) {
	gs := sl.Current().Interface().(GradingScale)
	seen := make(map[string]bool, len(gs.Intervals))
	for _, iv := range gs.Intervals {
		if seen[iv.GradeCode] {
			sl.ReportError(gs.Intervals, "intervals", "Intervals", uniqueGradesTag, iv.GradeCode)
			return
		}
		seen[iv.GradeCode] = true
	}
}

// translatedFieldError builds a FieldError using the translation registered for `tag`.
func translatedFieldError(translator ut.Translator, field, tag string) core.FieldError {
	msg, err := translator.T(tag, field)
	if err != nil {
		msg = tag
	}
	return core.FieldError{Field: field, Error: msg}
}
