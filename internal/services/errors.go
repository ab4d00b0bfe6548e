package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/school-system/results-engine/internal/grading"
)

var ErrValidation = errors.New("validation failed")

// EligibilityMode decides what happens to a mark for a subject outside the
// student's registration.
type EligibilityMode string

const (
	// EligibilityStrict rejects the mark.
	EligibilityStrict EligibilityMode = "strict"
	// EligibilityLenient stores it with NeedsReview set.
	EligibilityLenient EligibilityMode = "lenient"
)

func ParseEligibilityMode(s string) (EligibilityMode, error) {
	switch EligibilityMode(strings.ToLower(strings.TrimSpace(s))) {
	case EligibilityStrict, "":
		return EligibilityStrict, nil
	case EligibilityLenient:
		return EligibilityLenient, nil
	}
	return "", fmt.Errorf("%w: unknown eligibility mode %q", ErrValidation, s)
}

var validate = validator.New()

// validateStruct runs struct tags. A failed range check on marks becomes
// grading.ErrOutOfRange; anything else is ErrValidation.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Field() == "MarksObtained" && (fe.Tag() == "gte" || fe.Tag() == "lte") {
			return fmt.Errorf("%w: marks_obtained must be between %.0f and %.0f", grading.ErrOutOfRange, grading.MinMarks, grading.MaxMarks)
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, ", "))
}
