// Package eligibility decides whether a student may be marked for a subject
// and, for A-Level, whether that subject counts as a principal.
package eligibility

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/school-system/results-engine/internal/models"
)

var ErrNotEligible = errors.New("student not eligible for subject")

type Role string

const (
	RoleClassSubject Role = "class_subject"
	RoleCompulsory   Role = "compulsory"
	RolePrincipal    Role = "principal"
	RoleSubsidiary   Role = "subsidiary"
)

// Input is already canonical: Combination is the student's resolved
// combination (nil when none is assigned) and ClassSubjects is the set of
// subjects assigned to the student's class.
type Input struct {
	Student       *models.Student
	Subject       *models.Subject
	Combination   *models.SubjectCombination
	ClassSubjects map[uuid.UUID]bool
}

type Decision struct {
	Eligible         bool
	Role             Role
	DefaultPrincipal bool
	IsPrincipal      bool
	Overridden       bool
	Warnings         []models.Warning
}

// Resolve returns the combination-derived decision. A non-nil error wraps
// ErrNotEligible; the returned Decision still describes what was found.
func Resolve(in Input) (Decision, error) {
	if in.Student == nil || in.Subject == nil {
		return Decision{}, fmt.Errorf("%w: student and subject are required", ErrNotEligible)
	}
	if !in.Subject.Curriculum.Accepts(in.Student.Curriculum) {
		return Decision{}, fmt.Errorf("%w: %s is not offered at %s", ErrNotEligible, in.Subject.Code, in.Student.Curriculum)
	}

	if in.Student.Curriculum == models.CurriculumALevel {
		return resolveALevel(in)
	}
	return resolveOLevel(in)
}

func resolveOLevel(in Input) (Decision, error) {
	switch {
	case in.ClassSubjects[in.Subject.ID]:
		return Decision{Eligible: true, Role: RoleClassSubject}, nil
	case in.Subject.IsCompulsory:
		return Decision{Eligible: true, Role: RoleCompulsory}, nil
	}
	return Decision{}, fmt.Errorf("%w: %s is not assigned to the student's class", ErrNotEligible, in.Subject.Code)
}

func resolveALevel(in Input) (Decision, error) {
	var d Decision
	if in.Combination == nil {
		d.Warnings = append(d.Warnings, models.Warning{
			Code:    models.WarnMissingCombination,
			Message: fmt.Sprintf("student %s has no subject combination", in.Student.AdmissionNo),
		})
		if in.Subject.IsCompulsory {
			d.Eligible, d.Role = true, RoleSubsidiary
			return d, nil
		}
		return d, fmt.Errorf("%w: %s (no combination assigned)", ErrNotEligible, in.Subject.Code)
	}

	// Principal wins when a subject is listed in both sets.
	switch {
	case in.Combination.HasPrincipal(in.Subject.ID):
		d.Eligible, d.Role, d.DefaultPrincipal = true, RolePrincipal, true
	case in.Combination.HasSubsidiary(in.Subject.ID):
		d.Eligible, d.Role = true, RoleSubsidiary
	case in.Subject.IsCompulsory:
		d.Eligible, d.Role = true, RoleSubsidiary
	default:
		return d, fmt.Errorf("%w: %s is not in combination %s", ErrNotEligible, in.Subject.Code, in.Combination.Code)
	}
	d.IsPrincipal = d.DefaultPrincipal
	return d, nil
}

// ApplyOverride layers an explicit per-result choice over the default. The
// default is kept on the decision so callers can still show it.
func ApplyOverride(d Decision, override *bool) Decision {
	if override == nil {
		d.IsPrincipal = d.DefaultPrincipal
		d.Overridden = false
		return d
	}
	d.IsPrincipal = *override
	d.Overridden = true
	return d
}
