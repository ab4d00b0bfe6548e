package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Base model with UUID
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Curriculum identifies which grading scheme applies.
type Curriculum string

const (
	CurriculumOLevel Curriculum = "O_LEVEL"
	CurriculumALevel Curriculum = "A_LEVEL"
	CurriculumBoth   Curriculum = "BOTH"
)

func (c Curriculum) Valid() bool {
	return c == CurriculumOLevel || c == CurriculumALevel
}

// Accepts reports whether a subject tagged c may be taken under curriculum level.
func (c Curriculum) Accepts(level Curriculum) bool {
	return c == CurriculumBoth || c == level
}

// ResultModel tags which result collection a row or history entry belongs to.
type ResultModel string

const (
	ResultModelOLevel ResultModel = "OLevelResult"
	ResultModelALevel ResultModel = "ALevelResult"
)

func (m ResultModel) Valid() bool {
	return m == ResultModelOLevel || m == ResultModelALevel
}

func (m ResultModel) Curriculum() Curriculum {
	if m == ResultModelALevel {
		return CurriculumALevel
	}
	return CurriculumOLevel
}

// ModelFor returns the result collection used for students of curriculum c.
func ModelFor(c Curriculum) (ResultModel, bool) {
	switch c {
	case CurriculumOLevel:
		return ResultModelOLevel, true
	case CurriculumALevel:
		return ResultModelALevel, true
	default:
		return "", false
	}
}

type ChangeType string

const (
	ChangeCreate ChangeType = "CREATE"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Subject is administrator-owned reference data.
type Subject struct {
	BaseModel
	Name         string     `gorm:"type:varchar(255);not null" json:"name"`
	Code         string     `gorm:"type:varchar(50);not null;index" json:"code"`
	Curriculum   Curriculum `gorm:"type:varchar(20);not null;index" json:"curriculum"`
	IsCompulsory bool       `gorm:"default:false" json:"is_compulsory"`
}

// SubjectCombination is the canonical A-Level registration shape. Upstream
// payloads are normalised into it before any eligibility decision is made.
type SubjectCombination struct {
	BaseModel
	Code                 string                         `gorm:"type:varchar(50);not null;uniqueIndex" json:"code"`
	Name                 string                         `gorm:"type:varchar(255)" json:"name"`
	PrincipalSubjectIDs  datatypes.JSONSlice[uuid.UUID] `json:"principal_subject_ids"`
	SubsidiarySubjectIDs datatypes.JSONSlice[uuid.UUID] `json:"subsidiary_subject_ids"`
	Version              int                            `gorm:"not null;default:1" json:"version"`
}

func (c *SubjectCombination) HasPrincipal(subjectID uuid.UUID) bool {
	return containsID(c.PrincipalSubjectIDs, subjectID)
}

func (c *SubjectCombination) HasSubsidiary(subjectID uuid.UUID) bool {
	return containsID(c.SubsidiarySubjectIDs, subjectID)
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Class groups students sitting the same exams.
type Class struct {
	BaseModel
	Name       string     `gorm:"type:varchar(100);not null" json:"name"`
	Curriculum Curriculum `gorm:"type:varchar(20);not null" json:"curriculum"`
}

// ClassSubject assigns a subject to a class; O-Level students are eligible
// for every subject assigned to their class.
type ClassSubject struct {
	ClassID   uuid.UUID `gorm:"type:char(36);primaryKey" json:"class_id"`
	SubjectID uuid.UUID `gorm:"type:char(36);primaryKey" json:"subject_id"`
}

type Student struct {
	BaseModel
	AdmissionNo   string     `gorm:"type:varchar(50);not null;uniqueIndex" json:"admission_no"`
	FirstName     string     `gorm:"type:varchar(100);not null" json:"first_name"`
	LastName      string     `gorm:"type:varchar(100);not null" json:"last_name"`
	Curriculum    Curriculum `gorm:"type:varchar(20);not null" json:"curriculum"`
	ClassID       uuid.UUID  `gorm:"type:char(36);not null;index" json:"class_id"`
	CombinationID *uuid.UUID `gorm:"type:char(36);index" json:"combination_id,omitempty"`
}

func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

type Exam struct {
	BaseModel
	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	Term         string `gorm:"type:varchar(10);not null" json:"term"`
	AcademicYear string `gorm:"type:varchar(20);not null;index" json:"academic_year"`
	Type         string `gorm:"type:varchar(50)" json:"type"`
}

// ResultKey is the natural key of a Result.
type ResultKey struct {
	StudentID uuid.UUID
	SubjectID uuid.UUID
	ExamID    uuid.UUID
}

// Result is a single subject mark. O-Level and A-Level rows are stored in
// separate tables; the caller always says which via a ResultModel. Indexes
// are created per table by the migration, not through struct tags.
type Result struct {
	BaseModel
	StudentID           uuid.UUID `gorm:"type:char(36);not null" json:"student_id"`
	SubjectID           uuid.UUID `gorm:"type:char(36);not null" json:"subject_id"`
	ExamID              uuid.UUID `gorm:"type:char(36);not null" json:"exam_id"`
	MarksObtained       float64   `gorm:"type:decimal(5,2);not null" json:"marks_obtained"`
	Grade               string    `gorm:"type:char(2)" json:"grade"`
	Points              int       `gorm:"type:smallint" json:"points"`
	IsPrincipal         bool      `gorm:"default:false" json:"is_principal"`
	PrincipalOverridden bool      `gorm:"default:false" json:"principal_overridden"`
	Comment             string    `gorm:"type:text" json:"comment"`
	NeedsReview         bool      `gorm:"default:false" json:"needs_review"`
	Version             int       `gorm:"not null;default:1" json:"version"`
}

func (r *Result) Key() ResultKey {
	return ResultKey{StudentID: r.StudentID, SubjectID: r.SubjectID, ExamID: r.ExamID}
}

func (r *Result) Snapshot() ResultSnapshot {
	return ResultSnapshot{
		StudentID:           r.StudentID,
		SubjectID:           r.SubjectID,
		ExamID:              r.ExamID,
		MarksObtained:       r.MarksObtained,
		Grade:               r.Grade,
		Points:              r.Points,
		IsPrincipal:         r.IsPrincipal,
		PrincipalOverridden: r.PrincipalOverridden,
		Comment:             r.Comment,
		NeedsReview:         r.NeedsReview,
	}
}

// Apply copies the snapshot's values onto r. Identity and version are untouched.
func (r *Result) Apply(s ResultSnapshot) {
	r.StudentID = s.StudentID
	r.SubjectID = s.SubjectID
	r.ExamID = s.ExamID
	r.MarksObtained = s.MarksObtained
	r.Grade = s.Grade
	r.Points = s.Points
	r.IsPrincipal = s.IsPrincipal
	r.PrincipalOverridden = s.PrincipalOverridden
	r.Comment = s.Comment
	r.NeedsReview = s.NeedsReview
}

// ResultSnapshot is the captured state of a Result inside a HistoryEntry.
type ResultSnapshot struct {
	StudentID           uuid.UUID `json:"student_id"`
	SubjectID           uuid.UUID `json:"subject_id"`
	ExamID              uuid.UUID `json:"exam_id"`
	MarksObtained       float64   `json:"marks_obtained"`
	Grade               string    `json:"grade"`
	Points              int       `json:"points"`
	IsPrincipal         bool      `json:"is_principal"`
	PrincipalOverridden bool      `json:"principal_overridden"`
	Comment             string    `json:"comment"`
	NeedsReview         bool      `json:"needs_review"`
}

func (s ResultSnapshot) Key() ResultKey {
	return ResultKey{StudentID: s.StudentID, SubjectID: s.SubjectID, ExamID: s.ExamID}
}

// HistoryEntry is an immutable ledger row. Rows are only ever inserted.
type HistoryEntry struct {
	ID             uuid.UUID                           `gorm:"type:char(36);primaryKey" json:"id"`
	ResultID       uuid.UUID                           `gorm:"type:char(36);not null;index:idx_history_result" json:"result_id"`
	ResultModel    ResultModel                         `gorm:"type:varchar(20);not null;index:idx_history_result" json:"result_model"`
	ResultVersion  int                                 `gorm:"not null" json:"result_version"`
	ChangeType     ChangeType                          `gorm:"type:varchar(10);not null" json:"change_type"`
	PreviousValues *datatypes.JSONType[ResultSnapshot] `json:"previous_values"`
	NewValues      *datatypes.JSONType[ResultSnapshot] `json:"new_values"`
	StudentID      uuid.UUID                           `gorm:"type:char(36);not null;index" json:"student_id"`
	SubjectID      uuid.UUID                           `gorm:"type:char(36);not null;index" json:"subject_id"`
	ExamID         uuid.UUID                           `gorm:"type:char(36);not null;index" json:"exam_id"`
	UserID         uuid.UUID                           `gorm:"type:char(36);index" json:"user_id"`
	Reason         string                              `gorm:"type:text" json:"reason,omitempty"`
	RevertedFromID *uuid.UUID                          `gorm:"type:char(36)" json:"reverted_from_id,omitempty"`
	Timestamp      time.Time                           `gorm:"index" json:"timestamp"`
}

func (HistoryEntry) TableName() string {
	return "marks_history"
}

func (h *HistoryEntry) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// Previous returns the captured state before the change, nil for CREATE.
func (h *HistoryEntry) Previous() *ResultSnapshot {
	return unwrapSnapshot(h.PreviousValues)
}

// New returns the captured state after the change, nil for DELETE.
func (h *HistoryEntry) New() *ResultSnapshot {
	return unwrapSnapshot(h.NewValues)
}

func unwrapSnapshot(j *datatypes.JSONType[ResultSnapshot]) *ResultSnapshot {
	if j == nil {
		return nil
	}
	s := j.Data()
	return &s
}

// WrapSnapshot converts a snapshot pointer into the column type; nil stays nil.
func WrapSnapshot(s *ResultSnapshot) *datatypes.JSONType[ResultSnapshot] {
	if s == nil {
		return nil
	}
	j := datatypes.NewJSONType(*s)
	return &j
}

// GradingPolicy stores the grading table for one curriculum as JSON.
type GradingPolicy struct {
	BaseModel
	Curriculum Curriculum     `gorm:"type:varchar(20);not null;uniqueIndex" json:"curriculum"`
	Rules      datatypes.JSON `json:"rules"`
	UpdatedBy  *uuid.UUID     `gorm:"type:char(36)" json:"updated_by,omitempty"`
}

// Warning codes surfaced alongside computed results.
const (
	WarnIncompleteData     = "INCOMPLETE_DATA"
	WarnMissingCompulsory  = "MISSING_COMPULSORY"
	WarnMissingCombination = "MISSING_COMBINATION"
	WarnNotEligible        = "NOT_ELIGIBLE"
)

// Warning never blocks computation; it travels with the best-effort result.
type Warning struct {
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	SubjectID *uuid.UUID `json:"subject_id,omitempty"`
}
