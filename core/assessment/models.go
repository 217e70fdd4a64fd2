package assessment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/markbook/core"
)

// Criterion is a scoring dimension of an assessment plan.
type Criterion struct {
	ID           string  `json:"criterion" yaml:"criterion" validate:"required,notblank,max=140"`
	MaximumScore float64 `json:"maximum_score" yaml:"maximum_score" validate:"gte=0"`
}

type Plan struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	StudentGroup string      `json:"student_group"`
	GradingScale string      `json:"grading_scale"`
	MaximumScore float64     `json:"maximum_score"` // sum of the criteria maximums
	Criteria     []Criterion `json:"criteria"`
	CreatedAt    time.Time   `json:"created_at"` // UTC
}

// Criterion returns the plan's criterion with the given id.
func (p Plan) Criterion(id string) (Criterion, bool) {
	for _, c := range p.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return Criterion{}, false
}

// NewPlan contains information needed to create a new Plan.
type NewPlan struct {
	ID           string      `json:"id" yaml:"id" validate:"omitempty,notblank,max=140"`
	Name         string      `json:"name" yaml:"name" validate:"required,notblank"`
	StudentGroup string      `json:"student_group" yaml:"student_group" validate:"required,notblank"`
	GradingScale string      `json:"grading_scale" yaml:"grading_scale" validate:"required,notblank"`
	Criteria     []Criterion `json:"criteria" yaml:"criteria" validate:"required,min=1,dive"`
}

func (np *NewPlan) Validate(validate *validator.Validate) error {
	np.ID = core.CleanString(np.ID)
	np.Name = core.CleanString(np.Name)
	np.StudentGroup = core.CleanString(np.StudentGroup)
	np.GradingScale = core.CleanString(np.GradingScale)
	for i := range np.Criteria {
		np.Criteria[i].ID = core.CleanString(np.Criteria[i].ID)
	}
	return validate.Struct(np)
}

// Student is the subject being scored across all the criteria of a plan.
type Student struct {
	ID           string `json:"id" yaml:"id" validate:"required,notblank,max=140"`
	Name         string `json:"name" yaml:"name" validate:"required,notblank"`
	Email        string `json:"email,omitempty" yaml:"email" validate:"omitempty,email"`
	StudentGroup string `json:"student_group" yaml:"student_group" validate:"required,notblank"`
}

func (st *Student) Validate(validate *validator.Validate) error {
	st.ID = core.CleanString(st.ID)
	st.Name = core.CleanString(st.Name)
	st.Email = core.CleanString(st.Email, true /* lower */)
	st.StudentGroup = core.CleanString(st.StudentGroup)
	return validate.Struct(st)
}

type GradeInterval struct {
	GradeCode string  `json:"grade_code" yaml:"grade_code" validate:"required,notblank"`
	Threshold float64 `json:"threshold" yaml:"threshold" validate:"gte=0,lte=100"` // minimum percentage
}

type GradingScale struct {
	ID        string          `json:"id" yaml:"id" validate:"required,notblank,max=140"`
	Name      string          `json:"name" yaml:"name"`
	Intervals []GradeInterval `json:"intervals" yaml:"intervals" validate:"required,min=1,dive"`
}

func (gs *GradingScale) Validate(validate *validator.Validate) error {
	gs.ID = core.CleanString(gs.ID)
	gs.Name = core.CleanString(gs.Name)
	if gs.Name == "" {
		gs.Name = gs.ID
	}
	for i := range gs.Intervals {
		gs.Intervals[i].GradeCode = core.CleanString(gs.Intervals[i].GradeCode)
	}
	return validate.Struct(gs)
}

// Edit is a single score input change for one student and criterion.
// Value is the raw input; Comment is the student's comment as currently captured by the caller.
type Edit struct {
	Student   string `json:"student"`
	Criterion string `json:"criterion"`
	Value     string `json:"value"`
	Comment   string `json:"comment"`
	GradedBy  string `json:"-"`
}

type EditResult struct {
	Student   string  `json:"student"`
	Criterion string  `json:"criterion"`
	Value     float64 `json:"value"`  // clamped value; 0 when not stored
	Stored    bool    `json:"stored"` // false when the raw value was not a number
	Total     float64 `json:"total_score"`
	Complete  bool    `json:"complete"` // the row was handed over for marking
}

// ScoreSheet is the complete set of scores of a student, ready to be marked.
type ScoreSheet struct {
	ID          string             `json:"id"`
	Plan        string             `json:"assessment_plan"`
	Student     string             `json:"student" validate:"required,notblank"`
	Scores      map[string]float64 `json:"assessment_details" validate:"required"`
	Total       float64            `json:"total_score"`
	Comment     string             `json:"comment"`
	GradedBy    string             `json:"graded_by,omitempty"`
	CompletedAt time.Time          `json:"completed_at"`
}

type ResultDetail struct {
	Criterion    string  `json:"criterion"`
	Score        float64 `json:"score"`
	MaximumScore float64 `json:"maximum_score"`
	Grade        string  `json:"grade"`
}

type Result struct {
	ID           string         `json:"id"`
	Plan         string         `json:"assessment_plan"`
	Student      string         `json:"student"`
	TotalScore   float64        `json:"total_score"`
	MaximumScore float64        `json:"maximum_score"`
	Grade        string         `json:"grade"`
	Comment      string         `json:"comment"`
	GradedBy     string         `json:"graded_by,omitempty"`
	Details      []ResultDetail `json:"details"`
	CreatedAt    time.Time      `json:"created_at"` // UTC
	UpdatedAt    time.Time      `json:"updated_at"` // UTC
}

// DetailGrades maps each criterion to its grade.
func (r Result) DetailGrades() map[string]string {
	grades := make(map[string]string, len(r.Details))
	for _, d := range r.Details {
		grades[d.Criterion] = d.Grade
	}
	return grades
}

// StudentRow is one line of the result entry table.
type StudentRow struct {
	Student      Student            `json:"student"`
	Entries      map[string]float64 `json:"entries"` // in-progress scores
	RunningTotal float64            `json:"running_total"`
	Result       *Result            `json:"result,omitempty"`
}

// PlanDetails is what the result entry table is rendered from.
type PlanDetails struct {
	Plan          Plan        `json:"plan"`
	Criteria      []Criterion `json:"criteria"`
	MaxTotalScore float64     `json:"max_total_score"`
}

type ResultFilter struct {
	Grade   string `query:"grade"`
	Student string `query:"student"`
}

func (f *ResultFilter) Clean() {
	f.Grade = core.CleanString(f.Grade)
	f.Student = core.CleanString(f.Student)
}
