package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/markbook/core"
	"github.com/trezcool/markbook/core/assessment"
	"github.com/trezcool/markbook/core/instructor"
	"github.com/trezcool/markbook/storage/database"
)

// PrepareDB opens a migrated in-memory SQLite database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := core.NewTestConfig()
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	assessment.InitValidators(validate, translator)
	instructor.InitValidators(validate, translator)
	return validate, translator
}

func CreateInstructor(
	t *testing.T,
	repo instructor.Repository,
	name, uname, email, pwd string,
	isAdmin bool,
	isActive bool,
	createdAt ...time.Time,
) instructor.Instructor {
	t.Helper()
	tstamp := time.Now().UTC().Truncate(time.Second)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	ins := instructor.Instructor{
		ID:        uuid.NewString(),
		Name:      name,
		Username:  uname,
		Email:     email,
		IsActive:  isActive,
		IsAdmin:   isAdmin,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := ins.SetPassword(pwd); err != nil {
			t.Fatalf("CreateInstructor() failed: %v", err)
		}
	}
	ins, err := repo.CreateInstructor(context.Background(), ins)
	if err != nil {
		t.Fatalf("CreateInstructor() failed: %v", err)
	}
	return ins
}

// CreateGradingScale saves a scale from (grade code, threshold) pairs.
func CreateGradingScale(t *testing.T, repo assessment.Repository, id string, intervals ...assessment.GradeInterval) assessment.GradingScale {
	t.Helper()
	gs, err := repo.SaveGradingScale(context.Background(), assessment.GradingScale{ID: id, Name: id, Intervals: intervals})
	if err != nil {
		t.Fatalf("CreateGradingScale() failed: %v", err)
	}
	return gs
}

func CreatePlan(t *testing.T, repo assessment.Repository, id, group, scale string, criteria ...assessment.Criterion) assessment.Plan {
	t.Helper()
	var max float64
	for _, c := range criteria {
		max += c.MaximumScore
	}
	plan, err := repo.CreatePlan(context.Background(), assessment.Plan{
		ID:           id,
		Name:         "Plan " + id,
		StudentGroup: group,
		GradingScale: scale,
		MaximumScore: max,
		Criteria:     criteria,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	})
	if err != nil {
		t.Fatalf("CreatePlan() failed: %v", err)
	}
	return plan
}

func CreateStudents(t *testing.T, repo assessment.Repository, students ...assessment.Student) []assessment.Student {
	t.Helper()
	if err := repo.SaveStudents(context.Background(), students...); err != nil {
		t.Fatalf("CreateStudents() failed: %v", err)
	}
	return students
}
