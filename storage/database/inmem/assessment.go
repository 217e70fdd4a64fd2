package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/markbook/core"
	"github.com/trezcool/markbook/core/assessment"
)

type assessmentRepository struct {
	scale   *scaleTable
	plan    *planTable
	student *studentTable
	result  *resultTable
}

var _ assessment.Repository = (*assessmentRepository)(nil)

func NewAssessmentRepository(db *DB) assessment.Repository {
	return &assessmentRepository{
		scale:   db.scale,
		plan:    db.plan,
		student: db.student,
		result:  db.result,
	}
}

func (repo *assessmentRepository) SaveGradingScale(_ context.Context, gs assessment.GradingScale) (assessment.GradingScale, error) {
	repo.scale.Lock()
	defer repo.scale.Unlock()

	stored := gs
	stored.Intervals = append([]assessment.GradeInterval(nil), gs.Intervals...)
	repo.scale.table[gs.ID] = &stored
	return gs, nil
}

func (repo *assessmentRepository) GetGradingScale(_ context.Context, id string) (assessment.GradingScale, error) {
	repo.scale.RLock()
	defer repo.scale.RUnlock()

	gs, ok := repo.scale.table[id]
	if !ok {
		return assessment.GradingScale{}, assessment.ErrGradingScaleNotFound
	}
	scale := *gs
	scale.Intervals = append([]assessment.GradeInterval(nil), gs.Intervals...)
	return scale, nil
}

func (repo *assessmentRepository) CreatePlan(_ context.Context, plan assessment.Plan) (assessment.Plan, error) {
	repo.plan.Lock()
	defer repo.plan.Unlock()

	if _, ok := repo.plan.table[plan.ID]; ok {
		return assessment.Plan{}, assessment.ErrPlanExists
	}
	stored := copyPlan(&plan)
	repo.plan.table[plan.ID] = &stored
	return plan, nil
}

func copyPlan(p *assessment.Plan) assessment.Plan {
	plan := *p
	plan.Criteria = append([]assessment.Criterion(nil), p.Criteria...)
	return plan
}

func (repo *assessmentRepository) GetPlan(_ context.Context, id string) (assessment.Plan, error) {
	repo.plan.RLock()
	defer repo.plan.RUnlock()

	if p, ok := repo.plan.table[id]; ok {
		return copyPlan(p), nil
	}
	return assessment.Plan{}, assessment.ErrPlanNotFound
}

func (repo *assessmentRepository) QueryAllPlans(_ context.Context) ([]assessment.Plan, error) {
	repo.plan.RLock()
	defer repo.plan.RUnlock()

	plans := make([]assessment.Plan, 0, len(repo.plan.table))
	for _, p := range repo.plan.table {
		plans = append(plans, copyPlan(p))
	}
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].CreatedAt.Equal(plans[j].CreatedAt) {
			return plans[i].ID < plans[j].ID
		}
		return plans[i].CreatedAt.After(plans[j].CreatedAt)
	})
	return plans, nil
}

func (repo *assessmentRepository) SaveStudents(_ context.Context, students ...assessment.Student) error {
	repo.student.Lock()
	defer repo.student.Unlock()

	for _, st := range students {
		st := st
		repo.student.table[st.ID] = &st
	}
	return nil
}

func (repo *assessmentRepository) GetStudent(_ context.Context, id string) (assessment.Student, error) {
	repo.student.RLock()
	defer repo.student.RUnlock()

	if st, ok := repo.student.table[id]; ok {
		return *st, nil
	}
	return assessment.Student{}, assessment.ErrStudentNotFound
}

func (repo *assessmentRepository) QueryStudentsByGroup(_ context.Context, group string) ([]assessment.Student, error) {
	repo.student.RLock()
	defer repo.student.RUnlock()

	students := make([]assessment.Student, 0)
	for _, st := range repo.student.table {
		if st.StudentGroup == group {
			students = append(students, *st)
		}
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func copyResult(r *assessment.Result) assessment.Result {
	res := *r
	res.Details = append([]assessment.ResultDetail(nil), r.Details...)
	return res
}

func (repo *assessmentRepository) SaveResult(_ context.Context, res assessment.Result) (assessment.Result, error) {
	repo.result.Lock()
	defer repo.result.Unlock()

	key := resultKey{plan: res.Plan, student: res.Student}
	if orig, ok := repo.result.table[key]; ok {
		res.ID = orig.ID
		res.CreatedAt = orig.CreatedAt
	}
	stored := copyResult(&res)
	repo.result.table[key] = &stored
	return res, nil
}

func (repo *assessmentRepository) GetResult(_ context.Context, planID, studentID string) (assessment.Result, error) {
	repo.result.RLock()
	defer repo.result.RUnlock()

	if res, ok := repo.result.table[resultKey{plan: planID, student: studentID}]; ok {
		return copyResult(res), nil
	}
	return assessment.Result{}, assessment.ErrResultNotFound
}

func (repo *assessmentRepository) QueryResults(_ context.Context, planID string, filter assessment.ResultFilter, orderings ...core.DBOrdering) ([]assessment.Result, error) {
	repo.result.RLock()
	defer repo.result.RUnlock()

	results := make([]assessment.Result, 0)
	for key, res := range repo.result.table {
		if key.plan != planID {
			continue
		}
		if filter.Grade != "" && res.Grade != filter.Grade {
			continue
		}
		if filter.Student != "" && res.Student != filter.Student {
			continue
		}
		results = append(results, copyResult(res))
	}
	sortResults(results, orderings)
	return results, nil
}

// sortResults supports the same orderings as the SQL repository; default is by student.
func sortResults(results []assessment.Result, orderings []core.DBOrdering) {
	compare := func(a, b assessment.Result, field string) int {
		switch field {
		case "total_score":
			switch {
			case a.TotalScore < b.TotalScore:
				return -1
			case a.TotalScore > b.TotalScore:
				return 1
			}
		case "grade":
			return compareStrings(a.Grade, b.Grade)
		case "updated_at":
			switch {
			case a.UpdatedAt.Before(b.UpdatedAt):
				return -1
			case a.UpdatedAt.After(b.UpdatedAt):
				return 1
			}
		case "student":
			return compareStrings(a.Student, b.Student)
		}
		return 0
	}
	orderings = append(orderings, core.DBOrdering{Field: "student", Ascending: true})
	sort.SliceStable(results, func(i, j int) bool {
		for _, ord := range orderings {
			c := compare(results[i], results[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
