package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/markbook/core"
	"github.com/trezcool/markbook/core/assessment"
)

type (
	scaleRow struct {
		ID   string `db:"id"`
		Name string `db:"name"`
	}

	intervalRow struct {
		GradingScaleID string  `db:"grading_scale_id"`
		GradeCode      string  `db:"grade_code"`
		Threshold      float64 `db:"threshold"`
	}

	planRow struct {
		ID           string  `db:"id"`
		Name         string  `db:"name"`
		StudentGroup string  `db:"student_group"`
		GradingScale string  `db:"grading_scale"`
		MaximumScore float64 `db:"maximum_score"`
		CreatedAt    int64   `db:"created_at"`
	}

	criterionRow struct {
		PlanID       string  `db:"plan_id"`
		Criterion    string  `db:"criterion"`
		MaximumScore float64 `db:"maximum_score"`
		Position     int     `db:"position"`
	}

	studentRow struct {
		ID           string      `db:"id"`
		Name         string      `db:"name"`
		Email        null.String `db:"email"`
		StudentGroup string      `db:"student_group"`
	}

	resultRow struct {
		ID           string      `db:"id"`
		PlanID       string      `db:"plan_id"`
		StudentID    string      `db:"student_id"`
		TotalScore   float64     `db:"total_score"`
		MaximumScore float64     `db:"maximum_score"`
		Grade        string      `db:"grade"`
		Comment      null.String `db:"comment"`
		GradedBy     null.String `db:"graded_by"`
		CreatedAt    int64       `db:"created_at"`
		UpdatedAt    int64       `db:"updated_at"`
	}

	detailRow struct {
		ResultID     string  `db:"result_id"`
		Criterion    string  `db:"criterion"`
		Score        float64 `db:"score"`
		MaximumScore float64 `db:"maximum_score"`
		Grade        string  `db:"grade"`
	}
)

func (r planRow) toPlan(criteria []criterionRow) assessment.Plan {
	plan := assessment.Plan{
		ID:           r.ID,
		Name:         r.Name,
		StudentGroup: r.StudentGroup,
		GradingScale: r.GradingScale,
		MaximumScore: r.MaximumScore,
		Criteria:     make([]assessment.Criterion, 0, len(criteria)),
		CreatedAt:    fromUnix(r.CreatedAt),
	}
	for _, c := range criteria {
		plan.Criteria = append(plan.Criteria, assessment.Criterion{ID: c.Criterion, MaximumScore: c.MaximumScore})
	}
	return plan
}

func (r studentRow) toStudent() assessment.Student {
	return assessment.Student{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email.String,
		StudentGroup: r.StudentGroup,
	}
}

func (r resultRow) toResult(details []detailRow) assessment.Result {
	res := assessment.Result{
		ID:           r.ID,
		Plan:         r.PlanID,
		Student:      r.StudentID,
		TotalScore:   r.TotalScore,
		MaximumScore: r.MaximumScore,
		Grade:        r.Grade,
		Comment:      r.Comment.String,
		GradedBy:     r.GradedBy.String,
		Details:      make([]assessment.ResultDetail, 0, len(details)),
		CreatedAt:    fromUnix(r.CreatedAt),
		UpdatedAt:    fromUnix(r.UpdatedAt),
	}
	for _, d := range details {
		res.Details = append(res.Details, assessment.ResultDetail{
			Criterion:    d.Criterion,
			Score:        d.Score,
			MaximumScore: d.MaximumScore,
			Grade:        d.Grade,
		})
	}
	return res
}

type assessmentRepository struct {
	db *sqlx.DB
}

var _ assessment.Repository = (*assessmentRepository)(nil)

func NewAssessmentRepository(db *sqlx.DB) assessment.Repository {
	return &assessmentRepository{db: db}
}

func (repo *assessmentRepository) SaveGradingScale(ctx context.Context, gs assessment.GradingScale) (assessment.GradingScale, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`
			INSERT INTO grading_scale (id, name) VALUES (?, ?)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name`)
		if _, err := tx.ExecContext(ctx, q, gs.ID, gs.Name); err != nil {
			return errors.Wrap(err, "upserting grading scale")
		}
		q = tx.Rebind(`DELETE FROM grading_scale_interval WHERE grading_scale_id = ?`)
		if _, err := tx.ExecContext(ctx, q, gs.ID); err != nil {
			return errors.Wrap(err, "clearing grade intervals")
		}
		q = tx.Rebind(`INSERT INTO grading_scale_interval (grading_scale_id, grade_code, threshold) VALUES (?, ?, ?)`)
		for _, iv := range gs.Intervals {
			if _, err := tx.ExecContext(ctx, q, gs.ID, iv.GradeCode, iv.Threshold); err != nil {
				return errors.Wrapf(err, "inserting grade interval %q", iv.GradeCode)
			}
		}
		return nil
	})
	if err != nil {
		return assessment.GradingScale{}, err
	}
	return gs, nil
}

func (repo *assessmentRepository) GetGradingScale(ctx context.Context, id string) (assessment.GradingScale, error) {
	var row scaleRow
	err := repo.db.GetContext(ctx, &row, repo.db.Rebind(`SELECT id, name FROM grading_scale WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return assessment.GradingScale{}, assessment.ErrGradingScaleNotFound
	} else if err != nil {
		return assessment.GradingScale{}, errors.Wrap(err, "selecting grading scale")
	}

	var intervals []intervalRow
	q := repo.db.Rebind(`
		SELECT grading_scale_id, grade_code, threshold FROM grading_scale_interval
		WHERE grading_scale_id = ? ORDER BY threshold DESC`)
	if err = repo.db.SelectContext(ctx, &intervals, q, id); err != nil {
		return assessment.GradingScale{}, errors.Wrap(err, "selecting grade intervals")
	}

	gs := assessment.GradingScale{ID: row.ID, Name: row.Name, Intervals: make([]assessment.GradeInterval, 0, len(intervals))}
	for _, iv := range intervals {
		gs.Intervals = append(gs.Intervals, assessment.GradeInterval{GradeCode: iv.GradeCode, Threshold: iv.Threshold})
	}
	return gs, nil
}

func (repo *assessmentRepository) CreatePlan(ctx context.Context, plan assessment.Plan) (assessment.Plan, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var n int
		if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM assessment_plan WHERE id = ?`), plan.ID); err != nil {
			return errors.Wrap(err, "checking plan id")
		}
		if n > 0 {
			return assessment.ErrPlanExists
		}

		q := tx.Rebind(`
			INSERT INTO assessment_plan (id, name, student_group, grading_scale, maximum_score, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		_, err := tx.ExecContext(ctx, q, plan.ID, plan.Name, plan.StudentGroup, plan.GradingScale, plan.MaximumScore, toUnix(plan.CreatedAt))
		if err != nil {
			return errors.Wrap(err, "inserting plan")
		}

		q = tx.Rebind(`INSERT INTO assessment_criterion (plan_id, criterion, maximum_score, position) VALUES (?, ?, ?, ?)`)
		for i, c := range plan.Criteria {
			if _, err = tx.ExecContext(ctx, q, plan.ID, c.ID, c.MaximumScore, i); err != nil {
				return errors.Wrapf(err, "inserting criterion %q", c.ID)
			}
		}
		return nil
	})
	if err != nil {
		return assessment.Plan{}, err
	}
	return plan, nil
}

const selectPlans = `SELECT id, name, student_group, grading_scale, maximum_score, created_at FROM assessment_plan`

func (repo *assessmentRepository) criteria(ctx context.Context, planIDs ...string) (map[string][]criterionRow, error) {
	byPlan := make(map[string][]criterionRow, len(planIDs))
	if len(planIDs) == 0 {
		return byPlan, nil
	}
	q, args, err := sqlx.In(`
		SELECT plan_id, criterion, maximum_score, position FROM assessment_criterion
		WHERE plan_id IN (?) ORDER BY plan_id, position`, planIDs)
	if err != nil {
		return nil, err
	}
	var rows []criterionRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting criteria")
	}
	for _, r := range rows {
		byPlan[r.PlanID] = append(byPlan[r.PlanID], r)
	}
	return byPlan, nil
}

func (repo *assessmentRepository) GetPlan(ctx context.Context, id string) (assessment.Plan, error) {
	var row planRow
	err := repo.db.GetContext(ctx, &row, repo.db.Rebind(selectPlans+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return assessment.Plan{}, assessment.ErrPlanNotFound
	} else if err != nil {
		return assessment.Plan{}, errors.Wrap(err, "selecting plan")
	}

	criteria, err := repo.criteria(ctx, row.ID)
	if err != nil {
		return assessment.Plan{}, err
	}
	return row.toPlan(criteria[row.ID]), nil
}

func (repo *assessmentRepository) QueryAllPlans(ctx context.Context) ([]assessment.Plan, error) {
	var rows []planRow
	if err := repo.db.SelectContext(ctx, &rows, selectPlans+` ORDER BY created_at DESC, id`); err != nil {
		return nil, errors.Wrap(err, "selecting plans")
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	criteria, err := repo.criteria(ctx, ids...)
	if err != nil {
		return nil, err
	}

	plans := make([]assessment.Plan, 0, len(rows))
	for _, r := range rows {
		plans = append(plans, r.toPlan(criteria[r.ID]))
	}
	return plans, nil
}

func (repo *assessmentRepository) SaveStudents(ctx context.Context, students ...assessment.Student) error {
	return withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`
			INSERT INTO student (id, name, email, student_group) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name, email = excluded.email, student_group = excluded.student_group`)
		for _, st := range students {
			email := null.NewString(st.Email, st.Email != "")
			if _, err := tx.ExecContext(ctx, q, st.ID, st.Name, email, st.StudentGroup); err != nil {
				return errors.Wrapf(err, "upserting student %q", st.ID)
			}
		}
		return nil
	})
}

const selectStudents = `SELECT id, name, email, student_group FROM student`

func (repo *assessmentRepository) GetStudent(ctx context.Context, id string) (assessment.Student, error) {
	var row studentRow
	err := repo.db.GetContext(ctx, &row, repo.db.Rebind(selectStudents+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return assessment.Student{}, assessment.ErrStudentNotFound
	} else if err != nil {
		return assessment.Student{}, errors.Wrap(err, "selecting student")
	}
	return row.toStudent(), nil
}

func (repo *assessmentRepository) QueryStudentsByGroup(ctx context.Context, group string) ([]assessment.Student, error) {
	var rows []studentRow
	q := repo.db.Rebind(selectStudents + ` WHERE student_group = ? ORDER BY name, id`)
	if err := repo.db.SelectContext(ctx, &rows, q, group); err != nil {
		return nil, errors.Wrap(err, "selecting students")
	}
	students := make([]assessment.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.toStudent())
	}
	return students, nil
}

func (repo *assessmentRepository) SaveResult(ctx context.Context, res assessment.Result) (assessment.Result, error) {
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		q := tx.Rebind(`
			INSERT INTO assessment_result
				(id, plan_id, student_id, total_score, maximum_score, grade, comment, graded_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (plan_id, student_id) DO UPDATE SET
				total_score = excluded.total_score,
				maximum_score = excluded.maximum_score,
				grade = excluded.grade,
				comment = excluded.comment,
				graded_by = excluded.graded_by,
				updated_at = excluded.updated_at`)
		_, err := tx.ExecContext(ctx, q,
			res.ID, res.Plan, res.Student, res.TotalScore, res.MaximumScore, res.Grade,
			null.NewString(res.Comment, res.Comment != ""),
			null.NewString(res.GradedBy, res.GradedBy != ""),
			toUnix(res.CreatedAt), toUnix(res.UpdatedAt),
		)
		if err != nil {
			return errors.Wrap(err, "upserting result")
		}

		// the stored row keeps the id and creation time of the first marking
		var stored resultRow
		q = tx.Rebind(selectResults + ` WHERE plan_id = ? AND student_id = ?`)
		if err = tx.GetContext(ctx, &stored, q, res.Plan, res.Student); err != nil {
			return errors.Wrap(err, "selecting result")
		}
		res.ID = stored.ID
		res.CreatedAt = fromUnix(stored.CreatedAt)

		if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM assessment_result_detail WHERE result_id = ?`), res.ID); err != nil {
			return errors.Wrap(err, "clearing result details")
		}
		q = tx.Rebind(`
			INSERT INTO assessment_result_detail (result_id, criterion, score, maximum_score, grade)
			VALUES (?, ?, ?, ?, ?)`)
		for _, d := range res.Details {
			if _, err = tx.ExecContext(ctx, q, res.ID, d.Criterion, d.Score, d.MaximumScore, d.Grade); err != nil {
				return errors.Wrapf(err, "inserting result detail %q", d.Criterion)
			}
		}
		return nil
	})
	if err != nil {
		return assessment.Result{}, err
	}
	return res, nil
}

const (
	selectResults = `
		SELECT id, plan_id, student_id, total_score, maximum_score, grade, comment, graded_by, created_at, updated_at
		FROM assessment_result`

	// details come back in the plan's criterion order
	selectDetails = `
		SELECT d.result_id, d.criterion, d.score, d.maximum_score, d.grade
		FROM assessment_result_detail d
		JOIN assessment_result r ON r.id = d.result_id
		LEFT JOIN assessment_criterion c ON c.plan_id = r.plan_id AND c.criterion = d.criterion`
)

var resultOrderingColumns = map[string]string{
	"student":     "student_id",
	"total_score": "total_score",
	"grade":       "grade",
	"updated_at":  "updated_at",
}

func (repo *assessmentRepository) details(ctx context.Context, where string, args ...interface{}) (map[string][]detailRow, error) {
	var rows []detailRow
	q := repo.db.Rebind(selectDetails + ` WHERE ` + where + ` ORDER BY d.result_id, c.position`)
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting result details")
	}
	byResult := make(map[string][]detailRow)
	for _, r := range rows {
		byResult[r.ResultID] = append(byResult[r.ResultID], r)
	}
	return byResult, nil
}

func (repo *assessmentRepository) GetResult(ctx context.Context, planID, studentID string) (assessment.Result, error) {
	var row resultRow
	q := repo.db.Rebind(selectResults + ` WHERE plan_id = ? AND student_id = ?`)
	err := repo.db.GetContext(ctx, &row, q, planID, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return assessment.Result{}, assessment.ErrResultNotFound
	} else if err != nil {
		return assessment.Result{}, errors.Wrap(err, "selecting result")
	}

	details, err := repo.details(ctx, `d.result_id = ?`, row.ID)
	if err != nil {
		return assessment.Result{}, err
	}
	return row.toResult(details[row.ID]), nil
}

func (repo *assessmentRepository) QueryResults(ctx context.Context, planID string, filter assessment.ResultFilter, orderings ...core.DBOrdering) ([]assessment.Result, error) {
	conds := []string{"plan_id = ?"}
	args := []interface{}{planID}
	if filter.Grade != "" {
		conds = append(conds, "grade = ?")
		args = append(args, filter.Grade)
	}
	if filter.Student != "" {
		conds = append(conds, "student_id = ?")
		args = append(args, filter.Student)
	}
	orderBy := core.OrderingClause(orderings, resultOrderingColumns, "student_id ASC")
	if !strings.Contains(orderBy, "student_id") {
		orderBy += ", student_id ASC"
	}

	var rows []resultRow
	q := repo.db.Rebind(selectResults + ` WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY ` + orderBy)
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "selecting results")
	}

	details, err := repo.details(ctx, `r.plan_id = ?`, planID)
	if err != nil {
		return nil, err
	}
	results := make([]assessment.Result, 0, len(rows))
	for _, r := range rows {
		results = append(results, r.toResult(details[r.ID]))
	}
	return results, nil
}
