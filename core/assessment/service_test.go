package assessment_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markbook/core"
	"github.com/trezcool/markbook/core/assessment"
	emailsvc "github.com/trezcool/markbook/services/email"
	logsvc "github.com/trezcool/markbook/services/logger"
	inmemdb "github.com/trezcool/markbook/storage/database/inmem"
	"github.com/trezcool/markbook/tests"
)

type fixture struct {
	svc     *assessment.ServiceMock
	repo    assessment.Repository
	mailSvc *emailsvc.ConsoleServiceMock
	plan    assessment.Plan
}

func setup(t *testing.T) fixture {
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	repo := inmemdb.NewAssessmentRepository(inmemdb.Open())
	validate, translator := testutil.NewValidator()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)

	testutil.CreateGradingScale(t, repo, "letters",
		assessment.GradeInterval{GradeCode: "A", Threshold: 80},
		assessment.GradeInterval{GradeCode: "B", Threshold: 65},
		assessment.GradeInterval{GradeCode: "C", Threshold: 50},
	)
	testutil.CreateStudents(t, repo,
		assessment.Student{ID: "s1", Name: "Amani", Email: "amani@test.cd", StudentGroup: "g1"},
		assessment.Student{ID: "s2", Name: "Baraka", StudentGroup: "g1"},
		assessment.Student{ID: "s3", Name: "Chausiku", StudentGroup: "g2"},
	)
	plan := testutil.CreatePlan(t, repo, "essay", "g1", "letters",
		assessment.Criterion{ID: "A", MaximumScore: 10},
		assessment.Criterion{ID: "B", MaximumScore: 5},
	)

	return fixture{
		svc:     assessment.NewServiceMock(repo, validate, translator, logger, mailSvc),
		repo:    repo,
		mailSvc: mailSvc,
		plan:    plan,
	}
}

func fieldErrors(t *testing.T, err error) []core.FieldError {
	t.Helper()
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "want *core.ValidationError, got %v", err)
	return vErr.Fields
}

func TestService_SaveGradingScale(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		scale   assessment.GradingScale
		wantErr bool
	}{
		{name: "no id", scale: assessment.GradingScale{Intervals: []assessment.GradeInterval{{GradeCode: "P", Threshold: 50}}}, wantErr: true},
		{name: "no intervals", scale: assessment.GradingScale{ID: "x"}, wantErr: true},
		{name: "threshold above 100", scale: assessment.GradingScale{ID: "x", Intervals: []assessment.GradeInterval{{GradeCode: "P", Threshold: 101}}}, wantErr: true},
		{
			name: "duplicate grades",
			scale: assessment.GradingScale{ID: "x", Intervals: []assessment.GradeInterval{
				{GradeCode: "P", Threshold: 50}, {GradeCode: "P", Threshold: 60},
			}},
			wantErr: true,
		},
		{name: "valid", scale: assessment.GradingScale{ID: " pass ", Intervals: []assessment.GradeInterval{{GradeCode: "P", Threshold: 50}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs, err := fx.svc.SaveGradingScale(ctx, tt.scale)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SaveGradingScale() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				assert.Equal(t, "pass", gs.ID)
				assert.Equal(t, "pass", gs.Name)
			}
		})
	}
}

func TestService_CreatePlan(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	criteria := []assessment.Criterion{{ID: "X", MaximumScore: 20}, {ID: "Y", MaximumScore: 30}}

	t.Run("invalid", func(t *testing.T) {
		invalid := []assessment.NewPlan{
			{Name: "no criteria", StudentGroup: "g1", GradingScale: "letters"},
			{Name: "negative max", StudentGroup: "g1", GradingScale: "letters", Criteria: []assessment.Criterion{{ID: "X", MaximumScore: -1}}},
			{StudentGroup: "g1", GradingScale: "letters", Criteria: criteria},
			{Name: "dup", StudentGroup: "g1", GradingScale: "letters", Criteria: []assessment.Criterion{{ID: "X"}, {ID: " X "}}},
		}
		for _, np := range invalid {
			_, err := fx.svc.CreatePlan(ctx, np)
			var vErrs validator.ValidationErrors
			assert.True(t, errors.As(err, &vErrs), "CreatePlan(%q) error = %v", np.Name, err)
		}
	})

	t.Run("unknown grading scale", func(t *testing.T) {
		_, err := fx.svc.CreatePlan(ctx, assessment.NewPlan{Name: "P", StudentGroup: "g1", GradingScale: "nope", Criteria: criteria})
		fields := fieldErrors(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, "grading_scale", fields[0].Field)
	})

	t.Run("generated id", func(t *testing.T) {
		plan, err := fx.svc.CreatePlan(ctx, assessment.NewPlan{Name: " Project ", StudentGroup: "g1", GradingScale: "letters", Criteria: criteria})
		require.NoError(t, err)
		assert.NotEmpty(t, plan.ID)
		assert.Equal(t, "Project", plan.Name)
		assert.Equal(t, 50.0, plan.MaximumScore)
		assert.Equal(t, criteria, plan.Criteria)

		got, err := fx.svc.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, plan, got)
	})

	t.Run("existing id", func(t *testing.T) {
		_, err := fx.svc.CreatePlan(ctx, assessment.NewPlan{ID: "essay", Name: "Again", StudentGroup: "g1", GradingScale: "letters", Criteria: criteria})
		fields := fieldErrors(t, err)
		require.Len(t, fields, 1)
		assert.Equal(t, "id", fields[0].Field)
	})

	plans, err := fx.svc.QueryAllPlans(ctx)
	require.NoError(t, err)
	assert.Len(t, plans, 2)
}

func TestService_GetPlanDetails(t *testing.T) {
	fx := setup(t)

	details, err := fx.svc.GetPlanDetails(context.Background(), "essay")
	require.NoError(t, err)
	assert.Equal(t, fx.plan, details.Plan)
	assert.Equal(t, fx.plan.Criteria, details.Criteria)
	assert.Equal(t, 15.0, details.MaxTotalScore)

	_, err = fx.svc.GetPlanDetails(context.Background(), "nope")
	assert.Equal(t, assessment.ErrPlanNotFound, errors.Cause(err))
}

func TestService_SubmitEdit(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	_, err := fx.svc.SubmitEdit(ctx, "nope", assessment.Edit{Student: "s1", Criterion: "A", Value: "1"})
	assert.Equal(t, assessment.ErrPlanNotFound, errors.Cause(err))

	_, err = fx.svc.SubmitEdit(ctx, "essay", assessment.Edit{Student: "s1", Criterion: "Z", Value: "1"})
	assert.Equal(t, assessment.ErrUnknownCriterion, errors.Cause(err))

	res, err := fx.svc.SubmitEdit(ctx, "essay", assessment.Edit{Student: " s1 ", Criterion: " A ", Value: "12"})
	require.NoError(t, err)
	assert.Equal(t, assessment.EditResult{Student: "s1", Criterion: "A", Value: 10, Stored: true, Total: 10}, res)

	total, err := fx.svc.RunningTotal(ctx, "essay", "s1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, total)

	v, ok, err := fx.svc.ClampedValue(ctx, "essay", "s1", "A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)

	entries, err := fx.svc.Entries(ctx, "essay", "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"A": 10}, entries)

	// completing the row marks the result
	res, err = fx.svc.SubmitEdit(ctx, "essay", assessment.Edit{Student: "s1", Criterion: "B", Value: "-3", Comment: "keep going", GradedBy: "tutor"})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, 10.0, res.Total)
	require.Len(t, fx.svc.SubmittedSheets(), 1)

	result, err := fx.svc.GetResult(ctx, "essay", "s1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, result.TotalScore)
	assert.Equal(t, 15.0, result.MaximumScore)
	assert.Equal(t, "B", result.Grade)
	assert.Equal(t, "keep going", result.Comment)
	assert.Equal(t, "tutor", result.GradedBy)
	assert.Equal(t, map[string]string{"A": "A", "B": ""}, result.DetailGrades())

	// the student was notified
	sent := fx.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "amani@test.cd", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Amani")
	assert.Contains(t, sent[0].TextContent, "Plan essay")

	// fresh cycle
	total, err = fx.svc.RunningTotal(ctx, "essay", "s1")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestService_MarkResult(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		plan       string
		sheet      assessment.ScoreSheet
		wantErr    error
		wantFields []string
	}{
		{name: "unknown plan", plan: "nope", sheet: assessment.ScoreSheet{Student: "s1", Scores: map[string]float64{}}, wantErr: assessment.ErrPlanNotFound},
		{name: "unknown student", plan: "essay", sheet: assessment.ScoreSheet{Student: "s9", Scores: map[string]float64{"A": 1, "B": 1}}, wantFields: []string{"student"}},
		{name: "other group", plan: "essay", sheet: assessment.ScoreSheet{Student: "s3", Scores: map[string]float64{"A": 1, "B": 1}}, wantFields: []string{"student"}},
		{name: "missing criterion", plan: "essay", sheet: assessment.ScoreSheet{Student: "s2", Scores: map[string]float64{"A": 1}}, wantFields: []string{"assessment_details.B"}},
		{
			name:       "out of range",
			plan:       "essay",
			sheet:      assessment.ScoreSheet{Student: "s2", Scores: map[string]float64{"A": 11, "B": -1}},
			wantFields: []string{"assessment_details.A", "assessment_details.B"},
		},
		{
			name:       "unknown criteria",
			plan:       "essay",
			sheet:      assessment.ScoreSheet{Student: "s2", Scores: map[string]float64{"A": 1, "B": 1, "Z": 1, "Y": 2}},
			wantFields: []string{"assessment_details.Y", "assessment_details.Z"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.MarkResult(ctx, tt.plan, tt.sheet)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			fields := fieldErrors(t, err)
			got := make([]string, 0, len(fields))
			for _, f := range fields {
				got = append(got, f.Field)
				assert.NotEmpty(t, f.Error)
			}
			assert.Equal(t, tt.wantFields, got)
		})
	}

	t.Run("remark keeps identity", func(t *testing.T) {
		first := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
		assessment.NowFunc = func() time.Time { return first }
		defer func() { assessment.NowFunc = time.Now }()

		res1, err := fx.svc.MarkResult(ctx, "essay", assessment.ScoreSheet{Student: "s2", Scores: map[string]float64{"A": 4, "B": 2}, Total: 1000})
		require.NoError(t, err)
		assert.Equal(t, 6.0, res1.TotalScore)
		assert.Equal(t, "", res1.Grade)

		assessment.NowFunc = func() time.Time { return first.Add(time.Hour) }
		res2, err := fx.svc.MarkResult(ctx, "essay", assessment.ScoreSheet{Student: "s2", Scores: map[string]float64{"A": 9, "B": 4}})
		require.NoError(t, err)
		assert.Equal(t, res1.ID, res2.ID)
		assert.Equal(t, first, res2.CreatedAt)
		assert.Equal(t, first.Add(time.Hour), res2.UpdatedAt)
		assert.Equal(t, "A", res2.Grade)

		// no email address: nobody to notify
		assert.Empty(t, fx.mailSvc.SentMessages())
	})
}

func TestService_ListResults(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	testutil.CreateStudents(t, fx.repo, assessment.Student{ID: "s4", Name: "Dunia", StudentGroup: "g1"})
	for student, scores := range map[string]map[string]float64{
		"s1": {"A": 9, "B": 5}, // A
		"s2": {"A": 5, "B": 3}, // C
		"s4": {"A": 8, "B": 5}, // A
	} {
		_, err := fx.svc.MarkResult(ctx, "essay", assessment.ScoreSheet{Student: student, Scores: scores})
		require.NoError(t, err)
	}

	studentsOf := func(results []assessment.Result) []string {
		ids := make([]string, 0, len(results))
		for _, res := range results {
			ids = append(ids, res.Student)
		}
		return ids
	}

	tests := []struct {
		name      string
		filter    assessment.ResultFilter
		orderings []core.DBOrdering
		want      []string
	}{
		{name: "all", want: []string{"s1", "s2", "s4"}},
		{name: "by grade", filter: assessment.ResultFilter{Grade: " A "}, want: []string{"s1", "s4"}},
		{name: "by student", filter: assessment.ResultFilter{Student: "s2"}, want: []string{"s2"}},
		{name: "no match", filter: assessment.ResultFilter{Grade: "B"}, want: []string{}},
		{name: "by total desc", orderings: []core.DBOrdering{{Field: "total_score"}}, want: []string{"s1", "s4", "s2"}},
		{name: "by grade then total", orderings: []core.DBOrdering{{Field: "grade", Ascending: true}, {Field: "total_score", Ascending: true}}, want: []string{"s4", "s1", "s2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := fx.svc.ListResults(ctx, "essay", tt.filter, tt.orderings...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, studentsOf(results))
		})
	}

	_, err := fx.svc.ListResults(ctx, "nope", assessment.ResultFilter{})
	assert.Equal(t, assessment.ErrPlanNotFound, errors.Cause(err))
}

func TestService_GetStudentRows(t *testing.T) {
	fx := setup(t)
	ctx := context.Background()

	_, err := fx.svc.SubmitEdit(ctx, "essay", assessment.Edit{Student: "s2", Criterion: "B", Value: "3.5"})
	require.NoError(t, err)
	_, err = fx.svc.MarkResult(ctx, "essay", assessment.ScoreSheet{Student: "s1", Scores: map[string]float64{"A": 9, "B": 5}})
	require.NoError(t, err)

	rows, err := fx.svc.GetStudentRows(ctx, "essay")
	require.NoError(t, err)
	require.Len(t, rows, 2) // s3 is in another group

	assert.Equal(t, "s1", rows[0].Student.ID)
	require.NotNil(t, rows[0].Result)
	assert.Equal(t, 14.0, rows[0].Result.TotalScore)
	assert.Empty(t, rows[0].Entries)

	assert.Equal(t, "s2", rows[1].Student.ID)
	assert.Nil(t, rows[1].Result)
	assert.Equal(t, map[string]float64{"B": 3.5}, rows[1].Entries)
	assert.Equal(t, 3.5, rows[1].RunningTotal)
}

func TestService_asyncGrading(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Grading.Async = true
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	repo := inmemdb.NewAssessmentRepository(inmemdb.Open())
	validate, translator := testutil.NewValidator()

	testutil.CreateGradingScale(t, repo, "pf", assessment.GradeInterval{GradeCode: "P", Threshold: 50})
	testutil.CreateStudents(t, repo, assessment.Student{ID: "s1", Name: "Amani", StudentGroup: "g1"})
	testutil.CreatePlan(t, repo, "quiz", "g1", "pf", assessment.Criterion{ID: "Q1", MaximumScore: 1}, assessment.Criterion{ID: "Q2", MaximumScore: 1})

	svc, err := assessment.NewService(conf, repo, validate, translator, logger, emailsvc.NewConsoleServiceMock(conf, logger))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.SubmitEdit(ctx, "quiz", assessment.Edit{Student: "s1", Criterion: "Q1", Value: "1"})
	require.NoError(t, err)
	res, err := svc.SubmitEdit(ctx, "quiz", assessment.Edit{Student: "s1", Criterion: "Q2", Value: "0"})
	require.NoError(t, err)
	assert.True(t, res.Complete)

	svc.Wait()
	result, err := svc.GetResult(ctx, "quiz", "s1")
	require.NoError(t, err)
	assert.Equal(t, "P", result.Grade)
	assert.Equal(t, 1.0, result.TotalScore)
}

func TestNewService(t *testing.T) {
	conf := core.NewTestConfig()
	_, err := assessment.NewService(conf, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}
