package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/markbook/apps/api/echo"
	"github.com/trezcool/markbook/core/assessment"
	"github.com/trezcool/markbook/tests"
)

type assessmentFixture struct {
	testApp
	adminToken string
	tutorToken string
}

func setupAssessment(t *testing.T) assessmentFixture {
	app := setup(t)
	admin := testutil.CreateInstructor(t, app.insRepo, "Admin", "admin", "admin@school.test", "", true, true)
	tutor := testutil.CreateInstructor(t, app.insRepo, "Tutor", "tutor", "tutor@school.test", "", false, true)

	testutil.CreateGradingScale(t, app.repo, "letters",
		assessment.GradeInterval{GradeCode: "A", Threshold: 80},
		assessment.GradeInterval{GradeCode: "B", Threshold: 65},
		assessment.GradeInterval{GradeCode: "C", Threshold: 50},
	)
	testutil.CreateStudents(t, app.repo,
		assessment.Student{ID: "s1", Name: "Amani", Email: "amani@test.cd", StudentGroup: "g1"},
		assessment.Student{ID: "s2", Name: "Baraka", StudentGroup: "g1"},
	)
	testutil.CreatePlan(t, app.repo, "essay", "g1", "letters",
		assessment.Criterion{ID: "A", MaximumScore: 10},
		assessment.Criterion{ID: "B", MaximumScore: 5},
	)

	return assessmentFixture{
		testApp:    app,
		adminToken: app.getToken(t, admin),
		tutorToken: app.getToken(t, tutor),
	}
}

func TestAssessmentApi_adminOnly(t *testing.T) {
	fx := setupAssessment(t)
	forbidden := marshalObj(t, httpErr{Error: "permission denied"})

	tests := []httpTest{
		{name: "scales: auth required", path: "/v1/grading-scales", body: []byte(`{}`), wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{name: "scales: admin required", path: "/v1/grading-scales", body: []byte(`{}`), token: fx.tutorToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "students: admin required", path: "/v1/students", body: []byte(`[]`), token: fx.tutorToken, wantCode: http.StatusForbidden, wantData: forbidden},
		{name: "plans: admin required", path: "/v1/plans", body: []byte(`{}`), token: fx.tutorToken, wantCode: http.StatusForbidden, wantData: forbidden},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, fx.do(tt))
		})
	}
}

func TestAssessmentApi_createGradingScale(t *testing.T) {
	fx := setupAssessment(t)

	tests := []httpTest{
		{
			name: "invalid", body: []byte(`{"id": "pf", "intervals": [{"grade_code": "P", "threshold": 120}]}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "duplicate grades", body: []byte(`{"id": "pf", "intervals": [{"grade_code": "P", "threshold": 50}, {"grade_code": "P", "threshold": 60}]}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"intervals": "grade codes must be unique within a grading scale"}),
		},
		{
			name: "created", body: []byte(`{"id": "pf", "intervals": [{"grade_code": "P", "threshold": 50}]}`),
			wantCode: http.StatusCreated,
			wantData: marshalObj(t, assessment.GradingScale{ID: "pf", Name: "pf", Intervals: []assessment.GradeInterval{{GradeCode: "P", Threshold: 50}}}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/grading-scales"
		tt.token = fx.adminToken
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, fx.do(tt))
		})
	}
}

func TestAssessmentApi_saveStudents(t *testing.T) {
	fx := setupAssessment(t)

	tt := httpTest{
		method:   http.MethodPost,
		path:     "/v1/students",
		token:    fx.adminToken,
		body:     []byte(`[{"id": "s3", "name": " Chausiku ", "student_group": "g1"}]`),
		wantCode: http.StatusCreated,
		wantData: marshalObj(t, []assessment.Student{{ID: "s3", Name: "Chausiku", StudentGroup: "g1"}}),
	}
	checkCodeAndData(t, tt, fx.do(tt))

	tt.body = []byte(`[{"id": "s4", "name": "Dunia", "email": "nope", "student_group": "g1"}]`)
	tt.wantCode = http.StatusBadRequest
	tt.wantData = nil
	checkCodeAndData(t, tt, fx.do(tt))

	st, err := fx.repo.GetStudent(context.Background(), "s3")
	require.NoError(t, err)
	assert.Equal(t, "Chausiku", st.Name)
}

func TestAssessmentApi_createPlan(t *testing.T) {
	fx := setupAssessment(t)

	tests := []httpTest{
		{
			name: "no criteria", body: []byte(`{"name": "Quiz", "student_group": "g1", "grading_scale": "letters"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"criteria": "this field is required"}),
		},
		{
			name:     "duplicate criteria",
			body:     []byte(`{"name": "Quiz", "student_group": "g1", "grading_scale": "letters", "criteria": [{"criterion": "Q"}, {"criterion": "Q"}]}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"criteria": "criteria must be unique within a plan"}),
		},
		{
			name:     "unknown grading scale",
			body:     []byte(`{"name": "Quiz", "student_group": "g1", "grading_scale": "nope", "criteria": [{"criterion": "Q", "maximum_score": 1}]}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"grading_scale": "grading scale not found"}),
		},
		{
			name:     "existing id",
			body:     []byte(`{"id": "essay", "name": "Quiz", "student_group": "g1", "grading_scale": "letters", "criteria": [{"criterion": "Q", "maximum_score": 1}]}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"id": "an assessment plan with this id already exists"}),
		},
		{
			name:     "created",
			body:     []byte(`{"id": "quiz", "name": "Quiz", "student_group": "g1", "grading_scale": "letters", "criteria": [{"criterion": "Q1", "maximum_score": 2}, {"criterion": "Q2", "maximum_score": 3.5}]}`),
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/plans"
		tt.token = fx.adminToken
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(tt)
			checkCodeAndData(t, tt, rec)
			if tt.wantCode == http.StatusCreated {
				var plan assessment.Plan
				decode(t, rec, &plan)
				assert.Equal(t, "quiz", plan.ID)
				assert.Equal(t, 5.5, plan.MaximumScore)
			}
		})
	}

	rec := fx.do(httpTest{method: http.MethodGet, path: "/v1/plans", token: fx.tutorToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var plans []assessment.Plan
	decode(t, rec, &plans)
	assert.Len(t, plans, 2)
}

func TestAssessmentApi_planDetails(t *testing.T) {
	fx := setupAssessment(t)

	rec := fx.do(httpTest{method: http.MethodGet, path: "/v1/plans/essay", token: fx.tutorToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var details assessment.PlanDetails
	decode(t, rec, &details)
	assert.Equal(t, 15.0, details.MaxTotalScore)
	assert.Equal(t, []assessment.Criterion{{ID: "A", MaximumScore: 10}, {ID: "B", MaximumScore: 5}}, details.Criteria)

	tt := httpTest{
		method: http.MethodGet, path: "/v1/plans/nope", token: fx.tutorToken,
		wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "assessment plan not found"}),
	}
	checkCodeAndData(t, tt, fx.do(tt))
}

func TestAssessmentApi_resultEntry(t *testing.T) {
	fx := setupAssessment(t)

	edit := func(body string) httpTest {
		return httpTest{method: http.MethodPost, path: "/v1/plans/essay/scores", token: fx.tutorToken, body: []byte(body)}
	}

	tests := []struct {
		httpTest
		want assessment.EditResult
	}{
		{
			httpTest: edit(`{"student": "s1", "criterion": "A", "value": 12}`),
			want:     assessment.EditResult{Student: "s1", Criterion: "A", Value: 10, Stored: true, Total: 10},
		},
		{
			httpTest: edit(`{"student": "s1", "criterion": "B", "value": "abc"}`),
			want:     assessment.EditResult{Student: "s1", Criterion: "B", Total: 10},
		},
		{
			httpTest: edit(`{"student": "s1", "criterion": "B", "value": null}`),
			want:     assessment.EditResult{Student: "s1", Criterion: "B", Total: 10},
		},
		{
			httpTest: edit(`{"student": "s2", "criterion": "B", "value": "4.5"}`),
			want:     assessment.EditResult{Student: "s2", Criterion: "B", Value: 4.5, Stored: true, Total: 4.5},
		},
		{
			httpTest: edit(`{"student": "s1", "criterion": "B", "value": "-3", "comment": "keep going"}`),
			want:     assessment.EditResult{Student: "s1", Criterion: "B", Value: 0, Stored: true, Total: 10, Complete: true},
		},
	}
	for _, tt := range tests {
		rec := fx.do(tt.httpTest)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got assessment.EditResult
		decode(t, rec, &got)
		assert.Equal(t, tt.want, got)
	}

	// errors
	tt := edit(`{"student": "s1", "criterion": "Z", "value": 1}`)
	tt.wantCode = http.StatusBadRequest
	checkCodeAndData(t, tt, fx.do(tt))

	tt = edit(`{"student": "s1", "criterion": "A", "value": 1}`)
	tt.path = "/v1/plans/nope/scores"
	tt.wantCode = http.StatusNotFound
	checkCodeAndData(t, tt, fx.do(tt))

	tt = edit(`{"student": "s1", "criterion": "A", "value": 1}`)
	tt.token = ""
	tt.wantCode = http.StatusUnauthorized
	checkCodeAndData(t, tt, fx.do(tt))

	// running totals
	rec := fx.do(httpTest{method: http.MethodGet, path: "/v1/plans/essay/students/s2/total", token: fx.tutorToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var total RunningTotalResponse
	decode(t, rec, &total)
	assert.Equal(t, RunningTotalResponse{Student: "s2", RunningTotal: 4.5, Entries: map[string]float64{"B": 4.5}}, total)

	// the completed row of s1 was marked
	rec = fx.do(httpTest{method: http.MethodGet, path: "/v1/plans/essay/results/s1", token: fx.tutorToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var res assessment.Result
	decode(t, rec, &res)
	assert.Equal(t, 10.0, res.TotalScore)
	assert.Equal(t, "B", res.Grade)
	assert.Equal(t, "keep going", res.Comment)
	assert.Equal(t, "tutor", res.GradedBy)
	assert.Len(t, fx.mailSvc.SentMessages(), 1)

	// table rows
	rec = fx.do(httpTest{method: http.MethodGet, path: "/v1/plans/essay/students", token: fx.tutorToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []assessment.StudentRow
	decode(t, rec, &rows)
	require.Len(t, rows, 2)
	require.NotNil(t, rows[0].Result)
	assert.Equal(t, "B", rows[0].Result.Grade)
	assert.Nil(t, rows[1].Result)
	assert.Equal(t, 4.5, rows[1].RunningTotal)

	tt = httpTest{
		method: http.MethodGet, path: "/v1/plans/essay/results/s2", token: fx.tutorToken,
		wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "assessment result not found"}),
	}
	checkCodeAndData(t, tt, fx.do(tt))
}

func TestAssessmentApi_markResult(t *testing.T) {
	fx := setupAssessment(t)

	tests := []httpTest{
		{
			name:     "unknown student",
			body:     []byte(`{"student": "s9", "assessment_details": {"A": 1, "B": 1}}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"student": "student not found"}),
		},
		{
			name:     "missing and unknown criteria",
			body:     []byte(`{"student": "s2", "assessment_details": {"A": 1, "Z": 1}}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{
				"assessment_details.B": "this field is required",
				"assessment_details.Z": "unknown assessment criterion",
			}),
		},
		{
			name:     "out of range",
			body:     []byte(`{"student": "s2", "assessment_details": {"A": 11, "B": 1}}`),
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, map[string]string{"assessment_details.A": "score is out of the criterion's range: expected 0 to 10"}),
		},
		{
			name:     "marked",
			body:     []byte(`{"student": "s2", "assessment_details": {"A": 9, "B": 4}, "total_score": 1, "comment": "great"}`),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/plans/essay/results"
		tt.token = fx.tutorToken
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(tt)
			checkCodeAndData(t, tt, rec)
			if tt.wantCode == http.StatusOK {
				var res assessment.Result
				decode(t, rec, &res)
				assert.Equal(t, 13.0, res.TotalScore)
				assert.Equal(t, "A", res.Grade)
				assert.Equal(t, "tutor", res.GradedBy)
				assert.Equal(t, []assessment.ResultDetail{
					{Criterion: "A", Score: 9, MaximumScore: 10, Grade: "A"},
					{Criterion: "B", Score: 4, MaximumScore: 5, Grade: "A"},
				}, res.Details)
			}
		})
	}
}

func TestAssessmentApi_queryResults(t *testing.T) {
	fx := setupAssessment(t)
	ctx := context.Background()
	testutil.CreateStudents(t, fx.repo, assessment.Student{ID: "s3", Name: "Chausiku", StudentGroup: "g1"})

	for student, scores := range map[string]map[string]float64{
		"s1": {"A": 9, "B": 5}, // 14 A
		"s2": {"A": 5, "B": 3}, // 8 C
		"s3": {"A": 8, "B": 5}, // 13 A
	} {
		_, err := fx.assessmentSvc.MarkResult(ctx, "essay", assessment.ScoreSheet{Student: student, Scores: scores})
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "all", path: "/v1/plans/essay/results", want: []string{"s1", "s2", "s3"}},
		{name: "grade", path: "/v1/plans/essay/results?grade=A", want: []string{"s1", "s3"}},
		{name: "student", path: "/v1/plans/essay/results?student=s2", want: []string{"s2"}},
		{name: "ordering", path: "/v1/plans/essay/results?ordering=-total_score", want: []string{"s1", "s3", "s2"}},
		{name: "grade & ordering", path: "/v1/plans/essay/results?grade=A&ordering=total_score", want: []string{"s3", "s1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := fx.do(httpTest{method: http.MethodGet, path: tt.path, token: fx.tutorToken})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var results []assessment.Result
			decode(t, rec, &results)
			got := make([]string, 0, len(results))
			for _, res := range results {
				got = append(got, res.Student)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
