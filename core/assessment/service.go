package assessment

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"sync"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/markbook/core"
)

var (
	// errors
	ErrPlanNotFound         = errors.New("assessment plan not found")
	ErrPlanExists           = errors.New("an assessment plan with this id already exists")
	ErrGradingScaleNotFound = errors.New("grading scale not found")
	ErrStudentNotFound      = errors.New("student not found")
	ErrResultNotFound       = errors.New("assessment result not found")
	errInvalidSheet         = errors.New("invalid score sheet")
)

type (
	Repository interface {
		SaveGradingScale(ctx context.Context, gs GradingScale) (GradingScale, error)
		GetGradingScale(ctx context.Context, id string) (GradingScale, error)
		CreatePlan(ctx context.Context, plan Plan) (Plan, error)
		GetPlan(ctx context.Context, id string) (Plan, error)
		QueryAllPlans(ctx context.Context) ([]Plan, error)
		SaveStudents(ctx context.Context, students ...Student) error
		GetStudent(ctx context.Context, id string) (Student, error)
		QueryStudentsByGroup(ctx context.Context, group string) ([]Student, error)
		// SaveResult inserts or replaces the result of (Plan, Student).
		// A replaced result keeps its ID and CreatedAt.
		SaveResult(ctx context.Context, res Result) (Result, error)
		GetResult(ctx context.Context, planID, studentID string) (Result, error)
		QueryResults(ctx context.Context, planID string, filter ResultFilter, orderings ...core.DBOrdering) ([]Result, error)
	}

	Service interface {
		Submitter

		SaveGradingScale(ctx context.Context, gs GradingScale) (GradingScale, error)
		CreatePlan(ctx context.Context, np NewPlan) (Plan, error)
		GetPlan(ctx context.Context, id string) (Plan, error)
		QueryAllPlans(ctx context.Context) ([]Plan, error)
		SaveStudents(ctx context.Context, students ...Student) error

		GetPlanDetails(ctx context.Context, planID string) (PlanDetails, error)
		GetStudentRows(ctx context.Context, planID string) ([]StudentRow, error)
		SubmitEdit(ctx context.Context, planID string, e Edit) (EditResult, error)
		RunningTotal(ctx context.Context, planID, student string) (float64, error)
		ClampedValue(ctx context.Context, planID, student, criterion string) (float64, bool, error)
		Entries(ctx context.Context, planID, student string) (map[string]float64, error)

		MarkResult(ctx context.Context, planID string, sheet ScoreSheet) (Result, error)
		GetResult(ctx context.Context, planID, student string) (Result, error)
		ListResults(ctx context.Context, planID string, filter ResultFilter, orderings ...core.DBOrdering) ([]Result, error)

		// Wait blocks until every pending grading is done.
		Wait()
	}

	service struct {
		repo       Repository
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
		mailSvc    core.EmailService
		async      bool

		// sub is handed to the plan aggregators; it is the service itself or its mock.
		sub Submitter

		aggMu       sync.Mutex
		aggregators map[string]*Aggregator // {plan: aggregator}

		grading sync.WaitGroup
	}
)

var _ Service = (*service)(nil)

func NewService(
	conf *core.Config,
	repo Repository,
	validate *validator.Validate,
	translator ut.Translator,
	logger core.Logger,
	mailSvc core.EmailService,
) (Service, error) {
	svc, err := newService(repo, validate, translator, logger, mailSvc)
	if err != nil {
		return nil, err
	}
	svc.async = conf.Grading.Async
	return svc, nil
}

func newService(
	repo Repository,
	validate *validator.Validate,
	translator ut.Translator,
	logger core.Logger,
	mailSvc core.EmailService,
) (*service, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(translator, "translator"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(mailSvc, "mailSvc"),
	).Check(); err != nil {
		return nil, err
	}

	svc := &service{
		repo:        repo,
		validate:    validate,
		translator:  translator,
		logger:      logger,
		mailSvc:     mailSvc,
		aggregators: make(map[string]*Aggregator),
	}
	svc.sub = svc
	return svc, nil
}

func (svc *service) SaveGradingScale(ctx context.Context, gs GradingScale) (GradingScale, error) {
	if err := gs.Validate(svc.validate); err != nil {
		return GradingScale{}, err
	}
	return svc.repo.SaveGradingScale(ctx, gs)
}

func (svc *service) CreatePlan(ctx context.Context, np NewPlan) (Plan, error) {
	if err := np.Validate(svc.validate); err != nil {
		return Plan{}, err
	}
	if _, err := svc.repo.GetGradingScale(ctx, np.GradingScale); err != nil {
		if errors.Cause(err) == ErrGradingScaleNotFound {
			return Plan{}, core.NewValidationError(err, core.FieldError{Field: "grading_scale", Error: err.Error()})
		}
		return Plan{}, err
	}

	plan := Plan{
		ID:           np.ID,
		Name:         np.Name,
		StudentGroup: np.StudentGroup,
		GradingScale: np.GradingScale,
		Criteria:     np.Criteria,
		CreatedAt:    NowFunc().UTC(),
	}
	if plan.ID == "" {
		plan.ID = newIDFunc()
	}
	for _, c := range plan.Criteria {
		plan.MaximumScore += c.MaximumScore
	}

	plan, err := svc.repo.CreatePlan(ctx, plan)
	if errors.Cause(err) == ErrPlanExists {
		return Plan{}, core.NewValidationError(err, core.FieldError{Field: "id", Error: err.Error()})
	}
	return plan, err
}

func (svc *service) GetPlan(ctx context.Context, id string) (Plan, error) {
	return svc.repo.GetPlan(ctx, core.CleanString(id))
}

func (svc *service) QueryAllPlans(ctx context.Context) ([]Plan, error) {
	return svc.repo.QueryAllPlans(ctx)
}

func (svc *service) SaveStudents(ctx context.Context, students ...Student) error {
	for i := range students {
		if err := students[i].Validate(svc.validate); err != nil {
			return err
		}
	}
	return svc.repo.SaveStudents(ctx, students...)
}

func (svc *service) GetPlanDetails(ctx context.Context, planID string) (PlanDetails, error) {
	plan, err := svc.GetPlan(ctx, planID)
	if err != nil {
		return PlanDetails{}, err
	}
	return PlanDetails{
		Plan:          plan,
		Criteria:      plan.Criteria,
		MaxTotalScore: plan.MaximumScore,
	}, nil
}

func (svc *service) GetStudentRows(ctx context.Context, planID string) ([]StudentRow, error) {
	plan, err := svc.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	agg, err := svc.aggregator(ctx, plan.ID)
	if err != nil {
		return nil, err
	}

	students, err := svc.repo.QueryStudentsByGroup(ctx, plan.StudentGroup)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	results, err := svc.repo.QueryResults(ctx, plan.ID, ResultFilter{})
	if err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	byStudent := make(map[string]Result, len(results))
	for _, res := range results {
		byStudent[res.Student] = res
	}

	rows := make([]StudentRow, 0, len(students))
	for _, st := range students {
		row := StudentRow{
			Student:      st,
			Entries:      agg.Entries(st.ID),
			RunningTotal: agg.RunningTotal(st.ID),
		}
		if res, ok := byStudent[st.ID]; ok {
			res := res
			row.Result = &res
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (svc *service) SubmitEdit(ctx context.Context, planID string, e Edit) (EditResult, error) {
	agg, err := svc.aggregator(ctx, planID)
	if err != nil {
		return EditResult{}, err
	}
	e.Student = core.CleanString(e.Student)
	e.Criterion = core.CleanString(e.Criterion)
	return agg.SubmitEdit(e)
}

func (svc *service) RunningTotal(ctx context.Context, planID, student string) (float64, error) {
	agg, err := svc.aggregator(ctx, planID)
	if err != nil {
		return 0, err
	}
	return agg.RunningTotal(student), nil
}

func (svc *service) ClampedValue(ctx context.Context, planID, student, criterion string) (float64, bool, error) {
	agg, err := svc.aggregator(ctx, planID)
	if err != nil {
		return 0, false, err
	}
	v, ok := agg.ClampedValue(student, criterion)
	return v, ok, nil
}

func (svc *service) Entries(ctx context.Context, planID, student string) (map[string]float64, error) {
	agg, err := svc.aggregator(ctx, planID)
	if err != nil {
		return nil, err
	}
	return agg.Entries(student), nil
}

// aggregator returns the plan's aggregator, creating it on first use.
func (svc *service) aggregator(ctx context.Context, planID string) (*Aggregator, error) {
	planID = core.CleanString(planID)

	svc.aggMu.Lock()
	defer svc.aggMu.Unlock()

	if agg, ok := svc.aggregators[planID]; ok {
		return agg, nil
	}
	plan, err := svc.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	agg, err := NewAggregator(plan, svc.sub)
	if err != nil {
		return nil, errors.Wrapf(err, "creating aggregator for plan %q", planID)
	}
	svc.aggregators[planID] = agg
	return agg, nil
}

// Submit grades a completed score sheet, in the background unless grading is synchronous.
// Failures are logged.
func (svc *service) Submit(sheet ScoreSheet) {
	if !svc.async {
		svc.mark(sheet)
		return
	}
	svc.grading.Add(1)
	go func() {
		defer svc.grading.Done()
		svc.mark(sheet)
	}()
}

func (svc *service) Wait() {
	svc.grading.Wait()
}

func (svc *service) mark(sheet ScoreSheet) {
	if _, err := svc.MarkResult(context.Background(), sheet.Plan, sheet); err != nil {
		svc.logger.Error("marking score sheet", err, map[string]interface{}{
			"sheet":   sheet.ID,
			"plan":    sheet.Plan,
			"student": sheet.Student,
		})
	}
}

func (svc *service) MarkResult(ctx context.Context, planID string, sheet ScoreSheet) (Result, error) {
	plan, err := svc.GetPlan(ctx, planID)
	if err != nil {
		return Result{}, err
	}
	sheet.Student = core.CleanString(sheet.Student)
	if err = svc.validate.Struct(sheet); err != nil {
		return Result{}, err
	}

	student, err := svc.repo.GetStudent(ctx, sheet.Student)
	switch {
	case errors.Cause(err) == ErrStudentNotFound:
		return Result{}, core.NewValidationError(err, core.FieldError{Field: "student", Error: err.Error()})
	case err != nil:
		return Result{}, err
	}
	if student.StudentGroup != plan.StudentGroup {
		return Result{}, core.NewValidationError(errInvalidSheet, translatedFieldError(svc.translator, "student", studentGroupTag))
	}
	if err = svc.checkScores(plan, sheet.Scores); err != nil {
		return Result{}, err
	}

	scale, err := svc.repo.GetGradingScale(ctx, plan.GradingScale)
	if err != nil {
		return Result{}, errors.Wrapf(err, "loading grading scale %q", plan.GradingScale)
	}

	now := NowFunc().UTC()
	res := Mark(plan, scale, sheet)
	res.ID = newIDFunc()
	res.CreatedAt = now
	res.UpdatedAt = now
	if res, err = svc.repo.SaveResult(ctx, res); err != nil {
		return Result{}, errors.Wrap(err, "saving result")
	}

	if student.Email != "" {
		svc.sendResultMail(plan, student, res)
	}
	return res, nil
}

// checkScores reports missing, unknown and out-of-range criterion scores.
func (svc *service) checkScores(plan Plan, scores map[string]float64) error {
	var fields []core.FieldError
	for _, c := range plan.Criteria {
		score, ok := scores[c.ID]
		field := "assessment_details." + c.ID
		switch {
		case !ok:
			fields = append(fields, translatedFieldError(svc.translator, field, requiredTag))
		case score < 0 || score > c.MaximumScore:
			fe := translatedFieldError(svc.translator, field, criterionRangeTag)
			fe.Error = fmt.Sprintf("%s: expected 0 to %g", fe.Error, c.MaximumScore)
			fields = append(fields, fe)
		}
	}

	unknown := make([]string, 0)
	for id := range scores {
		if _, ok := plan.Criterion(id); !ok {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	for _, id := range unknown {
		fields = append(fields, translatedFieldError(svc.translator, "assessment_details."+id, unknownCriterionTag))
	}

	if len(fields) > 0 {
		return core.NewValidationError(errInvalidSheet, fields...)
	}
	return nil
}

type resultMailData struct {
	StudentName  string
	PlanName     string
	Details      []ResultDetail
	TotalScore   float64
	MaximumScore float64
	Grade        string
	Comment      string
}

func (svc *service) sendResultMail(plan Plan, student Student, res Result) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "Assessment result: " + plan.Name,
		TemplateName: "result_published",
		TemplateData: resultMailData{
			StudentName:  student.Name,
			PlanName:     plan.Name,
			Details:      res.Details,
			TotalScore:   res.TotalScore,
			MaximumScore: res.MaximumScore,
			Grade:        res.Grade,
			Comment:      res.Comment,
		},
	})
}

func (svc *service) GetResult(ctx context.Context, planID, student string) (Result, error) {
	return svc.repo.GetResult(ctx, core.CleanString(planID), core.CleanString(student))
}

func (svc *service) ListResults(ctx context.Context, planID string, filter ResultFilter, orderings ...core.DBOrdering) ([]Result, error) {
	planID = core.CleanString(planID)
	if _, err := svc.repo.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	filter.Clean()
	return svc.repo.QueryResults(ctx, planID, filter, orderings...)
}
