package assessment

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
)

var (
	NowFunc   = time.Now       // mockable
	newIDFunc = uuid.NewString // mockable

	// errors
	ErrUnknownCriterion = errors.New("unknown assessment criterion")
	errDuplicateCrit    = errors.New("duplicate assessment criterion")
)

type (
	// Submitter receives every completed ScoreSheet.
	// Submit must not block on marking: the aggregator calls it inline with the edit.
	Submitter interface {
		Submit(sheet ScoreSheet)
	}

	SubmitterFunc func(sheet ScoreSheet)

	// Aggregator validates score edits of a plan, keeps running totals
	// and hands every completed row over to its Submitter.
	Aggregator struct {
		plan     string
		criteria map[string]Criterion
		order    []string
		sub      Submitter

		mu   sync.Mutex
		rows map[string]map[string]float64 // {student: {criterion: score}}
	}
)

func (f SubmitterFunc) Submit(sheet ScoreSheet) { f(sheet) }

func NewAggregator(plan Plan, sub Submitter) (*Aggregator, error) {
	if err := vala.BeginValidation().Validate(
		vala.IsNotNil(sub, "sub"),
		vala.StringNotEmpty(plan.ID, "plan.ID"),
		vala.GreaterThan(len(plan.Criteria), 0, "len(plan.Criteria)"),
	).Check(); err != nil {
		return nil, err
	}

	agg := &Aggregator{
		plan:     plan.ID,
		criteria: make(map[string]Criterion, len(plan.Criteria)),
		order:    make([]string, 0, len(plan.Criteria)),
		sub:      sub,
		rows:     make(map[string]map[string]float64),
	}
	for _, c := range plan.Criteria {
		if _, ok := agg.criteria[c.ID]; ok {
			return nil, errors.Wrapf(errDuplicateCrit, "criterion %q", c.ID)
		}
		agg.criteria[c.ID] = c
		agg.order = append(agg.order, c.ID)
	}
	return agg, nil
}

// SubmitEdit applies a score edit.
// Values that are not numbers are dropped. Numbers are clamped into [0, criterion max].
// When the student's row holds a score for every criterion, the row is handed to the Submitter and reset.
func (agg *Aggregator) SubmitEdit(e Edit) (EditResult, error) {
	crit, ok := agg.criteria[e.Criterion]
	if !ok {
		return EditResult{}, errors.Wrapf(ErrUnknownCriterion, "criterion %q", e.Criterion)
	}
	res := EditResult{Student: e.Student, Criterion: e.Criterion}

	agg.mu.Lock()
	row := agg.rows[e.Student]

	value, ok := parseScore(e.Value)
	if !ok {
		res.Total = agg.sum(row)
		agg.mu.Unlock()
		return res, nil
	}

	res.Value = clamp(value, crit.MaximumScore)
	res.Stored = true
	if row == nil {
		row = make(map[string]float64, len(agg.criteria))
		agg.rows[e.Student] = row
	}
	row[e.Criterion] = res.Value
	res.Total = agg.sum(row)

	var sheet ScoreSheet
	if len(row) == len(agg.criteria) {
		res.Complete = true
		sheet = ScoreSheet{
			ID:          newIDFunc(),
			Plan:        agg.plan,
			Student:     e.Student,
			Scores:      row,
			Total:       res.Total,
			Comment:     e.Comment,
			GradedBy:    e.GradedBy,
			CompletedAt: NowFunc().UTC(),
		}
		delete(agg.rows, e.Student) // the sheet now owns the row
	}
	agg.mu.Unlock()

	if res.Complete {
		agg.sub.Submit(sheet)
	}
	return res, nil
}

// RunningTotal returns the sum of the student's in-progress scores.
func (agg *Aggregator) RunningTotal(student string) float64 {
	agg.mu.Lock()
	defer agg.mu.Unlock()
	return agg.sum(agg.rows[student])
}

// ClampedValue returns the stored score of the student for the criterion, if any.
func (agg *Aggregator) ClampedValue(student, criterion string) (float64, bool) {
	agg.mu.Lock()
	defer agg.mu.Unlock()
	v, ok := agg.rows[student][criterion]
	return v, ok
}

// Entries returns a copy of the student's in-progress scores.
func (agg *Aggregator) Entries(student string) map[string]float64 {
	agg.mu.Lock()
	defer agg.mu.Unlock()
	row := agg.rows[student]
	entries := make(map[string]float64, len(row))
	for k, v := range row {
		entries[k] = v
	}
	return entries
}

// sum adds the row's scores up in criterion order. Caller holds agg.mu.
func (agg *Aggregator) sum(row map[string]float64) float64 {
	var total float64
	for _, id := range agg.order {
		total += row[id]
	}
	return total
}

func parseScore(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func clamp(v, max float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > max:
		return max
	default:
		return v
	}
}
