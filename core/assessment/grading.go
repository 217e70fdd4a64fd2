package assessment

import "sort"

// Grade returns the code of the highest interval whose threshold is at most `percentage`,
// or "" when the percentage is below every threshold.
func (gs GradingScale) Grade(percentage float64) string {
	intervals := make([]GradeInterval, len(gs.Intervals))
	copy(intervals, gs.Intervals)
	sort.SliceStable(intervals, func(i, j int) bool {
		return intervals[i].Threshold > intervals[j].Threshold
	})
	for _, iv := range intervals {
		if iv.Threshold <= percentage {
			return iv.GradeCode
		}
	}
	return ""
}

func percentage(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return score / max * 100
}

// Mark computes the result of a complete score sheet: per-criterion grades, total and overall grade.
// The total is recomputed from the clamped scores; the sheet's own total is ignored.
func Mark(plan Plan, scale GradingScale, sheet ScoreSheet) Result {
	res := Result{
		Plan:         plan.ID,
		Student:      sheet.Student,
		MaximumScore: plan.MaximumScore,
		Comment:      sheet.Comment,
		GradedBy:     sheet.GradedBy,
		Details:      make([]ResultDetail, 0, len(plan.Criteria)),
	}
	for _, c := range plan.Criteria {
		score := clamp(sheet.Scores[c.ID], c.MaximumScore)
		res.TotalScore += score
		res.Details = append(res.Details, ResultDetail{
			Criterion:    c.ID,
			Score:        score,
			MaximumScore: c.MaximumScore,
			Grade:        scale.Grade(percentage(score, c.MaximumScore)),
		})
	}
	res.Grade = scale.Grade(percentage(res.TotalScore, plan.MaximumScore))
	return res
}
