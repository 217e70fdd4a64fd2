package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

var (
	pendingColor = color.New(color.FgYellow).SprintFunc()
	gradeColor   = color.New(color.FgGreen, color.Bold).SprintFunc()
	failColor    = color.New(color.FgRed).SprintFunc()
)

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// report prints one line per student of the plan's group: the marked scores when a
// result exists, the in-progress entries otherwise.
func (cli *commandLine) report(planID string) error {
	ctx := context.Background()
	details, err := cli.assessmentSvc.GetPlanDetails(ctx, planID)
	if err != nil {
		return err
	}
	rows, err := cli.assessmentSvc.GetStudentRows(ctx, planID)
	if err != nil {
		return err
	}

	cli.printf("%s (%s) - group %s\n", details.Plan.Name, details.Plan.ID, details.Plan.StudentGroup)

	header := []string{"Student"}
	for _, c := range details.Criteria {
		header = append(header, fmt.Sprintf("%s /%s", c.ID, formatScore(c.MaximumScore)))
	}
	header = append(header, "Total /"+formatScore(details.MaxTotalScore), "Grade")

	table := tablewriter.NewWriter(cli.out)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)

	var marked int
	for _, row := range rows {
		line := []string{row.Student.Name}
		if res := row.Result; res != nil {
			marked++
			scores := make(map[string]float64, len(res.Details))
			for _, d := range res.Details {
				scores[d.Criterion] = d.Score
			}
			for _, c := range details.Criteria {
				line = append(line, formatScore(scores[c.ID]))
			}
			grade := res.Grade
			if grade == "" {
				grade = failColor("-")
			} else {
				grade = gradeColor(grade)
			}
			line = append(line, formatScore(res.TotalScore), grade)
		} else {
			for _, c := range details.Criteria {
				if v, ok := row.Entries[c.ID]; ok {
					line = append(line, formatScore(v))
				} else {
					line = append(line, "")
				}
			}
			line = append(line, formatScore(row.RunningTotal), pendingColor("pending"))
		}
		table.Append(line)
	}
	table.SetFooter(append(make([]string, len(header)-2), "marked", fmt.Sprintf("%d/%d", marked, len(rows))))
	table.Render()
	return nil
}
