package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/trezcool/markbook/core/assessment"
)

// planFile is the layout of an importable YAML file.
type planFile struct {
	GradingScales []assessment.GradingScale `yaml:"grading_scales"`
	Students      []assessment.Student      `yaml:"students"`
	Plans         []assessment.NewPlan      `yaml:"plans"`
}

func (cli *commandLine) importPlan(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file planFile
	if err = yaml.UnmarshalStrict(data, &file); err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}

	ctx := context.Background()
	for _, gs := range file.GradingScales {
		if _, err = cli.assessmentSvc.SaveGradingScale(ctx, gs); err != nil {
			return errors.Wrapf(err, "grading scale %q", gs.ID)
		}
	}
	if len(file.Students) > 0 {
		if err = cli.assessmentSvc.SaveStudents(ctx, file.Students...); err != nil {
			return errors.Wrap(err, "students")
		}
	}
	for _, np := range file.Plans {
		plan, err := cli.assessmentSvc.CreatePlan(ctx, np)
		if err != nil {
			return errors.Wrapf(err, "plan %q", np.Name)
		}
		cli.printf("plan %q created (id: %s, maximum score: %g)\n", plan.Name, plan.ID, plan.MaximumScore)
	}

	cli.printf("imported %d grading scale(s), %d student(s), %d plan(s)\n",
		len(file.GradingScales), len(file.Students), len(file.Plans))
	return nil
}
