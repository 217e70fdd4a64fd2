package inmemdb

import (
	"sync"

	"github.com/trezcool/markbook/core/assessment"
	"github.com/trezcool/markbook/core/instructor"
)

type (
	// DB is a process-local store used by tests and the DEV demo.
	DB struct {
		instructor *instructorTable
		scale      *scaleTable
		plan       *planTable
		student    *studentTable
		result     *resultTable
	}

	instructorTable struct {
		sync.RWMutex
		table map[string]*instructor.Instructor
	}

	scaleTable struct {
		sync.RWMutex
		table map[string]*assessment.GradingScale
	}

	planTable struct {
		sync.RWMutex
		table map[string]*assessment.Plan
	}

	studentTable struct {
		sync.RWMutex
		table map[string]*assessment.Student
	}

	resultKey struct {
		plan, student string
	}

	resultTable struct {
		sync.RWMutex
		table map[resultKey]*assessment.Result
	}
)

func Open() *DB {
	return &DB{
		instructor: &instructorTable{table: make(map[string]*instructor.Instructor)},
		scale:      &scaleTable{table: make(map[string]*assessment.GradingScale)},
		plan:       &planTable{table: make(map[string]*assessment.Plan)},
		student:    &studentTable{table: make(map[string]*assessment.Student)},
		result:     &resultTable{table: make(map[resultKey]*assessment.Result)},
	}
}
