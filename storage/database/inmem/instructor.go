package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/markbook/core/instructor"
)

type instructorRepository struct {
	db *instructorTable
}

var _ instructor.Repository = (*instructorRepository)(nil)

func NewInstructorRepository(db *DB) instructor.Repository {
	return &instructorRepository{db: db.instructor}
}

func (repo *instructorRepository) query() []instructor.Instructor {
	inss := make([]instructor.Instructor, 0, len(repo.db.table))
	for _, ins := range repo.db.table {
		inss = append(inss, *ins)
	}
	sort.Slice(inss, func(i, j int) bool { return inss[i].Username < inss[j].Username })
	return inss
}

func (repo *instructorRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedIDs ...string) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}
	for _, ins := range repo.db.table {
		if excluded[ins.ID] {
			continue
		}
		if ins.Username == username {
			return instructor.ErrUsernameExists
		}
		if email != "" && ins.Email == email {
			return instructor.ErrEmailExists
		}
	}
	return nil
}

func (repo *instructorRepository) CreateInstructor(_ context.Context, ins instructor.Instructor) (instructor.Instructor, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.table[ins.ID] = &ins
	return ins, nil
}

func (repo *instructorRepository) QueryAllInstructors(_ context.Context) ([]instructor.Instructor, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *instructorRepository) GetInstructorByID(_ context.Context, id string) (instructor.Instructor, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if ins, ok := repo.db.table[id]; ok {
		return *ins, nil
	}
	return instructor.Instructor{}, instructor.ErrNotFound
}

func (repo *instructorRepository) GetInstructorByUsernameOrEmail(_ context.Context, username string) (instructor.Instructor, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, ins := range repo.db.table {
		if ins.Username == username || ins.Email == username {
			return *ins, nil
		}
	}
	return instructor.Instructor{}, instructor.ErrNotFound
}

func (repo *instructorRepository) UpdateInstructor(_ context.Context, ins instructor.Instructor) (instructor.Instructor, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[ins.ID]
	if !ok {
		return instructor.Instructor{}, instructor.ErrNotFound
	}
	ins.CreatedAt = orig.CreatedAt
	repo.db.table[ins.ID] = &ins
	return ins, nil
}
