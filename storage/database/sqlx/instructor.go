package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/markbook/core/instructor"
)

type instructorRow struct {
	ID           string     `db:"id"`
	Name         string     `db:"name"`
	Username     string     `db:"username"`
	Email        string     `db:"email"`
	IsActive     bool       `db:"is_active"`
	IsAdmin      bool       `db:"is_admin"`
	PasswordHash string     `db:"password_hash"`
	CreatedAt    int64      `db:"created_at"`
	UpdatedAt    int64      `db:"updated_at"`
	LastLogin    null.Int64 `db:"last_login"`
}

func (r instructorRow) toInstructor() instructor.Instructor {
	ins := instructor.Instructor{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		IsActive:     r.IsActive,
		IsAdmin:      r.IsAdmin,
		PasswordHash: []byte(r.PasswordHash),
		CreatedAt:    fromUnix(r.CreatedAt),
		UpdatedAt:    fromUnix(r.UpdatedAt),
	}
	if r.LastLogin.Valid {
		ins.LastLogin = fromUnix(r.LastLogin.Int64)
	}
	return ins
}

func lastLogin(ins instructor.Instructor) null.Int64 {
	if ins.LastLogin.IsZero() {
		return null.Int64{}
	}
	return null.Int64From(toUnix(ins.LastLogin))
}

type instructorRepository struct {
	db *sqlx.DB
}

var _ instructor.Repository = (*instructorRepository)(nil)

func NewInstructorRepository(db *sqlx.DB) instructor.Repository {
	return &instructorRepository{db: db}
}

func (repo *instructorRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	q := `SELECT username, email FROM instructor WHERE (username = ? OR email = ?)`
	args := []interface{}{username, email}
	if len(excludedIDs) > 0 {
		inQ, inArgs, err := sqlx.In(` AND id NOT IN (?)`, excludedIDs)
		if err != nil {
			return err
		}
		q += inQ
		args = append(args, inArgs...)
	}

	var rows []instructorRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	for _, r := range rows {
		if r.Username == username {
			return instructor.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return instructor.ErrEmailExists
	}
	return nil
}

func (repo *instructorRepository) CreateInstructor(ctx context.Context, ins instructor.Instructor) (instructor.Instructor, error) {
	q := repo.db.Rebind(`
		INSERT INTO instructor
			(id, name, username, email, is_active, is_admin, password_hash, created_at, updated_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := repo.db.ExecContext(ctx, q,
		ins.ID, ins.Name, ins.Username, ins.Email, ins.IsActive, ins.IsAdmin, string(ins.PasswordHash),
		toUnix(ins.CreatedAt), toUnix(ins.UpdatedAt), lastLogin(ins),
	)
	if err != nil {
		return instructor.Instructor{}, errors.Wrap(err, "inserting instructor")
	}
	return ins, nil
}

const selectInstructors = `
	SELECT id, name, username, email, is_active, is_admin, password_hash, created_at, updated_at, last_login
	FROM instructor`

func (repo *instructorRepository) QueryAllInstructors(ctx context.Context) ([]instructor.Instructor, error) {
	var rows []instructorRow
	if err := repo.db.SelectContext(ctx, &rows, selectInstructors+` ORDER BY username`); err != nil {
		return nil, errors.Wrap(err, "selecting instructors")
	}
	inss := make([]instructor.Instructor, 0, len(rows))
	for _, r := range rows {
		inss = append(inss, r.toInstructor())
	}
	return inss, nil
}

func (repo *instructorRepository) get(ctx context.Context, where string, args ...interface{}) (instructor.Instructor, error) {
	var row instructorRow
	err := repo.db.GetContext(ctx, &row, repo.db.Rebind(selectInstructors+` WHERE `+where), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return instructor.Instructor{}, instructor.ErrNotFound
	} else if err != nil {
		return instructor.Instructor{}, errors.Wrap(err, "selecting instructor")
	}
	return row.toInstructor(), nil
}

func (repo *instructorRepository) GetInstructorByID(ctx context.Context, id string) (instructor.Instructor, error) {
	return repo.get(ctx, `id = ?`, id)
}

func (repo *instructorRepository) GetInstructorByUsernameOrEmail(ctx context.Context, username string) (instructor.Instructor, error) {
	return repo.get(ctx, `username = ? OR email = ?`, username, username)
}

func (repo *instructorRepository) UpdateInstructor(ctx context.Context, ins instructor.Instructor) (instructor.Instructor, error) {
	q := repo.db.Rebind(`
		UPDATE instructor SET
			name = ?, username = ?, email = ?, is_active = ?, is_admin = ?,
			password_hash = ?, updated_at = ?, last_login = ?
		WHERE id = ?`)
	res, err := repo.db.ExecContext(ctx, q,
		ins.Name, ins.Username, ins.Email, ins.IsActive, ins.IsAdmin,
		string(ins.PasswordHash), toUnix(ins.UpdatedAt), lastLogin(ins), ins.ID,
	)
	if err != nil {
		return instructor.Instructor{}, errors.Wrap(err, "updating instructor")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return instructor.Instructor{}, instructor.ErrNotFound
	}
	return repo.GetInstructorByID(ctx, ins.ID)
}
