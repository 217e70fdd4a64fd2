package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markbook/core/instructor"
	sqlxrepos "github.com/trezcool/markbook/storage/database/sqlx"
	"github.com/trezcool/markbook/tests"
)

func TestInstructorRepository(t *testing.T) {
	repo := sqlxrepos.NewInstructorRepository(testutil.PrepareDB(t))
	ctx := context.Background()

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	jane := testutil.CreateInstructor(t, repo, "Jane", "jane", "jane@school.test", "Gr8-Mark!ng", true, true, created)
	tom := testutil.CreateInstructor(t, repo, "Tom", "tom", "tom@school.test", "", false, false, created)

	t.Run("uniqueness", func(t *testing.T) {
		tests := []struct {
			name     string
			username string
			email    string
			excluded []string
			wantErr  error
		}{
			{name: "username taken", username: "jane", email: "new@school.test", wantErr: instructor.ErrUsernameExists},
			{name: "email taken", username: "new", email: "tom@school.test", wantErr: instructor.ErrEmailExists},
			{name: "excluded", username: "jane", email: "jane@school.test", excluded: []string{jane.ID}},
			{name: "free", username: "new", email: "new@school.test"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := repo.CheckUsernameUniqueness(ctx, tt.username, tt.email, tt.excluded...)
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			})
		}
	})

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetInstructorByID(ctx, jane.ID)
		require.NoError(t, err)
		assert.Equal(t, jane, got)
		assert.NoError(t, got.CheckPassword("Gr8-Mark!ng"))

		got, err = repo.GetInstructorByUsernameOrEmail(ctx, "tom@school.test")
		require.NoError(t, err)
		assert.Equal(t, tom.ID, got.ID)
		assert.Equal(t, created, got.CreatedAt)
		assert.False(t, got.IsActive)
		assert.True(t, got.LastLogin.IsZero())

		_, err = repo.GetInstructorByID(ctx, "nope")
		assert.Equal(t, instructor.ErrNotFound, errors.Cause(err))
	})

	t.Run("update", func(t *testing.T) {
		login := created.Add(24 * time.Hour)
		tom.LastLogin = login
		tom.IsActive = true
		updated, err := repo.UpdateInstructor(ctx, tom)
		require.NoError(t, err)
		assert.Equal(t, login, updated.LastLogin)
		assert.True(t, updated.IsActive)

		_, err = repo.UpdateInstructor(ctx, instructor.Instructor{ID: "nope"})
		assert.Equal(t, instructor.ErrNotFound, errors.Cause(err))
	})

	all, err := repo.QueryAllInstructors(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "jane", all[0].Username)
}
