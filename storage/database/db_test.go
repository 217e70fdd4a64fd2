package database

import (
	"database/sql"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/markbook/core"
)

func TestOpen_unsupportedEngine(t *testing.T) {
	conf := core.NewTestConfig()
	conf.Database.Engine = "mysql"

	db, err := Open(conf)
	assert.Nil(t, db)
	assert.EqualError(t, err, `unsupported database engine "mysql"`)
}

func TestCreateIfNotExist_sqlite(t *testing.T) {
	assert.NoError(t, CreateIfNotExist(core.NewTestConfig()))
}

func TestMigrate(t *testing.T) {
	conf := core.NewTestConfig()
	db, err := Open(conf)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, Migrate(db.DB, conf.Database.Engine))

	var tables []string
	require.NoError(t, db.Select(&tables, "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"))
	assert.Subset(t, tables, []string{
		"assessment_criterion",
		"assessment_plan",
		"assessment_result",
		"assessment_result_detail",
		"grading_scale",
		"grading_scale_interval",
		"instructor",
		"student",
	})

	// applied twice: nothing pending
	assert.NoError(t, Migrate(db.DB, conf.Database.Engine))
}

func TestRun(t *testing.T) {
	errBoom := errors.New("boom")
	orig := gooseRunFunc
	defer func() { gooseRunFunc = orig }()

	var gotCommand, gotDir string
	var gotArgs []string
	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		gotCommand, gotDir, gotArgs = command, dir, args
		if command == "down" {
			return errBoom
		}
		return nil
	}

	tests := []struct {
		name    string
		command string
		args    []string
		wantErr string
	}{
		{name: "up-to", command: "up-to", args: []string{"2"}},
		{name: "status", command: "status"},
		{name: "failure", command: "down", wantErr: `running migration command "down": boom`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Run(nil, EngineSQLite, tt.command, tt.args...)
			if tt.wantErr != "" {
				assert.EqualError(t, err, tt.wantErr)
				assert.Equal(t, errBoom, errors.Cause(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.command, gotCommand)
			assert.Equal(t, migrationsDir, gotDir)
			assert.Equal(t, tt.args, gotArgs)
		})
	}
}

func Test_gooseDialect(t *testing.T) {
	assert.Equal(t, "sqlite3", gooseDialect(EngineSQLite))
	assert.Equal(t, "postgres", gooseDialect(EnginePostgres))
}
