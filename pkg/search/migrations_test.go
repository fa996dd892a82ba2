package search

import (
	"context"
	"io"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plannerhq/plansearch/pkg/observability"
)

func migrationTestDB(t *testing.T) (sqlmock.Sqlmock, func(context.Context) error) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	return mock, func(ctx context.Context) error {
		return RunMigrations(ctx, db, logger)
	}
}

func TestGetMigrationsCoversEveryEntityType(t *testing.T) {
	migrations := GetMigrations()
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "plan_search_index")
	assert.Equal(t, 2, migrations[1].Version)
	assert.Contains(t, migrations[1].SQL, "communication_search_index")
}

func TestRunMigrationsSkipsAppliedVersions(t *testing.T) {
	mock, run := migrationTestDB(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS search_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM search_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))

	// Only the communication migration is pending
	mock.ExpectBegin()
	mock.ExpectExec("communication_search_index").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO search_migrations")).
		WithArgs(2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, run(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsSurfacesVersionScanFailure(t *testing.T) {
	mock, run := migrationTestDB(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS search_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	// An iteration error must abort the run: a truncated applied set
	// would re-execute recorded migrations.
	rows := sqlmock.NewRows([]string{"version"}).
		AddRow(1).
		RowError(0, assert.AnError)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM search_migrations")).
		WillReturnRows(rows)

	err := run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "applied migrations")
	assert.NoError(t, mock.ExpectationsWereMet())
}
