package importpackage

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/willow/pkg/database"
	"github.com/Ramsey-B/willow/pkg/models"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	return NewRepository(database.NewDatabaseInstance(sqlx.NewDb(db, "postgres"), logger), logger), mock
}

func TestRepository_NextPackageNumber(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT nextval\('import_package_number_seq'\)`).
		WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(42)))

	number, err := repo.NextPackageNumber(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "PKG-2026-00042", number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_GetByID(t *testing.T) {
	id := uuid.New()
	packageID := uuid.New()

	t.Run("found", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(`SELECT .+ FROM import_packages WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "package_id", "package_number", "status", "row_version"}).
				AddRow(id.String(), packageID.String(), "PKG-2026-00001", "Staging", 3))

		pkg, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, pkg.ID)
		assert.Equal(t, packageID, pkg.PackageID)
		assert.Equal(t, models.PackageStatusStaging, pkg.Status)
		assert.Equal(t, 3, pkg.RowVersion)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(`SELECT .+ FROM import_packages WHERE id = \$1`).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(context.Background(), id)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("by package id is nil when absent", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectQuery(`SELECT .+ FROM import_packages WHERE package_id = \$1`).
			WillReturnError(sql.ErrNoRows)

		pkg, err := repo.GetByPackageID(context.Background(), packageID)
		require.NoError(t, err)
		assert.Nil(t, pkg)
	})
}

func TestRepository_Update(t *testing.T) {
	t.Run("bumps the row version", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		pkg := &models.ImportPackage{ID: uuid.New(), Status: models.PackageStatusStaging, RowVersion: 2}

		mock.ExpectExec(`UPDATE import_packages SET .+ WHERE id = \$\d+ AND row_version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.Update(context.Background(), pkg))
		assert.Equal(t, 3, pkg.RowVersion)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		pkg := &models.ImportPackage{ID: uuid.New(), Status: models.PackageStatusStaging, RowVersion: 2}

		mock.ExpectExec(`UPDATE import_packages SET .+ WHERE id = \$\d+ AND row_version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Update(context.Background(), pkg)
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
		assert.Equal(t, 2, pkg.RowVersion)
	})
}

func TestRepository_List(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(`SELECT .+ FROM import_packages WHERE status = \$1 ORDER BY created_at_utc DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "package_id", "status"}).
			AddRow(uuid.NewString(), uuid.NewString(), "Committed").
			AddRow(uuid.NewString(), uuid.NewString(), "Committed"))

	pkgs, err := repo.List(context.Background(), models.ImportPackageFilter{Status: models.PackageStatusCommitted})
	require.NoError(t, err)
	assert.Len(t, pkgs, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
