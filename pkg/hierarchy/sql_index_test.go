package hierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trialsite/siteaccess/pkg/domain"
	"github.com/trialsite/siteaccess/pkg/storage"
)

func TestSQLIndex_PostgresMoveTakesTreeLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(treeLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT parent_id FROM folders WHERE id").WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"parent_id"}).AddRow(nil))
	mock.ExpectQuery("SELECT parent_id FROM folders WHERE id").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"parent_id"}).AddRow(nil))
	mock.ExpectExec("UPDATE folders SET parent_id").WithArgs(int64(1), int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	idx := NewSQLIndex(db, storage.DialectPostgres)
	require.NoError(t, idx.MoveFolder(context.Background(), 3, ref(1)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLIndex_MoveRollsBackOnCycle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT parent_id FROM folders").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"parent_id"}).AddRow(nil))
	mock.ExpectQuery("SELECT parent_id FROM folders").WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"parent_id"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT parent_id FROM folders").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"parent_id"}).AddRow(nil))
	mock.ExpectRollback()

	idx := NewSQLIndex(db, storage.DialectPostgres)
	err = idx.MoveFolder(context.Background(), 1, ref(2))
	assert.True(t, errors.Is(err, domain.ErrInvariant))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLIndex_FolderOfQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT folder_id FROM documents").WithArgs(int64(5)).
		WillReturnError(errors.New("connection refused"))

	_, err = NewSQLIndex(db, storage.DialectPostgres).FolderOf(context.Background(), 5)
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
	assert.Contains(t, err.Error(), "failed to get document folder")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLIndex_SatisfiesIndex(t *testing.T) {
	var _ Index = NewSQLIndex(nil, storage.DialectSQLite)
	var _ Index = NewMemoryIndex()
	var _ Index = NewCachedIndex(NewMemoryIndex(), DefaultCacheConfig())
}
