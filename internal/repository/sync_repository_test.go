package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockRepository(t *testing.T) (*SyncRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &SyncRepository{sqlDB: db}, mock
}

func TestRunLock_AcquireAndReleaseUseSameConnection(t *testing.T) {
	repo, mock := newLockRepository(t)
	ctx := context.Background()

	mock.ExpectQuery("pg_try_advisory_lock").
		WithArgs(runLockKey).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("pg_advisory_unlock").
		WithArgs(runLockKey).
		WillReturnResult(sqlmock.NewResult(0, 1))

	acquired, err := repo.TryAcquireRunLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	// The connection stays pinned for the lifetime of the lock.
	assert.NotNil(t, repo.lockConn)

	require.NoError(t, repo.ReleaseRunLock(ctx))
	assert.Nil(t, repo.lockConn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLock_HeldInProcessShortCircuits(t *testing.T) {
	repo, mock := newLockRepository(t)
	ctx := context.Background()

	mock.ExpectQuery("pg_try_advisory_lock").
		WithArgs(runLockKey).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))

	acquired, err := repo.TryAcquireRunLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// A second attempt never reaches the database.
	acquired, err = repo.TryAcquireRunLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLock_ContestedReturnsConnectionToPool(t *testing.T) {
	repo, mock := newLockRepository(t)
	ctx := context.Background()

	mock.ExpectQuery("pg_try_advisory_lock").
		WithArgs(runLockKey).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	acquired, err := repo.TryAcquireRunLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.Nil(t, repo.lockConn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunLock_ReleaseWithoutHoldIsNoop(t *testing.T) {
	repo, mock := newLockRepository(t)

	assert.NoError(t, repo.ReleaseRunLock(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
