package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mikey/llm-phish-detector/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var cacheColumns = []string{
	"fingerprint", "sender", "score", "classification", "reasoning", "model_used", "last_seen", "expires_at",
}

func newMockMySQLCache(t *testing.T) (*MySQLCache, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS phish_cache").
		WillReturnResult(sqlmock.NewResult(0, 0))

	c, err := NewMySQLCacheFromDB(db, zap.NewNop(), 0)
	require.NoError(t, err)
	return c, mock
}

func TestMySQLCache_SetAndGet(t *testing.T) {
	c, mock := newMockMySQLCache(t)
	ctx := context.Background()
	e := entry("abc", time.Hour)

	mock.ExpectExec("INSERT INTO phish_cache").
		WithArgs("abc", "alerts@bank.example", 83, "phishing", "credential request", "test-model",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, c.Set(ctx, e))

	mock.ExpectQuery("SELECT (.+) FROM phish_cache").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(cacheColumns).AddRow(
			"abc", "alerts@bank.example", 83, "phishing", "credential request", "test-model",
			e.LastSeen, e.ExpiresAt))

	got, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, 83, got.Score)
	assert.Equal(t, core.ClassificationPhishing, got.Classification)
	assert.Equal(t, "test-model", got.ModelUsed)

	mock.ExpectClose()
	c.Stop()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCache_GetMissingExpiredAndFailing(t *testing.T) {
	c, mock := newMockMySQLCache(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM phish_cache").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(cacheColumns))
	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	past := time.Now().Add(-time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM phish_cache").
		WithArgs("old").
		WillReturnRows(sqlmock.NewRows(cacheColumns).AddRow(
			"old", "a@b.example", 10, "legit", "", "m", past, past))
	_, err = c.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrExpired)

	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT (.+) FROM phish_cache").
		WithArgs("abc").
		WillReturnError(boom)
	_, err = c.Get(ctx, "abc")
	assert.ErrorIs(t, err, boom)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLCache_DeleteAndCleanup(t *testing.T) {
	c, mock := newMockMySQLCache(t)
	ctx := context.Background()

	mock.ExpectExec("DELETE FROM phish_cache").
		WithArgs("abc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, c.Delete(ctx, "abc"))

	mock.ExpectExec("DELETE FROM phish_cache").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	require.NoError(t, c.Cleanup(ctx))

	assert.Error(t, c.Set(ctx, entry("", time.Hour)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewMySQLCacheFromDB_TableCreationFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS phish_cache").
		WillReturnError(errors.New("access denied"))

	_, err = NewMySQLCacheFromDB(db, zap.NewNop(), 0)
	assert.ErrorContains(t, err, "failed to create table")
}
