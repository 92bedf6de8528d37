package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
)

func newCacheRepo(t *testing.T) (*CacheRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	assert.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewCacheRepository(NewStoreWithPool(mock)), mock
}

func TestCacheRepository_FindByHash(t *testing.T) {
	repo, mock := newCacheRepo(t)
	now := time.Now()
	lastHit := now.Add(-time.Minute)

	rows := pgxmock.NewRows([]string{"request_hash", "question", "context", "response", "hit_count", "last_hit_at", "created_at", "updated_at"}).
		AddRow("hash-1", "what is aspirin?", []byte(`{"screen":"home"}`), "Aspirin is...", 3, &lastHit, now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM cache")).
		WithArgs("hash-1").
		WillReturnRows(rows)

	entry, err := repo.FindByHash(context.Background(), "hash-1")
	assert.NoError(t, err)
	assert.Equal(t, "what is aspirin?", entry.Question)
	assert.Equal(t, "Aspirin is...", entry.Response)
	assert.Equal(t, 3, entry.HitCount)
	assert.Equal(t, "home", entry.Context["screen"])
	assert.NotNil(t, entry.LastHitAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepository_FindByHash_Miss(t *testing.T) {
	repo, mock := newCacheRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM cache")).
		WithArgs("hash-miss").
		WillReturnError(pgx.ErrNoRows)

	entry, err := repo.FindByHash(context.Background(), "hash-miss")
	assert.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepository_Save(t *testing.T) {
	repo, mock := newCacheRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cache")).
		WithArgs("hash-1", "question", []byte(`{"screen":"home"}`), "answer").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Save(context.Background(), "hash-1", "question", map[string]any{"screen": "home"}, "answer")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepository_Save_NilContext(t *testing.T) {
	repo, mock := newCacheRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cache")).
		WithArgs("hash-1", "question", nil, "answer").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Save(context.Background(), "hash-1", "question", nil, "answer")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepository_IncrementHitCount(t *testing.T) {
	repo, mock := newCacheRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE cache SET hit_count = hit_count + 1, last_hit_at = now()")).
		WithArgs("hash-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.IncrementHitCount(context.Background(), "hash-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
