package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxcore/tickpipe/internal/store"
)

func newMockRepo(t *testing.T) (store.CandleRepo, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(mockDB, "postgres")
	repo := NewCandleRepo(sqlxDB, 5*time.Second)
	return repo, mock, func() { mockDB.Close() }
}

func sampleRow() store.CandleRow {
	return store.CandleRow{
		Time:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Symbol: "EURUSD",
		Open:   1.10000,
		High:   1.10050,
		Low:    1.09980,
		Close:  1.10020,
		Volume: 0,
		Trades: 42,
	}
}

func TestCandleRepo_UpsertBatch_SingleChunk(t *testing.T) {
	repo, mock, closeFn := newMockRepo(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO candles_5m")
	mock.ExpectExec("INSERT INTO candles_5m").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpsertBatch(context.Background(), []store.CandleRow{sampleRow()})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCandleRepo_UpsertBatch_SplitsAtBatchSize(t *testing.T) {
	repo, mock, closeFn := newMockRepo(t)
	defer closeFn()

	rows := make([]store.CandleRow, upsertBatchSize+1)
	for i := range rows {
		r := sampleRow()
		r.Time = r.Time.Add(time.Duration(i) * 5 * time.Minute)
		rows[i] = r
	}

	for chunk := 0; chunk < 2; chunk++ {
		mock.ExpectBegin()
		mock.ExpectPrepare("INSERT INTO candles_5m")
		n := upsertBatchSize
		if chunk == 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			mock.ExpectExec("INSERT INTO candles_5m").WillReturnResult(sqlmock.NewResult(0, 1))
		}
		mock.ExpectCommit()
	}

	err := repo.UpsertBatch(context.Background(), rows)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCandleRepo_UpsertBatch_RollsBackOnError(t *testing.T) {
	repo, mock, closeFn := newMockRepo(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO candles_5m")
	mock.ExpectExec("INSERT INTO candles_5m").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.UpsertBatch(context.Background(), []store.CandleRow{sampleRow()})
	assert.Error(t, err)
}

func TestCandleRepo_CoverageBySymbol(t *testing.T) {
	repo, mock, closeFn := newMockRepo(t)
	defer closeFn()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"min", "max", "count"}).
		AddRow(from, to, int64(288))
	mock.ExpectQuery("SELECT MIN").WillReturnRows(rows)

	cov, err := repo.CoverageBySymbol(context.Background(), "EURUSD", store.TimeRange{From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, int64(288), cov.Count)
	assert.Equal(t, "EURUSD", cov.Symbol)
}

func TestCandleRepo_DaysWithData(t *testing.T) {
	repo, mock, closeFn := newMockRepo(t)
	defer closeFn()

	d1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"day"}).AddRow(d1).AddRow(d2)
	mock.ExpectQuery("SELECT DISTINCT date_trunc").WillReturnRows(rows)

	days, err := repo.DaysWithData(context.Background(), "EURUSD", store.TimeRange{From: d1, To: d2})
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.True(t, days[0].Equal(d1))
	assert.True(t, days[1].Equal(d2))
}

func TestCandleRepo_RefreshContinuousAggregates(t *testing.T) {
	repo, mock, closeFn := newMockRepo(t)
	defer closeFn()

	for i := 0; i < 4; i++ {
		mock.ExpectExec("CALL refresh_continuous_aggregate").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	err := repo.RefreshContinuousAggregates(context.Background(), store.TimeRange{
		From: time.Now().Add(-time.Hour),
		To:   time.Now(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
