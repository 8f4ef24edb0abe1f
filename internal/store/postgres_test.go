package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_Load(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"position", "record_key", "body"}).
		AddRow(0, "a", []byte(`{"id":"a","name":"one"}`)).
		AddRow(1, "b", []byte(`{"id":"b","name":"two","count":2}`))
	mock.ExpectQuery("SELECT position, record_key, body").
		WithArgs("widgets").
		WillReturnRows(rows)

	coll := NewPostgres[widget](mock, "widgets", nil)
	records, err := coll.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []widget{{ID: "a", Name: "one"}, {ID: "b", Name: "two", Count: 2}}, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadQuarantinesMalformedRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"position", "record_key", "body"}).
		AddRow(0, "a", []byte(`{"id":"a"}`)).
		AddRow(1, "broken", []byte(`{"id":`))
	mock.ExpectQuery("SELECT position, record_key, body").
		WithArgs("widgets").
		WillReturnRows(rows)
	mock.ExpectExec("INSERT INTO collection_quarantine").
		WithArgs("widgets", "broken", `{"id":`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM collection_records").
		WithArgs("widgets", 1).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	logger, logs := observedLogger()
	coll := NewPostgres[widget](mock, "widgets", logger)
	records, err := coll.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []widget{{ID: "a"}}, records)
	assert.Equal(t, 1, logs.FilterMessage("quarantining undecodable row").Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT position, record_key, body").
		WithArgs("widgets").
		WillReturnError(errors.New("connection refused"))

	coll := NewPostgres[widget](mock, "widgets", nil)
	_, err = coll.Load(context.Background())

	assert.ErrorContains(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Save(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM collection_records WHERE collection").
		WithArgs("widgets").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO collection_records").
		WithArgs("widgets", "a", 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO collection_records").
		WithArgs("widgets", "b", 1, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	coll := NewPostgres[widget](mock, "widgets", nil)
	err = coll.Save(context.Background(), []widget{{ID: "a"}, {ID: "b"}})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveRollsBackOnInsertFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM collection_records WHERE collection").
		WithArgs("widgets").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO collection_records").
		WithArgs("widgets", "a", 0, pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	coll := NewPostgres[widget](mock, "widgets", nil)
	err = coll.Save(context.Background(), []widget{{ID: "a"}})

	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
