package consumer

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

func TestSaveToSQLiteUpsertsWithinTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &SaveToSQLite{db: db}
	table := sampleTable()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO customer_rfm").
		WithArgs("C1", 6, 2, "150", 4, 3, 2, "432", table.ReferenceDate).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO customer_rfm").
		WithArgs("C2", 1, 1, "500", 1, 2, 4, "124", table.ReferenceDate).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = c.Process(context.Background(), processor.Message{Payload: table})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveToSQLiteRollsBackOnUpsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &SaveToSQLite{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO customer_rfm").
		WillReturnError(fmt.Errorf("database is locked"))
	mock.ExpectRollback()

	err = c.Process(context.Background(), processor.Message{Payload: sampleTable()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "C1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
