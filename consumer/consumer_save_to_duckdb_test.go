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

// The DuckDB sink replaces the table wholesale each run: delete and
// reinsert inside one transaction.
func TestSaveToDuckDBReplacesTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &SaveToDuckDB{db: db}
	table := sampleTable()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM customer_rfm").
		WillReturnResult(sqlmock.NewResult(0, 2))
	prep := mock.ExpectPrepare("INSERT INTO customer_rfm")
	prep.ExpectExec().
		WithArgs("C1", 6, 2, "150", 4, 3, 2, "432", table.ReferenceDate).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("C2", 1, 1, "500", 1, 2, 4, "124", table.ReferenceDate).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = c.Process(context.Background(), processor.Message{Payload: table})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveToDuckDBRollsBackWhenClearFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &SaveToDuckDB{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM customer_rfm").
		WillReturnError(fmt.Errorf("table is locked"))
	mock.ExpectRollback()

	err = c.Process(context.Background(), processor.Message{Payload: sampleTable()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear")
	assert.NoError(t, mock.ExpectationsWereMet())
}
