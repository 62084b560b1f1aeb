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

func TestParsePostgresConfig(t *testing.T) {
	cfg, err := parsePostgresConfig(map[string]interface{}{
		"host":     "localhost",
		"database": "analytics",
		"username": "rfm",
		"password": "secret",
		"port":     5433.0,
	})
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 10, cfg.MaxOpenConns)
}

func TestParsePostgresConfigRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
	}{
		{"missing host", map[string]interface{}{"database": "analytics", "username": "rfm"}},
		{"missing database", map[string]interface{}{"host": "localhost", "username": "rfm"}},
		{"missing username", map[string]interface{}{"host": "localhost", "database": "analytics"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parsePostgresConfig(tt.config)
			assert.Error(t, err)
		})
	}
}

func TestSaveToPostgreSQLUpsertsWithinTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &SaveToPostgreSQL{db: db}
	table := sampleTable()

	mock.ExpectBegin()
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

func TestSaveToPostgreSQLRollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &SaveToPostgreSQL{db: db}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO customer_rfm")
	prep.ExpectExec().WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	err = c.Process(context.Background(), processor.Message{Payload: sampleTable()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "C1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveToPostgreSQLRejectsBadPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	c := &SaveToPostgreSQL{db: db}

	err = c.Process(context.Background(), processor.Message{Payload: 42})
	require.Error(t, err)
	// No transaction is started for an unusable payload.
	assert.NoError(t, mock.ExpectationsWereMet())
}
