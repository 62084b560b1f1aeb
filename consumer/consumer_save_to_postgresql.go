package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

type SaveToPostgreSQL struct {
	db         *sql.DB
	processors []processor.Processor
}

type PostgresConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

const initSchema = `
CREATE TABLE IF NOT EXISTS customer_rfm (
    customer_id       TEXT PRIMARY KEY,
    recency           INTEGER NOT NULL CHECK (recency >= 0),
    frequency         INTEGER NOT NULL CHECK (frequency >= 1),
    monetary          NUMERIC(20,4) NOT NULL,
    r_score           SMALLINT NOT NULL CHECK (r_score BETWEEN 1 AND 4),
    f_score           SMALLINT NOT NULL CHECK (f_score BETWEEN 1 AND 4),
    m_score           SMALLINT NOT NULL CHECK (m_score BETWEEN 1 AND 4),
    rfm_score         CHAR(3) NOT NULL,
    reference_date    DATE NOT NULL,
    updated_at        TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_customer_rfm_score ON customer_rfm(rfm_score);
CREATE INDEX IF NOT EXISTS idx_customer_rfm_updated ON customer_rfm(updated_at);
`

func NewSaveToPostgreSQL(config map[string]interface{}) (*SaveToPostgreSQL, error) {
	pgConfig, err := parsePostgresConfig(config)
	if err != nil {
		return nil, err
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pgConfig.Host, pgConfig.Port, pgConfig.Username, pgConfig.Password,
		pgConfig.Database, pgConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error connecting to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(pgConfig.MaxOpenConns)
	db.SetMaxIdleConns(pgConfig.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error pinging PostgreSQL: %w", err)
	}

	if _, err := db.Exec(initSchema); err != nil {
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &SaveToPostgreSQL{db: db}, nil
}

func parsePostgresConfig(config map[string]interface{}) (PostgresConfig, error) {
	pgConfig := PostgresConfig{
		Port:         5432,
		SSLMode:      "disable",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
	}

	host, ok := config["host"].(string)
	if !ok {
		return pgConfig, fmt.Errorf("missing PostgreSQL host")
	}
	pgConfig.Host = host

	database, ok := config["database"].(string)
	if !ok {
		return pgConfig, fmt.Errorf("missing PostgreSQL database")
	}
	pgConfig.Database = database

	username, ok := config["username"].(string)
	if !ok {
		return pgConfig, fmt.Errorf("missing PostgreSQL username")
	}
	pgConfig.Username = username

	if password, ok := config["password"].(string); ok {
		pgConfig.Password = password
	}
	if port, ok := config["port"].(float64); ok {
		pgConfig.Port = int(port)
	}
	if sslMode, ok := config["sslmode"].(string); ok {
		pgConfig.SSLMode = sslMode
	}
	if maxOpen, ok := config["max_open_conns"].(float64); ok {
		pgConfig.MaxOpenConns = int(maxOpen)
	}
	if maxIdle, ok := config["max_idle_conns"].(float64); ok {
		pgConfig.MaxIdleConns = int(maxIdle)
	}

	return pgConfig, nil
}

func (p *SaveToPostgreSQL) Subscribe(processor processor.Processor) {
	p.processors = append(p.processors, processor)
}

func (p *SaveToPostgreSQL) Process(ctx context.Context, msg processor.Message) error {
	table, err := extractTable(msg)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO customer_rfm (
            customer_id, recency, frequency, monetary,
            r_score, f_score, m_score, rfm_score, reference_date, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, CURRENT_TIMESTAMP)
        ON CONFLICT (customer_id) DO UPDATE SET
            recency = EXCLUDED.recency,
            frequency = EXCLUDED.frequency,
            monetary = EXCLUDED.monetary,
            r_score = EXCLUDED.r_score,
            f_score = EXCLUDED.f_score,
            m_score = EXCLUDED.m_score,
            rfm_score = EXCLUDED.rfm_score,
            reference_date = EXCLUDED.reference_date,
            updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return fmt.Errorf("error preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, row := range table.Rows {
		if _, err := stmt.ExecContext(ctx,
			row.CustomerID, row.Recency, row.Frequency, row.Monetary.String(),
			row.RScore, row.FScore, row.MScore, row.RFMScore, table.ReferenceDate,
		); err != nil {
			return fmt.Errorf("error upserting customer %s: %w", row.CustomerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	log.Printf("SaveToPostgreSQL: upserted %d customers", len(table.Rows))
	return nil
}

func (p *SaveToPostgreSQL) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
