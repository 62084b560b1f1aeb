package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

type SaveToSQLite struct {
	db         *sql.DB
	processors []processor.Processor
}

func NewSaveToSQLite(config map[string]interface{}) (*SaveToSQLite, error) {
	dbPath, ok := config["db_path"].(string)
	if !ok {
		dbPath = "customer_rfm.sqlite"
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite: %v", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		return nil, fmt.Errorf("failed to set SQLite pragmas: %v", err)
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS customer_rfm (
            customer_id TEXT NOT NULL PRIMARY KEY,
            recency INTEGER NOT NULL,
            frequency INTEGER NOT NULL CHECK (frequency >= 1),
            monetary TEXT NOT NULL,
            r_score INTEGER NOT NULL CHECK (r_score BETWEEN 1 AND 4),
            f_score INTEGER NOT NULL CHECK (f_score BETWEEN 1 AND 4),
            m_score INTEGER NOT NULL CHECK (m_score BETWEEN 1 AND 4),
            rfm_score TEXT NOT NULL CHECK (length(rfm_score) = 3),
            reference_date TIMESTAMP NOT NULL,

            CHECK (length(customer_id) > 0)
        );

        CREATE INDEX IF NOT EXISTS idx_rfm_score ON customer_rfm(rfm_score);
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer_rfm table: %v", err)
	}

	return &SaveToSQLite{db: db}, nil
}

func (s *SaveToSQLite) Subscribe(processor processor.Processor) {
	s.processors = append(s.processors, processor)
}

func (s *SaveToSQLite) Process(ctx context.Context, msg processor.Message) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	table, err := extractTable(msg)
	if err != nil {
		log.Printf("Error: %v", err)
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	for _, row := range table.Rows {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO customer_rfm (
                customer_id, recency, frequency, monetary,
                r_score, f_score, m_score, rfm_score, reference_date
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(customer_id) DO UPDATE SET
                recency = excluded.recency,
                frequency = excluded.frequency,
                monetary = excluded.monetary,
                r_score = excluded.r_score,
                f_score = excluded.f_score,
                m_score = excluded.m_score,
                rfm_score = excluded.rfm_score,
                reference_date = excluded.reference_date`,
			row.CustomerID, row.Recency, row.Frequency, row.Monetary.String(),
			row.RScore, row.FScore, row.MScore, row.RFMScore, table.ReferenceDate,
		); err != nil {
			return fmt.Errorf("failed to upsert customer %s: %v", row.CustomerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %v", err)
	}

	log.Printf("SaveToSQLite: upserted %d customers", len(table.Rows))
	return nil
}

func (s *SaveToSQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
