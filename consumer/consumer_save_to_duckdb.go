package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// SaveToDuckDB keeps a local analytical copy of the scored table. The table
// is replaced wholesale per run, mirroring the recompute-from-scratch
// semantics upstream.
type SaveToDuckDB struct {
	db         *sql.DB
	processors []processor.Processor
}

func NewSaveToDuckDB(config map[string]interface{}) (*SaveToDuckDB, error) {
	dbPath, ok := config["db_path"].(string)
	if !ok {
		dbPath = "customer_rfm.duckdb"
	}

	db, err := sql.Open("duckdb", dbPath+"?access_mode=READ_WRITE")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DuckDB: %v", err)
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS customer_rfm (
            customer_id VARCHAR NOT NULL,
            recency INTEGER NOT NULL,
            frequency INTEGER NOT NULL,
            monetary DECIMAL(20,4) NOT NULL,
            r_score TINYINT NOT NULL,
            f_score TINYINT NOT NULL,
            m_score TINYINT NOT NULL,
            rfm_score VARCHAR NOT NULL,
            reference_date DATE NOT NULL
        )
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer_rfm table: %v", err)
	}

	return &SaveToDuckDB{db: db}, nil
}

func (d *SaveToDuckDB) Subscribe(processor processor.Processor) {
	d.processors = append(d.processors, processor)
}

func (d *SaveToDuckDB) Process(ctx context.Context, msg processor.Message) error {
	table, err := extractTable(msg)
	if err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM customer_rfm"); err != nil {
		return fmt.Errorf("failed to clear customer_rfm: %v", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO customer_rfm VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %v", err)
	}
	defer stmt.Close()

	for _, row := range table.Rows {
		if _, err := stmt.ExecContext(ctx,
			row.CustomerID, row.Recency, row.Frequency, row.Monetary.String(),
			row.RScore, row.FScore, row.MScore, row.RFMScore, table.ReferenceDate,
		); err != nil {
			return fmt.Errorf("failed to insert customer %s: %v", row.CustomerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %v", err)
	}

	log.Printf("SaveToDuckDB: replaced table with %d customers", len(table.Rows))
	return nil
}

func (d *SaveToDuckDB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
