package consumer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// BufferedPostgreSQL is the batched variant of the PostgreSQL sink for large
// customer sets: rows go through a pgx batch in chunks instead of one prepared
// statement per customer.
type BufferedPostgreSQL struct {
	pool       *pgxpool.Pool
	batchSize  int
	processors []processor.Processor
}

func NewBufferedPostgreSQL(config map[string]interface{}) (*BufferedPostgreSQL, error) {
	connString, ok := config["conn_string"].(string)
	if !ok || connString == "" {
		return nil, fmt.Errorf("invalid configuration: missing 'conn_string'")
	}

	batchSize := 500
	if v, ok := config["batch_size"].(float64); ok && v > 0 {
		batchSize = int(v)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("error creating pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("error pinging PostgreSQL: %w", err)
	}

	if _, err := pool.Exec(ctx, initSchema); err != nil {
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &BufferedPostgreSQL{pool: pool, batchSize: batchSize}, nil
}

func (b *BufferedPostgreSQL) Subscribe(processor processor.Processor) {
	b.processors = append(b.processors, processor)
}

func (b *BufferedPostgreSQL) Process(ctx context.Context, msg processor.Message) error {
	table, err := extractTable(msg)
	if err != nil {
		return err
	}

	const upsert = `
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
            updated_at = CURRENT_TIMESTAMP`

	for start := 0; start < len(table.Rows); start += b.batchSize {
		end := start + b.batchSize
		if end > len(table.Rows) {
			end = len(table.Rows)
		}

		batch := &pgx.Batch{}
		for _, row := range table.Rows[start:end] {
			batch.Queue(upsert,
				row.CustomerID, row.Recency, row.Frequency, row.Monetary.String(),
				row.RScore, row.FScore, row.MScore, row.RFMScore, table.ReferenceDate,
			)
		}

		results := b.pool.SendBatch(ctx, batch)
		if err := results.Close(); err != nil {
			return fmt.Errorf("error flushing batch at row %d: %w", start, err)
		}
	}

	log.Printf("BufferedPostgreSQL: upserted %d customers in batches of %d", len(table.Rows), b.batchSize)
	return nil
}

func (b *BufferedPostgreSQL) Close() error {
	if b.pool != nil {
		b.pool.Close()
	}
	return nil
}
