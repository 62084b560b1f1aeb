package consumer

import (
	"context"
	"fmt"
	"log"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

type SaveToClickHouse struct {
	conn       driver.Conn
	processors []processor.Processor
}

type ClickHouseConfig struct {
	Address      string
	Database     string
	Username     string
	Password     string
	MaxOpenConns int
	MaxIdleConns int
}

func NewSaveToClickHouse(config map[string]interface{}) (*SaveToClickHouse, error) {
	chConfig, err := parseClickHouseConfig(config)
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{chConfig.Address},
		Auth: clickhouse.Auth{
			Database: chConfig.Database,
			Username: chConfig.Username,
			Password: chConfig.Password,
		},
		MaxOpenConns: chConfig.MaxOpenConns,
		MaxIdleConns: chConfig.MaxIdleConns,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to ClickHouse: %w", err)
	}

	if err := initializeClickHouseTables(conn); err != nil {
		return nil, fmt.Errorf("error initializing tables: %w", err)
	}

	return &SaveToClickHouse{
		conn: conn,
	}, nil
}

func parseClickHouseConfig(config map[string]interface{}) (ClickHouseConfig, error) {
	var chConfig ClickHouseConfig

	addr, ok := config["address"].(string)
	if !ok {
		return chConfig, fmt.Errorf("missing address in config")
	}
	chConfig.Address = addr

	dbname, ok := config["database"].(string)
	if !ok {
		return chConfig, fmt.Errorf("missing database in config")
	}
	chConfig.Database = dbname

	username, ok := config["username"].(string)
	if !ok {
		return chConfig, fmt.Errorf("missing username in config")
	}
	chConfig.Username = username

	password, ok := config["password"].(string)
	if !ok {
		return chConfig, fmt.Errorf("missing password in config")
	}
	chConfig.Password = password

	chConfig.MaxOpenConns = 10
	chConfig.MaxIdleConns = 5

	if maxOpen, ok := config["max_open_conns"].(int); ok {
		chConfig.MaxOpenConns = maxOpen
	}
	if maxIdle, ok := config["max_idle_conns"].(int); ok {
		chConfig.MaxIdleConns = maxIdle
	}

	return chConfig, nil
}

func initializeClickHouseTables(conn driver.Conn) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS customer_rfm (
            customer_id String,
            recency UInt32,
            frequency UInt32,
            monetary Decimal64(4),
            r_score UInt8,
            f_score UInt8,
            m_score UInt8,
            rfm_score LowCardinality(String),
            reference_date DateTime,
            computed_at DateTime DEFAULT now()
        ) ENGINE = ReplacingMergeTree(computed_at)
        ORDER BY (customer_id)`,

		`CREATE MATERIALIZED VIEW IF NOT EXISTS rfm_segment_stats
        ENGINE = SummingMergeTree()
        ORDER BY (rfm_score)
        AS SELECT
            rfm_score,
            count() as customer_count,
            sum(monetary) as total_monetary,
            sum(frequency) as total_transactions
        FROM customer_rfm
        GROUP BY rfm_score`,
	}

	for _, query := range queries {
		err := conn.Exec(context.Background(), query)
		if err != nil {
			return fmt.Errorf("error executing query: %s: %w", query, err)
		}
	}

	return nil
}

func (ch *SaveToClickHouse) Subscribe(processor processor.Processor) {
	ch.processors = append(ch.processors, processor)
}

func (ch *SaveToClickHouse) Process(ctx context.Context, msg processor.Message) error {
	table, err := extractTable(msg)
	if err != nil {
		return fmt.Errorf("error extracting RFM table: %w", err)
	}

	batch, err := ch.conn.PrepareBatch(ctx, `
        INSERT INTO customer_rfm (
            customer_id, recency, frequency, monetary,
            r_score, f_score, m_score, rfm_score, reference_date
        )`)
	if err != nil {
		return fmt.Errorf("error preparing batch: %w", err)
	}

	for _, row := range table.Rows {
		if err := batch.Append(
			row.CustomerID,
			uint32(row.Recency),
			uint32(row.Frequency),
			row.Monetary,
			uint8(row.RScore),
			uint8(row.FScore),
			uint8(row.MScore),
			row.RFMScore,
			table.ReferenceDate,
		); err != nil {
			return fmt.Errorf("error appending row for customer %s: %w", row.CustomerID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("error sending batch: %w", err)
	}

	log.Printf("SaveToClickHouse: inserted %d customers", len(table.Rows))
	return nil
}

func (ch *SaveToClickHouse) Close() error {
	if ch.conn != nil {
		return ch.conn.Close()
	}
	return nil
}
