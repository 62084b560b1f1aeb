package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
	"github.com/insightloop/rfm-pipeline-workflow/utils"
)

// SourceAdapter reads transaction ledgers and feeds them to subscribed
// processors.
type SourceAdapter interface {
	Run(context.Context) error
	Subscribe(processor.Processor)
}

// CSVLedgerSourceAdapter reads a single local CSV ledger file and emits it as
// one Ledger message.
type CSVLedgerSourceAdapter struct {
	filePath   string
	processors []processor.Processor
}

func NewCSVLedgerSourceAdapter(config map[string]interface{}) (SourceAdapter, error) {
	filePath, ok := config["file_path"].(string)
	if !ok || filePath == "" {
		return nil, errors.New("file_path must be specified")
	}

	return &CSVLedgerSourceAdapter{filePath: filePath}, nil
}

func (adapter *CSVLedgerSourceAdapter) Subscribe(receiver processor.Processor) {
	adapter.processors = append(adapter.processors, receiver)
}

func (adapter *CSVLedgerSourceAdapter) Run(ctx context.Context) error {
	f, err := os.Open(adapter.filePath)
	if err != nil {
		return errors.Wrapf(err, "error opening ledger file %s", adapter.filePath)
	}
	defer f.Close()

	ledger, err := ParseLedgerCSV(f)
	if err != nil {
		return err
	}

	log.Printf("Read %d transactions from %s", len(ledger), adapter.filePath)

	return forwardLedger(ctx, ledger, &processor.LedgerSourceMetadata{
		SourceType: "CSV",
		FilePath:   adapter.filePath,
		FileName:   filepath.Base(adapter.filePath),
		RowCount:   len(ledger),
	}, adapter.processors)
}

func forwardLedger(ctx context.Context, ledger processor.Ledger, meta *processor.LedgerSourceMetadata, processors []processor.Processor) error {
	msg := processor.Message{
		Payload:  ledger,
		Metadata: map[string]interface{}{"ledger_source": meta},
	}

	for _, proc := range processors {
		if err := proc.Process(ctx, msg); err != nil {
			return errors.Wrapf(err, "error processing ledger %s", meta.FileName)
		}
	}

	return nil
}

// ParseLedgerCSV reads a transaction ledger from CSV with a header row. The
// required columns customer_id, timestamp and amount are matched by name,
// case-insensitively and in any position; extra columns are ignored.
func ParseLedgerCSV(r io.Reader) (processor.Ledger, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, &processor.InvalidLedgerError{Reason: "ledger is empty"}
	}
	if err != nil {
		return nil, errors.Wrap(err, "error reading CSV header")
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	for _, required := range []string{processor.ColumnCustomerID, processor.ColumnTimestamp, processor.ColumnAmount} {
		if _, ok := cols[required]; !ok {
			return nil, &processor.InvalidLedgerError{Reason: fmt.Sprintf("missing required column %q", required)}
		}
	}

	var ledger processor.Ledger
	for row := 1; ; row++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &processor.InvalidLedgerError{Reason: fmt.Sprintf("row %d: %v", row, err)}
		}

		customerID := strings.TrimSpace(record[cols[processor.ColumnCustomerID]])
		if customerID == "" {
			return nil, &processor.InvalidLedgerError{Reason: fmt.Sprintf("row %d: empty customer_id", row)}
		}

		ts, err := utils.ParseLedgerTimestamp(record[cols[processor.ColumnTimestamp]])
		if err != nil {
			return nil, &processor.InvalidLedgerError{Reason: fmt.Sprintf("row %d: %v", row, err)}
		}

		amt, err := decimal.NewFromString(strings.TrimSpace(record[cols[processor.ColumnAmount]]))
		if err != nil {
			return nil, &processor.InvalidLedgerError{Reason: fmt.Sprintf("row %d: invalid amount %q", row, record[cols[processor.ColumnAmount]])}
		}

		ledger = append(ledger, processor.Transaction{
			CustomerID: customerID,
			Timestamp:  ts,
			Amount:     amt,
		})
	}

	if len(ledger) == 0 {
		return nil, &processor.InvalidLedgerError{Reason: "ledger has no rows"}
	}

	return ledger, nil
}
