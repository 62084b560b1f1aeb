package consumer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
)

// SaveToCSV writes the scored customer table as delimited text: a header row,
// one row per customer, no index column. The file is rewritten whole on every
// message since tables are recomputed from scratch.
type SaveToCSV struct {
	filePath   string
	processors []processor.Processor
}

func NewSaveToCSV(config map[string]interface{}) (*SaveToCSV, error) {
	filePath, ok := config["file_path"].(string)
	if !ok || filePath == "" {
		return nil, fmt.Errorf("invalid configuration: missing 'file_path'")
	}

	return &SaveToCSV{filePath: filePath}, nil
}

func (c *SaveToCSV) Subscribe(processor processor.Processor) {
	c.processors = append(c.processors, processor)
}

func (c *SaveToCSV) Process(ctx context.Context, msg processor.Message) error {
	table, err := extractTable(msg)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(c.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(c.filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer f.Close()

	if err := WriteTableCSV(f, table); err != nil {
		return err
	}

	log.Printf("SaveToCSV: wrote %d customers to %s", len(table.Rows), c.filePath)
	return nil
}

// WriteTableCSV serializes a scored table for download: header row first,
// rows in table order.
func WriteTableCSV(w io.Writer, table *processor.RFMTable) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(table.Header()); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := range table.Rows {
		if err := writer.Write(table.Rows[i].Record()); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
