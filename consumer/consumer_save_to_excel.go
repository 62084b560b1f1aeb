package consumer

import (
	"context"
	"fmt"
	"log"

	"github.com/insightloop/rfm-pipeline-workflow/processor"
	"github.com/insightloop/rfm-pipeline-workflow/utils"
)

// SaveToExcel writes the scored customer table to a workbook sheet, replacing
// the previous contents on every run.
type SaveToExcel struct {
	filePath   string
	writer     *utils.ExcelWriter
	processors []processor.Processor
}

func NewSaveToExcel(config map[string]interface{}) (*SaveToExcel, error) {
	filePath, ok := config["file_path"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid configuration: missing 'file_path'")
	}

	sheetName, ok := config["sheet_name"].(string)
	if !ok || sheetName == "" {
		sheetName = "RFM"
	}

	headers := []string{"customer_id", "Recency", "Frequency", "Monetary", "R_Score", "F_Score", "M_Score", "RFM_Score"}
	writer, err := utils.NewExcelWriter(filePath, sheetName, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel writer: %w", err)
	}

	return &SaveToExcel{
		filePath: filePath,
		writer:   writer,
	}, nil
}

func (c *SaveToExcel) Subscribe(processor processor.Processor) {
	c.processors = append(c.processors, processor)
}

func (c *SaveToExcel) Process(ctx context.Context, msg processor.Message) error {
	table, err := extractTable(msg)
	if err != nil {
		return err
	}

	rows := make([][]interface{}, len(table.Rows))
	for i, row := range table.Rows {
		monetary, _ := row.Monetary.Float64()
		rows[i] = []interface{}{
			row.CustomerID,
			row.Recency,
			row.Frequency,
			monetary,
			row.RScore,
			row.FScore,
			row.MScore,
			row.RFMScore,
		}
	}

	if err := c.writer.ReplaceRows(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}

	if err := c.writer.Save(); err != nil {
		return fmt.Errorf("failed to save Excel file: %w", err)
	}

	log.Printf("SaveToExcel: wrote %d customers to %s", len(table.Rows), c.filePath)
	return nil
}

func (c *SaveToExcel) Close() error {
	if c.writer != nil {
		return c.writer.Close()
	}
	return nil
}
