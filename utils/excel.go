package utils

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"
)

type ExcelWriter struct {
	filePath  string
	sheetName string
	headers   []string
	file      *excelize.File
}

func NewExcelWriter(filePath, sheetName string, headers []string) (*ExcelWriter, error) {
	writer := &ExcelWriter{
		filePath:  filePath,
		sheetName: sheetName,
		headers:   headers,
	}

	f, err := excelize.OpenFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			f = excelize.NewFile()
			f.SetSheetName("Sheet1", sheetName)

			// Write headers
			for i, h := range headers {
				cell, _ := excelize.CoordinatesToCellName(i+1, 1)
				f.SetCellValue(sheetName, cell, h)
			}
		} else {
			return nil, fmt.Errorf("error opening Excel file: %w", err)
		}
	}
	writer.file = f

	return writer, nil
}

// ReplaceRows clears everything under the header and writes the given rows.
// Scored tables are recomputed whole, so sinks overwrite rather than append.
func (w *ExcelWriter) ReplaceRows(rows [][]interface{}) error {
	existing, err := w.file.GetRows(w.sheetName)
	if err != nil {
		return fmt.Errorf("error getting rows: %w", err)
	}
	for rowNum := len(existing); rowNum > 1; rowNum-- {
		if err := w.file.RemoveRow(w.sheetName, rowNum); err != nil {
			return fmt.Errorf("error clearing row %d: %w", rowNum, err)
		}
	}

	for r, values := range rows {
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			w.file.SetCellValue(w.sheetName, cell, v)
		}
	}

	return nil
}

func (w *ExcelWriter) Save() error {
	if err := w.file.SaveAs(w.filePath); err != nil {
		return fmt.Errorf("error saving Excel file: %w", err)
	}
	return nil
}

func (w *ExcelWriter) Close() error {
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
