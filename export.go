package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExportMappedRecords writes records in the zzTakeoff import layout: the
// twelve fixed columns, then extension columns in mapping order. The
// extension decides the format, matching LoadSourceTable.
func ExportMappedRecords(path string, records []MappedRecord, mappings []CustomMapping) error {
	header := append([]string{}, exportColumns...)
	header = append(header, customColumnNames(mappings)...)

	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, header)
	for _, rec := range records {
		rows = append(rows, rec.exportValues())
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return exportCSV(path, rows)
	case ".xlsx":
		return exportXLSX(path, rows)
	default:
		return fmt.Errorf("unsupported file type %q (expected .csv or .xlsx)", filepath.Ext(path))
	}
}

func exportCSV(path string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func exportXLSX(path string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("cell %d,%d: %w", r, c, err)
			}
			// SetCellStr keeps SKUs like "0150" from becoming numbers.
			if err := f.SetCellStr(sheet, cell, value); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}
