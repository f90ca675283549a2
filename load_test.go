package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestLoadSourceTableCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "estimate.csv")
	content := "Name ,Databuild Code,Unit Price,Units\n" +
		"Concrete mix,0150,185.50,M3\n" +
		",,,\n" +
		"Paint walls,0220,12.00,SM\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	table, err := LoadSourceTable(path)
	if err != nil {
		t.Fatalf("LoadSourceTable: %v", err)
	}
	if table.Columns[0] != "Name" {
		t.Errorf("header not trimmed: %q", table.Columns[0])
	}
	if table.Len() != 2 {
		t.Fatalf("rows = %d, want 2 (blank line skipped)", table.Len())
	}
	if got := table.Rows[0].field(colCode); got != "0150" {
		t.Errorf("code = %q, leading zero lost", got)
	}
	if got := table.Rows[1].field(colUnits); got != "SM" {
		t.Errorf("units = %q", got)
	}
}

func TestLoadSourceTableCSVShortRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "short.csv")
	content := "Name,Units,Quantity\nHandrail,LM\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	table, err := LoadSourceTable(path)
	if err != nil {
		t.Fatalf("LoadSourceTable: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("rows = %d, want 1", table.Len())
	}
	if got := table.Rows[0].field(colQuantity); got != "" {
		t.Errorf("missing trailing cell should read empty, got %q", got)
	}
}

func TestLoadSourceTableXLSXSkipsEmptyLeadingSheet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "estimate.xlsx")

	f := excelize.NewFile()
	if _, err := f.NewSheet("Data"); err != nil {
		t.Fatalf("NewSheet: %v", err)
	}
	cells := [][]string{
		{"Name", "Databuild Code", "Units"},
		{"Concrete mix", "0150", "M3"},
	}
	for r, row := range cells {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetCellStr("Data", cell, value); err != nil {
				t.Fatalf("SetCellStr: %v", err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	table, err := LoadSourceTable(path)
	if err != nil {
		t.Fatalf("LoadSourceTable: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("rows = %d, want 1", table.Len())
	}
	if got := table.Rows[0].field(colCode); got != "0150" {
		t.Errorf("code = %q, leading zero lost", got)
	}
}

func TestLoadSourceTableUnsupportedExtension(t *testing.T) {
	_, err := LoadSourceTable("estimate.txt")
	if err == nil || !strings.Contains(err.Error(), "unsupported file type") {
		t.Fatalf("expected unsupported file type error, got %v", err)
	}
}

func TestLoadSourceTableMissingFile(t *testing.T) {
	if _, err := LoadSourceTable(filepath.Join(t.TempDir(), "absent.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
