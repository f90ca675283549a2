package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFormatScanSummary_AllFailed(t *testing.T) {
	result := ScanResult{
		Found:  1,
		Errors: []string{"broken.xlsx: no header row"},
	}
	got := FormatScanSummary(result)
	want := "Error converting spreadsheets:\nbroken.xlsx: no header row"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatScanSummary_NothingNew(t *testing.T) {
	result := ScanResult{
		Found:   3,
		Skipped: 3,
	}
	got := FormatScanSummary(result)
	want := "Found 3 spreadsheets, none to convert (3 already processed)."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatScanSummary_EmptyDir(t *testing.T) {
	got := FormatScanSummary(ScanResult{})
	want := "Found 0 spreadsheets, none to convert."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatScanSummary_ConvertedWithWarnings(t *testing.T) {
	result := ScanResult{
		Found:     4,
		Converted: 2,
		Skipped:   1,
		Errors:    []string{"bad.csv: boom"},
	}
	got := FormatScanSummary(result)
	want := "Scanned 4 spreadsheets: 2 converted, 1 already processed\nWarnings:\nbad.csv: boom"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatScanSummary_SkippedWithWarnings(t *testing.T) {
	result := ScanResult{
		Found:   2,
		Skipped: 1,
		Errors:  []string{"bad.csv: boom"},
	}
	got := FormatScanSummary(result)
	want := "Found 2 spreadsheets, none to convert (1 already processed).\nWarnings:\nbad.csv: boom"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestConvertedOutputPath(t *testing.T) {
	got := convertedOutputPath(filepath.Join("in", "estimate.xlsx"), "out")
	want := filepath.Join("out", "estimate-zztakeoff.xlsx")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestScanAndConvert_NoWatchDir(t *testing.T) {
	_, err := ScanAndConvert(context.Background(), Config{}, nil)
	if err == nil {
		t.Fatal("expected error when watch_dir is not configured")
	}
	if got := err.Error(); got != "watch_dir is not configured" {
		t.Errorf("unexpected error: %q", got)
	}
}

func TestScanAndConvert_ConvertsNewSpreadsheets(t *testing.T) {
	watchDir := t.TempDir()
	outDir := t.TempDir()
	db := newTestDB(t)

	src := filepath.Join(watchDir, "estimate.csv")
	csv := "Name,Units,Unit Price\n" +
		"Paint bedroom walls,SM,12.50\n" +
		"Hire scaffold tower,EA,80.00\n"
	if err := os.WriteFile(src, []byte(csv), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := os.WriteFile(filepath.Join(watchDir, "readme.txt"), []byte("notes"), 0o644); err != nil {
		t.Fatalf("write readme: %v", err)
	}

	cfg := Config{
		WatchDir:       watchDir,
		WatchOutputDir: outDir,
		UnitSystem:     UnitSystemMetric,
	}

	result, err := ScanAndConvert(context.Background(), cfg, db)
	if err != nil {
		t.Fatalf("ScanAndConvert failed: %v", err)
	}
	if result.Found != 1 || result.Converted != 1 || result.Skipped != 0 || len(result.Errors) != 0 {
		t.Fatalf("unexpected first pass result: %+v", result)
	}

	outPath := filepath.Join(outDir, "estimate-zztakeoff.csv")
	out, err := LoadSourceTable(outPath)
	if err != nil {
		t.Fatalf("load output: %v", err)
	}
	if out.Columns[0] != "Cost Type" {
		t.Fatalf("output columns = %v", out.Columns)
	}
	if len(out.Rows) != 2 {
		t.Fatalf("expected 2 output rows, got %d", len(out.Rows))
	}
	if got := out.Rows[0]["Cost Type"]; got != CostTypeLabor {
		t.Errorf("row 0 cost type = %q, want %q", got, CostTypeLabor)
	}
	if got := out.Rows[1]["Cost Type"]; got != CostTypeEquipment {
		t.Errorf("row 1 cost type = %q, want %q", got, CostTypeEquipment)
	}
	if got := out.Rows[0]["Takeoff Type"]; got != TakeoffTypeArea {
		t.Errorf("row 0 takeoff type = %q, want %q", got, TakeoffTypeArea)
	}
	if got := out.Rows[0]["Formula"]; got != "[Area]" {
		t.Errorf("row 0 formula = %q, want %q", got, "[Area]")
	}
	if got := out.Rows[0]["Cost Each"]; got != "12.50" {
		t.Errorf("row 0 cost each = %q, want %q", got, "12.50")
	}

	result, err = ScanAndConvert(context.Background(), cfg, db)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if result.Found != 1 || result.Converted != 0 || result.Skipped != 1 {
		t.Fatalf("unexpected second pass result: %+v", result)
	}

	// An edited file gets a fresh modtime and must be converted again.
	info, err := os.Stat(src)
	if err != nil {
		t.Fatalf("stat source: %v", err)
	}
	bumped := info.ModTime().Add(time.Hour)
	if err := os.Chtimes(src, bumped, bumped); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	result, err = ScanAndConvert(context.Background(), cfg, db)
	if err != nil {
		t.Fatalf("third pass failed: %v", err)
	}
	if result.Converted != 1 || result.Skipped != 0 {
		t.Fatalf("unexpected third pass result: %+v", result)
	}
}

func TestScanAndConvert_BadFileIsNotFatal(t *testing.T) {
	watchDir := t.TempDir()
	db := newTestDB(t)

	if err := os.WriteFile(filepath.Join(watchDir, "broken.xlsx"), []byte("not a spreadsheet"), 0o644); err != nil {
		t.Fatalf("write broken file: %v", err)
	}
	good := "Name,Units,Unit Price\nFix skirting boards,LM,4.20\n"
	if err := os.WriteFile(filepath.Join(watchDir, "good.csv"), []byte(good), 0o644); err != nil {
		t.Fatalf("write good file: %v", err)
	}

	cfg := Config{WatchDir: watchDir, UnitSystem: UnitSystemMetric}

	result, err := ScanAndConvert(context.Background(), cfg, db)
	if err != nil {
		t.Fatalf("ScanAndConvert failed: %v", err)
	}
	if result.Found != 2 || result.Converted != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one per-file error, got %v", result.Errors)
	}

	// Output lands next to the source when no output dir is configured.
	if _, err := os.Stat(filepath.Join(watchDir, "good-zztakeoff.csv")); err != nil {
		t.Fatalf("expected converted output: %v", err)
	}

	// The broken file is retried on the next pass, the good one is skipped,
	// and the export written next to it is not picked up as a new input.
	result, err = ScanAndConvert(context.Background(), cfg, db)
	if err != nil {
		t.Fatalf("second pass failed: %v", err)
	}
	if result.Found != 2 || result.Converted != 0 || result.Skipped != 1 || len(result.Errors) != 1 {
		t.Fatalf("unexpected second pass result: %+v", result)
	}
}

func TestScanAndConvert_UsesSavedMappings(t *testing.T) {
	watchDir := t.TempDir()
	db := newTestDB(t)

	columns := []string{"Name", "Units", "Unit Price", "Phase"}
	mappings := []CustomMapping{{SourceColumn: "Phase", TargetColumn: "Stage"}}
	if err := SaveMappingHistory(db, columns, mappings, UnitSystemMetric); err != nil {
		t.Fatalf("save mapping history: %v", err)
	}

	csv := "Name,Units,Unit Price,Phase\nFix skirting boards,LM,4.20,Fixing\n"
	if err := os.WriteFile(filepath.Join(watchDir, "job.csv"), []byte(csv), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	cfg := Config{WatchDir: watchDir, UnitSystem: UnitSystemMetric}
	result, err := ScanAndConvert(context.Background(), cfg, db)
	if err != nil {
		t.Fatalf("ScanAndConvert failed: %v", err)
	}
	if result.Converted != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	out, err := LoadSourceTable(filepath.Join(watchDir, "job-zztakeoff.csv"))
	if err != nil {
		t.Fatalf("load output: %v", err)
	}
	if got := out.Columns[len(out.Columns)-1]; got != "Stage" {
		t.Fatalf("expected Stage extension column from saved mappings, columns = %v", out.Columns)
	}
	if got := out.Rows[0]["Stage"]; got != "Fixing" {
		t.Errorf("stage value = %q, want %q", got, "Fixing")
	}
}
