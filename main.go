package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/samromeo1961/csv-data-import-tool/internal/httpx"
)

func main() {
	mode := "convert"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		mode, args = args[0], args[1:]
	}

	switch mode {
	case "convert":
		runConvert(args)
	case "watch":
		runWatch(args)
	case "templates":
		runTemplates(args)
	case "providers":
		runProviders(args)
	default:
		log.Fatalf("unknown mode '%s' (expected convert, watch, templates or providers)", mode)
	}
}

func loadConfigured() Config {
	cfg := LoadConfig()
	applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Provider=%s Model=%s Apply=%s Units=%s DB=%s HTTPTimeout=%s",
		cfg.AIProvider, cfg.AIModel, cfg.AIApply, cfg.UnitSystem, cfg.DBPath, applied,
	)
	return cfg
}

func openDB(cfg Config) *sql.DB {
	db, err := InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}
	return db
}

func runConvert(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	in := fs.String("in", "", "input spreadsheet (.csv or .xlsx)")
	out := fs.String("out", "", "output path (defaults next to the input)")
	noAI := fs.Bool("no-ai", false, "classify with heuristics only, no AI calls")
	strict := fs.Bool("strict", false, "fail on AI errors instead of falling back to heuristics")
	fs.Parse(args)
	if *in == "" {
		fs.Usage()
		log.Fatalf("convert: -in is required")
	}

	cfg := loadConfigured()
	db := openDB(cfg)
	defer db.Close()

	table, err := LoadSourceTable(*in)
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *in, err)
	}
	log.Printf("loaded %s rows=%d columns=%d", *in, len(table.Rows), len(table.Columns))

	mappings := cfg.CustomMappings
	sys := cfg.UnitSystem
	if saved, savedSys, err := LookupMappingHistory(db, table.Columns); err == nil {
		log.Printf("mapping history matched columns=%d mappings=%d", len(table.Columns), len(saved))
		mappings = saved
		sys = savedSys
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.Fatalf("Failed to read mapping history: %v", err)
	}

	conv := NewConverter(table, mappings, sys)
	conv.FallbackOnError = !*strict
	if !*noAI && cfg.APIKeyFor(cfg.AIProvider) != "" {
		client, err := newProviderClient(cfg)
		if err != nil {
			log.Fatalf("Failed to build %s client: %v", cfg.AIProvider, err)
		}
		desc, _ := lookupProvider(cfg.AIProvider)
		conv.UseProvider(client, desc.ContextTokens(cfg.AIModel), cfg.AIApply)
	} else {
		log.Printf("ai disabled, classifying with heuristics only")
	}
	if templates, err := ListFormulaTemplates(db); err == nil && len(templates) > 0 {
		conv.UseTemplates(templates, cfg.TemplateExampleCount)
	}
	if cfg.OverridesPath != "" {
		overrides, err := LoadCostTypeOverrides(cfg.OverridesPath)
		if err != nil {
			log.Fatalf("Failed to load overrides: %v", err)
		}
		conv.UseOverrides(overrides)
	}
	conv.OnProgress(func(stage string, chunk, totalChunks, firstRow, endRow int) {
		log.Printf("%s chunk %d/%d rows %d-%d", stage, chunk, totalChunks, firstRow, endRow)
	})

	if err := conv.Run(context.Background()); err != nil {
		log.Fatalf("Conversion failed: %v", err)
	}

	outPath := *out
	if outPath == "" {
		outPath = convertedOutputPath(*in, filepath.Dir(*in))
	}
	os.MkdirAll(filepath.Dir(outPath), 0755)
	if err := ExportMappedRecords(outPath, conv.Records, conv.Mappings); err != nil {
		log.Fatalf("Failed to export %s: %v", outPath, err)
	}

	if err := SaveMappingHistory(db, table.Columns, conv.Mappings, conv.UnitSystem); err != nil {
		log.Printf("mapping history save error: %v", err)
	}
	snapID, err := SaveSnapshot(db, Snapshot{
		SourcePath: *in,
		Table:      table,
		Records:    conv.Records,
		Mappings:   conv.Mappings,
		UnitSystem: conv.UnitSystem,
	})
	if err != nil {
		log.Printf("snapshot save error: %v", err)
	} else {
		log.Printf("snapshot saved id=%s", snapID)
	}

	log.Printf("Converted %d rows to %s", len(conv.Records), outPath)
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	dir := fs.String("dir", "", "watch directory (overrides config)")
	once := fs.Bool("once", false, "run a single scan and exit")
	fs.Parse(args)

	cfg := loadConfigured()
	if *dir != "" {
		cfg.WatchDir = *dir
	}
	if cfg.WatchDir == "" {
		log.Fatalf("watch: watch_dir is not configured")
	}

	db := openDB(cfg)
	defer db.Close()

	if *once {
		result, err := ScanAndConvert(context.Background(), cfg, db)
		if err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Println(FormatScanSummary(result))
		return
	}

	api := newSlackClient(cfg)
	if api == nil {
		log.Printf("slack notifications disabled (slack_token not set)")
	}
	StartWatchScheduler(cfg, db, api)
	select {}
}

func runTemplates(args []string) {
	fs := flag.NewFlagSet("templates", flag.ExitOnError)
	add := fs.Bool("add", false, "add a template (requires -name and -formula)")
	del := fs.String("delete", "", "delete the named template")
	name := fs.String("name", "", "template name")
	formula := fs.String("formula", "", "template formula, e.g. '[Area] * 2'")
	description := fs.String("description", "", "what the template is for")
	category := fs.String("category", "", "optional grouping label")
	fs.Parse(args)

	cfg := loadConfigured()
	db := openDB(cfg)
	defer db.Close()

	switch {
	case *add:
		if *name == "" || *formula == "" {
			fs.Usage()
			log.Fatalf("templates: -add requires -name and -formula")
		}
		if err := ValidateFormula(*formula, cfg.UnitSystem); err != nil {
			log.Fatalf("Invalid formula for %s units: %v", cfg.UnitSystem, err)
		}
		if _, err := InsertFormulaTemplate(db, FormulaTemplate{
			Name:        *name,
			Formula:     *formula,
			Description: *description,
			Category:    *category,
		}); err != nil {
			log.Fatalf("Failed to add template: %v", err)
		}
		fmt.Printf("Added formula template '%s'\n", *name)

	case *del != "":
		err := DeleteFormulaTemplate(db, *del)
		if errors.Is(err, sql.ErrNoRows) {
			log.Fatalf("No formula template named '%s'", *del)
		}
		if err != nil {
			log.Fatalf("Failed to delete template: %v", err)
		}
		fmt.Printf("Deleted formula template '%s'\n", *del)

	default:
		templates, err := ListFormulaTemplates(db)
		if err != nil {
			log.Fatalf("Failed to list templates: %v", err)
		}
		if len(templates) == 0 {
			fmt.Println("No formula templates saved.")
			return
		}
		for _, tpl := range templates {
			line := fmt.Sprintf("%s: %s", tpl.Name, tpl.Formula)
			if tpl.Description != "" {
				line += fmt.Sprintf(" (%s)", tpl.Description)
			}
			if tpl.Category != "" {
				line += fmt.Sprintf(" [%s]", tpl.Category)
			}
			fmt.Println(line)
		}
	}
}

func runProviders(args []string) {
	fs := flag.NewFlagSet("providers", flag.ExitOnError)
	fs.Parse(args)

	cfg := LoadConfig()
	fmt.Print(FormatProviderStatus(cfg))
}
