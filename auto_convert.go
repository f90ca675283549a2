package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

// ScanResult tracks separate counters for each outcome of one watch pass.
type ScanResult struct {
	Found     int
	Converted int
	Skipped   int
	Errors    []string
}

// ScanAndConvert walks the watch directory once and converts every
// spreadsheet that is not yet in the processed ledger. It has no Slack
// dependency so it can be called from both the CLI and the scheduler.
func ScanAndConvert(ctx context.Context, cfg Config, db *sql.DB) (ScanResult, error) {
	if cfg.WatchDir == "" {
		return ScanResult{}, fmt.Errorf("watch_dir is not configured")
	}

	outDir := cfg.WatchOutputDir
	if outDir == "" {
		outDir = cfg.WatchDir
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return ScanResult{}, fmt.Errorf("create output dir: %w", err)
	}

	entries, err := os.ReadDir(cfg.WatchDir)
	if err != nil {
		return ScanResult{}, fmt.Errorf("read watch dir: %w", err)
	}

	var result ScanResult
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".csv" && ext != ".xlsx" {
			continue
		}
		// Never reprocess our own exports when they land in the watch dir.
		if strings.HasSuffix(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())), convertedSuffix) {
			continue
		}
		result.Found++

		path := filepath.Join(cfg.WatchDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			log.Printf("watch stat error file=%s: %v", entry.Name(), err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}
		done, err := FileProcessed(db, path, info.ModTime())
		if err != nil {
			log.Printf("watch ledger error file=%s: %v", entry.Name(), err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}
		if done {
			result.Skipped++
			continue
		}

		outPath, rows, err := convertSpreadsheet(ctx, cfg, db, path, outDir)
		if err != nil {
			log.Printf("watch convert error file=%s: %v", entry.Name(), err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}
		if err := MarkFileProcessed(db, path, info.ModTime(), outPath); err != nil {
			log.Printf("watch ledger error file=%s: %v", entry.Name(), err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}
		log.Printf("watch converted file=%s rows=%d output=%s", entry.Name(), rows, outPath)
		result.Converted++
	}

	return result, nil
}

// convertSpreadsheet runs the full pipeline over one file. Saved column
// mappings for the file's header signature take precedence over the
// configured defaults, matching what an interactive run would pick up.
func convertSpreadsheet(ctx context.Context, cfg Config, db *sql.DB, path, outDir string) (string, int, error) {
	table, err := LoadSourceTable(path)
	if err != nil {
		return "", 0, err
	}

	mappings := cfg.CustomMappings
	sys := cfg.UnitSystem
	if saved, savedSys, err := LookupMappingHistory(db, table.Columns); err == nil {
		mappings = saved
		sys = savedSys
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", 0, err
	}

	conv := NewConverter(table, mappings, sys)
	if cfg.APIKeyFor(cfg.AIProvider) != "" {
		client, err := newProviderClient(cfg)
		if err != nil {
			return "", 0, err
		}
		desc, _ := lookupProvider(cfg.AIProvider)
		conv.UseProvider(client, desc.ContextTokens(cfg.AIModel), cfg.AIApply)
	}
	if templates, err := ListFormulaTemplates(db); err == nil && len(templates) > 0 {
		conv.UseTemplates(templates, cfg.TemplateExampleCount)
	}
	if cfg.OverridesPath != "" {
		overrides, err := LoadCostTypeOverrides(cfg.OverridesPath)
		if err != nil {
			return "", 0, err
		}
		conv.UseOverrides(overrides)
	}

	if err := conv.Run(ctx); err != nil {
		return "", 0, err
	}

	outPath := convertedOutputPath(path, outDir)
	if err := ExportMappedRecords(outPath, conv.Records, conv.Mappings); err != nil {
		return "", 0, err
	}
	return outPath, len(conv.Records), nil
}

const convertedSuffix = "-zztakeoff"

func convertedOutputPath(path, outDir string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(outDir, stem+convertedSuffix+ext)
}

// FormatScanSummary returns a human-readable summary of a ScanResult.
func FormatScanSummary(result ScanResult) string {
	if len(result.Errors) > 0 && result.Converted == 0 && result.Skipped == 0 {
		return fmt.Sprintf("Error converting spreadsheets:\n%s", strings.Join(result.Errors, "\n"))
	}

	if result.Converted == 0 {
		msg := fmt.Sprintf("Found %d spreadsheets, none to convert", result.Found)
		if result.Skipped > 0 {
			msg += fmt.Sprintf(" (%d already processed)", result.Skipped)
		}
		msg += "."
		if len(result.Errors) > 0 {
			msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(result.Errors, "\n"))
		}
		return msg
	}

	var summary []string
	summary = append(summary, fmt.Sprintf("%d converted", result.Converted))
	if result.Skipped > 0 {
		summary = append(summary, fmt.Sprintf("%d already processed", result.Skipped))
	}
	msg := fmt.Sprintf("Scanned %d spreadsheets: %s", result.Found, strings.Join(summary, ", "))
	if len(result.Errors) > 0 {
		msg += fmt.Sprintf("\nWarnings:\n%s", strings.Join(result.Errors, "\n"))
	}
	return msg
}

// StartWatchScheduler starts a cron-based scheduler that periodically scans
// the watch directory and converts new spreadsheets.
// The schedule is a standard 5-field cron expression (minute hour day-of-month month day-of-week).
// Examples: "*/5 * * * *" (every 5 minutes), "0 7 * * 1-5" (weekdays 7am).
func StartWatchScheduler(cfg Config, db *sql.DB, api *slack.Client) {
	schedule := strings.TrimSpace(cfg.WatchSchedule)
	if schedule == "" {
		log.Println("Watch disabled (watch_schedule not set)")
		return
	}
	if cfg.WatchDir == "" {
		log.Println("Watch disabled: watch_dir is not configured")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		log.Printf("Invalid watch_schedule '%s': %v; watch disabled", schedule, err)
		return
	}

	log.Printf("Watch scheduled (cron: %s) dir=%s", schedule, cfg.WatchDir)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next watch scan at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			result, scanErr := ScanAndConvert(context.Background(), cfg, db)
			summary := FormatScanSummary(result)
			if scanErr != nil {
				log.Printf("Watch scan error: %v", scanErr)
				summary = fmt.Sprintf("Watch scan error: %v", scanErr)
			}
			log.Printf("Watch scan complete: %s", summary)

			// Quiet passes are not posted; a tight schedule would flood the channel.
			if result.Converted > 0 || len(result.Errors) > 0 || scanErr != nil {
				if err := NotifyConversion(api, cfg.SlackChannelID, summary); err != nil {
					log.Printf("Watch notify error: %v", err)
				}
			}
		}
	}()
}
