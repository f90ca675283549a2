package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS mapping_history (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		header_sig    TEXT NOT NULL UNIQUE,
		mappings_json TEXT NOT NULL DEFAULT '[]',
		unit_system   TEXT DEFAULT '',
		used_at       DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS formula_templates (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL UNIQUE,
		formula     TEXT NOT NULL,
		description TEXT DEFAULT '',
		category    TEXT DEFAULT '',
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS import_templates (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		name          TEXT NOT NULL UNIQUE,
		mappings_json TEXT NOT NULL DEFAULT '[]',
		unit_system   TEXT NOT NULL DEFAULT 'metric',
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id            TEXT PRIMARY KEY,
		source_path   TEXT DEFAULT '',
		source_json   TEXT NOT NULL,
		mapped_json   TEXT NOT NULL,
		mappings_json TEXT NOT NULL DEFAULT '[]',
		unit_system   TEXT NOT NULL DEFAULT 'metric',
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_created ON snapshots(created_at);

	CREATE TABLE IF NOT EXISTS processed_files (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		path         TEXT NOT NULL,
		modified_at  DATETIME NOT NULL,
		output_path  TEXT DEFAULT '',
		processed_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_processed_files_path_mod ON processed_files(path, modified_at);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, err
	}

	// Migration: add row_count column if missing.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('snapshots') WHERE name = 'row_count'`).Scan(&colCount)
	if colCount == 0 {
		_, _ = db.Exec(`ALTER TABLE snapshots ADD COLUMN row_count INTEGER DEFAULT 0`)
	}

	return db, nil
}

// headerSignature identifies a source layout so mappings chosen for one
// export can be offered again when a file with the same columns arrives.
func headerSignature(columns []string) string {
	trimmed := make([]string, len(columns))
	for i, col := range columns {
		trimmed[i] = strings.TrimSpace(col)
	}
	return strings.Join(trimmed, "|")
}

// --- Mapping history ---

func SaveMappingHistory(db *sql.DB, columns []string, mappings []CustomMapping, sys UnitSystem) error {
	data, err := json.Marshal(mappings)
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT INTO mapping_history (header_sig, mappings_json, unit_system, used_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(header_sig) DO UPDATE SET
		   mappings_json = excluded.mappings_json,
		   unit_system = excluded.unit_system,
		   used_at = CURRENT_TIMESTAMP`,
		headerSignature(columns), string(data), string(sys),
	)
	return err
}

func LookupMappingHistory(db *sql.DB, columns []string) ([]CustomMapping, UnitSystem, error) {
	var mappingsJSON, sys string
	err := db.QueryRow(
		`SELECT mappings_json, unit_system FROM mapping_history WHERE header_sig = ?`,
		headerSignature(columns),
	).Scan(&mappingsJSON, &sys)
	if err != nil {
		return nil, "", err
	}
	var mappings []CustomMapping
	if err := json.Unmarshal([]byte(mappingsJSON), &mappings); err != nil {
		return nil, "", fmt.Errorf("mapping history for %q: %w", headerSignature(columns), err)
	}
	return mappings, UnitSystem(sys), nil
}

// --- Formula templates ---

func InsertFormulaTemplate(db *sql.DB, tpl FormulaTemplate) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO formula_templates (name, formula, description, category)
		 VALUES (?, ?, ?, ?)`,
		tpl.Name, tpl.Formula, tpl.Description, tpl.Category,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func ListFormulaTemplates(db *sql.DB) ([]FormulaTemplate, error) {
	rows, err := db.Query(
		`SELECT id, name, formula, description, category
		 FROM formula_templates ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FormulaTemplate
	for rows.Next() {
		var tpl FormulaTemplate
		if err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.Formula, &tpl.Description, &tpl.Category); err != nil {
			return nil, err
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func DeleteFormulaTemplate(db *sql.DB, name string) error {
	res, err := db.Exec(`DELETE FROM formula_templates WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// --- Import templates ---

type ImportTemplate struct {
	ID         int64
	Name       string
	Mappings   []CustomMapping
	UnitSystem UnitSystem
	CreatedAt  time.Time
}

func SaveImportTemplate(db *sql.DB, name string, mappings []CustomMapping, sys UnitSystem) error {
	data, err := json.Marshal(mappings)
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT INTO import_templates (name, mappings_json, unit_system)
		 VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   mappings_json = excluded.mappings_json,
		   unit_system = excluded.unit_system`,
		name, string(data), string(sys),
	)
	return err
}

func GetImportTemplate(db *sql.DB, name string) (ImportTemplate, error) {
	var tpl ImportTemplate
	var mappingsJSON, sys string
	err := db.QueryRow(
		`SELECT id, name, mappings_json, unit_system, created_at
		 FROM import_templates WHERE name = ?`,
		name,
	).Scan(&tpl.ID, &tpl.Name, &mappingsJSON, &sys, &tpl.CreatedAt)
	if err != nil {
		return tpl, err
	}
	if err := json.Unmarshal([]byte(mappingsJSON), &tpl.Mappings); err != nil {
		return tpl, fmt.Errorf("import template %q: %w", name, err)
	}
	tpl.UnitSystem = UnitSystem(sys)
	return tpl, nil
}

func ListImportTemplates(db *sql.DB) ([]ImportTemplate, error) {
	rows, err := db.Query(
		`SELECT id, name, mappings_json, unit_system, created_at
		 FROM import_templates ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ImportTemplate
	for rows.Next() {
		var tpl ImportTemplate
		var mappingsJSON, sys string
		if err := rows.Scan(&tpl.ID, &tpl.Name, &mappingsJSON, &sys, &tpl.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(mappingsJSON), &tpl.Mappings); err != nil {
			return nil, fmt.Errorf("import template %q: %w", tpl.Name, err)
		}
		tpl.UnitSystem = UnitSystem(sys)
		out = append(out, tpl)
	}
	return out, rows.Err()
}

// --- Snapshots ---

// Snapshot is a resumable working state: the loaded source, the mapped
// records so far, and the choices that shaped them.
type Snapshot struct {
	ID         string
	SourcePath string
	Table      *SourceTable
	Records    []MappedRecord
	Mappings   []CustomMapping
	UnitSystem UnitSystem
	RowCount   int
	CreatedAt  time.Time
}

func SaveSnapshot(db *sql.DB, snap Snapshot) (string, error) {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	sourceJSON, err := json.Marshal(snap.Table)
	if err != nil {
		return "", err
	}
	mappedJSON, err := json.Marshal(snap.Records)
	if err != nil {
		return "", err
	}
	mappingsJSON, err := json.Marshal(snap.Mappings)
	if err != nil {
		return "", err
	}
	rowCount := 0
	if snap.Table != nil {
		rowCount = snap.Table.Len()
	}
	_, err = db.Exec(
		`INSERT INTO snapshots (id, source_path, source_json, mapped_json, mappings_json, unit_system, row_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.SourcePath, string(sourceJSON), string(mappedJSON),
		string(mappingsJSON), string(snap.UnitSystem), rowCount,
	)
	if err != nil {
		return "", err
	}
	return snap.ID, nil
}

func GetSnapshot(db *sql.DB, id string) (Snapshot, error) {
	var snap Snapshot
	var sourceJSON, mappedJSON, mappingsJSON, sys string
	err := db.QueryRow(
		`SELECT id, source_path, source_json, mapped_json, mappings_json, unit_system, row_count, created_at
		 FROM snapshots WHERE id = ?`,
		id,
	).Scan(&snap.ID, &snap.SourcePath, &sourceJSON, &mappedJSON, &mappingsJSON, &sys, &snap.RowCount, &snap.CreatedAt)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal([]byte(sourceJSON), &snap.Table); err != nil {
		return snap, fmt.Errorf("snapshot %s source: %w", id, err)
	}
	if err := json.Unmarshal([]byte(mappedJSON), &snap.Records); err != nil {
		return snap, fmt.Errorf("snapshot %s records: %w", id, err)
	}
	if err := json.Unmarshal([]byte(mappingsJSON), &snap.Mappings); err != nil {
		return snap, fmt.Errorf("snapshot %s mappings: %w", id, err)
	}
	snap.UnitSystem = UnitSystem(sys)
	return snap, nil
}

// SnapshotInfo lists a snapshot without loading its row blobs.
type SnapshotInfo struct {
	ID         string
	SourcePath string
	RowCount   int
	CreatedAt  time.Time
}

func ListSnapshots(db *sql.DB) ([]SnapshotInfo, error) {
	rows, err := db.Query(
		`SELECT id, source_path, row_count, created_at
		 FROM snapshots ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.SourcePath, &info.RowCount, &info.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// --- Processed-file ledger ---

func FileProcessed(db *sql.DB, path string, modTime time.Time) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM processed_files WHERE path = ? AND modified_at = ?`,
		path, modTime.UTC(),
	).Scan(&count)
	return count > 0, err
}

func MarkFileProcessed(db *sql.DB, path string, modTime time.Time, outputPath string) error {
	_, err := db.Exec(
		`INSERT INTO processed_files (path, modified_at, output_path)
		 VALUES (?, ?, ?)
		 ON CONFLICT(path, modified_at) DO UPDATE SET output_path = excluded.output_path`,
		path, modTime.UTC(), outputPath,
	)
	return err
}
