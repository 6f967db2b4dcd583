// This file implements JSONL loading for startup.
package sqlite

import (
	"bytes"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mesh-intelligence/riddler/internal/sqlstore"
)

// loadAllJSONL reads each table's JSONL file from dataDir and inserts the
// records in one transaction: all tables load or the database stays empty.
// Tables load in foreign-key order. Malformed lines and records that
// violate a constraint (for example a corpus whose dictionary is gone) are
// skipped. Unknown fields are ignored.
func loadAllJSONL(db *sql.DB, dataDir string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	for _, spec := range sqlstore.Tables {
		file := jsonlFile(spec.Name)
		records, err := readJSONL(filepath.Join(dataDir, file))
		if err != nil {
			return fmt.Errorf("reading %s: %w", file, err)
		}
		if len(records) == 0 {
			continue
		}
		if err := insertRecords(tx, spec, records); err != nil {
			return fmt.Errorf("loading %s into %s: %w", file, spec.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing load transaction: %w", err)
	}
	return nil
}

// insertRecords inserts parsed JSONL records into a table. Only the
// listed columns are extracted; extra fields are ignored.
func insertRecords(tx *sql.Tx, spec sqlstore.TableSpec, records []json.RawMessage) error {
	placeholders := make([]string, len(spec.Columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		spec.Name,
		strings.Join(spec.Columns, ", "),
		strings.Join(placeholders, ", "),
	)

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		return fmt.Errorf("preparing insert for %s: %w", spec.Name, err)
	}
	defer stmt.Close()

	for _, rec := range records {
		args, ok := recordArgs(spec, rec)
		if !ok {
			continue
		}
		if _, err := stmt.Exec(args...); err != nil {
			// Constraint violations skip the record; the transaction stays usable.
			continue
		}
	}
	return nil
}

// recordArgs extracts the column values of one record. It reports false for
// records that cannot be decoded.
func recordArgs(spec sqlstore.TableSpec, rec json.RawMessage) ([]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(rec))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}

	args := make([]any, len(spec.Columns))
	for i, col := range spec.Columns {
		val, ok := obj[col]
		if !ok || val == nil {
			args[i] = nil
			continue
		}
		switch v := val.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				args[i] = n
			} else if f, err := v.Float64(); err == nil {
				args[i] = f
			} else {
				return nil, false
			}
		case string:
			if spec.IsBlob(col) {
				data, err := base64.StdEncoding.DecodeString(v)
				if err != nil {
					return nil, false
				}
				args[i] = data
			} else {
				args[i] = v
			}
		case map[string]any, []any:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, false
			}
			args[i] = string(b)
		default:
			args[i] = val
		}
	}
	return args, true
}
