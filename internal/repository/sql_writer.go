package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"PipeKit/internal/domain/models"
	"PipeKit/internal/domain/repository"
	"PipeKit/pkg/database"
)

// SQLRecordWriter runs a named-parameter insert once per record inside one transaction.
type SQLRecordWriter struct {
	db     *sql.DB
	driver string
}

// NewSQLRecordWriter creates a writer for a pool opened with driver.
func NewSQLRecordWriter(db *sql.DB, driver string) repository.RecordWriter {
	return &SQLRecordWriter{db: db, driver: driver}
}

// WriteRecords binds :name placeholders from each record's keys. A key missing from
// a record binds NULL. Nil records are skipped.
func (w *SQLRecordWriter) WriteRecords(ctx context.Context, insertSQL string, batch models.Batch, skipped func(int)) (written int, err error) {
	query, names, err := database.BindNamed(w.driver, insertSQL)
	if err != nil {
		return 0, fmt.Errorf("bind statement: %w", err)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, record := range batch {
		if record == nil {
			if skipped != nil {
				skipped(i)
			}
			continue
		}
		args, err := bindArgs(record, names)
		if err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert record %d: %w", i, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

func bindArgs(record models.Record, names []string) ([]any, error) {
	args := make([]any, len(names))
	for i, name := range names {
		switch v := record[name].(type) {
		case map[string]any, []any, models.Record:
			// nested values are stored as JSON text
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode %s: %w", name, err)
			}
			args[i] = string(b)
		default:
			args[i] = v
		}
	}
	return args, nil
}
