// Package journal records print jobs in a local SQLite database.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

//go:embed schema.sql
var schema string

type Status string

const (
	StatusPrinting Status = "printing"
	StatusPrinted  Status = "printed"
	StatusFailed   Status = "failed"
)

type Entry struct {
	ID         string
	Printer    string
	Format     string
	Copies     int
	Pages      int
	Status     Status
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("couldn't open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("couldn't initialise journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Start records a job as printing.
func (j *Journal) Start(ctx context.Context, id, printer, format string, copies int) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO print_jobs (id, printer, format, copies, status, started_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status = excluded.status, error = '', pages = 0, started_at = excluded.started_at, finished_at = NULL`,
		id, printer, format, copies, StatusPrinting, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("couldn't record job %s: %w", id, err)
	}
	return nil
}

// Finish records the outcome of a job. A nil jobErr marks it printed.
func (j *Journal) Finish(ctx context.Context, id string, pages int, jobErr error) error {
	status, msg := StatusPrinted, ""
	if jobErr != nil {
		status, msg = StatusFailed, jobErr.Error()
	}
	res, err := j.db.ExecContext(ctx,
		`UPDATE print_jobs SET status = ?, error = ?, pages = ?, finished_at = ? WHERE id = ?`,
		status, msg, pages, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("couldn't update job %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s was never started", id)
	}
	return nil
}

// Recent returns up to limit jobs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, printer, format, copies, pages, status, error, started_at, finished_at
		 FROM print_jobs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("couldn't list jobs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var started int64
		var finished sql.NullInt64
		if err := rows.Scan(&e.ID, &e.Printer, &e.Format, &e.Copies, &e.Pages, &e.Status, &e.Error, &started, &finished); err != nil {
			return nil, err
		}
		e.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			e.FinishedAt = time.UnixMilli(finished.Int64)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
