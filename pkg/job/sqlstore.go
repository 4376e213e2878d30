// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore implements Store on database/sql. Update runs inside a
// transaction with a row lock where the dialect supports one, which gives
// the same per-job serialization the memory store gets from its key locks.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// jobRow is the flat database shape of a Job.
type jobRow struct {
	ID           string
	BackendID    sql.NullString
	Status       string
	Progress     int
	ResultURL    sql.NullString
	ErrorDetail  sql.NullString
	Prompt       sql.NullString
	MetadataJSON string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	// Separate statements for table and indexes for SQLite compatibility.
	createJobsTableSQL = `
CREATE TABLE IF NOT EXISTS jobs (
    id VARCHAR(255) PRIMARY KEY,
    backend_id VARCHAR(255),
    status VARCHAR(32) NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    result_url TEXT,
    error_detail TEXT,
    prompt TEXT,
    metadata_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

	createJobsStatusIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`

	createJobsBackendIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_jobs_backend_id ON jobs(backend_id)`
)

// OpenSQLStore opens the database for a dialect and initializes the schema.
func OpenSQLStore(dialect, dsn string) (*SQLStore, error) {
	driver := dialect
	if dialect == "sqlite" {
		driver = "sqlite3"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}

	// SQLite allows one writer; funneling through one connection avoids
	// "database is locked" errors under concurrent updates.
	if dialect == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	store, err := NewSQLStore(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an existing connection. The connection should be
// shared with other services using the same database to prevent SQLite
// "database is locked" errors.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if dialect == "sqlite3" {
		dialect = "sqlite"
	}
	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range []string{createJobsTableSQL, createJobsStatusIndexSQL, createJobsBackendIndexSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create jobs schema: %w", err)
		}
	}
	return nil
}

// rebind converts ? placeholders to $N for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Create(ctx context.Context, j *Job) error {
	row, err := jobToRow(j)
	if err != nil {
		return err
	}

	query := s.rebind(`
INSERT INTO jobs (id, backend_id, status, progress, result_url, error_detail, prompt, metadata_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = s.db.ExecContext(ctx, query,
		row.ID, row.BackendID, row.Status, row.Progress,
		row.ResultURL, row.ErrorDetail, row.Prompt, row.MetadataJSON,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Job, error) {
	return s.get(ctx, s.db, id, false)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) get(ctx context.Context, q queryer, id string, forUpdate bool) (*Job, error) {
	query := `
SELECT id, backend_id, status, progress, result_url, error_detail, prompt, metadata_json, created_at, updated_at
FROM jobs
WHERE id = ?`
	if forUpdate && s.dialect != "sqlite" {
		query += " FOR UPDATE"
	}
	query = s.rebind(query)

	var row jobRow
	err := q.QueryRowContext(ctx, query, id).Scan(
		&row.ID, &row.BackendID, &row.Status, &row.Progress,
		&row.ResultURL, &row.ErrorDetail, &row.Prompt, &row.MetadataJSON,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	return rowToJob(&row)
}

// Update reads the row under a transaction, applies fn and writes the
// result back. SQLite serializes writers on its own; postgres and mysql
// take a row lock for the duration.
func (s *SQLStore) Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	j, err := s.get(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}

	if err := fn(j); err != nil {
		return nil, err
	}

	row, err := jobToRow(j)
	if err != nil {
		return nil, err
	}

	query := s.rebind(`
UPDATE jobs
SET backend_id = ?, status = ?, progress = ?, result_url = ?, error_detail = ?, prompt = ?, metadata_json = ?, updated_at = ?
WHERE id = ?`)

	if _, err := tx.ExecContext(ctx, query,
		row.BackendID, row.Status, row.Progress,
		row.ResultURL, row.ErrorDetail, row.Prompt, row.MetadataJSON,
		row.UpdatedAt, row.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return j.Clone(), nil
}

func (s *SQLStore) ListActive(ctx context.Context) ([]*Job, error) {
	query := s.rebind(`
SELECT id, backend_id, status, progress, result_url, error_detail, prompt, metadata_json, created_at, updated_at
FROM jobs
WHERE status IN (?, ?)`)

	rows, err := s.db.QueryContext(ctx, query, string(StatusPending), string(StatusProcessing))
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var row jobRow
		if err := rows.Scan(
			&row.ID, &row.BackendID, &row.Status, &row.Progress,
			&row.ResultURL, &row.ErrorDetail, &row.Prompt, &row.MetadataJSON,
			&row.CreatedAt, &row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		j, err := rowToJob(&row)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func jobToRow(j *Job) (*jobRow, error) {
	metadataJSON := []byte("{}")
	if len(j.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(j.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	return &jobRow{
		ID:           j.ID,
		BackendID:    sql.NullString{String: j.BackendID, Valid: j.BackendID != ""},
		Status:       string(j.Status),
		Progress:     j.Progress,
		ResultURL:    sql.NullString{String: j.ResultURL, Valid: j.ResultURL != ""},
		ErrorDetail:  sql.NullString{String: j.ErrorDetail, Valid: j.ErrorDetail != ""},
		Prompt:       sql.NullString{String: j.Prompt, Valid: j.Prompt != ""},
		MetadataJSON: string(metadataJSON),
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}, nil
}

func rowToJob(row *jobRow) (*Job, error) {
	j := &Job{
		ID:          row.ID,
		BackendID:   row.BackendID.String,
		Status:      Status(row.Status),
		Progress:    row.Progress,
		ResultURL:   row.ResultURL.String,
		ErrorDetail: row.ErrorDetail.String,
		Prompt:      row.Prompt.String,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}

	if row.MetadataJSON != "" && row.MetadataJSON != "{}" {
		if err := json.Unmarshal([]byte(row.MetadataJSON), &j.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return j, nil
}

// isDuplicateKeyError matches the primary key violation message of all
// three supported drivers.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "constraint")
}

var _ Store = (*SQLStore)(nil)
