package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/orbit-raas/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// currentRecordID keys the single deployment record row.
const currentRecordID = "current"

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	// Open database connection
	db, err := sqlx.Open("sqlite3", dsn+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	// One writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	// Run migrations
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Deployment Record Operations
// =============================================================================

// recordRow represents the deployment record row in the database.
type recordRow struct {
	ID           string  `db:"id"`
	Deployed     bool    `db:"deployed"`
	State        string  `db:"state"`
	Logs         string  `db:"logs"`
	Metadata     *string `db:"metadata"`
	ContainerIDs string  `db:"container_ids"`
	LastError    string  `db:"last_error"`
	UpdatedAt    string  `db:"updated_at"`
}

// SaveRecord upserts the current deployment record.
func (s *SQLiteStore) SaveRecord(ctx context.Context, record domain.DeploymentRecord) error {
	logsJSON, err := json.Marshal(nonNil(record.Logs))
	if err != nil {
		return NewStoreError("SaveRecord", "record", currentRecordID, "failed to serialize logs", ErrInvalidData)
	}
	idsJSON, err := json.Marshal(nonNil(record.ContainerIDs))
	if err != nil {
		return NewStoreError("SaveRecord", "record", currentRecordID, "failed to serialize container ids", ErrInvalidData)
	}

	var metadata *string
	if record.Metadata != nil {
		b, err := json.Marshal(record.Metadata)
		if err != nil {
			return NewStoreError("SaveRecord", "record", currentRecordID, "failed to serialize metadata", ErrInvalidData)
		}
		m := string(b)
		metadata = &m
	}

	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO deployment_records (
			id, deployed, state, logs, metadata, container_ids, last_error, updated_at
		) VALUES (
			:id, :deployed, :state, :logs, :metadata, :container_ids, :last_error, :updated_at
		)
		ON CONFLICT(id) DO UPDATE SET
			deployed = excluded.deployed,
			state = excluded.state,
			logs = excluded.logs,
			metadata = excluded.metadata,
			container_ids = excluded.container_ids,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`

	row := recordRow{
		ID:           currentRecordID,
		Deployed:     record.Deployed,
		State:        string(record.State),
		Logs:         string(logsJSON),
		Metadata:     metadata,
		ContainerIDs: string(idsJSON),
		LastError:    record.LastError,
		UpdatedAt:    updatedAt.UTC().Format(timeLayout),
	}

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return NewStoreError("SaveRecord", "record", currentRecordID, err.Error(), err)
	}
	return nil
}

// LoadRecord returns the persisted deployment record, or ErrNotFound when
// nothing was saved yet.
func (s *SQLiteStore) LoadRecord(ctx context.Context) (*domain.DeploymentRecord, error) {
	query := `SELECT * FROM deployment_records WHERE id = ?`

	var row recordRow
	if err := s.db.GetContext(ctx, &row, query, currentRecordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("LoadRecord", "record", currentRecordID, "no record saved", ErrNotFound)
		}
		return nil, NewStoreError("LoadRecord", "record", currentRecordID, err.Error(), err)
	}

	return rowToRecord(&row)
}

func rowToRecord(row *recordRow) (*domain.DeploymentRecord, error) {
	record := domain.NewDeploymentRecord()
	record.Deployed = row.Deployed
	record.State = domain.DeploymentState(row.State)
	record.LastError = row.LastError
	record.UpdatedAt, _ = time.Parse(time.RFC3339Nano, row.UpdatedAt)

	if err := json.Unmarshal([]byte(row.Logs), &record.Logs); err != nil {
		return nil, NewStoreError("LoadRecord", "record", row.ID, "failed to parse logs", ErrInvalidData)
	}
	if err := json.Unmarshal([]byte(row.ContainerIDs), &record.ContainerIDs); err != nil {
		return nil, NewStoreError("LoadRecord", "record", row.ID, "failed to parse container ids", ErrInvalidData)
	}
	if row.Metadata != nil {
		var metadata domain.RollupMetadata
		if err := json.Unmarshal([]byte(*row.Metadata), &metadata); err != nil {
			return nil, NewStoreError("LoadRecord", "record", row.ID, "failed to parse metadata", ErrInvalidData)
		}
		record.Metadata = &metadata
	}

	return &record, nil
}

// =============================================================================
// Job Run Operations
// =============================================================================

// jobRunRow represents a job run row in the database.
type jobRunRow struct {
	ID         string `db:"id"`
	JobID      int    `db:"job_id"`
	JobName    string `db:"job_name"`
	Result     string `db:"result"`
	Succeeded  bool   `db:"succeeded"`
	StartedAt  string `db:"started_at"`
	FinishedAt string `db:"finished_at"`
}

// CreateJobRun records a finished job invocation.
func (s *SQLiteStore) CreateJobRun(ctx context.Context, run *domain.JobRun) error {
	query := `
		INSERT INTO job_runs (
			id, job_id, job_name, result, succeeded, started_at, finished_at
		) VALUES (
			:id, :job_id, :job_name, :result, :succeeded, :started_at, :finished_at
		)`

	row := jobRunRow{
		ID:         run.ID,
		JobID:      int(run.JobID),
		JobName:    run.JobName,
		Result:     run.Result,
		Succeeded:  run.Succeeded,
		StartedAt:  run.StartedAt.UTC().Format(timeLayout),
		FinishedAt: run.FinishedAt.UTC().Format(timeLayout),
	}

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: job_runs.id") {
			return NewStoreError("CreateJobRun", "job_run", run.ID, "job run with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateJobRun", "job_run", run.ID, err.Error(), err)
	}
	return nil
}

// ListJobRuns returns job runs, newest first.
func (s *SQLiteStore) ListJobRuns(ctx context.Context, opts ListOptions) ([]domain.JobRun, error) {
	opts = opts.Normalize()

	query := `SELECT * FROM job_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`

	var rows []jobRunRow
	if err := s.db.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListJobRuns", "job_run", "", err.Error(), err)
	}

	runs := make([]domain.JobRun, 0, len(rows))
	for _, row := range rows {
		startedAt, _ := time.Parse(time.RFC3339Nano, row.StartedAt)
		finishedAt, _ := time.Parse(time.RFC3339Nano, row.FinishedAt)
		runs = append(runs, domain.JobRun{
			ID:         row.ID,
			JobID:      domain.JobID(row.JobID),
			JobName:    row.JobName,
			Result:     row.Result,
			Succeeded:  row.Succeeded,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
		})
	}
	return runs, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
