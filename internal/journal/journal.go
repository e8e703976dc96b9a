// Package journal records destructive disk operations in a sqlite database,
// together with copies of the partition table sector taken before and after
// each one.
package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("journal: operation not found")

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// Journal wraps the database connection.
type Journal struct {
	conn *sql.DB
	path string
	now  func() time.Time
}

type Operation struct {
	ID         string
	Device     string
	Kind       string
	Status     Status
	Details    map[string]any
	StartedAt  time.Time
	FinishedAt *time.Time
}

type Snapshot struct {
	Operation string
	Phase     Phase
	LBA       uint64
	Data      []byte
	TakenAt   time.Time
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure journal: %w", err)
	}

	j := &Journal{conn: conn, path: path, now: time.Now}
	if err := j.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return j, nil
}

func (j *Journal) Close() error {
	return j.conn.Close()
}

func (j *Journal) Path() string {
	return j.path
}

func (j *Journal) migrate() error {
	_, err := j.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	var version int
	if err := j.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return err
	}

	migrations := []string{migrationV1, migrationV2}
	for i, migration := range migrations {
		v := i + 1
		if v <= version {
			continue
		}
		tx, err := j.conn.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migration); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration v%d failed: %w", v, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

const migrationV1 = `
CREATE TABLE IF NOT EXISTS operations (
    id INTEGER PRIMARY KEY,
    uuid TEXT UNIQUE NOT NULL,
    device TEXT NOT NULL,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    details TEXT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_operations_started ON operations(started_at);
CREATE INDEX IF NOT EXISTS idx_operations_device ON operations(device);
`

const migrationV2 = `
CREATE TABLE IF NOT EXISTS mbr_snapshots (
    id INTEGER PRIMARY KEY,
    operation TEXT NOT NULL REFERENCES operations(uuid),
    phase TEXT NOT NULL,
    lba INTEGER NOT NULL DEFAULT 0,
    data BLOB NOT NULL,
    taken_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_operation ON mbr_snapshots(operation);
`

// Begin records the start of an operation and returns its id.
func (j *Journal) Begin(device, kind string, details map[string]any) (string, error) {
	id := uuid.NewString()
	var detailsJSON string
	if details != nil {
		b, err := json.Marshal(details)
		if err == nil {
			detailsJSON = string(b)
		}
	}
	_, err := j.conn.Exec(`
		INSERT INTO operations (uuid, device, kind, status, details, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, device, kind, string(StatusRunning), detailsJSON, j.now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to record operation: %w", err)
	}
	return id, nil
}

// Finish stores the final status of an operation.
func (j *Journal) Finish(id string, status Status) error {
	res, err := j.conn.Exec(`UPDATE operations SET status = ?, finished_at = ? WHERE uuid = ?`,
		string(status), j.now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to finish operation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Snapshot stores a copy of the sector at lba for the operation.
func (j *Journal) Snapshot(id string, phase Phase, lba uint64, data []byte) error {
	_, err := j.conn.Exec(`
		INSERT INTO mbr_snapshots (operation, phase, lba, data, taken_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, string(phase), int64(lba), data, j.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Recent returns the latest operations, newest first.
func (j *Journal) Recent(limit int) ([]*Operation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.conn.Query(`
		SELECT uuid, device, kind, status, details, started_at, finished_at
		FROM operations
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Get returns one operation. A unique id prefix is accepted.
func (j *Journal) Get(id string) (*Operation, error) {
	rows, err := j.conn.Query(`
		SELECT uuid, device, kind, status, details, started_at, finished_at
		FROM operations WHERE uuid LIKE ? || '%' LIMIT 2
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation: %w", err)
	}
	defer rows.Close()

	var found []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return found[0], nil
	}
	return nil, fmt.Errorf("operation id %q is ambiguous", id)
}

// SnapshotOf returns the stored sector of one phase of an operation.
func (j *Journal) SnapshotOf(id string, phase Phase) (*Snapshot, error) {
	s := &Snapshot{Operation: id, Phase: phase}
	var lba, taken int64
	err := j.conn.QueryRow(`
		SELECT lba, data, taken_at FROM mbr_snapshots
		WHERE operation = ? AND phase = ?
		ORDER BY id DESC LIMIT 1
	`, id, string(phase)).Scan(&lba, &s.Data, &taken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no %s snapshot for %s", ErrNotFound, phase, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	s.LBA = uint64(lba)
	s.TakenAt = time.Unix(0, taken)
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(r scanner) (*Operation, error) {
	var (
		op       Operation
		status   string
		details  sql.NullString
		started  int64
		finished sql.NullInt64
	)
	if err := r.Scan(&op.ID, &op.Device, &op.Kind, &status, &details, &started, &finished); err != nil {
		return nil, err
	}
	op.Status = Status(status)
	op.StartedAt = time.Unix(0, started)
	if finished.Valid {
		t := time.Unix(0, finished.Int64)
		op.FinishedAt = &t
	}
	if details.Valid && details.String != "" {
		_ = json.Unmarshal([]byte(details.String), &op.Details)
	}
	return &op, nil
}
