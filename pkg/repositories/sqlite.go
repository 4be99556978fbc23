package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/idleforge/idlesync/pkg/conflict"
	"github.com/idleforge/idlesync/pkg/integrity"
	"github.com/idleforge/idlesync/pkg/validator"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens a SQLite database and applies every
// migration file in the migrations directory in name order.
func NewSQLiteRepository(ctx context.Context, path string, migrations string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	dir, err := os.ReadDir(migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %v", err)
	}

	for _, entry := range dir {
		if entry.IsDir() {
			continue
		}

		migrationPath := filepath.Join(migrations, entry.Name())
		migration, err := os.ReadFile(migrationPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %v", migrationPath, err)
		}

		if _, err := db.ExecContext(ctx, string(migration)); err != nil {
			return nil, fmt.Errorf("failed to execute migration %s: %v", migrationPath, err)
		}
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) GetLatestSnapshot(ctx context.Context, userID, deviceID string) (*integrity.Envelope, error) {
	q := `
	SELECT encrypted, salt, iv, tag, checksum, version, timestamp
	FROM snapshots WHERE user_id = ? AND device_id = ?;
	`
	env := &integrity.Envelope{}
	err := r.db.QueryRowContext(ctx, q, userID, deviceID).Scan(
		&env.Encrypted, &env.Salt, &env.IV, &env.Tag, &env.Checksum, &env.Version, &env.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to query snapshot: %v", err)
	}
	return env, nil
}

func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, userID, deviceID string, env *integrity.Envelope, baseVersion int64) error {
	q := `
	INSERT INTO snapshots (user_id, device_id, encrypted, salt, iv, tag, checksum, version, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id, device_id) DO UPDATE SET
		encrypted = excluded.encrypted, salt = excluded.salt, iv = excluded.iv,
		tag = excluded.tag, checksum = excluded.checksum,
		version = excluded.version, timestamp = excluded.timestamp
	WHERE snapshots.version = ?;
	`
	res, err := r.db.ExecContext(ctx, q, userID, deviceID,
		env.Encrypted, env.Salt, env.IV, env.Tag, env.Checksum, env.Version, env.Timestamp, baseVersion)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check save result: %v", err)
	}
	if affected == 0 {
		current, err := r.GetLatestSnapshot(ctx, userID, deviceID)
		if err != nil {
			return &ErrVersionConflict{Expected: baseVersion}
		}
		return &ErrVersionConflict{Expected: baseVersion, Actual: current.Version}
	}
	return nil
}

func (r *SQLiteRepository) RecordResolution(ctx context.Context, rec conflict.Record) error {
	q := `
	INSERT INTO resolution_history (conflict_id, user_id, path, strategy, user_choice, automatic, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?);
	`
	_, err := r.db.ExecContext(ctx, q, rec.ConflictID, rec.UserID, rec.Path, rec.Strategy, rec.UserChoice, rec.Automatic, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record resolution: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) FindResolution(ctx context.Context, userID, conflictID, path string) (*conflict.Record, error) {
	q := `
	SELECT conflict_id, user_id, path, strategy, user_choice, automatic, timestamp
	FROM resolution_history
	WHERE user_id = ? AND (conflict_id = ? OR path = ?)
	ORDER BY timestamp DESC LIMIT 1;
	`
	rec := &conflict.Record{}
	err := r.db.QueryRowContext(ctx, q, userID, conflictID, path).Scan(
		&rec.ConflictID, &rec.UserID, &rec.Path, &rec.Strategy, &rec.UserChoice, &rec.Automatic, &rec.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query resolution history: %v", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) SaveSecurityEvents(ctx context.Context, userID string, events []validator.SecurityEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	q := `
	INSERT INTO security_events (id, user_id, type, severity, message, timestamp, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?);
	`
	for _, event := range events {
		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %v", err)
		}
		if _, err := tx.ExecContext(ctx, q, event.ID, userID, event.Type, string(event.Severity), event.Message, event.Timestamp, string(metadata)); err != nil {
			return fmt.Errorf("failed to insert security event: %v", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) IncrementSecurityCounters(ctx context.Context, userID string, violations, suspicions int64) error {
	q := `
	INSERT INTO security_counters (user_id, violations, suspicions)
	VALUES (?, ?, ?)
	ON CONFLICT (user_id) DO UPDATE SET
		violations = violations + excluded.violations,
		suspicions = suspicions + excluded.suspicions;
	`
	if _, err := r.db.ExecContext(ctx, q, userID, violations, suspicions); err != nil {
		return fmt.Errorf("failed to increment security counters: %v", err)
	}
	return nil
}

func (r *SQLiteRepository) GetSecurityCounters(ctx context.Context, userID string) (*SecurityCounters, error) {
	q := `SELECT user_id, violations, suspicions FROM security_counters WHERE user_id = ?;`
	c := &SecurityCounters{}
	err := r.db.QueryRowContext(ctx, q, userID).Scan(&c.UserID, &c.Violations, &c.Suspicions)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to query security counters: %v", err)
	}
	return c, nil
}
