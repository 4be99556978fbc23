package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/idleforge/idlesync/pkg/conflict"
	"github.com/idleforge/idlesync/pkg/integrity"
	"github.com/idleforge/idlesync/pkg/validator"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository.
// It panics if it is unable to connect to the database.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) Repository {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		panic(fmt.Sprintf("Unable to create connection pool: %v\n", err))
	}
	if err := pool.Ping(ctx); err != nil {
		panic(fmt.Sprintf("Unable to connect to database: %v\n", err))
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) GetLatestSnapshot(ctx context.Context, userID, deviceID string) (*integrity.Envelope, error) {
	q := `
	SELECT encrypted, salt, iv, tag, checksum, version, timestamp
	FROM snapshots WHERE user_id = $1 AND device_id = $2;
	`
	env := &integrity.Envelope{}
	err := r.pool.QueryRow(ctx, q, userID, deviceID).Scan(
		&env.Encrypted, &env.Salt, &env.IV, &env.Tag, &env.Checksum, &env.Version, &env.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to query snapshot: %v", err)
	}
	return env, nil
}

func (r *PostgresRepository) SaveSnapshot(ctx context.Context, userID, deviceID string, env *integrity.Envelope, baseVersion int64) error {
	q := `
	INSERT INTO snapshots (user_id, device_id, encrypted, salt, iv, tag, checksum, version, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (user_id, device_id) DO UPDATE SET
		encrypted = $3, salt = $4, iv = $5, tag = $6, checksum = $7, version = $8, timestamp = $9
	WHERE snapshots.version = $10;
	`
	tag, err := r.pool.Exec(ctx, q, userID, deviceID,
		env.Encrypted, env.Salt, env.IV, env.Tag, env.Checksum, env.Version, env.Timestamp, baseVersion)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %v", err)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.GetLatestSnapshot(ctx, userID, deviceID)
		if err != nil {
			return &ErrVersionConflict{Expected: baseVersion}
		}
		return &ErrVersionConflict{Expected: baseVersion, Actual: current.Version}
	}
	return nil
}

func (r *PostgresRepository) RecordResolution(ctx context.Context, rec conflict.Record) error {
	q := `
	INSERT INTO resolution_history (conflict_id, user_id, path, strategy, user_choice, automatic, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := r.pool.Exec(ctx, q, rec.ConflictID, rec.UserID, rec.Path, rec.Strategy, rec.UserChoice, rec.Automatic, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record resolution: %v", err)
	}
	return nil
}

func (r *PostgresRepository) FindResolution(ctx context.Context, userID, conflictID, path string) (*conflict.Record, error) {
	q := `
	SELECT conflict_id, user_id, path, strategy, user_choice, automatic, timestamp
	FROM resolution_history
	WHERE user_id = $1 AND (conflict_id = $2 OR path = $3)
	ORDER BY timestamp DESC LIMIT 1;
	`
	rec := &conflict.Record{}
	err := r.pool.QueryRow(ctx, q, userID, conflictID, path).Scan(
		&rec.ConflictID, &rec.UserID, &rec.Path, &rec.Strategy, &rec.UserChoice, &rec.Automatic, &rec.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query resolution history: %v", err)
	}
	return rec, nil
}

func (r *PostgresRepository) SaveSecurityEvents(ctx context.Context, userID string, events []validator.SecurityEvent) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	q := `
	INSERT INTO security_events (id, user_id, type, severity, message, timestamp, metadata)
	VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	for _, event := range events {
		metadata, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal event metadata: %v", err)
		}
		if _, err := tx.Exec(ctx, q, event.ID, userID, event.Type, string(event.Severity), event.Message, event.Timestamp, metadata); err != nil {
			return fmt.Errorf("failed to insert security event: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

func (r *PostgresRepository) IncrementSecurityCounters(ctx context.Context, userID string, violations, suspicions int64) error {
	q := `
	INSERT INTO security_counters (user_id, violations, suspicions)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id) DO UPDATE SET
		violations = security_counters.violations + $2,
		suspicions = security_counters.suspicions + $3;
	`
	if _, err := r.pool.Exec(ctx, q, userID, violations, suspicions); err != nil {
		return fmt.Errorf("failed to increment security counters: %v", err)
	}
	return nil
}

func (r *PostgresRepository) GetSecurityCounters(ctx context.Context, userID string) (*SecurityCounters, error) {
	q := `SELECT user_id, violations, suspicions FROM security_counters WHERE user_id = $1;`
	c := &SecurityCounters{}
	err := r.pool.QueryRow(ctx, q, userID).Scan(&c.UserID, &c.Violations, &c.Suspicions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to query security counters: %v", err)
	}
	return c, nil
}
