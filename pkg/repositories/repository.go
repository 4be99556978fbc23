package repositories

import (
	"context"

	"github.com/idleforge/idlesync/pkg/conflict"
	"github.com/idleforge/idlesync/pkg/integrity"
	"github.com/idleforge/idlesync/pkg/validator"
)

// SecurityCounters are the per-user suspicion/violation tallies.
type SecurityCounters struct {
	UserID     string `json:"userId"`
	Violations int64  `json:"violations"`
	Suspicions int64  `json:"suspicions"`
}

type Repository interface {
	Close(ctx context.Context) error

	// GetLatestSnapshot returns the stored envelope for a user/device
	// pair, or ErrNotFound.
	GetLatestSnapshot(ctx context.Context, userID, deviceID string) (*integrity.Envelope, error)
	// SaveSnapshot writes an envelope guarded by the version the push
	// was based on. A stale baseVersion yields ErrVersionConflict; use
	// baseVersion 0 for the first write of a pair.
	SaveSnapshot(ctx context.Context, userID, deviceID string, env *integrity.Envelope, baseVersion int64) error

	// RecordResolution appends one conflict-resolution record.
	RecordResolution(ctx context.Context, rec conflict.Record) error
	// FindResolution returns the newest record matching the conflict id
	// or sharing the conflict path, or nil.
	FindResolution(ctx context.Context, userID, conflictID, path string) (*conflict.Record, error)

	SaveSecurityEvents(ctx context.Context, userID string, events []validator.SecurityEvent) error
	IncrementSecurityCounters(ctx context.Context, userID string, violations, suspicions int64) error
	GetSecurityCounters(ctx context.Context, userID string) (*SecurityCounters, error)
}

// historyStore adapts a Repository to the resolver's HistoryStore.
type historyStore struct {
	repo Repository
}

// History exposes the repository's resolution log as a
// conflict.HistoryStore.
func History(repo Repository) conflict.HistoryStore {
	return &historyStore{repo: repo}
}

func (h *historyStore) Record(ctx context.Context, rec conflict.Record) error {
	return h.repo.RecordResolution(ctx, rec)
}

func (h *historyStore) Find(ctx context.Context, userID, conflictID, path string) (*conflict.Record, error) {
	return h.repo.FindResolution(ctx, userID, conflictID, path)
}
